package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Transcript is an append-only plain-text log of everything that crossed the
// worker's pipes: stdin commands, stdout/stderr lines, and process
// start/exit timestamps. It exists purely for postmortem debugging and is
// never read back by the daemon.
type Transcript struct {
	mu sync.Mutex
	f  *os.File
}

// OpenTranscript creates a timestamped transcript file under dir. A nil
// *Transcript is a valid no-op sink, so callers never need to branch.
func OpenTranscript(dir string) (*Transcript, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("transcript dir: %w", err)
	}
	name := fmt.Sprintf("worker-%s.log", time.Now().Format("20060102-150405"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	return &Transcript{f: f}, nil
}

func (t *Transcript) write(tag, line string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return
	}
	fmt.Fprintf(t.f, "%s %s %s\n", time.Now().Format("15:04:05.000"), tag, line)
}

// Command records a line written to the worker's stdin.
func (t *Transcript) Command(line string) { t.write(">>", line) }

// Stdout records a response-channel line.
func (t *Transcript) Stdout(line string) { t.write("<<", line) }

// Stderr records a diagnostic-channel line.
func (t *Transcript) Stderr(line string) { t.write("!!", line) }

// Lifecycle records a process start/exit marker.
func (t *Transcript) Lifecycle(format string, args ...any) {
	t.write("==", fmt.Sprintf(format, args...))
}

// Close releases the underlying file.
func (t *Transcript) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.f == nil {
		return nil
	}
	err := t.f.Close()
	t.f = nil
	return err
}
