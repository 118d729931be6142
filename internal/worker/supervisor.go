package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// CommandFunc resolves the worker command to spawn: binary, args and working
// directory. Called on every (re)spawn so a fixed runtime problem is picked
// up without restarting the daemon.
type CommandFunc func() (bin string, args []string, dir string, err error)

// Handlers receive decoded traffic from the worker's streams. They are
// invoked on the supervisor's reader goroutines; implementations must not
// block.
type Handlers struct {
	// OnResponse receives each complete stdout line.
	OnResponse func(line string)
	// OnEvent receives each decoded stderr event along with the raw line.
	OnEvent func(ev Event, raw string)
	// OnExit fires once per session when the process terminates, expected
	// or not.
	OnExit func(err error)
}

// Config tunes the supervisor.
type Config struct {
	Command        CommandFunc
	StartupTimeout time.Duration
	// Extra KEY=VALUE pairs appended to the minimal environment
	// (accelerator-framework variables and the like).
	ExtraEnv   []string
	Log        zerolog.Logger
	Transcript *Transcript
}

const (
	defaultStartupTimeout = 120 * time.Second
	terminateGrace        = 2 * time.Second
)

// ErrNotRunning is returned by Send when no live session exists.
var ErrNotRunning = errors.New("worker not running")

// Supervisor owns the worker process lifecycle: spawn, stream wiring, ready
// sentinel wait, and termination. At most one session is live at a time.
type Supervisor struct {
	command        CommandFunc
	startupTimeout time.Duration
	extraEnv       []string
	log            zerolog.Logger
	transcript     *Transcript
	handlers       Handlers

	// startMu serializes EnsureStarted so two callers cannot double-spawn.
	startMu sync.Mutex

	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
	alive bool
	done  chan struct{} // closed by the wait goroutine of the live session
	gen   uint64        // session token, bumped on every spawn
}

// NewSupervisor constructs a supervisor. Handlers may be partially nil.
func NewSupervisor(cfg Config, h Handlers) *Supervisor {
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = defaultStartupTimeout
	}
	return &Supervisor{
		command:        cfg.Command,
		startupTimeout: cfg.StartupTimeout,
		extraEnv:       cfg.ExtraEnv,
		log:            cfg.Log,
		transcript:     cfg.Transcript,
		handlers:       h,
	}
}

// Alive reports whether the last known process state is running. Updated by
// the session's wait goroutine, never by polling.
func (s *Supervisor) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

// EnsureStarted returns immediately when a live session exists; otherwise it
// spawns the worker and blocks until the ready sentinel arrives on stderr.
func (s *Supervisor) EnsureStarted(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	if s.alive {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	bin, args, dir, err := s.command()
	if err != nil {
		return err
	}

	cmd := exec.Command(bin, args...)
	cmd.Dir = dir
	cmd.Env = MinimalEnv(s.extraEnv)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.alive = true
	s.done = done
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	pid := cmd.Process.Pid
	s.log.Info().Int("pid", pid).Str("bin", bin).Msg("worker started")
	s.transcript.Lifecycle("started pid=%d bin=%s", pid, bin)

	readyCh := make(chan struct{})
	var readyOnce sync.Once

	go readLoop(stdout, func(line string) {
		s.transcript.Stdout(line)
		if s.handlers.OnResponse != nil {
			s.handlers.OnResponse(line)
		}
	})
	go readLoop(stderr, func(line string) {
		s.transcript.Stderr(line)
		ev := DecodeDiagnosticLine(line)
		if ev.Kind == EventReady {
			readyOnce.Do(func() { close(readyCh) })
		}
		if s.handlers.OnEvent != nil {
			s.handlers.OnEvent(ev, line)
		}
	})

	exitCh := make(chan error, 1)
	go func() {
		werr := cmd.Wait()
		s.mu.Lock()
		if s.gen == gen {
			s.alive = false
		}
		s.mu.Unlock()
		s.log.Info().Int("pid", pid).Err(werr).Msg("worker exited")
		s.transcript.Lifecycle("exited pid=%d err=%v", pid, werr)
		close(done)
		exitCh <- werr
		if s.handlers.OnExit != nil {
			s.handlers.OnExit(werr)
		}
	}()

	select {
	case <-readyCh:
		return nil
	case werr := <-exitCh:
		if werr != nil {
			return fmt.Errorf("worker exited before ready: %w", werr)
		}
		return errors.New("worker exited before ready")
	case <-time.After(s.startupTimeout):
		s.Terminate()
		return errors.New("worker not ready in time")
	case <-ctx.Done():
		s.Terminate()
		return ctx.Err()
	}
}

// Send writes one command line to the worker's stdin, appending the frame
// delimiter.
func (s *Supervisor) Send(line string) error {
	s.mu.Lock()
	stdin := s.stdin
	alive := s.alive
	s.mu.Unlock()
	if !alive || stdin == nil {
		return ErrNotRunning
	}
	s.transcript.Command(line)
	if _, err := io.WriteString(stdin, line+"\n"); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

// Terminate stops the live session: SIGTERM, a short grace period, then
// SIGKILL. Stream handles are released by the process exit. Idempotent.
func (s *Supervisor) Terminate() {
	s.mu.Lock()
	cmd := s.cmd
	stdin := s.stdin
	done := s.done
	s.cmd = nil
	s.stdin = nil
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	if stdin != nil {
		_ = stdin.Close()
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-done:
	case <-time.After(terminateGrace):
		_ = cmd.Process.Kill()
		<-done
	}
}

// readLoop pumps a stream through a line buffer, emitting complete frames.
func readLoop(r io.Reader, emit func(string)) {
	var lb lineBuffer
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			lb.Feed(buf[:n], emit)
		}
		if err != nil {
			lb.Flush(emit)
			return
		}
	}
}

// MinimalEnv builds a worker environment from an explicit allowlist rather
// than inheriting the daemon's full environment.
func MinimalEnv(extra []string) []string {
	env := make([]string, 0, 4+len(extra))
	for _, key := range []string{"PATH", "HOME", "USER", "TMPDIR"} {
		if v := os.Getenv(key); v != "" {
			env = append(env, key+"="+v)
		}
	}
	return append(env, extra...)
}
