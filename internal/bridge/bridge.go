package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ltxd/internal/progress"
	"ltxd/internal/runtime"
	"ltxd/internal/worker"
	"ltxd/pkg/types"
)

const (
	defaultGenerateTimeout = 1 * time.Hour
	defaultPreviewTimeout  = 120 * time.Second
	loadTimeout            = 30 * time.Second
)

// Config tunes the bridge.
type Config struct {
	// Resolve locates the python runtime and worker scripts. Called lazily
	// on every spawn.
	Resolve func() (runtime.Paths, error)
	// WorkerCommand overrides the spawned command; tests inject stand-in
	// workers through it. When nil the command is built from Resolve.
	WorkerCommand worker.CommandFunc
	OutputDir     string
	ModelRepo     string
	// Ceiling for a single generation; legitimate large generations are
	// slow, so this is deliberately generous.
	GenerateTimeout time.Duration
	PreviewTimeout  time.Duration
	StartupTimeout  time.Duration
	// Extra KEY=VALUE pairs for the worker environment.
	ExtraEnv   []string
	Log        zerolog.Logger
	Transcript *worker.Transcript
}

// Request is one generation job handed to the bridge.
type Request struct {
	Prompt         string
	NegativePrompt string
	Params         types.GenerationParameters
	// OutputPath overrides the derived output location when set.
	OutputPath string
}

// Result is a completed generation.
type Result struct {
	VideoPath      string
	Seed           int64
	Mode           string
	HasAudio       bool
	EnhancedPrompt string
}

// outcome resolves a pending operation: exactly one of resp/err is set.
type outcome struct {
	resp workerResponse
	err  error
}

// pendingOp is the single-slot request/response correlation mailbox. The
// channel is buffered so the I/O goroutine never blocks on delivery.
type pendingOp struct {
	ch chan outcome
}

// Bridge orchestrates the worker session: it serializes commands to stdin,
// awaits exactly one JSON response per command on stdout, and folds stderr
// diagnostics into the shared progress state.
type Bridge struct {
	cfg Config
	sup *worker.Supervisor
	log zerolog.Logger

	// mu guards everything below. It is held only for reads/mutations,
	// never across a suspension point.
	mu          sync.Mutex
	pending     *pendingOp
	cancelling  bool
	modelLoaded bool
	progVal     float64
	progMsg     string
	enhanced    string
}

// New constructs a bridge and its supervisor.
func New(cfg Config) *Bridge {
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = defaultGenerateTimeout
	}
	if cfg.PreviewTimeout <= 0 {
		cfg.PreviewTimeout = defaultPreviewTimeout
	}
	b := &Bridge{cfg: cfg, log: cfg.Log}

	command := cfg.WorkerCommand
	if command == nil {
		command = func() (string, []string, string, error) {
			paths, err := cfg.Resolve()
			if err != nil {
				return "", nil, "", err
			}
			return paths.Python, []string{"-u", paths.ServerScript}, paths.Home, nil
		}
	}
	b.sup = worker.NewSupervisor(worker.Config{
		Command:        command,
		StartupTimeout: cfg.StartupTimeout,
		ExtraEnv:       cfg.ExtraEnv,
		Log:            cfg.Log,
		Transcript:     cfg.Transcript,
	}, worker.Handlers{
		OnResponse: b.handleResponseLine,
		OnEvent:    b.handleEvent,
		OnExit:     b.handleExit,
	})
	return b
}

// ModelLoaded reports whether the bridge considers the worker warm.
func (b *Bridge) ModelLoaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.modelLoaded
}

// WorkerAlive reports whether the worker process is currently running.
func (b *Bridge) WorkerAlive() bool { return b.sup.Alive() }

// Progress returns the last progress value and message, last-write-wins.
func (b *Bridge) Progress() (float64, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.progVal, b.progMsg
}

// LoadModel starts the worker if needed and verifies the command loop with a
// ping round-trip. Idempotent.
func (b *Bridge) LoadModel(ctx context.Context) error {
	if b.ModelLoaded() && b.sup.Alive() {
		return nil
	}
	op, err := b.reserve()
	if err != nil {
		return err
	}
	if err := b.ensureWorker(ctx); err != nil {
		b.release(op)
		return err
	}
	line, _ := json.Marshal(workerCommand{Command: "ping"})
	if err := b.sup.Send(string(line)); err != nil {
		b.release(op)
		return ErrStartupFailed(err.Error())
	}
	select {
	case out := <-op.ch:
		if out.err != nil {
			return ErrStartupFailed(out.err.Error())
		}
		b.mu.Lock()
		b.modelLoaded = true
		b.mu.Unlock()
		return nil
	case <-time.After(loadTimeout):
		b.release(op)
		return ErrStartupFailed("worker did not answer ping")
	case <-ctx.Done():
		b.release(op)
		return ErrCancelled(ctx.Err().Error())
	}
}

// UnloadModel terminates the worker session. Always succeeds.
func (b *Bridge) UnloadModel() {
	b.sup.Terminate()
	b.mu.Lock()
	b.modelLoaded = false
	b.progVal = 0
	b.progMsg = ""
	b.mu.Unlock()
}

// Cancel tears the worker session down and maps the pending rejection to a
// cancelled error. There is no finer-grained cancel protocol.
func (b *Bridge) Cancel() {
	b.mu.Lock()
	b.cancelling = true
	b.mu.Unlock()
	b.sup.Terminate()
}

// Generate runs one generation through the persistent worker session and
// suspends the caller until the response line arrives. Fails fast with a
// busy error when an operation is already pending.
func (b *Bridge) Generate(ctx context.Context, req Request) (Result, error) {
	op, err := b.reserve()
	if err != nil {
		return Result{}, err
	}

	if err := b.ensureWorker(ctx); err != nil {
		b.release(op)
		generationsTotal.WithLabelValues("startup_failed").Inc()
		return Result{}, err
	}

	params, seed := materializeParameters(req.Params)
	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath = filepath.Join(b.cfg.OutputDir,
			fmt.Sprintf("ltx-%s-%d.mp4", time.Now().Format("20060102-150405"), seed))
	}
	cmd := workerCommand{
		Command: "generate",
		Params:  buildCommandParams(req, params, seed, outputPath, b.cfg.ModelRepo),
	}
	line, err := json.Marshal(cmd)
	if err != nil {
		b.release(op)
		return Result{}, ErrGenerationFailed(err.Error())
	}

	b.mu.Lock()
	b.progVal = 0
	b.progMsg = "Starting generation..."
	b.enhanced = ""
	b.mu.Unlock()

	if err := b.sup.Send(string(line)); err != nil {
		b.release(op)
		generationsTotal.WithLabelValues("crashed").Inc()
		return Result{}, ErrWorkerCrashed(err.Error())
	}

	timer := time.NewTimer(b.cfg.GenerateTimeout)
	defer timer.Stop()
	select {
	case out := <-op.ch:
		if out.err != nil {
			if IsCancelled(out.err) {
				generationsTotal.WithLabelValues("cancelled").Inc()
			} else {
				generationsTotal.WithLabelValues("crashed").Inc()
			}
			return Result{}, out.err
		}
		return b.finish(out.resp, seed)
	case <-timer.C:
		b.release(op)
		b.sup.Terminate()
		generationsTotal.WithLabelValues("timeout").Inc()
		return Result{}, ErrGenerationFailed(fmt.Sprintf("timed out after %s", b.cfg.GenerateTimeout))
	case <-ctx.Done():
		b.release(op)
		generationsTotal.WithLabelValues("cancelled").Inc()
		return Result{}, ErrCancelled(ctx.Err().Error())
	}
}

func (b *Bridge) finish(resp workerResponse, seed int64) (Result, error) {
	if !resp.Success {
		reason := resp.Error
		if reason == "" {
			reason = "worker reported failure"
		}
		generationsTotal.WithLabelValues("failed").Inc()
		return Result{}, ErrGenerationFailed(reason)
	}
	b.mu.Lock()
	enhanced := b.enhanced
	b.progVal = 1
	b.progMsg = "Completed"
	b.mu.Unlock()
	if resp.Seed == 0 {
		resp.Seed = seed
	}
	generationsTotal.WithLabelValues("success").Inc()
	return Result{
		VideoPath:      resp.VideoPath,
		Seed:           resp.Seed,
		Mode:           resp.Mode,
		HasAudio:       resp.HasAudio,
		EnhancedPrompt: enhanced,
	}, nil
}

// reserve claims the single pending-operation slot or fails with busy.
func (b *Bridge) reserve() (*pendingOp, error) {
	op := &pendingOp{ch: make(chan outcome, 1)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending != nil {
		return nil, ErrBusy()
	}
	b.pending = op
	b.cancelling = false
	return op, nil
}

// release clears the slot if op still owns it.
func (b *Bridge) release(op *pendingOp) {
	b.mu.Lock()
	if b.pending == op {
		b.pending = nil
	}
	b.mu.Unlock()
}

// take removes and returns the pending op, if any.
func (b *Bridge) take() *pendingOp {
	b.mu.Lock()
	defer b.mu.Unlock()
	op := b.pending
	b.pending = nil
	return op
}

func (b *Bridge) ensureWorker(ctx context.Context) error {
	err := b.sup.EnsureStarted(ctx)
	if err == nil {
		return nil
	}
	if runtime.IsNotConfigured(err) {
		return ErrRuntimeNotConfigured(err.Error())
	}
	return ErrStartupFailed(err.Error())
}

// handleResponseLine consumes one stdout frame. Non-JSON lines are dropped:
// the worker is expected to emit exactly one JSON object per command, but
// import-time library noise occasionally leaks onto stdout.
func (b *Bridge) handleResponseLine(line string) {
	s := strings.TrimSpace(line)
	if s == "" || s[0] != '{' {
		return
	}
	var resp workerResponse
	if err := json.Unmarshal([]byte(s), &resp); err != nil {
		b.log.Debug().Str("line", s).Msg("dropping malformed stdout line")
		return
	}
	op := b.take()
	if op == nil {
		// Protocol assumption: one response per command. Extras are lost.
		b.log.Debug().Msg("dropping unsolicited worker response")
		return
	}
	op.ch <- outcome{resp: resp}
}

// handleEvent folds decoded stderr diagnostics into the progress state.
// Runs on the supervisor's reader goroutine; the lock is never held across
// anything that can block.
func (b *Bridge) handleEvent(ev worker.Event, raw string) {
	switch ev.Kind {
	case worker.EventStatus:
		anchor := progress.StatusAnchor(ev.Message)
		b.mu.Lock()
		b.progMsg = ev.Message
		if anchor > b.progVal {
			b.progVal = anchor
		}
		b.mu.Unlock()
	case worker.EventProgress:
		b.mu.Lock()
		b.progVal = ev.Value
		if ev.Message != "" {
			b.progMsg = ev.Message
		}
		b.mu.Unlock()
	case worker.EventStage:
		v, msg := progress.Stage(ev.Stage, ev.Step, ev.Total)
		b.mu.Lock()
		b.progVal = v
		b.progMsg = msg
		b.mu.Unlock()
	case worker.EventDownload:
		v := progress.Download(ev.Percent)
		msg := "Downloading model..."
		if ev.Percent >= 0 {
			msg = fmt.Sprintf("Downloading model (%.0f%%)", ev.Percent)
		}
		b.mu.Lock()
		if v > b.progVal {
			b.progVal = v
		}
		b.progMsg = msg
		b.mu.Unlock()
	case worker.EventEnhancedPrompt:
		b.mu.Lock()
		b.enhanced = ev.Message
		b.mu.Unlock()
	case worker.EventWorkerError:
		b.log.Warn().Str("error", ev.Message).Msg("worker error")
	case worker.EventReady:
		// Handled by the supervisor's ready wait.
	default:
		b.log.Debug().Str("line", raw).Msg("worker")
	}
}

// handleExit fires when the worker process terminates. A pending operation
// is rejected as cancelled when the teardown was deliberate, crashed
// otherwise; a later call transparently respawns.
func (b *Bridge) handleExit(exitErr error) {
	b.mu.Lock()
	op := b.pending
	b.pending = nil
	cancelling := b.cancelling
	b.cancelling = false
	b.modelLoaded = false
	b.mu.Unlock()
	if op == nil {
		return
	}
	if cancelling {
		op.ch <- outcome{err: ErrCancelled("worker session torn down")}
		return
	}
	workerCrashesTotal.Inc()
	msg := "worker exited unexpectedly"
	if exitErr != nil {
		msg = exitErr.Error()
	}
	op.ch <- outcome{err: ErrWorkerCrashed(msg)}
}
