package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ltxd/internal/bridge"
	"ltxd/internal/config"
	"ltxd/internal/httpapi"
	"ltxd/internal/queue"
	"ltxd/internal/runtime"
	"ltxd/internal/worker"
	"ltxd/pkg/types"
)

const (
	defaultAddr      = ":8484"
	defaultModelRepo = "notapalindrome/ltx2-mlx-av"
	defaultOutputDir = "~/.ltxd/outputs"
)

func newServeCommand(configFlag *string) *cobra.Command {
	var (
		addr          string
		python        string
		runtimeDir    string
		scriptsDir    string
		outputDir     string
		modelRepo     string
		transcriptDir string
		logLevel      string
		allowSystem   bool
		workerEnv     []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the generation daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return err
			}
			// Flags win over file and environment.
			if cmd.Flags().Changed("addr") || cfg.Addr == "" {
				if addr != "" {
					cfg.Addr = addr
				}
			}
			if python != "" {
				cfg.RuntimePython = python
			}
			if runtimeDir != "" {
				cfg.RuntimeDir = runtimeDir
			}
			if scriptsDir != "" {
				cfg.ScriptsDir = scriptsDir
			}
			if outputDir != "" {
				cfg.OutputDir = outputDir
			}
			if modelRepo != "" {
				cfg.ModelRepo = modelRepo
			}
			if transcriptDir != "" {
				cfg.TranscriptDir = transcriptDir
			}
			if len(workerEnv) > 0 {
				cfg.WorkerEnv = workerEnv
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if cmd.Flags().Changed("allow-system-python") {
				cfg.AllowSystemPython = allowSystem
			}
			applyDefaults(&cfg)
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "HTTP listen address, e.g. :8484")
	cmd.Flags().StringVar(&python, "python", "", "Explicit python interpreter for the worker")
	cmd.Flags().StringVar(&runtimeDir, "runtime-dir", "", "Bundled python runtime root")
	cmd.Flags().StringVar(&scriptsDir, "scripts-dir", "", "Directory holding the worker scripts")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for generated videos")
	cmd.Flags().StringVar(&modelRepo, "model-repo", "", "Model repository to load weights from")
	cmd.Flags().StringVar(&transcriptDir, "transcript-dir", "", "Directory for worker transcripts (empty disables)")
	cmd.Flags().StringArrayVar(&workerEnv, "worker-env", nil, "Extra KEY=VALUE for the worker environment (repeatable)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.Flags().BoolVar(&allowSystem, "allow-system-python", false, "Permit python3 from $PATH when no bundled runtime resolves")

	return cmd
}

func applyDefaults(cfg *config.Config) {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.ModelRepo == "" {
		cfg.ModelRepo = defaultModelRepo
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = defaultOutputDir
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func runServe(cfg config.Config) error {
	log := newLogger(cfg.LogLevel)

	outputDir, err := runtime.ExpandHome(cfg.OutputDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("output dir: %w", err)
	}

	var transcript *worker.Transcript
	if cfg.TranscriptDir != "" {
		dir, err := runtime.ExpandHome(cfg.TranscriptDir)
		if err != nil {
			return err
		}
		transcript, err = worker.OpenTranscript(dir)
		if err != nil {
			return fmt.Errorf("transcript: %w", err)
		}
		defer transcript.Close()
	}

	resolve := func() (runtime.Paths, error) {
		return runtime.Resolve(runtime.Options{
			Python:      cfg.RuntimePython,
			Dir:         cfg.RuntimeDir,
			ScriptsDir:  cfg.ScriptsDir,
			AllowSystem: cfg.AllowSystemPython,
		})
	}

	b := bridge.New(bridge.Config{
		Resolve:         resolve,
		OutputDir:       outputDir,
		ModelRepo:       cfg.ModelRepo,
		GenerateTimeout: time.Duration(cfg.GenerateTimeoutSec) * time.Second,
		PreviewTimeout:  time.Duration(cfg.PreviewTimeoutSec) * time.Second,
		StartupTimeout:  time.Duration(cfg.StartupTimeoutSec) * time.Second,
		ExtraEnv:        cfg.WorkerEnv,
		Log:             log.With().Str("component", "bridge").Logger(),
		Transcript:      transcript,
	})

	svc := queue.NewService(b, log.With().Str("component", "queue").Logger())
	svc.Start()
	defer svc.Stop()

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetCORSOrigins(cfg.CORSOrigins)
	mux := httpapi.NewMux(&apiService{q: svc, b: b, resolve: resolve})
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Str("model_repo", cfg.ModelRepo).Msg("ltxd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

// apiService adapts the queue service and bridge to the HTTP layer.
type apiService struct {
	q       *queue.Service
	b       *bridge.Bridge
	resolve func() (runtime.Paths, error)
}

func (s *apiService) Status() types.StatusResponse {
	progress, message := s.b.Progress()
	count := s.q.PendingCount()
	if s.q.Processing() {
		count++
	}
	return types.StatusResponse{
		Server:          "running",
		ModelLoaded:     s.b.ModelLoaded(),
		QueueCount:      count,
		CurrentProgress: progress,
		CurrentMessage:  message,
	}
}

func (s *apiService) Queue() []types.QueueItem {
	snap := s.q.Snapshot()
	items := make([]types.QueueItem, 0, len(snap))
	for _, r := range snap {
		items = append(items, r.Item())
	}
	return items
}

func (s *apiService) Submit(prompt, negativePrompt string, params types.GenerationParameters) string {
	return s.q.Submit(prompt, negativePrompt, params)
}

func (s *apiService) Remove(id string) error { return s.q.Remove(id) }

func (s *apiService) CancelCurrent() bool { return s.q.CancelCurrent() }

// Ready reports whether generations can be served: either the worker is
// already up, or the runtime resolves so one can be spawned on demand.
func (s *apiService) Ready() bool {
	if s.b.WorkerAlive() {
		return true
	}
	_, err := s.resolve()
	return err == nil
}
