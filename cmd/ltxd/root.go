package main

import (
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"ltxd/internal/config"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	rootCmd := &cobra.Command{
		Use:           "ltxd",
		Short:         "Video generation daemon for LTX worker processes",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (.toml, .yaml or .json)")

	rootCmd.AddCommand(newServeCommand(&configFlag))
	rootCmd.AddCommand(newPreviewCommand(&configFlag))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// loadConfig reads the optional config file and layers LTXD_* environment
// variables on top. Flag values are applied later by the commands themselves.
func loadConfig(path string) (config.Config, error) {
	var cfg config.Config
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *config.Config) {
	if v := os.Getenv("LTXD_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("LTXD_RUNTIME_PYTHON"); v != "" {
		cfg.RuntimePython = v
	}
	if v := os.Getenv("LTXD_RUNTIME_DIR"); v != "" {
		cfg.RuntimeDir = v
	}
	if v := os.Getenv("LTXD_SCRIPTS_DIR"); v != "" {
		cfg.ScriptsDir = v
	}
	if v := os.Getenv("LTXD_OUTPUT_DIR"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("LTXD_MODEL_REPO"); v != "" {
		cfg.ModelRepo = v
	}
	if v := os.Getenv("LTXD_WORKER_ENV"); v != "" {
		cfg.WorkerEnv = splitWorkerEnv(v)
	}
	if v := os.Getenv("LTXD_TRANSCRIPT_DIR"); v != "" {
		cfg.TranscriptDir = v
	}
	if v := os.Getenv("LTXD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LTXD_ALLOW_SYSTEM_PYTHON"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AllowSystemPython = b
		}
	}
}

// splitWorkerEnv parses a comma-separated list of KEY=VALUE pairs, dropping
// entries without an '='.
func splitWorkerEnv(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" || !strings.Contains(part, "=") {
			continue
		}
		out = append(out, part)
	}
	return out
}
