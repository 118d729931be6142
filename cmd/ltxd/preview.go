package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ltxd/internal/bridge"
	"ltxd/internal/runtime"
)

func newPreviewCommand(configFlag *string) *cobra.Command {
	var (
		prompt      string
		modelRepo   string
		temperature float64
		image       string
		seed        int64
		seedSet     bool
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Run the prompt enhancer once and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return err
			}
			applyDefaults(&cfg)
			if modelRepo == "" {
				modelRepo = cfg.ModelRepo
			}
			seedSet = cmd.Flags().Changed("seed")

			resolve := func() (runtime.Paths, error) {
				return runtime.Resolve(runtime.Options{
					Python:      cfg.RuntimePython,
					Dir:         cfg.RuntimeDir,
					ScriptsDir:  cfg.ScriptsDir,
					AllowSystem: cfg.AllowSystemPython,
				})
			}
			b := bridge.New(bridge.Config{
				Resolve:        resolve,
				ModelRepo:      cfg.ModelRepo,
				PreviewTimeout: time.Duration(cfg.PreviewTimeoutSec) * time.Second,
				ExtraEnv:       cfg.WorkerEnv,
				Log:            newLogger(cfg.LogLevel),
			})

			opts := bridge.PreviewOptions{
				Prompt:      prompt,
				ModelRepo:   modelRepo,
				Temperature: temperature,
				Image:       image,
			}
			if seedSet {
				opts.Seed = &seed
			}
			enhanced, err := b.PreviewEnhancedPrompt(context.Background(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), enhanced)
			return nil
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Prompt to enhance")
	cmd.Flags().StringVar(&modelRepo, "model-repo", "", "Model repository for the enhancer")
	cmd.Flags().Float64Var(&temperature, "temperature", 0.7, "Sampling temperature for the enhancer")
	cmd.Flags().StringVar(&image, "image", "", "Optional conditioning image path")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Seed for reproducible enhancement")
	_ = cmd.MarkFlagRequired("prompt")

	return cmd
}
