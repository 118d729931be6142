package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"ltxd/internal/runtime"
	"ltxd/internal/worker"
)

// PreviewOptions parameterize a one-shot enhanced-prompt preview.
type PreviewOptions struct {
	Prompt      string
	ModelRepo   string
	Temperature float64
	// Image switches the enhancer to the image-to-video system prompt.
	Image string
	Seed  *int64
	// ResourcesPath lets the script inject bundled system prompts.
	ResourcesPath string
}

// previewResult is the script's single JSON output.
type previewResult struct {
	EnhancedPrompt string `json:"enhanced_prompt"`
	Error          string `json:"error"`
}

// PreviewEnhancedPrompt runs the enhancer as a short-lived process per call,
// independent of the persistent session, and captures its stdout as the sole
// JSON result. Expiry of the bounded timeout fails the preview.
func (b *Bridge) PreviewEnhancedPrompt(ctx context.Context, opts PreviewOptions) (string, error) {
	if strings.TrimSpace(opts.Prompt) == "" {
		return "", ErrGenerationFailed("prompt is required")
	}
	if b.cfg.Resolve == nil {
		return "", ErrRuntimeNotConfigured("no runtime resolver")
	}
	paths, err := b.cfg.Resolve()
	if err != nil {
		if runtime.IsNotConfigured(err) {
			return "", ErrRuntimeNotConfigured(err.Error())
		}
		return "", ErrStartupFailed(err.Error())
	}

	args := []string{"-u", paths.PreviewScript, "--prompt", opts.Prompt}
	repo := opts.ModelRepo
	if repo == "" {
		repo = b.cfg.ModelRepo
	}
	if repo != "" {
		args = append(args, "--model-repo", repo)
	}
	if opts.Temperature > 0 {
		args = append(args, "--temperature", strconv.FormatFloat(opts.Temperature, 'f', -1, 64))
	}
	if opts.Image != "" {
		args = append(args, "--image", opts.Image)
	}
	if opts.ResourcesPath != "" {
		args = append(args, "--resources-path", opts.ResourcesPath)
	}
	if opts.Seed != nil {
		args = append(args, "--seed", strconv.FormatInt(*opts.Seed, 10))
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.PreviewTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, paths.Python, args...)
	cmd.Dir = paths.Home
	cmd.Env = worker.MinimalEnv(b.cfg.ExtraEnv)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", ErrGenerationFailed(fmt.Sprintf("preview timed out after %s", b.cfg.PreviewTimeout))
	}

	if text, ok := extractEnhancedPrompt(stdout.String()); ok {
		return text, nil
	}
	// On failure the script prints an error JSON to stderr and exits non-zero.
	if msg, ok := extractPreviewError(stderr.String()); ok {
		return "", ErrGenerationFailed(msg)
	}
	if runErr != nil {
		return "", ErrGenerationFailed(runErr.Error())
	}
	return "", ErrGenerationFailed("preview produced no recognizable result")
}

// extractEnhancedPrompt scans output lines for the result object, tolerating
// library noise around it.
func extractEnhancedPrompt(out string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] != '{' {
			continue
		}
		var res previewResult
		if err := json.Unmarshal([]byte(line), &res); err != nil {
			continue
		}
		if res.EnhancedPrompt != "" {
			return res.EnhancedPrompt, true
		}
	}
	return "", false
}

func extractPreviewError(out string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] != '{' {
			continue
		}
		var res previewResult
		if err := json.Unmarshal([]byte(line), &res); err != nil {
			continue
		}
		if res.Error != "" {
			return res.Error, true
		}
	}
	return "", false
}
