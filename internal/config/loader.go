package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"`
	// Explicit python interpreter for the worker. Takes precedence over RuntimeDir.
	RuntimePython string `json:"runtime_python" yaml:"runtime_python" toml:"runtime_python"`
	// Bundled runtime root; the interpreter is expected at <dir>/bin/python3.
	RuntimeDir string `json:"runtime_dir" yaml:"runtime_dir" toml:"runtime_dir"`
	// Directory holding the worker scripts (ltx_server.py, enhance_prompt_preview.py).
	ScriptsDir string `json:"scripts_dir" yaml:"scripts_dir" toml:"scripts_dir"`
	// Permit falling back to python3 on $PATH when no bundled runtime resolves.
	AllowSystemPython bool `json:"allow_system_python" yaml:"allow_system_python" toml:"allow_system_python"`
	// Directory where generated videos are written.
	OutputDir string `json:"output_dir" yaml:"output_dir" toml:"output_dir"`
	// Model repository the worker loads weights from.
	ModelRepo string `json:"model_repo" yaml:"model_repo" toml:"model_repo"`
	// Ceiling for a single generation, in seconds.
	GenerateTimeoutSec int `json:"generate_timeout_sec" yaml:"generate_timeout_sec" toml:"generate_timeout_sec"`
	// Wall-clock limit for the one-shot prompt preview, in seconds.
	PreviewTimeoutSec int `json:"preview_timeout_sec" yaml:"preview_timeout_sec" toml:"preview_timeout_sec"`
	// How long to wait for the worker's ready sentinel, in seconds.
	StartupTimeoutSec int `json:"startup_timeout_sec" yaml:"startup_timeout_sec" toml:"startup_timeout_sec"`
	// Extra KEY=VALUE pairs appended to the worker's minimal environment,
	// for accelerator-framework variables like HF_HOME or MTL_* settings.
	WorkerEnv []string `json:"worker_env" yaml:"worker_env" toml:"worker_env"`
	// Directory for plain-text worker transcripts; empty disables them.
	TranscriptDir string `json:"transcript_dir" yaml:"transcript_dir" toml:"transcript_dir"`
	LogLevel      string `json:"log_level" yaml:"log_level" toml:"log_level"`
	// Allowed CORS origins for the control plane; empty means "*".
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
