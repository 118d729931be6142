package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.yaml", "addr: :9999\nruntime_dir: /opt/rt\noutput_dir: /tmp/out\nmodel_repo: repo/av\ngenerate_timeout_sec: 120\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" || cfg.RuntimeDir != "/opt/rt" || cfg.OutputDir != "/tmp/out" || cfg.ModelRepo != "repo/av" || cfg.GenerateTimeoutSec != 120 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.json", `{"addr":":7070","runtime_python":"/usr/bin/python3","scripts_dir":"/s","preview_timeout_sec":30,"cors_origins":["http://localhost:3000"]}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":7070" || cfg.RuntimePython != "/usr/bin/python3" || cfg.ScriptsDir != "/s" || cfg.PreviewTimeoutSec != 30 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected cors origins: %v", cfg.CORSOrigins)
	}
}

func TestLoadTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.toml", "addr=\":8081\"\nruntime_dir=\"/x\"\nallow_system_python=true\nstartup_timeout_sec=45\nworker_env=[\"HF_HOME=/models/hf\",\"MTL_SHADER_VALIDATION=0\"]\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.RuntimeDir != "/x" || !cfg.AllowSystemPython || cfg.StartupTimeoutSec != 45 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if len(cfg.WorkerEnv) != 2 || cfg.WorkerEnv[0] != "HF_HOME=/models/hf" {
		t.Fatalf("unexpected worker env: %v", cfg.WorkerEnv)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	p := writeTempFile(t, d, "cfg.txt", "not supported")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unsupported extension error")
	}
}

func TestLoad_NonexistentFile(t *testing.T) {
	if _, err := Load("/definitely/not/a/real/file-12345.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "bad.toml", "addr=:8080\nruntime_dir\n")
	if _, err := Load(p); err == nil {
		t.Fatalf("expected TOML unmarshal error")
	}
}
