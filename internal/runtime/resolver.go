package runtime

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ServerScript and PreviewScript are the worker entrypoints resolved
// relative to the scripts directory.
const (
	ServerScript  = "ltx_server.py"
	PreviewScript = "enhance_prompt_preview.py"
)

// Options describe where to look for the worker runtime.
type Options struct {
	// Explicit interpreter path; wins over everything else when set.
	Python string
	// Bundled runtime root; the interpreter is expected at <dir>/bin/python3.
	Dir string
	// Directory containing the worker scripts.
	ScriptsDir string
	// Fall back to python3 on $PATH when nothing else resolves.
	AllowSystem bool
}

// Paths is the result of a successful resolution.
type Paths struct {
	Python        string
	Home          string // runtime root, used as the worker's working dir
	ServerScript  string
	PreviewScript string
}

type notConfiguredError struct{ msg string }

func (e notConfiguredError) Error() string { return e.msg }

// ErrNotConfigured constructs a notConfiguredError.
func ErrNotConfigured(msg string) error { return notConfiguredError{msg: msg} }

// IsNotConfigured reports whether err indicates that no usable runtime resolved.
func IsNotConfigured(err error) bool {
	_, ok := err.(notConfiguredError)
	return ok
}

// wellKnownRuntimeDirs are probed when neither Python nor Dir is configured.
var wellKnownRuntimeDirs = []string{
	"~/.ltxd/runtime",
	"/opt/ltxd/runtime",
}

// Resolve validates candidate runtime layouts in order and returns the first
// usable one. Pure function of options + filesystem; no state is kept.
func Resolve(opts Options) (Paths, error) {
	python, home, err := resolveInterpreter(opts)
	if err != nil {
		return Paths{}, err
	}
	scriptsDir, err := expandHome(opts.ScriptsDir)
	if err != nil {
		return Paths{}, err
	}
	if scriptsDir == "" {
		scriptsDir = filepath.Join(home, "scripts")
	}
	server := filepath.Join(scriptsDir, ServerScript)
	if !isFile(server) {
		return Paths{}, ErrNotConfigured(fmt.Sprintf("worker script not found: %s", server))
	}
	preview := filepath.Join(scriptsDir, PreviewScript)
	if !isFile(preview) {
		return Paths{}, ErrNotConfigured(fmt.Sprintf("worker script not found: %s", preview))
	}
	return Paths{Python: python, Home: home, ServerScript: server, PreviewScript: preview}, nil
}

func resolveInterpreter(opts Options) (python, home string, err error) {
	if p := strings.TrimSpace(opts.Python); p != "" {
		p, err = expandHome(p)
		if err != nil {
			return "", "", err
		}
		if !isExecutable(p) {
			return "", "", ErrNotConfigured(fmt.Sprintf("configured interpreter not executable: %s", p))
		}
		return p, filepath.Dir(filepath.Dir(p)), nil
	}

	dirs := make([]string, 0, 1+len(wellKnownRuntimeDirs))
	if d := strings.TrimSpace(opts.Dir); d != "" {
		dirs = append(dirs, d)
	} else {
		dirs = append(dirs, wellKnownRuntimeDirs...)
	}
	for _, d := range dirs {
		base, err := expandHome(d)
		if err != nil {
			continue
		}
		candidate := filepath.Join(base, "bin", "python3")
		if isExecutable(candidate) {
			return candidate, base, nil
		}
	}

	if opts.AllowSystem {
		if p, err := exec.LookPath("python3"); err == nil {
			return p, filepath.Dir(filepath.Dir(p)), nil
		}
	}
	return "", "", ErrNotConfigured("no usable python runtime found")
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}

// ExpandHome expands a leading '~' to the user's home directory.
func ExpandHome(path string) (string, error) { return expandHome(path) }

// expandHome expands a leading '~' to the user's home directory.
func expandHome(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	// handle cases like ~/.ltxd/runtime
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
