package testutil

import (
	"path/filepath"
	"testing"

	"github.com/arthur-debert/dosync/pkg/filesystem"
	"github.com/arthur-debert/dosync/pkg/paths"
)

// EnvType defines the type of test environment
type EnvType int

const (
	EnvMemoryOnly EnvType = iota // Pure in-memory, no real filesystem
	EnvIsolated                  // Real filesystem in temp directory
)

// TestEnvironment provides a home directory, dosync's config and state
// directories and a filesystem rooted there
type TestEnvironment struct {
	HomeDir   string
	ConfigDir string
	StateDir  string

	FS    filesystem.FS
	Paths paths.Paths

	Type EnvType

	t *testing.T
}

// NewTestEnvironment creates a new test environment. Isolated environments
// also point HOME and the DOSYNC_* directory variables at it and clear the
// variables that would let the host machine leak in.
func NewTestEnvironment(t *testing.T, envType EnvType) *TestEnvironment {
	t.Helper()

	env := &TestEnvironment{t: t, Type: envType}

	switch envType {
	case EnvMemoryOnly:
		env.HomeDir = "/virtual/home"
		env.FS = filesystem.NewMemory()
	case EnvIsolated:
		env.HomeDir = t.TempDir()
		env.FS = filesystem.NewOS()
	}
	env.ConfigDir = filepath.Join(env.HomeDir, ".config", paths.AppDirName)
	env.StateDir = filepath.Join(env.HomeDir, ".local", "state", paths.AppDirName)

	for _, dir := range []string{env.HomeDir, env.ConfigDir, env.StateDir} {
		if err := env.FS.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", dir, err)
		}
	}

	if envType == EnvIsolated {
		t.Setenv(paths.EnvHome, env.HomeDir)
		t.Setenv(paths.EnvConfigDir, env.ConfigDir)
		t.Setenv(paths.EnvStateDir, env.StateDir)
		t.Setenv(paths.EnvHosts, "")
		t.Setenv("SSH_AUTH_SOCK", "")
		t.Setenv("NO_COLOR", "1")
	}

	p, err := paths.New(env.HomeDir)
	if err != nil {
		t.Fatalf("Failed to create paths: %v", err)
	}
	env.Paths = p

	return env
}

// Path joins rel to the home directory
func (env *TestEnvironment) Path(rel string) string {
	return filepath.Join(env.HomeDir, rel)
}

// WriteFile writes content to rel under the home directory and returns the
// absolute path
func (env *TestEnvironment) WriteFile(rel, content string) string {
	env.t.Helper()
	full := env.Path(rel)
	if err := env.FS.MkdirAll(filepath.Dir(full), 0755); err != nil {
		env.t.Fatalf("Failed to create directory for %s: %v", full, err)
	}
	if err := env.FS.WriteFile(full, []byte(content), 0644); err != nil {
		env.t.Fatalf("Failed to write file %s: %v", full, err)
	}
	return full
}

// FileTree represents a directory structure for testing. Values are either
// file contents (string) or nested FileTrees.
type FileTree map[string]interface{}

// WithFileTree creates tree under the home directory
func (env *TestEnvironment) WithFileTree(tree FileTree) {
	env.t.Helper()
	createFileTree(env.t, env.FS, env.HomeDir, tree)
}

func createFileTree(t *testing.T, fsys filesystem.FS, basePath string, tree FileTree) {
	t.Helper()

	for name, content := range tree {
		fullPath := filepath.Join(basePath, name)

		switch v := content.(type) {
		case string:
			if err := fsys.WriteFile(fullPath, []byte(v), 0644); err != nil {
				t.Fatalf("Failed to write file %s: %v", fullPath, err)
			}
		case FileTree:
			if err := fsys.MkdirAll(fullPath, 0755); err != nil {
				t.Fatalf("Failed to create directory %s: %v", fullPath, err)
			}
			createFileTree(t, fsys, fullPath, v)
		default:
			t.Fatalf("Invalid file tree content type for %s: %T", name, content)
		}
	}
}
