package paths

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/arthur-debert/dosync/pkg/errors"
)

// Environment variable names
const (
	EnvHosts     = "DOSYNC_HOSTS"
	EnvConfigDir = "DOSYNC_CONFIG_DIR"
	EnvStateDir  = "DOSYNC_STATE_DIR"
	EnvHome      = "HOME"
)

// Default directories and files
const (
	AppDirName       = "dosync"
	SettingsFileName = "config.toml"
	LogFileName      = "dosync.log"
)

// LegacyHostFiles are looked up in the home directory, in order
var LegacyHostFiles = []string{".sync.conf", ".sync.yml", ".sync.yaml"}

// Paths provides centralized path management for dosync
type Paths interface {
	HomeDir() string
	ConfigDir() string
	StateDir() string
	SettingsFile() string
	LogFilePath() string
	HostFileCandidates() []string
	ExpandHome(path string) string
}

type paths struct {
	home      string
	configDir string
	stateDir  string
}

// New creates a Paths instance. An empty home resolves the current user's
// home directory.
func New(home string) (Paths, error) {
	p := &paths{}

	if home == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			h = os.Getenv(EnvHome)
		}
		if h == "" {
			return nil, errors.New(errors.ErrFileAccess, "cannot determine home directory")
		}
		home = h
	}

	absHome, err := filepath.Abs(home)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrFileAccess, "failed to get absolute path for home %s", home)
	}
	p.home = absHome

	if dir := os.Getenv(EnvConfigDir); dir != "" {
		p.configDir = p.ExpandHome(dir)
	} else {
		p.configDir = filepath.Join(xdg.ConfigHome, AppDirName)
	}

	// xdg.StateHome is computed at package init; honour late changes to XDG_STATE_HOME
	switch {
	case os.Getenv(EnvStateDir) != "":
		p.stateDir = p.ExpandHome(os.Getenv(EnvStateDir))
	case os.Getenv("XDG_STATE_HOME") != "":
		p.stateDir = filepath.Join(os.Getenv("XDG_STATE_HOME"), AppDirName)
	default:
		p.stateDir = filepath.Join(xdg.StateHome, AppDirName)
	}

	return p, nil
}

func (p *paths) HomeDir() string {
	return p.home
}

func (p *paths) ConfigDir() string {
	return p.configDir
}

func (p *paths) StateDir() string {
	return p.stateDir
}

// SettingsFile returns the user settings file location
func (p *paths) SettingsFile() string {
	return filepath.Join(p.configDir, SettingsFileName)
}

func (p *paths) LogFilePath() string {
	return filepath.Join(p.stateDir, LogFileName)
}

// HostFileCandidates lists the host files tried when none is given explicitly
func (p *paths) HostFileCandidates() []string {
	var candidates []string
	if env := os.Getenv(EnvHosts); env != "" {
		candidates = append(candidates, p.ExpandHome(env))
	}
	for _, name := range LegacyHostFiles {
		candidates = append(candidates, filepath.Join(p.home, name))
	}
	candidates = append(candidates,
		filepath.Join(p.configDir, "hosts.yml"),
		filepath.Join(p.configDir, "hosts.conf"),
	)
	return candidates
}

// ExpandHome replaces a leading ~ with the home directory. A trailing
// separator is preserved.
func (p *paths) ExpandHome(path string) string {
	return expandHome(p.home, path)
}

// ExpandHome expands a leading ~ using the current user's home directory
func ExpandHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv(EnvHome)
	}
	if home == "" {
		return path
	}
	return expandHome(home, path)
}

// ExpandHomeFrom expands a leading ~ against an explicit home directory
func ExpandHomeFrom(home, path string) string {
	return expandHome(home, path)
}

func expandHome(home, path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	if len(path) == 1 {
		return home
	}
	// ~user is left alone
	if path[1] != '/' && path[1] != filepath.Separator {
		return path
	}

	expanded := filepath.Join(home, path[2:])
	if HasTrailingSlash(path) && !HasTrailingSlash(expanded) {
		expanded += string(filepath.Separator)
	}
	return expanded
}

// HasTrailingSlash reports whether a path names directory contents
func HasTrailingSlash(path string) bool {
	return strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(filepath.Separator))
}

// FirstExisting returns the first candidate that exists as a regular file
func FirstExisting(candidates []string) (string, bool) {
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}

// LocalHostname returns the machine's hostname, or an empty string
func LocalHostname() string {
	name, err := os.Hostname()
	if err != nil {
		return ""
	}
	return name
}
