package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/arthur-debert/dosync/pkg/errors"
	"github.com/arthur-debert/dosync/pkg/sshagent"
	"github.com/arthur-debert/dosync/pkg/transport"
)

// Settings is the effective dosync configuration
type Settings struct {
	Hosts    Hosts    `koanf:"hosts"`
	Transfer Transfer `koanf:"transfer"`
	Rsync    Rsync    `koanf:"rsync"`
	SSH      SSH      `koanf:"ssh"`
	Hooks    Hooks    `koanf:"hooks"`
	Log      Log      `koanf:"log"`
}

// Hosts locates the host file and this machine's entry in it
type Hosts struct {
	File  string `koanf:"file"`
	Local string `koanf:"local"`

	// MountedPaths treats a host's _PATH as a directory on this machine
	// (a mounted drive or share) instead of a path on the SSH target
	MountedPaths bool `koanf:"mounted_paths"`
}

// Transfer controls how items are copied
type Transfer struct {
	Backend string   `koanf:"backend"`
	Jobs    int      `koanf:"jobs"`
	DryRun  bool     `koanf:"dry_run"`
	Delete  bool     `koanf:"delete"`
	Exclude []string `koanf:"exclude"`
}

// Rsync configures the rsync backend
type Rsync struct {
	Command string `koanf:"command"`
	Args    string `koanf:"args"`

	// StderrFails fails a transfer that exited 0 but wrote to stderr
	StderrFails bool `koanf:"stderr_fails"`
}

// SSH configures the native sftp and scp backends
type SSH struct {
	ConfigFile     string        `koanf:"config_file"`
	KnownHosts     string        `koanf:"known_hosts"`
	IdentityFiles  []string      `koanf:"identity_files"`
	UseAgent       bool          `koanf:"use_agent"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	User           string        `koanf:"user"`
	Port           int           `koanf:"port"`
}

// Hooks are commands run around a sync
type Hooks struct {
	PreCommand string `koanf:"pre_command"`
}

// Log configures the log file and console output
type Log struct {
	File     string `koanf:"file"`
	Disabled bool   `koanf:"disabled"`
	Quiet    bool   `koanf:"quiet"`
}

// Validate reports the first invalid setting
func (s *Settings) Validate() error {
	backend := strings.ToLower(s.Transfer.Backend)
	if !transport.IsBackend(backend) {
		return invalid("transfer.backend", s.Transfer.Backend,
			fmt.Sprintf("must be one of %s", strings.Join(transport.Backends(), ", ")))
	}
	if s.Transfer.Jobs < 1 {
		return invalid("transfer.jobs", s.Transfer.Jobs, "must be at least 1")
	}
	if backend == transport.BackendRsync && strings.TrimSpace(s.Rsync.Command) == "" {
		return invalid("rsync.command", s.Rsync.Command, "must not be empty")
	}
	if s.SSH.Port < 0 || s.SSH.Port > 65535 {
		return invalid("ssh.port", s.SSH.Port, "must be between 0 and 65535")
	}
	if s.SSH.ConnectTimeout < 0 {
		return invalid("ssh.connect_timeout", s.SSH.ConnectTimeout, "must not be negative")
	}
	return nil
}

func invalid(key string, value interface{}, reason string) error {
	return errors.Newf(errors.ErrConfigValid, "invalid setting %s=%v: %s", key, value, reason).
		WithDetail("key", key)
}

// TransportOptions maps the settings onto the transport layer. agent is the
// detected key agent and is ignored when ssh.use_agent is off.
func (s *Settings) TransportOptions(agent *sshagent.Status) transport.Options {
	opts := transport.Options{
		DryRun:       s.Transfer.DryRun,
		Delete:       s.Transfer.Delete,
		Exclude:      s.Transfer.Exclude,
		RsyncCommand: s.Rsync.Command,
		RsyncArgs:    s.Rsync.Args,
		StderrFails:  s.Rsync.StderrFails,
		SSH: transport.SSHOptions{
			ConfigFile:     s.SSH.ConfigFile,
			KnownHosts:     s.SSH.KnownHosts,
			IdentityFiles:  s.SSH.IdentityFiles,
			User:           s.SSH.User,
			Port:           s.SSH.Port,
			ConnectTimeout: s.SSH.ConnectTimeout,
		},
	}
	if s.SSH.UseAgent {
		opts.SSH.Agent = agent
	}
	return opts
}
