package config

import (
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/arthur-debert/dosync/pkg/errors"
)

// Template returns the defaults file with every value commented out, ready
// to be saved as a user settings file
func Template() string {
	return commentOutValues(DefaultsContent())
}

// commentOutValues comments out every assignment, keeping comments, blank
// lines and section headers
func commentOutValues(content string) string {
	lines := strings.Split(content, "\n")
	result := make([]string, 0, len(lines))

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "", strings.HasPrefix(trimmed, "#"):
			result = append(result, line)
		case strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]"):
			result = append(result, line)
		default:
			result = append(result, "# "+line)
		}
	}

	return strings.Join(result, "\n")
}

// tomlSettings mirrors Settings with TOML names for display
type tomlSettings struct {
	Hosts struct {
		File         string `toml:"file"`
		Local        string `toml:"local"`
		MountedPaths bool   `toml:"mounted_paths"`
	} `toml:"hosts"`
	Transfer struct {
		Backend string   `toml:"backend"`
		Jobs    int      `toml:"jobs"`
		DryRun  bool     `toml:"dry_run"`
		Delete  bool     `toml:"delete"`
		Exclude []string `toml:"exclude"`
	} `toml:"transfer"`
	Rsync struct {
		Command     string `toml:"command"`
		Args        string `toml:"args"`
		StderrFails bool   `toml:"stderr_fails"`
	} `toml:"rsync"`
	SSH struct {
		ConfigFile     string   `toml:"config_file"`
		KnownHosts     string   `toml:"known_hosts"`
		IdentityFiles  []string `toml:"identity_files"`
		UseAgent       bool     `toml:"use_agent"`
		ConnectTimeout string   `toml:"connect_timeout"`
		User           string   `toml:"user"`
		Port           int      `toml:"port"`
	} `toml:"ssh"`
	Hooks struct {
		PreCommand string `toml:"pre_command"`
	} `toml:"hooks"`
	Log struct {
		File     string `toml:"file"`
		Disabled bool   `toml:"disabled"`
		Quiet    bool   `toml:"quiet"`
	} `toml:"log"`
}

// Render formats the effective settings as a TOML document
func (s *Settings) Render() (string, error) {
	var out tomlSettings
	out.Hosts.File, out.Hosts.Local = s.Hosts.File, s.Hosts.Local
	out.Hosts.MountedPaths = s.Hosts.MountedPaths
	out.Transfer.Backend = s.Transfer.Backend
	out.Transfer.Jobs = s.Transfer.Jobs
	out.Transfer.DryRun = s.Transfer.DryRun
	out.Transfer.Delete = s.Transfer.Delete
	out.Transfer.Exclude = nonNil(s.Transfer.Exclude)
	out.Rsync.Command, out.Rsync.Args = s.Rsync.Command, s.Rsync.Args
	out.Rsync.StderrFails = s.Rsync.StderrFails
	out.SSH.ConfigFile = s.SSH.ConfigFile
	out.SSH.KnownHosts = s.SSH.KnownHosts
	out.SSH.IdentityFiles = nonNil(s.SSH.IdentityFiles)
	out.SSH.UseAgent = s.SSH.UseAgent
	out.SSH.ConnectTimeout = s.SSH.ConnectTimeout.String()
	out.SSH.User, out.SSH.Port = s.SSH.User, s.SSH.Port
	out.Hooks.PreCommand = s.Hooks.PreCommand
	out.Log.File, out.Log.Disabled, out.Log.Quiet = s.Log.File, s.Log.Disabled, s.Log.Quiet

	data, err := toml.Marshal(out)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrInternal, "failed to render settings")
	}
	return string(data), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
