// Package hostfile reads the host mapping file that drives dosync.
//
// Three surface syntaxes are accepted and produce the same
// types.Configuration: the section based INI format of ~/.sync.conf, a
// nested YAML mapping, and the equivalent TOML tables. Every syntax knows the
// ALIASES section, the optional DEFAULT section and the _PATH key.
package hostfile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/dosync/pkg/errors"
	"github.com/arthur-debert/dosync/pkg/logging"
	"github.com/arthur-debert/dosync/pkg/paths"
	"github.com/arthur-debert/dosync/pkg/types"
)

// Format identifies the on-disk syntax of a host file
type Format string

const (
	FormatINI  Format = "ini"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// DetectFormat picks a format from the file extension. Unknown extensions
// (including the extensionless ~/.sync.conf style) are read as INI.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatINI
	}
}

// Load reads and parses the host file at path
func Load(path string) (*types.Configuration, error) {
	logger := logging.GetLogger("hostfile").With().Str("path", path).Logger()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(err, errors.ErrConfigLoad, "configuration file '%s' does not exist", path).
				WithDetail("file", path)
		}
		return nil, errors.Wrapf(err, errors.ErrConfigLoad, "cannot read configuration file '%s'", path).
			WithDetail("file", path)
	}

	format := DetectFormat(path)
	cfg, err := Parse(bytes.NewReader(data), format, path)
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Str("format", string(format)).
		Int("hosts", len(cfg.Hosts)).
		Int("aliases", len(cfg.Aliases)).
		Msg("Successfully read configuration file")

	return cfg, nil
}

// Discover returns the first candidate host file that exists
func Discover(candidates []string) (string, error) {
	if path, ok := paths.FirstExisting(candidates); ok {
		return path, nil
	}
	return "", errors.New(errors.ErrConfigLoad, "no host file found").
		WithDetail("candidates", candidates)
}

// Parse decodes a host file from r. source is used in error messages.
func Parse(r io.Reader, format Format, source string) (*types.Configuration, error) {
	switch format {
	case FormatINI:
		return parseINI(r, source)
	case FormatYAML:
		return parseYAML(r, source)
	case FormatTOML:
		return parseTOML(r, source)
	}
	return nil, errors.Newf(errors.ErrInvalidInput, "unsupported host file format %q", format)
}

// parseError builds a ConfigParseError carrying file and line context
func parseError(source string, line int, format string, args ...interface{}) *errors.SyncError {
	msg := fmt.Sprintf(format, args...)
	var err *errors.SyncError
	if line > 0 {
		err = errors.Newf(errors.ErrConfigParse, "%s:%d: %s", source, line, msg).WithDetail("line", line)
	} else {
		err = errors.Newf(errors.ErrConfigParse, "%s: %s", source, msg)
	}
	return err.WithDetail("file", source)
}
