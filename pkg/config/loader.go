package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/arthur-debert/dosync/pkg/errors"
	"github.com/arthur-debert/dosync/pkg/logging"
	"github.com/arthur-debert/dosync/pkg/paths"
)

// EnvPrefix starts every settings environment variable
const EnvPrefix = "DOSYNC_"

// sections are the top level keys environment variables may address
var sections = []string{"hosts", "transfer", "rsync", "ssh", "hooks", "log"}

// LoadOptions selects the settings sources
type LoadOptions struct {
	// File is an explicit settings file; it must exist
	File string
	// DefaultFile is used when File is empty; it may be missing
	DefaultFile string
	// Flags are dotted keys ("transfer.jobs") set on the command line
	Flags map[string]interface{}
}

// Load layers defaults, the settings file, the environment and flags, then
// validates the result
func Load(opts LoadOptions) (*Settings, error) {
	logger := logging.GetLogger("config")
	k := koanf.New(".")

	// 1. Embedded defaults
	if err := k.Load(&rawBytesProvider{bytes: defaultSettings}, toml.Parser()); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal, "failed to load default settings")
	}

	// 2. Settings file
	path, explicit := opts.File, opts.File != ""
	if !explicit {
		path = opts.DefaultFile
	}
	if path != "" {
		path = paths.ExpandHome(path)
		if _, err := os.Stat(path); err == nil {
			parser, perr := parserFor(path)
			if perr != nil {
				return nil, perr
			}
			if err := k.Load(file.Provider(path), parser); err != nil {
				return nil, errors.Wrapf(err, errors.ErrConfigParse, "failed to load settings from %s", path).
					WithDetail("file", path)
			}
			logger.Debug().Str("path", path).Msg("Loaded settings file")
		} else if explicit {
			return nil, errors.Wrapf(err, errors.ErrConfigLoad, "settings file %s not found", path).
				WithDetail("file", path)
		}
	}

	// 3. Environment
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load settings from environment")
	}

	// 4. Flags
	if len(opts.Flags) > 0 {
		if err := k.Load(confmap.Provider(opts.Flags, "."), nil); err != nil {
			return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to apply command line settings")
		}
	}

	var settings Settings
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &settings,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &settings, unmarshalConf); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigValid, "failed to decode settings")
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", "":
		return toml.Parser(), nil
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	}
	return nil, errors.Newf(errors.ErrConfigLoad, "unsupported settings format %s (use .toml or .yaml)", filepath.Ext(path)).
		WithDetail("file", path)
}

// envKey maps DOSYNC_SSH_KNOWN_HOSTS to ssh.known_hosts. Variables outside
// the known sections are ignored.
func envKey(name string) string {
	rest := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	section, key, ok := strings.Cut(rest, "_")
	if !ok || key == "" {
		return ""
	}
	for _, s := range sections {
		if s == section {
			return section + "." + key
		}
	}
	return ""
}
