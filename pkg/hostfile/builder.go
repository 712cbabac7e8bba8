package hostfile

import (
	"strings"

	"github.com/arthur-debert/dosync/pkg/types"
)

// builder accumulates sections from any syntax and enforces the invariants
// shared by all of them.
type builder struct {
	source string
	cfg    *types.Configuration

	hostLines  map[string]int
	aliasLines map[string]int
	fileLines  map[string]map[string]int

	defaults     []types.FileEntry
	defaultLines map[string]int
	defaultPath  string
	sawDefault   bool
	sawAliases   bool
}

func newBuilder(source string) *builder {
	return &builder{
		source:       source,
		cfg:          types.NewConfiguration(source),
		hostLines:    make(map[string]int),
		aliasLines:   make(map[string]int),
		fileLines:    make(map[string]map[string]int),
		defaultLines: make(map[string]int),
	}
}

// section dispatches a section name to its kind. It returns the host being
// filled, or nil for the ALIASES and DEFAULT sections.
func (b *builder) section(name string, line int) (*types.HostEntry, error) {
	switch name {
	case "":
		return nil, parseError(b.source, line, "empty section name")
	case types.AliasesSection:
		if b.sawAliases {
			return nil, parseError(b.source, line, "section '%s' already defined", name)
		}
		b.sawAliases = true
		return nil, nil
	case types.DefaultSection:
		if b.sawDefault {
			return nil, parseError(b.source, line, "section '%s' already defined", name)
		}
		b.sawDefault = true
		return nil, nil
	}
	return b.addHost(name, line)
}

func (b *builder) addHost(name string, line int) (*types.HostEntry, error) {
	if first, dup := b.hostLines[name]; dup {
		return nil, parseError(b.source, line, "host '%s' already defined at line %d", name, first)
	}
	host := &types.HostEntry{Hostname: name}
	b.cfg.Hosts[name] = host
	b.cfg.Order = append(b.cfg.Order, name)
	b.hostLines[name] = line
	b.fileLines[name] = make(map[string]int)
	return host, nil
}

// addEntry records key = value inside a host section
func (b *builder) addEntry(host *types.HostEntry, key, value string, line int) error {
	if err := b.checkEntry(key, value, line); err != nil {
		return err
	}
	if key == types.BasePathKey {
		if host.BasePath != "" {
			return parseError(b.source, line, "'%s' already set for host '%s'", key, host.Hostname)
		}
		host.BasePath = value
		return nil
	}

	lines := b.fileLines[host.Hostname]
	if first, dup := lines[key]; dup {
		return parseError(b.source, line, "file '%s' already defined for host '%s' at line %d", key, host.Hostname, first)
	}
	lines[key] = line
	host.Files = append(host.Files, types.FileEntry{Name: key, Path: value})
	return nil
}

// addDefault records key = value inside the DEFAULT section
func (b *builder) addDefault(key, value string, line int) error {
	if err := b.checkEntry(key, value, line); err != nil {
		return err
	}
	if key == types.BasePathKey {
		if b.defaultPath != "" {
			return parseError(b.source, line, "'%s' already set in section '%s'", key, types.DefaultSection)
		}
		b.defaultPath = value
		return nil
	}
	if first, dup := b.defaultLines[key]; dup {
		return parseError(b.source, line, "file '%s' already defined in section '%s' at line %d", key, types.DefaultSection, first)
	}
	b.defaultLines[key] = line
	b.defaults = append(b.defaults, types.FileEntry{Name: key, Path: value})
	return nil
}

func (b *builder) addAlias(alias, target string, line int) error {
	if alias == "" {
		return parseError(b.source, line, "empty alias name")
	}
	if target == "" {
		return parseError(b.source, line, "alias '%s' has no target host", alias)
	}
	if first, dup := b.aliasLines[alias]; dup {
		return parseError(b.source, line, "alias '%s' already defined at line %d", alias, first)
	}
	b.aliasLines[alias] = line
	b.cfg.Aliases[alias] = target
	return nil
}

func (b *builder) checkEntry(key, value string, line int) error {
	if key == "" {
		return parseError(b.source, line, "empty key")
	}
	if strings.HasPrefix(key, "_") && key != types.BasePathKey {
		return parseError(b.source, line, "unknown option '%s'", key)
	}
	if value == "" {
		if key == types.BasePathKey {
			return parseError(b.source, line, "'%s' must not be empty", key)
		}
		return parseError(b.source, line, "file '%s' has an empty path", key)
	}
	return nil
}

// finish applies DEFAULT entries and validates the alias table
func (b *builder) finish() (*types.Configuration, error) {
	for _, name := range b.cfg.Order {
		host := b.cfg.Hosts[name]
		if host.BasePath == "" {
			host.BasePath = b.defaultPath
		}
		var inherited []types.FileEntry
		for _, def := range b.defaults {
			if _, own := host.Lookup(def.Name); !own {
				inherited = append(inherited, def)
			}
		}
		if len(inherited) > 0 {
			host.Files = append(inherited, host.Files...)
		}
	}

	for _, alias := range b.cfg.Aliases.Names() {
		target := b.cfg.Aliases[alias]
		line := b.aliasLines[alias]
		if _, ok := b.cfg.Hosts[alias]; ok {
			return nil, parseError(b.source, line, "alias '%s' shadows a host of the same name", alias)
		}
		if _, ok := b.cfg.Hosts[target]; !ok {
			return nil, parseError(b.source, line, "alias '%s' points to unknown host '%s'", alias, target)
		}
	}

	return b.cfg, nil
}
