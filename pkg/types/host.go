package types

import "sort"

// Reserved names in host files
const (
	// AliasesSection holds alias -> canonical hostname mappings
	AliasesSection = "ALIASES"

	// DefaultSection holds file entries inherited by every host
	DefaultSection = "DEFAULT"

	// BasePathKey overrides the directory relative paths resolve against
	BasePathKey = "_PATH"

	// AllHosts selects every host except the local one
	AllHosts = "all"
)

// FileEntry maps a logical name to a path, relative or absolute
type FileEntry struct {
	Name string
	Path string
}

// HostEntry identifies one machine and the files registered for it
type HostEntry struct {
	// Hostname is both the SSH destination alias and the configuration key
	Hostname string

	// BasePath replaces the remote home directory for relative paths when set
	BasePath string

	// Files in declaration order
	Files []FileEntry
}

// HasBasePath reports whether the host overrides its base path
func (h *HostEntry) HasBasePath() bool {
	return h.BasePath != ""
}

// Lookup returns the path registered under a logical name
func (h *HostEntry) Lookup(name string) (string, bool) {
	for _, f := range h.Files {
		if f.Name == name {
			return f.Path, true
		}
	}
	return "", false
}

// FileNames returns the logical names in declaration order
func (h *HostEntry) FileNames() []string {
	names := make([]string, 0, len(h.Files))
	for _, f := range h.Files {
		names = append(names, f.Name)
	}
	return names
}

// AliasTable maps an alias to a canonical hostname
type AliasTable map[string]string

// Names returns the aliases sorted alphabetically
func (a AliasTable) Names() []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Configuration is the parsed host file. It is immutable once loaded.
type Configuration struct {
	// Source is the file the configuration was read from
	Source string

	Aliases AliasTable
	Hosts   map[string]*HostEntry

	// Order lists hostnames in declaration order
	Order []string
}

// NewConfiguration returns an empty configuration for the given source
func NewConfiguration(source string) *Configuration {
	return &Configuration{
		Source:  source,
		Aliases: make(AliasTable),
		Hosts:   make(map[string]*HostEntry),
	}
}

// Host returns the entry registered under a literal hostname
func (c *Configuration) Host(name string) (*HostEntry, bool) {
	h, ok := c.Hosts[name]
	return h, ok
}

// HostEntries returns all entries in declaration order
func (c *Configuration) HostEntries() []*HostEntry {
	entries := make([]*HostEntry, 0, len(c.Order))
	for _, name := range c.Order {
		entries = append(entries, c.Hosts[name])
	}
	return entries
}

// AliasesFor returns the aliases pointing at a hostname, sorted
func (c *Configuration) AliasesFor(hostname string) []string {
	var out []string
	for _, alias := range c.Aliases.Names() {
		if c.Aliases[alias] == hostname {
			out = append(out, alias)
		}
	}
	return out
}
