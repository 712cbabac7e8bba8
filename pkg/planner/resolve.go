package planner

import (
	"strings"

	"github.com/arthur-debert/dosync/pkg/errors"
	"github.com/arthur-debert/dosync/pkg/logging"
	"github.com/arthur-debert/dosync/pkg/types"
)

// Resolve maps a hostname or alias to its HostEntry. Aliases are consulted
// first, so an alias and its target always yield the same entry.
func Resolve(cfg *types.Configuration, id string) (*types.HostEntry, error) {
	name := id
	if target, ok := cfg.Aliases[id]; ok {
		logger := logging.GetLogger("planner.resolve")
		logger.Debug().
			Str("alias", id).
			Str("host", target).
			Msg("Resolved alias")
		name = target
	}

	host, ok := cfg.Host(name)
	if !ok {
		return nil, errors.Newf(errors.ErrUnknownHost, "unknown host '%s'", id).
			WithDetail("host", id).
			WithDetail("file", cfg.Source)
	}
	return host, nil
}

// DetectLocal finds the configuration entry describing the machine dosync
// runs on. An explicit name (from --local or settings) must resolve; without
// one, the first configured hostname contained in the machine's hostname
// wins. A nil entry means no local entry is configured.
func DetectLocal(cfg *types.Configuration, explicit, machine string) (*types.HostEntry, error) {
	if explicit != "" {
		host, err := Resolve(cfg, explicit)
		if err != nil {
			return nil, err
		}
		return host, nil
	}

	if machine == "" {
		return nil, nil
	}
	for _, host := range cfg.HostEntries() {
		if strings.Contains(machine, host.Hostname) {
			logger := logging.GetLogger("planner.resolve")
			logger.Debug().
				Str("machine", machine).
				Str("host", host.Hostname).
				Msg("Detected local host entry")
			return host, nil
		}
	}
	return nil, nil
}

// SelectHosts resolves every identifier. "all" expands to every host except
// local, in declaration order. Repeated hosts (an alias next to its target,
// say) collapse to one. Selecting the local entry itself is an error.
func SelectHosts(cfg *types.Configuration, ids []string, local *types.HostEntry) ([]*types.HostEntry, error) {
	if len(ids) == 0 {
		return nil, errors.New(errors.ErrInvalidInput, "no hosts selected")
	}

	var selected []*types.HostEntry
	seen := make(map[string]bool)
	add := func(h *types.HostEntry) {
		if !seen[h.Hostname] {
			seen[h.Hostname] = true
			selected = append(selected, h)
		}
	}

	for _, id := range ids {
		if id == types.AllHosts {
			if _, shadowed := cfg.Host(id); !shadowed {
				for _, h := range cfg.HostEntries() {
					if local != nil && h.Hostname == local.Hostname {
						continue
					}
					add(h)
				}
				continue
			}
		}

		host, err := Resolve(cfg, id)
		if err != nil {
			return nil, err
		}
		if local != nil && host.Hostname == local.Hostname {
			return nil, errors.Newf(errors.ErrInvalidInput, "cannot sync host '%s' with itself", host.Hostname).
				WithDetail("host", host.Hostname)
		}
		add(host)
	}

	if len(selected) == 0 {
		return nil, errors.Newf(errors.ErrUnknownHost, "no hosts to sync in '%s'", cfg.Source).
			WithDetail("file", cfg.Source)
	}
	return selected, nil
}
