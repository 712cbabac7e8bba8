package planner

import (
	"iter"
	"path"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/dosync/pkg/errors"
	"github.com/arthur-debert/dosync/pkg/paths"
	"github.com/arthur-debert/dosync/pkg/types"
)

// RemoteHome is the implicit base of relative remote paths. It is expanded
// by the remote side (or stripped by the transport), never locally.
const RemoteHome = "~"

// Options restrict and place a plan
type Options struct {
	// Files limits the plan to these logical names; empty means all
	Files []string

	// Local is the configuration entry of this machine, if any
	Local *types.HostEntry

	// LocalHome is the absolute home directory used for local paths
	LocalHome string

	// Direction stamped on produced items; defaults to push
	Direction types.Direction

	// MountedBasePaths places hosts with a base path on this machine
	MountedBasePaths bool
}

type hostPlan struct {
	host  *types.HostEntry
	names []string
	opts  Options
}

// Plan is a lazy, restartable sequence of transfer items
type Plan struct {
	parts []hostPlan
}

// New builds the plan for one host. Unknown logical names fail here, before
// any item exists.
func New(host *types.HostEntry, opts Options) (*Plan, error) {
	if opts.Direction == "" {
		opts.Direction = types.Push
	}

	names := host.FileNames()
	if len(opts.Files) > 0 {
		names = make([]string, 0, len(opts.Files))
		seen := make(map[string]bool)
		for _, name := range opts.Files {
			if _, ok := host.Lookup(name); !ok {
				return nil, errors.Newf(errors.ErrUnknownFile, "unknown file '%s' for host '%s'", name, host.Hostname).
					WithDetail("host", host.Hostname).
					WithDetail("name", name)
			}
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}

	return &Plan{parts: []hostPlan{{host: host, names: names, opts: opts}}}, nil
}

// Merge concatenates plans, keeping their order
func Merge(plans ...*Plan) *Plan {
	merged := &Plan{}
	for _, p := range plans {
		if p != nil {
			merged.parts = append(merged.parts, p.parts...)
		}
	}
	return merged
}

// ForHosts plans every selected host with the same options. A logical name
// filter applies to each host and must be known to all of them.
func ForHosts(hosts []*types.HostEntry, opts Options) (*Plan, error) {
	plans := make([]*Plan, 0, len(hosts))
	for _, h := range hosts {
		p, err := New(h, opts)
		if err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return Merge(plans...), nil
}

// Items yields each transfer item. Paths are computed during iteration.
func (p *Plan) Items() iter.Seq[types.TransferItem] {
	return func(yield func(types.TransferItem) bool) {
		for _, part := range p.parts {
			for _, name := range part.names {
				if !yield(part.item(name)) {
					return
				}
			}
		}
	}
}

// Len is the number of items Items yields
func (p *Plan) Len() int {
	n := 0
	for _, part := range p.parts {
		n += len(part.names)
	}
	return n
}

// Hosts lists the hostnames in plan order
func (p *Plan) Hosts() []string {
	out := make([]string, 0, len(p.parts))
	for _, part := range p.parts {
		out = append(out, part.host.Hostname)
	}
	return out
}

func (hp hostPlan) item(name string) types.TransferItem {
	rel, _ := hp.host.Lookup(name)
	item := types.TransferItem{
		Hostname:    hp.host.Hostname,
		LogicalName: name,
		LocalPath:   LocalPath(hp.opts.Local, hp.opts.LocalHome, name, rel),
		RemotePath:  RemotePath(hp.host, rel),
		Direction:   hp.opts.Direction,
	}
	if hp.opts.MountedBasePaths && hp.host.HasBasePath() {
		item.MountPath = MountPath(hp.opts.LocalHome, item.RemotePath)
	}
	return item
}

// MountPath places a host path on this machine: "~" expands to home and
// relative paths are taken from home. A trailing slash survives.
func MountPath(home, remote string) string {
	switch {
	case strings.HasPrefix(remote, "~"):
		return keepTrailingSlash(remote, paths.ExpandHomeFrom(home, remote))
	case filepath.IsAbs(remote):
		return remote
	}
	return keepTrailingSlash(remote, filepath.Join(home, filepath.FromSlash(remote)))
}

// RemotePath qualifies a configured path for host. Absolute and
// home-anchored paths are returned unchanged; relative ones are joined to the
// host's base path or the remote home. A trailing slash survives.
func RemotePath(host *types.HostEntry, p string) string {
	if path.IsAbs(p) || strings.HasPrefix(p, "~") {
		return p
	}
	base := RemoteHome
	if host.HasBasePath() {
		base = host.BasePath
	}
	return keepTrailingSlash(p, path.Join(base, p))
}

// LocalPath places a logical name on this machine. The local entry's own path
// wins when it defines the name; otherwise the remote's relative path is
// mirrored under the local home.
func LocalPath(local *types.HostEntry, home, name, remoteRel string) string {
	base := home
	p := remoteRel
	if local != nil {
		if own, ok := local.Lookup(name); ok {
			p = own
			if local.HasBasePath() {
				base = paths.ExpandHomeFrom(home, local.BasePath)
				if !filepath.IsAbs(base) {
					base = filepath.Join(home, base)
				}
			}
		}
	}

	switch {
	case strings.HasPrefix(p, "~"):
		return paths.ExpandHomeFrom(home, p)
	case filepath.IsAbs(p):
		return p
	}
	return keepTrailingSlash(p, filepath.Join(base, filepath.FromSlash(p)))
}

func keepTrailingSlash(original, joined string) string {
	if paths.HasTrailingSlash(original) && !paths.HasTrailingSlash(joined) {
		return joined + "/"
	}
	return joined
}
