// Package transport moves one TransferItem between this machine and a host.
//
// Three backends exist. rsync shells out to the rsync binary (no shell is
// involved) and is the default. sftp and scp are native Go clients built on
// golang.org/x/crypto/ssh that reuse one connection per host.
package transport

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/arthur-debert/dosync/pkg/errors"
	"github.com/arthur-debert/dosync/pkg/registry"
	"github.com/arthur-debert/dosync/pkg/sshagent"
	"github.com/arthur-debert/dosync/pkg/types"
)

// Backend names
const (
	BackendRsync = "rsync"
	BackendSFTP  = "sftp"
	BackendSCP   = "scp"
)

// Factory builds a backend from the shared options
type Factory func(opts Options) (Transport, error)

var backends = registry.New[Factory]()

func init() {
	registry.MustRegister(backends, BackendRsync, func(opts Options) (Transport, error) {
		return NewRsync(opts), nil
	})
	registry.MustRegister(backends, BackendSFTP, func(opts Options) (Transport, error) {
		if opts.Delete {
			return nil, deleteUnsupported(BackendSFTP)
		}
		return NewSFTP(opts), nil
	})
	registry.MustRegister(backends, BackendSCP, func(opts Options) (Transport, error) {
		if opts.Delete {
			return nil, deleteUnsupported(BackendSCP)
		}
		return NewSCP(opts), nil
	})
}

// Backends lists the accepted backend names
func Backends() []string {
	return backends.List()
}

// IsBackend reports whether name selects a registered backend
func IsBackend(name string) bool {
	return backends.Has(name)
}

// Outcome describes what a transfer did
type Outcome struct {
	// Changes are human readable lines ("Created directory 'x'")
	Changes []string

	// UpToDate is set when the destination already matched the source
	UpToDate bool

	// Warnings are diagnostics of a transfer that still succeeded
	Warnings []string
}

// Transport copies files for a single item
type Transport interface {
	// Name returns the backend name
	Name() string

	// Transfer performs the copy described by item in item.Direction
	Transfer(ctx context.Context, item types.TransferItem) (Outcome, error)

	// Close releases any connections held by the transport
	Close() error
}

// Options configure every backend. Fields a backend does not use are ignored.
type Options struct {
	DryRun  bool
	Delete  bool
	Exclude []string

	// rsync
	RsyncCommand string
	RsyncArgs    string
	StderrFails  bool

	// native ssh
	SSH SSHOptions
}

// SSHOptions configure the native SSH client
type SSHOptions struct {
	ConfigFile     string
	KnownHosts     string
	IdentityFiles  []string
	User           string
	Port           int
	ConnectTimeout time.Duration

	// Agent is the detected key agent; nil disables agent authentication
	Agent *sshagent.Status

	// InsecureIgnoreHostKey skips host key verification
	InsecureIgnoreHostKey bool
}

// New builds the named backend. An empty name selects rsync.
func New(name string, opts Options) (Transport, error) {
	if strings.TrimSpace(name) == "" {
		name = BackendRsync
	}
	factory, err := backends.Get(name)
	if err != nil {
		return nil, errors.Newf(errors.ErrInvalidInput, "unknown transport '%s' (want one of %s)", name, strings.Join(Backends(), ", ")).
			WithDetail("transport", name)
	}
	return factory(opts)
}

func deleteUnsupported(backend string) error {
	return errors.Newf(errors.ErrInvalidInput, "--delete is not supported by the %s transport", backend)
}

// transferError wraps a backend failure with the item it belongs to
func transferError(err error, item types.TransferItem, format string, args ...interface{}) *errors.SyncError {
	if err == nil {
		return errors.Newf(errors.ErrTransfer, format, args...).WithDetails(itemDetails(item))
	}
	return errors.Wrapf(err, errors.ErrTransfer, format, args...).WithDetails(itemDetails(item))
}

func itemDetails(item types.TransferItem) map[string]interface{} {
	return map[string]interface{}{
		"host":      item.Hostname,
		"name":      item.LogicalName,
		"direction": string(item.Direction),
	}
}

// homeRelative strips a leading "~/" so the path resolves against the login
// directory of the remote session. "~" alone becomes ".".
func homeRelative(p string) string {
	switch {
	case p == "~":
		return "."
	case strings.HasPrefix(p, "~/"):
		rest := p[2:]
		if rest == "" {
			return "."
		}
		return rest
	}
	return p
}

// uniqueSorted dedups change lines for stable output
func uniqueSorted(lines []string) []string {
	if len(lines) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(lines))
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out
}
