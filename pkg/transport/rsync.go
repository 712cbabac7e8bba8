package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog"

	"github.com/arthur-debert/dosync/pkg/errors"
	"github.com/arthur-debert/dosync/pkg/logging"
	"github.com/arthur-debert/dosync/pkg/types"
)

// Defaults of the rsync backend
const (
	DefaultRsyncCommand = "rsync"
	DefaultRsyncArgs    = "-auP"
	DefaultExclude      = "*.swp"
)

// Rsync copies items by running the rsync binary
type Rsync struct {
	opts   Options
	runner Runner
	logger zerolog.Logger
}

// NewRsync returns the rsync backend using the real rsync binary
func NewRsync(opts Options) *Rsync {
	return NewRsyncWithRunner(opts, ExecRunner{})
}

// NewRsyncWithRunner lets tests substitute the process runner
func NewRsyncWithRunner(opts Options, runner Runner) *Rsync {
	if opts.RsyncCommand == "" {
		opts.RsyncCommand = DefaultRsyncCommand
	}
	return &Rsync{
		opts:   opts,
		runner: runner,
		logger: logging.GetLogger("transport.rsync"),
	}
}

func (r *Rsync) Name() string { return BackendRsync }

func (r *Rsync) Close() error { return nil }

// Command builds the program and argument vector for item
func (r *Rsync) Command(item types.TransferItem) (string, []string, error) {
	base, err := shellquote.Split(r.opts.RsyncCommand)
	if err != nil || len(base) == 0 {
		return "", nil, errors.Newf(errors.ErrConfigValid, "invalid rsync command %q", r.opts.RsyncCommand)
	}
	extra, err := shellquote.Split(r.opts.RsyncArgs)
	if err != nil {
		return "", nil, errors.Wrapf(err, errors.ErrConfigValid, "invalid rsync arguments %q", r.opts.RsyncArgs)
	}

	args := append([]string{}, base[1:]...)
	args = append(args, extra...)
	for _, pattern := range r.opts.Exclude {
		args = append(args, "--exclude="+pattern)
	}
	if r.opts.DryRun {
		args = append(args, "-n")
	}
	if r.opts.Delete {
		args = append(args, "--delete")
	}

	src, dest := r.endpoints(item)
	args = append(args, src, dest)
	return base[0], args, nil
}

// endpoints renders both sides of the copy in rsync syntax
func (r *Rsync) endpoints(item types.TransferItem) (string, string) {
	remote := item.Hostname + ":" + homeRelative(item.RemotePath)
	if item.Mounted() {
		remote = item.MountPath
	}
	if item.Direction == types.Pull {
		return remote, item.LocalPath
	}
	return item.LocalPath, remote
}

// Transfer runs rsync for one item
func (r *Rsync) Transfer(ctx context.Context, item types.TransferItem) (Outcome, error) {
	program, args, err := r.Command(item)
	if err != nil {
		return Outcome{}, err
	}

	r.logger.Debug().
		Str("command", shellquote.Join(append([]string{program}, args...)...)).
		Msg("Performing command")

	res, runErr := r.runner.Run(ctx, program, args)
	if res == nil {
		res = &Result{}
	}

	if out := strings.TrimSpace(res.Stdout); out != "" {
		r.logger.Trace().Msg(out)
	}

	src, dest := args[len(args)-2], args[len(args)-1]
	outcome := Outcome{Changes: ParseRsyncOutput(res.Stdout, src, dest, r.opts.DryRun)}

	stderr := strings.TrimSpace(res.Stderr)
	if unreachable(stderr) {
		return outcome, errors.Newf(errors.ErrHostUnreachable, "cannot connect to host '%s'", item.Hostname).
			WithDetails(itemDetails(item)).
			WithDetail("stderr", stderr)
	}

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcome, transferError(ctxErr, item, "rsync interrupted")
		}
		msg := oneLine(stderr)
		if msg == "" {
			msg = runErr.Error()
		}
		return outcome, transferError(runErr, item, "rsync exited with code %d: %s", res.ExitCode, msg).
			WithDetail("exit_code", res.ExitCode)
	}

	if stderr != "" {
		if r.opts.StderrFails {
			return outcome, transferError(nil, item, "rsync reported errors: %s", oneLine(stderr)).
				WithDetail("stderr", stderr)
		}
		r.logger.Warn().Str("host", item.Hostname).Msg(oneLine(stderr))
		outcome.Warnings = strings.Split(stderr, "\n")
	}

	outcome.UpToDate = len(outcome.Changes) == 0
	return outcome, nil
}

func unreachable(stderr string) bool {
	return strings.Contains(stderr, "Connection refused") ||
		strings.Contains(stderr, "Could not resolve hostname")
}

func oneLine(s string) string {
	return strings.ReplaceAll(strings.Trim(s, "\n"), "\n", "; ")
}

// ParseRsyncOutput turns rsync's itemized file list into change lines.
// Progress lines and the transfer statistics are dropped.
func ParseRsyncOutput(out, src, dest string, dryRun bool) []string {
	var changes []string
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.Contains(line, "\r"),
			line == "",
			line == "./",
			strings.HasSuffix(line, "incremental file list"),
			strings.HasPrefix(line, "sent "),
			strings.HasPrefix(line, "total size is"),
			strings.HasPrefix(line, " "):
			continue

		case strings.HasPrefix(line, "created directory "):
			changes = append(changes, fmt.Sprintf("Created directory '%s'", strings.TrimPrefix(line, "created directory ")))

		case strings.HasPrefix(line, "deleting "):
			target := under(dest, strings.TrimPrefix(line, "deleting "))
			if dryRun {
				changes = append(changes, fmt.Sprintf("Would delete '%s'", target))
			} else {
				changes = append(changes, fmt.Sprintf("Deleted '%s'", target))
			}

		default:
			from, to := under(src, line), under(dest, line)
			if dryRun {
				changes = append(changes, fmt.Sprintf("Would move '%s' to '%s'", from, to))
			} else {
				changes = append(changes, fmt.Sprintf("Successfully moved '%s' to '%s'", from, to))
			}
		}
	}
	return uniqueSorted(changes)
}

// under names an entry inside a directory endpoint; file endpoints name
// themselves
func under(endpoint, entry string) string {
	if strings.HasSuffix(endpoint, "/") {
		return endpoint + entry
	}
	return endpoint
}
