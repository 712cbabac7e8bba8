package executor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/arthur-debert/dosync/pkg/errors"
	"github.com/arthur-debert/dosync/pkg/logging"
	"github.com/arthur-debert/dosync/pkg/planner"
	"github.com/arthur-debert/dosync/pkg/transport"
	"github.com/arthur-debert/dosync/pkg/types"
)

// Options contains configuration for the executor
type Options struct {
	Transport transport.Transport
	// Jobs bounds how many hosts are processed at once; values below 1 mean 1
	Jobs   int
	DryRun bool
	Logger zerolog.Logger
	// Observer, when set, is called as soon as each result is known
	Observer func(types.TransferResult)
}

// Executor runs transfer items through a transport
type Executor struct {
	transport transport.Transport
	jobs      int
	dryRun    bool
	logger    zerolog.Logger
	observer  func(types.TransferResult)
}

// New creates a new executor instance
func New(opts Options) *Executor {
	logger := opts.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = logging.GetLogger("executor")
	}

	jobs := opts.Jobs
	if jobs < 1 {
		jobs = 1
	}

	return &Executor{
		transport: opts.Transport,
		jobs:      jobs,
		dryRun:    opts.DryRun,
		logger:    logger,
		observer:  opts.Observer,
	}
}

type job struct {
	index int
	item  types.TransferItem
}

// Execute runs every item of plan in direction and returns one result per
// item and direction. For Both, a host's pushes all run before its pulls.
// Results follow plan order regardless of how hosts were scheduled.
func (e *Executor) Execute(ctx context.Context, plan *planner.Plan, direction types.Direction) []types.TransferResult {
	directions := direction.Expand()

	// group by host, keeping first-seen order
	var hostOrder []string
	byHost := make(map[string][]types.TransferItem)
	for item := range plan.Items() {
		if _, seen := byHost[item.Hostname]; !seen {
			hostOrder = append(hostOrder, item.Hostname)
		}
		byHost[item.Hostname] = append(byHost[item.Hostname], item)
	}

	var queues [][]job
	total := 0
	for _, host := range hostOrder {
		var queue []job
		for _, dir := range directions {
			for _, item := range byHost[host] {
				item.Direction = dir
				queue = append(queue, job{index: total, item: item})
				total++
			}
		}
		queues = append(queues, queue)
	}

	e.logger.Info().
		Int("hosts", len(hostOrder)).
		Int("items", total).
		Str("direction", string(direction)).
		Str("transport", e.transport.Name()).
		Int("jobs", e.jobs).
		Bool("dry_run", e.dryRun).
		Msg("Starting transfers")

	results := make([]types.TransferResult, total)

	var g errgroup.Group
	g.SetLimit(e.jobs)
	for _, queue := range queues {
		g.Go(func() error {
			for _, j := range queue {
				results[j.index] = e.executeItem(ctx, j.item)
				if e.observer != nil {
					e.observer(results[j.index])
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// executeItem runs a single item and returns its result
func (e *Executor) executeItem(ctx context.Context, item types.TransferItem) types.TransferResult {
	start := time.Now()
	logger := e.logger.With().
		Str("host", item.Hostname).
		Str("name", item.LogicalName).
		Str("direction", string(item.Direction)).
		Logger()

	if err := ctx.Err(); err != nil {
		logger.Warn().Err(err).Msg("Transfer not started")
		return types.TransferResult{
			Item:     item,
			OK:       false,
			Err:      errors.Wrap(err, errors.ErrTransfer, "transfer cancelled").WithDetail("host", item.Hostname),
			Duration: time.Since(start),
		}
	}

	logger.Debug().
		Str("src", item.Source()).
		Str("dest", item.Destination()).
		Msg("Executing transfer")

	outcome, err := e.transport.Transfer(ctx, item)
	if err != nil {
		if !errors.IsErrorCode(err, errors.ErrTransfer) && !errors.IsErrorCode(err, errors.ErrHostUnreachable) &&
			!errors.IsErrorCode(err, errors.ErrSSHConnect) {
			err = errors.Wrapf(err, errors.ErrTransfer, "%s failed", item)
		}
		logger.Error().Err(err).Msg("Transfer failed")
		return types.TransferResult{
			Item:     item,
			OK:       false,
			Err:      err,
			Changes:  outcome.Changes,
			Duration: time.Since(start),
		}
	}

	for _, change := range outcome.Changes {
		logger.Info().Msg(change)
	}
	for _, warning := range outcome.Warnings {
		logger.Warn().Msg(warning)
	}
	logger.Debug().
		Int("changes", len(outcome.Changes)).
		Bool("up_to_date", outcome.UpToDate).
		Dur("duration", time.Since(start)).
		Msg("Transfer completed")

	return types.TransferResult{
		Item:     item,
		OK:       true,
		Skipped:  e.dryRun || outcome.UpToDate,
		Changes:  outcome.Changes,
		Warnings: outcome.Warnings,
		Duration: time.Since(start),
	}
}
