package cli

import (
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arthur-debert/dosync/pkg/errors"
	"github.com/arthur-debert/dosync/pkg/executor"
	"github.com/arthur-debert/dosync/pkg/logging"
	"github.com/arthur-debert/dosync/pkg/planner"
	"github.com/arthur-debert/dosync/pkg/sshagent"
	"github.com/arthur-debert/dosync/pkg/transport"
	"github.com/arthur-debert/dosync/pkg/types"
)

// directionFlags are the --direction, -u and -d flags of sync and plan
type directionFlags struct {
	direction string
	up        bool
	down      bool
}

func (d *directionFlags) register(cmd *cobra.Command, def string) {
	cmd.Flags().StringVar(&d.direction, "direction", def, MsgFlagDirection)
	cmd.Flags().BoolVarP(&d.up, "up", "u", false, MsgFlagUp)
	cmd.Flags().BoolVarP(&d.down, "down", "d", false, MsgFlagDown)
	cmd.MarkFlagsMutuallyExclusive("direction", "up", "down")
	_ = cmd.RegisterFlagCompletionFunc("direction", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"push", "pull", "both"}, cobra.ShellCompDirectiveNoFileComp
	})
}

func (d *directionFlags) resolve() (types.Direction, error) {
	switch {
	case d.up:
		return types.Push, nil
	case d.down:
		return types.Pull, nil
	}
	dir, err := types.ParseDirection(d.direction)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrInvalidInput, MsgErrDirection).WithDetail("direction", d.direction)
	}
	return dir, nil
}

func newPushCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:               "push <hosts...|all>",
		Short:             MsgPushShort,
		Long:              MsgPushLong,
		Example:           MsgPushExample,
		GroupID:           "core",
		Args:              cobra.MinimumNArgs(1),
		Annotations:       map[string]string{annotationSettings: "true"},
		ValidArgsFunction: s.hostCompletion,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.transfer(cmd, args, types.Push)
		},
	}
}

func newPullCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:               "pull <hosts...|all>",
		Short:             MsgPullShort,
		Long:              MsgPullLong,
		Example:           MsgPullExample,
		GroupID:           "core",
		Args:              cobra.MinimumNArgs(1),
		Annotations:       map[string]string{annotationSettings: "true"},
		ValidArgsFunction: s.hostCompletion,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.transfer(cmd, args, types.Pull)
		},
	}
}

func newSyncCmd(s *session) *cobra.Command {
	var dir directionFlags
	cmd := &cobra.Command{
		Use:               "sync <hosts...|all>",
		Short:             MsgSyncShort,
		Long:              MsgSyncLong,
		Example:           MsgSyncExample,
		GroupID:           "core",
		Args:              cobra.MinimumNArgs(1),
		Annotations:       map[string]string{annotationSettings: "true"},
		ValidArgsFunction: s.hostCompletion,
		RunE: func(cmd *cobra.Command, args []string) error {
			direction, err := dir.resolve()
			if err != nil {
				return err
			}
			return s.transfer(cmd, args, direction)
		},
	}
	dir.register(cmd, string(types.Both))
	return cmd
}

func newPlanCmd(s *session) *cobra.Command {
	var dir directionFlags
	cmd := &cobra.Command{
		Use:               "plan <hosts...|all>",
		Short:             MsgPlanShort,
		Long:              MsgPlanLong,
		Example:           MsgPlanExample,
		GroupID:           "core",
		Args:              cobra.MinimumNArgs(1),
		Annotations:       map[string]string{annotationSettings: "true"},
		ValidArgsFunction: s.hostCompletion,
		RunE: func(cmd *cobra.Command, args []string) error {
			direction, err := dir.resolve()
			if err != nil {
				return err
			}
			plan, err := s.buildPlan(args, direction)
			if err != nil {
				return err
			}

			var items []types.TransferItem
			for _, d := range direction.Expand() {
				for item := range plan.Items() {
					item.Direction = d
					items = append(items, item)
				}
			}
			s.out.Plan(items)
			return nil
		},
	}
	dir.register(cmd, string(types.Push))
	return cmd
}

// buildPlan resolves the selected hosts and the --only filter into a plan
func (s *session) buildPlan(hostIDs []string, direction types.Direction) (*planner.Plan, error) {
	logger := logging.GetLogger("cli.plan")

	cfg, local, err := s.loadHosts()
	if err != nil {
		return nil, err
	}
	if local == nil {
		logger.Info().Msgf(MsgNoLocalEntry, s.paths.HomeDir())
	}

	hosts, err := planner.SelectHosts(cfg, hostIDs, local)
	if err != nil {
		return nil, err
	}

	plan, err := planner.ForHosts(hosts, planner.Options{
		Files:     s.opts.only,
		Local:     local,
		LocalHome: s.paths.HomeDir(),
		Direction: direction,

		MountedBasePaths: s.settings.Hosts.MountedPaths,
	})
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Strs("hosts", plan.Hosts()).
		Int("items", plan.Len()).
		Msg("Plan ready")
	return plan, nil
}

// transfer plans and runs a push, pull or both against the selected hosts
func (s *session) transfer(cmd *cobra.Command, hostIDs []string, direction types.Direction) error {
	logger := logging.GetLogger("cli.transfer")
	settings := s.settings

	plan, err := s.buildPlan(hostIDs, direction)
	if err != nil {
		return err
	}

	if settings.Transfer.Delete {
		s.errOut.Warn(MsgDeleteWarning)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sshagent.RunPreCommand(ctx, settings.Hooks.PreCommand); err != nil {
		s.errOut.Warn(MsgPreCommandWarn, errors.Describe(err))
	}

	var agent *sshagent.Status
	if !strings.EqualFold(settings.Transfer.Backend, transport.BackendRsync) {
		status := sshagent.Detect()
		agent = &status
		logger.Debug().
			Bool("available", status.Available).
			Int("keys", status.Keys).
			Msg("Key agent")
	}

	tr, err := transport.New(settings.Transfer.Backend, settings.TransportOptions(agent))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := tr.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("Failed to close connections")
		}
	}()

	var mu sync.Mutex
	dryRun := settings.Transfer.DryRun
	ex := executor.New(executor.Options{
		Transport: tr,
		Jobs:      settings.Transfer.Jobs,
		DryRun:    dryRun,
		Logger:    logger,
		Observer: func(res types.TransferResult) {
			mu.Lock()
			defer mu.Unlock()
			s.out.Result(res, dryRun)
		},
	})

	results := ex.Execute(ctx, plan, direction)
	if ctx.Err() != nil {
		s.errOut.Warn(MsgInterrupted)
	}

	summary := executor.Summarize(results)
	s.out.Summary(summary, dryRun)
	return summary.Err()
}
