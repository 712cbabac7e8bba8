package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/arthur-debert/dosync/internal/version"
	"github.com/arthur-debert/dosync/pkg/config"
	"github.com/arthur-debert/dosync/pkg/errors"
)

func newHostsCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:         "hosts",
		Short:       MsgHostsShort,
		Long:        MsgHostsLong,
		GroupID:     "core",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationSettings: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, local, err := s.loadHosts()
			if err != nil {
				return err
			}
			name := ""
			if local != nil {
				name = local.Hostname
			}
			return s.out.Hosts(cfg, name)
		},
	}
}

func newSettingsCmd(s *session) *cobra.Command {
	var template bool
	cmd := &cobra.Command{
		Use:         "settings",
		Short:       MsgSettingsShort,
		Long:        MsgSettingsLong,
		GroupID:     "misc",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationSettings: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if template {
				fmt.Fprint(cmd.OutOrStdout(), config.Template())
				return nil
			}
			out, err := s.settings.Render()
			if err != nil {
				return errors.Wrap(err, errors.ErrInternal, MsgErrRenderConfig)
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&template, "template", false, MsgFlagTemplate)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   MsgVersionShort,
		GroupID: "misc",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, MsgVersionFormat, version.Version)
			fmt.Fprintf(out, MsgCommitFormat, version.Commit)
			fmt.Fprintf(out, MsgBuiltFormat, version.Date)
		},
	}
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:                   "completion [bash|zsh|fish|powershell]",
		Short:                 MsgCompletionShort,
		Long:                  MsgCompletionLong,
		GroupID:               "misc",
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			switch args[0] {
			case "bash":
				err = cmd.Root().GenBashCompletionV2(cmd.OutOrStdout(), true)
			case "zsh":
				err = cmd.Root().GenZshCompletion(cmd.OutOrStdout())
			case "fish":
				err = cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
			case "powershell":
				err = cmd.Root().GenPowerShellCompletionWithDesc(cmd.OutOrStdout())
			}
			if err != nil {
				log.Error().Err(err).Str("shell", args[0]).Msg("Failed to generate completion")
				return errors.Wrapf(err, errors.ErrInternal, "failed to generate %s completion", args[0])
			}
			return nil
		},
	}
}
