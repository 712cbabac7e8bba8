package cli

import (
	"embed"
	"io"
	"io/fs"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/arthur-debert/dosync/internal/version"
	"github.com/arthur-debert/dosync/pkg/cobrax/topics"
	"github.com/arthur-debert/dosync/pkg/config"
	"github.com/arthur-debert/dosync/pkg/errors"
	"github.com/arthur-debert/dosync/pkg/hostfile"
	"github.com/arthur-debert/dosync/pkg/logging"
	"github.com/arthur-debert/dosync/pkg/paths"
	"github.com/arthur-debert/dosync/pkg/planner"
	"github.com/arthur-debert/dosync/pkg/style"
	"github.com/arthur-debert/dosync/pkg/transport"
	"github.com/arthur-debert/dosync/pkg/types"
)

//go:embed topics
var topicFiles embed.FS

// annotationSettings marks commands that read settings and the host file
const annotationSettings = "dosync/settings"

// flagKeys maps command line flags onto settings keys
var flagKeys = map[string]string{
	"file":       "hosts.file",
	"local":      "hosts.local",
	"transport":  "transfer.backend",
	"jobs":       "transfer.jobs",
	"dry-run":    "transfer.dry_run",
	"delete":     "transfer.delete",
	"logfile":    "log.file",
	"no-logfile": "log.disabled",
	"quiet":      "log.quiet",
}

type globalOptions struct {
	verbosity    int
	hostFile     string
	settingsFile string
	logFile      string
	noLogFile    bool
	quiet        bool
	dryRun       bool
	exclude      []string
	only         []string
	local        string
	backend      string
	jobs         int
	delete       bool
}

// session is the state shared by the commands of one invocation
type session struct {
	opts     *globalOptions
	runID    string
	paths    paths.Paths
	settings *config.Settings
	out      *style.Renderer
	errOut   *style.Renderer
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	initTemplateFormatting()

	opts := &globalOptions{}
	s := &session{opts: opts}

	rootCmd := &cobra.Command{
		Use:     "dosync",
		Short:   MsgRootShort,
		Long:    MsgRootLong,
		Version: version.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return s.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return errors.New(errors.ErrInvalidInput, MsgErrNoCommand)
		},
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	}

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.CountVarP(&opts.verbosity, "verbose", "v", MsgFlagVerbose)
	pf.StringVarP(&opts.hostFile, "file", "f", "", MsgFlagFile)
	pf.StringVar(&opts.settingsFile, "settings", "", MsgFlagSettings)
	pf.StringVarP(&opts.logFile, "logfile", "l", "", MsgFlagLogFile)
	pf.BoolVarP(&opts.noLogFile, "no-logfile", "Q", false, MsgFlagNoLogFile)
	pf.BoolVarP(&opts.quiet, "quiet", "q", false, MsgFlagQuiet)
	pf.BoolVarP(&opts.dryRun, "dry-run", "n", false, MsgFlagDryRun)
	pf.StringArrayVarP(&opts.exclude, "exclude", "e", nil, MsgFlagExclude)
	pf.StringArrayVarP(&opts.only, "only", "F", nil, MsgFlagOnly)
	pf.StringVar(&opts.local, "local", "", MsgFlagLocal)
	pf.StringVarP(&opts.backend, "transport", "t", "", MsgFlagTransport)
	pf.IntVarP(&opts.jobs, "jobs", "j", 1, MsgFlagJobs)
	pf.BoolVar(&opts.delete, "delete", false, MsgFlagDelete)

	_ = rootCmd.RegisterFlagCompletionFunc("only", s.fileNameCompletion)
	_ = rootCmd.RegisterFlagCompletionFunc("transport", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return transport.Backends(), cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddGroup(&cobra.Group{ID: "core", Title: "COMMANDS:"})
	rootCmd.AddGroup(&cobra.Group{ID: "misc", Title: "MISC:"})
	rootCmd.SetUsageTemplate(MsgUsageTemplate)

	rootCmd.AddCommand(newPushCmd(s))
	rootCmd.AddCommand(newPullCmd(s))
	rootCmd.AddCommand(newSyncCmd(s))
	rootCmd.AddCommand(newPlanCmd(s))
	rootCmd.AddCommand(newHostsCmd(s))
	rootCmd.AddCommand(newSettingsCmd(s))
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	// Topic based help, rendered with glamour for markdown
	sub, err := fs.Sub(topicFiles, "topics")
	if err == nil {
		topicOpts := topics.Options{
			Extensions: []string{".md", ".txt"},
			Renderer:   topics.NewGlamourRenderer(style.DetectColor(os.Stdout)),
		}
		if err := topics.InitializeWithOptions(rootCmd, sub, topicOpts); err != nil {
			log.Warn().Err(err).Msg("Help topics unavailable")
		}
	}
	rootCmd.SetHelpCommandGroupID("misc")

	return rootCmd
}

// load resolves paths and settings without touching logging or output
func (s *session) load(cmd *cobra.Command) error {
	p, err := paths.New("")
	if err != nil {
		return errors.Wrap(err, errors.ErrInternal, MsgErrInitPaths)
	}
	s.paths = p

	settings, err := config.Load(config.LoadOptions{
		File:        s.opts.settingsFile,
		DefaultFile: p.SettingsFile(),
		Flags:       settingsFlags(cmd.Flags()),
	})
	if err != nil {
		return err
	}
	settings.Transfer.Exclude = append(settings.Transfer.Exclude, s.opts.exclude...)
	s.settings = settings
	return nil
}

// setup runs before every command: it assigns the run ID, configures
// logging and, for commands that need them, loads the settings
func (s *session) setup(cmd *cobra.Command) error {
	s.runID = uuid.NewString()

	color := false
	if f, ok := cmd.OutOrStdout().(*os.File); ok {
		color = style.DetectColor(f)
	}
	s.out = style.NewRenderer(cmd.OutOrStdout(), color)
	s.errOut = style.NewRenderer(cmd.ErrOrStderr(), color)

	logOpts := logging.Options{
		Verbosity: s.opts.verbosity,
		Quiet:     s.opts.quiet,
		LogFile:   s.opts.logFile,
		NoLogFile: s.opts.noLogFile,
		RunID:     s.runID,
		Console:   cmd.ErrOrStderr(),
	}

	if cmd.Annotations[annotationSettings] == "" {
		logging.SetupLogger(logOpts)
		return nil
	}

	if err := s.load(cmd); err != nil {
		logging.SetupLogger(logOpts)
		return err
	}

	logOpts.Quiet = s.settings.Log.Quiet
	logOpts.NoLogFile = s.settings.Log.Disabled
	logOpts.LogFile = s.paths.LogFilePath()
	if s.settings.Log.File != "" {
		logOpts.LogFile = s.paths.ExpandHome(s.settings.Log.File)
	}
	logging.SetupLogger(logOpts)

	log.Debug().
		Str("command", cmd.CommandPath()).
		Str("backend", s.settings.Transfer.Backend).
		Msg("Command started")
	return nil
}

// settingsFlags collects the changed flags that override settings keys
func settingsFlags(flags *pflag.FlagSet) map[string]interface{} {
	out := make(map[string]interface{})
	flags.Visit(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			out[key] = f.Value.String()
		}
	})
	return out
}

// loadHosts reads the host file and finds this machine's entry in it
func (s *session) loadHosts() (*types.Configuration, *types.HostEntry, error) {
	path := s.settings.Hosts.File
	if path != "" {
		path = s.paths.ExpandHome(path)
	} else {
		found, err := hostfile.Discover(s.paths.HostFileCandidates())
		if err != nil {
			return nil, nil, err
		}
		path = found
	}
	logger := logging.GetLogger("cli")
	logger.Info().Str("path", path).Msg("Using host file")

	cfg, err := hostfile.Load(path)
	if err != nil {
		return nil, nil, err
	}

	local, err := planner.DetectLocal(cfg, s.settings.Hosts.Local, paths.LocalHostname())
	if err != nil {
		return nil, nil, err
	}
	return cfg, local, nil
}

// hostCompletion offers hostnames, aliases and "all"
func (s *session) hostCompletion(cmd *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	cfg, _, err := s.completionConfig(cmd)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}

	taken := make(map[string]bool, len(args))
	for _, a := range args {
		taken[a] = true
	}

	var names []string
	for _, name := range append(append([]string{types.AllHosts}, cfg.Order...), cfg.Aliases.Names()...) {
		if !taken[name] {
			names = append(names, name)
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

// fileNameCompletion offers every logical file name in the host file
func (s *session) fileNameCompletion(cmd *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
	cfg, _, err := s.completionConfig(cmd)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}

	seen := make(map[string]bool)
	var names []string
	for _, h := range cfg.HostEntries() {
		for _, name := range h.FileNames() {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

// completionConfig loads the host file quietly; completion runs without the
// pre-run hooks
func (s *session) completionConfig(cmd *cobra.Command) (*types.Configuration, *types.HostEntry, error) {
	logging.SetupLogger(logging.Options{NoLogFile: true, Quiet: true, Console: io.Discard})
	if err := s.load(cmd); err != nil {
		return nil, nil, err
	}
	return s.loadHosts()
}
