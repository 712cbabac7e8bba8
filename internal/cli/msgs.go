package cli

import (
	_ "embed"
	"strings"
)

// Short messages (one-liners)
const (
	// Command descriptions
	MsgRootShort       = "Keep dotfiles in step across hosts"
	MsgPushShort       = "Copy files from this machine to hosts"
	MsgPullShort       = "Copy files from hosts to this machine"
	MsgSyncShort       = "Push, pull or both"
	MsgPlanShort       = "Show the transfers a run would perform"
	MsgHostsShort      = "List configured hosts"
	MsgSettingsShort   = "Show the effective settings"
	MsgVersionShort    = "Print version information"
	MsgCompletionShort = "Generate shell completion script"

	// Status messages
	MsgDeleteWarning  = "--delete removes files on the destination that are missing on the source"
	MsgPreCommandWarn = "pre-command failed, continuing: %s"
	MsgNoLocalEntry   = "No entry for this machine; local paths are relative to %s"
	MsgInterrupted    = "Interrupted, transfers not yet started were skipped"

	// Version output
	MsgVersionFormat = "dosync version %s\n"
	MsgCommitFormat  = "  commit: %s\n"
	MsgBuiltFormat   = "  built:  %s\n"

	// Error messages
	MsgErrInitPaths    = "failed to initialize paths"
	MsgErrDirection    = "invalid direction"
	MsgErrNoCommand    = "no command specified"
	MsgErrRenderConfig = "failed to render settings"

	// Flag descriptions
	MsgFlagVerbose   = "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)"
	MsgFlagFile      = "Host file to read (default: ~/.sync.conf and friends)"
	MsgFlagSettings  = "Settings file (default: ~/.config/dosync/config.toml)"
	MsgFlagLogFile   = "Write the log to this file"
	MsgFlagNoLogFile = "Do not write a log file"
	MsgFlagQuiet     = "Only print results, no log output on the console"
	MsgFlagDryRun    = "Preview transfers without changing anything"
	MsgFlagExclude   = "Exclude files matching this pattern (repeatable)"
	MsgFlagOnly      = "Only transfer this logical file name (repeatable)"
	MsgFlagLocal     = "Name of this machine's entry in the host file"
	MsgFlagTransport = "Transfer backend: rsync, sftp or scp"
	MsgFlagJobs      = "Number of hosts handled at the same time"
	MsgFlagDelete    = "Delete destination files missing on the source (rsync only)"
	MsgFlagDirection = "Direction: push, pull or both"
	MsgFlagUp        = "Shortcut for --direction push"
	MsgFlagDown      = "Shortcut for --direction pull"
	MsgFlagTemplate  = "Print a commented settings template"
)

// Long messages from embedded files
var (
	//go:embed msgs/root-long.txt
	msgRootLongRaw string
	MsgRootLong    = strings.TrimSpace(msgRootLongRaw)

	//go:embed msgs/push-long.txt
	msgPushLongRaw string
	MsgPushLong    = strings.TrimSpace(msgPushLongRaw)

	//go:embed msgs/push-example.txt
	msgPushExampleRaw string
	MsgPushExample    = strings.TrimRight(msgPushExampleRaw, "\n")

	//go:embed msgs/pull-long.txt
	msgPullLongRaw string
	MsgPullLong    = strings.TrimSpace(msgPullLongRaw)

	//go:embed msgs/pull-example.txt
	msgPullExampleRaw string
	MsgPullExample    = strings.TrimRight(msgPullExampleRaw, "\n")

	//go:embed msgs/sync-long.txt
	msgSyncLongRaw string
	MsgSyncLong    = strings.TrimSpace(msgSyncLongRaw)

	//go:embed msgs/sync-example.txt
	msgSyncExampleRaw string
	MsgSyncExample    = strings.TrimRight(msgSyncExampleRaw, "\n")

	//go:embed msgs/plan-long.txt
	msgPlanLongRaw string
	MsgPlanLong    = strings.TrimSpace(msgPlanLongRaw)

	//go:embed msgs/plan-example.txt
	msgPlanExampleRaw string
	MsgPlanExample    = strings.TrimRight(msgPlanExampleRaw, "\n")

	//go:embed msgs/hosts-long.txt
	msgHostsLongRaw string
	MsgHostsLong    = strings.TrimSpace(msgHostsLongRaw)

	//go:embed msgs/settings-long.txt
	msgSettingsLongRaw string
	MsgSettingsLong    = strings.TrimSpace(msgSettingsLongRaw)

	//go:embed msgs/completion-long.txt
	msgCompletionLongRaw string
	MsgCompletionLong    = strings.TrimSpace(msgCompletionLongRaw)

	//go:embed msgs/usage-template.txt
	msgUsageTemplateRaw string
	MsgUsageTemplate    = strings.TrimSpace(msgUsageTemplateRaw)
)
