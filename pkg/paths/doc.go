// Package paths provides centralized path handling for dosync.
//
// It resolves the local home directory, the XDG locations dosync uses for
// its settings file and log file, and the default host file candidates.
// The home directory is resolved once and passed explicitly to the planner
// instead of being read from the environment at every call site.
//
// # Environment Variables
//
//   - DOSYNC_HOSTS: host file to use instead of the default candidates
//   - DOSYNC_CONFIG_DIR: override the XDG config directory ($XDG_CONFIG_HOME/dosync)
//   - DOSYNC_STATE_DIR: override the XDG state directory ($XDG_STATE_HOME/dosync)
//
// # Default host files
//
// In order: $DOSYNC_HOSTS, ~/.sync.conf, ~/.sync.yml, ~/.sync.yaml,
// $XDG_CONFIG_HOME/dosync/hosts.yml, $XDG_CONFIG_HOME/dosync/hosts.conf.
package paths
