// Package testutil provides test environments for dosync.
//
// Key components:
//   - TestEnvironment: an isolated home with dosync's config and state
//     directories, either in memory or in a temp directory
//   - FileTree: declarative file setup under that home
//   - FakeRsync: a stand-in rsync binary that records its arguments
//
// Use EnvMemoryOnly for code that takes a filesystem.FS and EnvIsolated for
// anything that reads the real filesystem or the environment.
package testutil
