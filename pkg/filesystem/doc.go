// Package filesystem provides the local filesystem used by the native
// transports.
//
// Both implementations are afero backed: NewOS wraps the real filesystem and
// NewMemory keeps everything in memory for tests.
package filesystem
