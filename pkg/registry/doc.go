// Package registry provides a generic, thread-safe name to value registry.
// dosync keeps its transfer backends in one so the CLI, the settings
// validation and shell completion all agree on the accepted names.
package registry
