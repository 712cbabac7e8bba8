// Package types defines the core data model used throughout dosync:
// host entries and their logical files, the alias table, the loaded
// Configuration, and the transfer items and results that flow between
// the planner, the executor and the transports.
package types
