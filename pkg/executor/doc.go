// Package executor runs a transfer plan through a transport.
//
// Every item is attempted. A failing item is recorded in its TransferResult
// and never stops the items after it; the caller turns the aggregate into an
// exit status with Summarize. Hosts may run concurrently (bounded by Jobs),
// while the items of one host always run in plan order on a single worker.
package executor
