// Package planner turns a host selection into concrete transfer items.
//
// The flow is:
//
//  1. Resolve each identifier through the alias table to a HostEntry
//  2. Expand "all" and drop the local machine's own entry
//  3. Plan every logical name of each host into a TransferItem with fully
//     qualified local and remote paths
//
// Plans are lazy: nothing is computed until Items is ranged over, and ranging
// again yields the same items. All selection errors (unknown host, unknown
// logical name) surface before any item is produced.
package planner
