package types

import (
	"fmt"
	"strings"
	"time"
)

// Direction of a transfer
type Direction string

const (
	// Push copies local -> remote
	Push Direction = "push"
	// Pull copies remote -> local
	Pull Direction = "pull"
	// Both runs a push followed by a pull
	Both Direction = "both"
)

// ParseDirection accepts push/pull/both and the up/down shortcuts
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "push", "up", "upload":
		return Push, nil
	case "pull", "down", "download":
		return Pull, nil
	case "both", "":
		return Both, nil
	}
	return "", fmt.Errorf("invalid direction %q (want push, pull or both)", s)
}

// Expand returns the concrete directions to run, in order
func (d Direction) Expand() []Direction {
	switch d {
	case Push:
		return []Direction{Push}
	case Pull:
		return []Direction{Pull}
	default:
		return []Direction{Push, Pull}
	}
}

// Verb is used in result lines
func (d Direction) Verb() string {
	switch d {
	case Push:
		return "upload"
	case Pull:
		return "download"
	}
	return "sync"
}

// TransferItem is one concrete unit of work
type TransferItem struct {
	Hostname    string
	LogicalName string
	LocalPath   string
	RemotePath  string
	Direction   Direction

	// MountPath is RemotePath on this machine's filesystem, set when the
	// host's base path is a mounted directory. Such items need no SSH.
	MountPath string
}

// Mounted reports whether the host side lives on this machine
func (t TransferItem) Mounted() bool {
	return t.MountPath != ""
}

// Target is the host side as a transport addresses it: host:path over SSH,
// or the plain local path for mounted hosts
func (t TransferItem) Target() string {
	if t.Mounted() {
		return t.MountPath
	}
	return t.Hostname + ":" + t.RemotePath
}

// Source returns the path data is read from
func (t TransferItem) Source() string {
	if t.Direction == Pull {
		return t.Target()
	}
	return t.LocalPath
}

// Destination returns the path data is written to
func (t TransferItem) Destination() string {
	if t.Direction == Pull {
		return t.LocalPath
	}
	return t.Target()
}

// String renders the item as "push host1/vimrc"
func (t TransferItem) String() string {
	return fmt.Sprintf("%s %s/%s", t.Direction, t.Hostname, t.LogicalName)
}

// TransferResult is the outcome of one TransferItem
type TransferResult struct {
	Item TransferItem

	// OK is false when the transfer failed
	OK bool

	// Skipped is set when nothing needed to change (destination up to date, dry run)
	Skipped bool

	// Err holds the failure detail when OK is false
	Err error

	// Changes lists human readable change lines reported by the transport
	Changes []string

	// Warnings are transport diagnostics of a successful transfer
	Warnings []string

	Duration time.Duration
}

// ErrorDetail returns the failure message or an empty string
func (r TransferResult) ErrorDetail() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
