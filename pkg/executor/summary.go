package executor

import (
	"github.com/arthur-debert/dosync/pkg/errors"
	"github.com/arthur-debert/dosync/pkg/types"
)

// Summary aggregates a run's results
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int

	// FailedHosts lists hosts with at least one failure, in result order
	FailedHosts []string
}

// Summarize counts results. Skipped items also count as succeeded.
func Summarize(results []types.TransferResult) Summary {
	s := Summary{Total: len(results)}
	seen := make(map[string]bool)
	for _, r := range results {
		if !r.OK {
			s.Failed++
			if !seen[r.Item.Hostname] {
				seen[r.Item.Hostname] = true
				s.FailedHosts = append(s.FailedHosts, r.Item.Hostname)
			}
			continue
		}
		s.Succeeded++
		if r.Skipped {
			s.Skipped++
		}
	}
	return s
}

// OK reports whether every item succeeded
func (s Summary) OK() bool {
	return s.Failed == 0
}

// Err returns a TransferFailed error when any item failed
func (s Summary) Err() error {
	if s.OK() {
		return nil
	}
	return errors.Newf(errors.ErrTransferFailed, "%d of %d transfers failed", s.Failed, s.Total).
		WithDetail("failed", s.Failed).
		WithDetail("total", s.Total).
		WithDetail("hosts", s.FailedHosts)
}
