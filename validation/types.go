// Package validation replays an audit journal and re-checks the engine's
// guarantees from the recorded events alone: strictly increasing bids,
// the one-shot bounded extension, settlement fee conservation, the
// pending-payment ledger balance, and lot lifecycle ordering.
package validation

import "fmt"

// ReplayResult holds the outcome of a journal replay. Call IsValid for
// the overall verdict; the per-property fields say which guarantee was
// violated and ValidationDetails carries human-readable findings.
type ReplayResult struct {
	StreamValid      bool `json:"stream_valid"`
	LifecycleValid   bool `json:"lifecycle_valid"`
	BidOrderingValid bool `json:"bid_ordering_valid"`
	ExtensionValid   bool `json:"extension_valid"`
	FeeValid         bool `json:"fee_valid"`
	PendingValid     bool `json:"pending_valid"`

	LotsSeen   int `json:"lots_seen"`
	EventsSeen int `json:"events_seen"`

	ValidationDetails []string `json:"details"`
}

// IsValid reports whether every replayed property held.
func (r *ReplayResult) IsValid() bool {
	return r.StreamValid &&
		r.LifecycleValid &&
		r.BidOrderingValid &&
		r.ExtensionValid &&
		r.FeeValid &&
		r.PendingValid
}

func (r *ReplayResult) detail(format string, args ...any) {
	r.ValidationDetails = append(r.ValidationDetails, fmt.Sprintf(format, args...))
}
