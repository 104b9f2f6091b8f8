package reconcile

import "time"

// Options is the per-invocation configuration bundle for a reconciliation
// run. It is a plain configuration record, not a set of free-form named
// parameters, so it can be constructed once and passed down unchanged.
type Options struct {
	// EventOutput selects the emitter shape: true for full event records,
	// false for flat debug tuples.
	EventOutput bool

	// IncludeNonstateChanges enables synthesis of the "(opt)" cells in the
	// gap-detection matrix: cancelling pairs that suggest a lost event pair
	// rather than a hard state discrepancy.
	IncludeNonstateChanges bool

	// GenerateBefore permits synthesis of events timestamped before
	// LowerBound.
	GenerateBefore bool

	// LowerBound is the start of the processing interval. It gates the
	// sentinel/deactivate and sentinel/validated branches when
	// GenerateBefore is false.
	LowerBound time.Time

	// EarliestTimestamp, if set, is a hard floor: no synthesized timestamp
	// is ever emitted earlier than this value.
	EarliestTimestamp *time.Time
}

// clamp enforces EarliestTimestamp on a synthesized timestamp.
func (o Options) clamp(ts time.Time) time.Time {
	if o.EarliestTimestamp != nil && ts.Before(*o.EarliestTimestamp) {
		return *o.EarliestTimestamp
	}
	return ts
}
