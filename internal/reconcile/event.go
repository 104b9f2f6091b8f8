// Package reconcile implements the per-(course,user) enrollment event-stream
// reconciliation engine: it walks a key's mixed activity/validation events in
// reverse chronological order and synthesizes the events required to make
// the activity stream consistent with the periodic enrollment census.
package reconcile

import "time"

// Kind identifies the semantic type of an EnrollmentEvent.
type Kind int

const (
	Activated Kind = iota
	Deactivated
	ModeChanged
	Validated
	// Sentinel is an internal marker appended to the tail of a sorted event
	// list representing "the state at the start of the processing interval".
	// It carries no timestamp.
	Sentinel
)

func (k Kind) String() string {
	switch k {
	case Activated:
		return "activate"
	case Deactivated:
		return "deactivate"
	case ModeChanged:
		return "mode_change"
	case Validated:
		return "validate"
	case Sentinel:
		return "start"
	default:
		return "unknown"
	}
}

// ValidationInfo carries the fields present only on VALIDATED events: the
// observed activation state plus the census dump's creation time and wall
// clock window.
type ValidationInfo struct {
	IsActive  bool
	Created   time.Time
	DumpStart time.Time
	DumpEnd   time.Time
}

// EnrollmentEvent is one observation about a (course, user) enrollment. It
// is a tagged variant rather than a type hierarchy: Validation is non-nil
// iff Kind == Validated, and Timestamp is the zero time iff Kind == Sentinel.
type EnrollmentEvent struct {
	Timestamp  time.Time
	Kind       Kind
	Mode       string
	Validation *ValidationInfo
}

// StateLabel renders the event's state for human-readable reason strings,
// e.g. "activate", "validate(active)", "start".
func (e EnrollmentEvent) StateLabel() string {
	label := e.Kind.String()
	if e.Kind == Validated {
		if e.Validation != nil && e.Validation.IsActive {
			label += "(active)"
		} else {
			label += "(inactive)"
		}
	}
	return label
}

// IsDuringDump reports whether ts falls strictly within this event's census
// dump window (dump_start, dump_end). Only meaningful for Validated events.
func (e EnrollmentEvent) IsDuringDump(ts time.Time) bool {
	if e.Kind != Validated || e.Validation == nil {
		return false
	}
	return e.Validation.DumpStart.Before(ts) && ts.Before(e.Validation.DumpEnd)
}

// IsActive reports the event's observed activation state. Only meaningful
// for Validated events.
func (e EnrollmentEvent) IsActive() bool {
	return e.Validation != nil && e.Validation.IsActive
}
