package reconcile

import "sort"

// SortDescending returns a stably-sorted copy of events in descending
// timestamp order; ties keep their original relative order. This is the
// first step of per-key preparation, ahead of the dump-window reorder pass
// and the backward sweep.
func SortDescending(events []EnrollmentEvent) []EnrollmentEvent {
	sorted := make([]EnrollmentEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	return sorted
}

// ReorderWithinDumps implements the dump-window pre-pass: a validation whose
// dump window straddles a contradicting activity event is treated as having
// observed that event, not preceded it. sorted must already be in
// descending timestamp order (sorted[i] is later
// than sorted[i+1]) and must not yet have the SENTINEL appended. It mutates
// sorted in place: when sorted[i] is a VALIDATED event whose dump window
// contains sorted[i+1]'s timestamp and the two disagree on activation state
// or mode, the validation's timestamp is moved to one microsecond before
// sorted[i+1] and the two swap, enforcing that the real activity event
// happened first.
func ReorderWithinDumps(sorted []EnrollmentEvent) {
	for i := 0; i < len(sorted)-1; i++ {
		event := sorted[i]
		prevEvent := sorted[i+1]

		if event.Kind != Validated || prevEvent.Kind == Validated {
			continue
		}
		if !event.IsDuringDump(prevEvent.Timestamp) {
			continue
		}

		activeInconsistent := (event.IsActive() && prevEvent.Kind == Deactivated) ||
			(!event.IsActive() && prevEvent.Kind == Activated)
		modeInconsistent := event.Mode != prevEvent.Mode && prevEvent.Kind == ModeChanged
		if !activeInconsistent && !modeInconsistent {
			continue
		}

		event.Timestamp = AddMicroseconds(prevEvent.Timestamp, -1)
		sorted[i] = prevEvent
		sorted[i+1] = event
	}
}
