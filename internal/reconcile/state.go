package reconcile

import (
	"fmt"
	"log/slog"
	"time"
)

// sweeper carries the state vector as it walks a key's events backward,
// plus the configuration and collaborators needed to synthesize gaps. It is
// a plain record, not a class hierarchy.
type sweeper struct {
	opts     Options
	emitter  Emitter
	courseID string
	userID   int64
	log      *slog.Logger

	activationKind    Kind
	activationKindSet bool
	activationLabel   string
	activationTS      time.Time

	currentlyActive bool // defined only when activationKind == Validated

	currentMode string
	modeLabel   string
	modeTS      time.Time
	modeChanged bool

	creationTS    time.Time
	creationTSSet bool
}

// initialize seeds the state vector from the latest (first, in
// descending order) event. If that event is a mode change, the activation
// state is left undefined: a mode-change event carries no activation
// information.
func (s *sweeper) initialize(e EnrollmentEvent) {
	s.update(e)
	if e.Kind == ModeChanged {
		s.activationKindSet = false
	}
}

// update refreshes the state vector from e, which becomes the "later"
// reference for the next (earlier) event examined.
func (s *sweeper) update(e EnrollmentEvent) {
	if e.Kind != ModeChanged {
		s.activationKind = e.Kind
		s.activationKindSet = true
		s.activationLabel = e.StateLabel()
		s.activationTS = e.Timestamp
	}

	s.currentMode = e.Mode
	s.modeLabel = e.StateLabel()
	s.modeTS = e.Timestamp
	s.modeChanged = e.Kind == ModeChanged

	if e.Kind == Validated && e.Validation != nil {
		s.currentlyActive = e.Validation.IsActive

		if s.creationTSSet && !e.Validation.Created.Equal(s.creationTS) && s.log != nil {
			s.log.Error("validation events disagree on creation timestamp",
				"course_id", s.courseID, "user_id", s.userID,
				"seen", FormatTimestamp(s.creationTS), "encountered", FormatTimestamp(e.Validation.Created))
		}
		// Keep the earliest creation timestamp seen across all VALIDATED
		// events for this key, whatever order they are walked in.
		if !s.creationTSSet || e.Validation.Created.Before(s.creationTS) {
			s.creationTS = e.Validation.Created
		}
		s.creationTSSet = true
	}
}

// checkEvent compares prev (earlier in time than everything folded into the
// state vector so far) against that later state, emits synthetic events for
// any detected gap, then folds prev into the state vector for the next,
// earlier-still, event. This is the core of the reverse reconciliation sweep.
func (s *sweeper) checkEvent(prev EnrollmentEvent) []Gap {
	var missing []Gap

	var lastAfter *time.Time
	if prev.Kind != Sentinel {
		t := prev.Timestamp
		lastAfter = &t
	}

	if s.activationKindSet {
		reason := reasonString(prev, s.activationLabel, "")
		curr := s.activationTS
		prevMode := prev.Mode

		emitFor := func(kind Kind) Gap {
			return s.generateOutput(s.opts.clamp(fakeTimestamp(lastAfter, curr)), kind, prevMode, reason, lastAfter, &curr)
		}

		switch prev.Kind {
		case Activated:
			missing = append(missing, s.checkOnActivated(emitFor)...)
		case Deactivated:
			missing = append(missing, s.checkOnDeactivated(emitFor)...)
		case Validated:
			missing = append(missing, s.checkOnValidated(prev, emitFor)...)
		case Sentinel:
			var synthTS time.Time
			switch s.activationKind {
			case Activated:
				// Activation presumed to predate the interval: no synthesis.
			case Deactivated:
				if s.creationTSSet && (s.opts.GenerateBefore || !s.creationTS.Before(s.opts.LowerBound)) {
					ct := s.creationTS
					synthTS = s.opts.clamp(ct)
					missing = append(missing, s.generateOutput(synthTS, Activated, prevMode, reason, &ct, &curr))
				} else if s.opts.GenerateBefore {
					synthTS = s.opts.clamp(fakeTimestamp(nil, curr))
					missing = append(missing, s.generateOutput(synthTS, Activated, prevMode, reason, nil, &curr))
				}
			case Validated:
				truncated := s.opts.clamp(s.creationTS)
				switch {
				case !s.opts.GenerateBefore && s.creationTS.Before(s.opts.LowerBound):
					// Creation predates the interval and we can't tell
					// whether the activation is really missing or simply
					// out of scope: no synthesis.
				case s.currentlyActive:
					ct := s.creationTS
					missing = append(missing, s.generateOutput(truncated, Activated, prevMode, reason, &ct, &curr))
					synthTS = truncated
				case s.opts.IncludeNonstateChanges:
					ct := s.creationTS
					missing = append(missing, s.generateOutput(truncated, Activated, prevMode, reason, &ct, &curr))
					synthTS = s.opts.clamp(fakeTimestamp(&truncated, curr))
					missing = append(missing, s.generateOutput(synthTS, Deactivated, prevMode, reason, &ct, &curr))
				}
			}
			if len(missing) > 0 {
				lastAfter = &synthTS
			}
		}
	}

	missing = append(missing, s.checkForModeChange(prev, lastAfter)...)

	s.update(prev)

	return missing
}

// checkOnActivated implements the "prev = activate" row of the gap-detection
// matrix.
func (s *sweeper) checkOnActivated(emit func(Kind) Gap) []Gap {
	switch {
	case s.activationKind == Activated && s.opts.IncludeNonstateChanges:
		return []Gap{emit(Deactivated)}
	case s.activationKind == Validated && !s.currentlyActive:
		return []Gap{emit(Deactivated)}
	}
	return nil
}

// checkOnDeactivated implements the "prev = deactivate" row.
func (s *sweeper) checkOnDeactivated(emit func(Kind) Gap) []Gap {
	switch {
	case s.activationKind == Deactivated && s.opts.IncludeNonstateChanges:
		return []Gap{emit(Activated)}
	case s.activationKind == Validated && s.currentlyActive:
		return []Gap{emit(Activated)}
	}
	return nil
}

// checkOnValidated implements the "prev = validate" rows.
func (s *sweeper) checkOnValidated(prev EnrollmentEvent, emit func(Kind) Gap) []Gap {
	switch s.activationKind {
	case Activated:
		if prev.IsActive() && s.opts.IncludeNonstateChanges {
			return []Gap{emit(Deactivated)}
		}
	case Deactivated:
		if !prev.IsActive() && s.opts.IncludeNonstateChanges {
			return []Gap{emit(Activated)}
		}
	case Validated:
		if prev.IsActive() && !s.currentlyActive {
			return []Gap{emit(Deactivated)}
		}
		if !prev.IsActive() && s.currentlyActive {
			return []Gap{emit(Activated)}
		}
	}
	return nil
}

// checkForModeChange implements the independent mode-change detection,
// run after activation-gap detection for every event.
func (s *sweeper) checkForModeChange(prev EnrollmentEvent, lastAfter *time.Time) []Gap {
	if prev.Mode == s.currentMode || s.modeChanged {
		return nil
	}
	curr := s.modeTS
	ts := s.opts.clamp(fakeTimestamp(lastAfter, curr))
	reason := reasonString(prev, s.modeLabel, s.currentMode)
	return []Gap{s.generateOutput(ts, ModeChanged, s.currentMode, reason, lastAfter, &curr)}
}

func (s *sweeper) generateOutput(ts time.Time, kind Kind, mode, reason string, after, before *time.Time) Gap {
	datestamp, payload := s.emitter.Emit(ts, kind, mode, reason, after, before)
	return Gap{Datestamp: datestamp, Payload: payload}
}

// fakeTimestamp picks a timestamp for a gap bracketed by (after, before): a
// microsecond after after when known, else a microsecond before before.
func fakeTimestamp(after *time.Time, before time.Time) time.Time {
	if after != nil {
		return AddMicroseconds(*after, 1)
	}
	return AddMicroseconds(before, -1)
}

// reasonString renders the human-readable reason carried by a synthetic
// event. currMode is empty when the gap isn't a mode change.
func reasonString(prev EnrollmentEvent, currLabel, currMode string) string {
	if currMode != "" {
		return fmt.Sprintf("%s => %s (%s=>%s)", prev.StateLabel(), currLabel, prev.Mode, currMode)
	}
	return fmt.Sprintf("%s => %s", prev.StateLabel(), currLabel)
}
