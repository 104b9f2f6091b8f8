package reconcile

import (
	"log/slog"
	"time"
)

// Gap is one synthesized event, already rendered by an Emitter and tagged
// with the datestamp its output bucket belongs in.
type Gap struct {
	Datestamp string
	Payload   []byte
}

// Emitter renders a detected gap as output bytes, selected by the
// event-output configuration option: one concrete strategy per output
// shape (full event record vs. flat tuple).
type Emitter interface {
	Emit(ts time.Time, kind Kind, mode, reason string, after, before *time.Time) (datestamp string, payload []byte)
}

// Processor reconciles one (course, user) key's event stream: it walks the
// events in reverse chronological order, comparing each against the state
// implied by everything later, and synthesizes the gaps required to make
// the stream consistent.
type Processor struct {
	CourseID string
	UserID   int64
	Options  Options
	Emitter  Emitter
	Log      *slog.Logger
}

// Reconcile sorts events descending, applies the dump-window re-ordering
// pre-pass, appends the SENTINEL, and sweeps backward emitting a Gap for
// every detected transition. events need not be pre-sorted.
func (p *Processor) Reconcile(events []EnrollmentEvent) []Gap {
	sorted := SortDescending(events)
	ReorderWithinDumps(sorted)
	sorted = append(sorted, EnrollmentEvent{Kind: Sentinel, Mode: "honor"})

	s := &sweeper{
		opts:     p.Options,
		emitter:  p.Emitter,
		courseID: p.CourseID,
		userID:   p.UserID,
		log:      p.Log,
	}
	s.initialize(sorted[0])

	var gaps []Gap
	for i := 1; i < len(sorted); i++ {
		gaps = append(gaps, s.checkEvent(sorted[i])...)
	}
	return gaps
}
