package reconcile_test

import (
	"testing"
	"time"

	"github.com/malbeclabs/enrollvalidate/internal/reconcile"
	"github.com/stretchr/testify/require"
)

func ts(s string) time.Time {
	t, err := reconcile.ParseTimestamp(s)
	if err != nil {
		panic(err)
	}
	return t
}

func activated(at, mode string) reconcile.EnrollmentEvent {
	return reconcile.EnrollmentEvent{Timestamp: ts(at), Kind: reconcile.Activated, Mode: mode}
}

func deactivated(at, mode string) reconcile.EnrollmentEvent {
	return reconcile.EnrollmentEvent{Timestamp: ts(at), Kind: reconcile.Deactivated, Mode: mode}
}

func modeChanged(at, mode string) reconcile.EnrollmentEvent {
	return reconcile.EnrollmentEvent{Timestamp: ts(at), Kind: reconcile.ModeChanged, Mode: mode}
}

func validated(at, mode string, isActive bool, created, dumpStart, dumpEnd string) reconcile.EnrollmentEvent {
	return reconcile.EnrollmentEvent{
		Timestamp: ts(at),
		Kind:      reconcile.Validated,
		Mode:      mode,
		Validation: &reconcile.ValidationInfo{
			IsActive:  isActive,
			Created:   ts(created),
			DumpStart: ts(dumpStart),
			DumpEnd:   ts(dumpEnd),
		},
	}
}

func process(t *testing.T, opts reconcile.Options, events []reconcile.EnrollmentEvent) []reconcile.Gap {
	t.Helper()
	p := &reconcile.Processor{
		CourseID: "course-1",
		UserID:   42,
		Options:  opts,
		Emitter:  reconcile.TupleEmitter{CourseID: "course-1", UserID: 42},
	}
	return p.Reconcile(events)
}

// S1: a duplicate activation should synthesize a cancelling deactivate when
// include_nonstate_changes is enabled.
func TestReconcile_S1_DuplicateActivate(t *testing.T) {
	events := []reconcile.EnrollmentEvent{
		activated("2015-01-02T00:00:00.000000", "honor"),
		activated("2015-01-01T00:00:00.000000", "honor"),
	}
	opts := reconcile.Options{
		IncludeNonstateChanges: true,
		LowerBound:             ts("2015-01-01T00:00:00.000000"),
	}

	gaps := process(t, opts, events)

	require.Len(t, gaps, 1)
	require.Equal(t, "2015-01-01", gaps[0].Datestamp)
	require.Contains(t, string(gaps[0].Payload), "2015-01-01T00:00:00.000001")
	require.Contains(t, string(gaps[0].Payload), reconcile.EventTypeDeactivated)
	require.Contains(t, string(gaps[0].Payload), "activate => activate")
}

// S2: a validated-inactive census with no intervening deactivate should
// synthesize the missing deactivate.
func TestReconcile_S2_MissingDeactivate(t *testing.T) {
	events := []reconcile.EnrollmentEvent{
		validated("2015-03-10T12:00:00.000000", "honor", false,
			"2015-01-01T00:00:00.000000", "2015-03-10T11:00:00.000000", "2015-03-10T12:00:00.000000"),
		activated("2015-02-01T00:00:00.000000", "honor"),
	}

	gaps := process(t, reconcile.Options{}, events)

	require.Len(t, gaps, 1)
	payload := string(gaps[0].Payload)
	require.Contains(t, payload, "2015-02-01T00:00:00.000001")
	require.Contains(t, payload, reconcile.EventTypeDeactivated)
	require.Contains(t, payload, "activate => validate(inactive)")
}

// S3: activation carries over cleanly but the mode differs, so only a
// mode-change event is synthesized.
func TestReconcile_S3_ModeChangeOnly(t *testing.T) {
	events := []reconcile.EnrollmentEvent{
		validated("2015-05-01T00:00:00.000000", "verified", true,
			"2015-01-01T00:00:00.000000", "2015-05-01T00:00:00.000000", "2015-05-01T00:00:00.000000"),
		activated("2015-04-01T00:00:00.000000", "honor"),
	}

	gaps := process(t, reconcile.Options{}, events)

	require.Len(t, gaps, 1)
	payload := string(gaps[0].Payload)
	require.Contains(t, payload, "2015-04-01T00:00:00.000001")
	require.Contains(t, payload, reconcile.EventTypeModeChanged)
	require.Contains(t, payload, "activate => validate(active) (honor=>verified)")
}

// S4: a validation event whose dump window contains a contradicting
// activity event is back-dated and swapped ahead of it.
func TestReconcile_S4_DumpWindowReorder(t *testing.T) {
	sorted := []reconcile.EnrollmentEvent{
		validated("2015-06-01T12:00:00.000000", "honor", false,
			"2015-01-01T00:00:00.000000", "2015-06-01T11:00:00.000000", "2015-06-01T12:00:00.000000"),
		activated("2015-06-01T11:30:00.000000", "honor"),
	}

	reconcile.ReorderWithinDumps(sorted)

	require.Equal(t, reconcile.Activated, sorted[0].Kind)
	require.Equal(t, ts("2015-06-01T11:30:00.000000"), sorted[0].Timestamp)
	require.Equal(t, reconcile.Validated, sorted[1].Kind)
	require.Equal(t, ts("2015-06-01T11:29:59.999999"), sorted[1].Timestamp)
	require.False(t, sorted[1].IsActive())
}

// TestReconcile_S4_DumpWindowReorder_NoSpuriousGap documents the downstream
// consequence of the S4 reorder: once the validation is correctly ordered
// before the activation it contradicted, the pairing becomes the
// validate(inactive)-then-activate transition, which the gap matrix marks
// unreachable ("-"): the reorder has already explained the inconsistency,
// so no synthetic event is needed for this pair.
func TestReconcile_S4_DumpWindowReorder_NoSpuriousGap(t *testing.T) {
	events := []reconcile.EnrollmentEvent{
		validated("2015-06-01T12:00:00.000000", "honor", false,
			"2015-01-01T00:00:00.000000", "2015-06-01T11:00:00.000000", "2015-06-01T12:00:00.000000"),
		activated("2015-06-01T11:30:00.000000", "honor"),
	}
	opts := reconcile.Options{
		// creation_timestamp (2015-01-01) predates LowerBound and
		// generate_before is off, so the sentinel step can't tell whether an
		// activation is genuinely missing or simply out of scope: no
		// synthesis, regardless of include_nonstate_changes.
		LowerBound: ts("2015-06-01T00:00:00.000000"),
	}

	gaps := process(t, opts, events)

	require.Empty(t, gaps)
}

// S5: a lone deactivate with a known creation timestamp (established by an
// earlier validation in the stream) synthesizes the missing activate at
// the creation time.
func TestReconcile_S5_SentinelWithKnownCreation(t *testing.T) {
	events := []reconcile.EnrollmentEvent{
		// Establishes creation_timestamp without itself implying an
		// activation gap: a later, inactive census confirms the row was
		// already deactivated by the time it was observed.
		validated("2015-07-20T00:00:00.000000", "honor", false,
			"2015-07-10T00:00:00.000000", "2015-07-19T00:00:00.000000", "2015-07-20T00:00:00.000000"),
		deactivated("2015-07-15T00:00:00.000000", "honor"),
	}
	opts := reconcile.Options{
		LowerBound: ts("2015-07-01T00:00:00.000000"),
	}

	gaps := process(t, opts, events)

	require.Len(t, gaps, 1)
	payload := string(gaps[0].Payload)
	require.Contains(t, payload, "2015-07-10T00:00:00.000000")
	require.Contains(t, payload, reconcile.EventTypeActivated)
	require.Contains(t, payload, "start => deactivate")
}

// S6: a lone inactive census row with no activation history is ambiguous
// (dead enrollment shell vs. lost activate/deactivate pair); with
// include_nonstate_changes enabled, both are synthesized.
func TestReconcile_S6_InactiveShellRow(t *testing.T) {
	events := []reconcile.EnrollmentEvent{
		validated("2015-08-10T00:00:00.000000", "honor", false,
			"2015-08-05T00:00:00.000000", "2015-08-09T00:00:00.000000", "2015-08-10T00:00:00.000000"),
	}
	opts := reconcile.Options{
		IncludeNonstateChanges: true,
		LowerBound:             ts("2015-08-01T00:00:00.000000"),
	}

	gaps := process(t, opts, events)

	require.Len(t, gaps, 2)
	require.Contains(t, string(gaps[0].Payload), reconcile.EventTypeActivated)
	require.Contains(t, string(gaps[0].Payload), "2015-08-05T00:00:00.000000")
	require.Contains(t, string(gaps[1].Payload), reconcile.EventTypeDeactivated)
	require.Contains(t, string(gaps[1].Payload), "2015-08-05T00:00:00.000001")
}

// Property 1: the pre-sweep sort is a stable descending sort, independent
// of input order.
func TestSortDescending_StableAndDescending(t *testing.T) {
	events := []reconcile.EnrollmentEvent{
		activated("2015-01-01T00:00:00.000000", "honor"),
		deactivated("2015-01-03T00:00:00.000000", "honor"),
		modeChanged("2015-01-02T00:00:00.000000", "verified"),
	}

	sorted := reconcile.SortDescending(events)

	require.Len(t, sorted, 3)
	require.True(t, sorted[0].Timestamp.After(sorted[1].Timestamp))
	require.True(t, sorted[1].Timestamp.After(sorted[2].Timestamp))

	// Equal timestamps keep their input order.
	tied := reconcile.SortDescending([]reconcile.EnrollmentEvent{
		modeChanged("2015-01-02T00:00:00.000000", "verified"),
		modeChanged("2015-01-02T00:00:00.000000", "audit"),
		activated("2015-01-03T00:00:00.000000", "honor"),
	})
	require.Equal(t, []string{"honor", "verified", "audit"}, []string{tied[0].Mode, tied[1].Mode, tied[2].Mode})
}

// Property 3: at most one activation-gap event and one mode-change event
// are emitted per prev_event, exercised here by an event that disagrees
// with the later state on both activation and mode simultaneously.
func TestReconcile_AtMostOneEmissionPerGap(t *testing.T) {
	events := []reconcile.EnrollmentEvent{
		validated("2015-09-05T00:00:00.000000", "verified", true,
			"2015-01-01T00:00:00.000000", "2015-09-05T00:00:00.000000", "2015-09-05T00:00:00.000000"),
		deactivated("2015-09-01T00:00:00.000000", "honor"),
	}

	gaps := process(t, reconcile.Options{}, events)

	// deactivate -> validate(active) unconditionally synthesizes an
	// activate (row d / col va); the mode differs too, so a second,
	// independent mode-change gap follows. Never more than these two for
	// the deactivate. The SENTINEL is a separate prev_event: the earliest
	// state is now the deactivate and the known creation time (2015-01-01)
	// is not before the zero LowerBound, so it adds one activate.
	require.Len(t, gaps, 3)
	require.Contains(t, string(gaps[0].Payload), reconcile.EventTypeActivated)
	require.Contains(t, string(gaps[1].Payload), reconcile.EventTypeModeChanged)
	require.Contains(t, string(gaps[2].Payload), "start => deactivate")
}

// Property 5: no synthesized timestamp precedes earliest_timestamp when set.
func TestReconcile_EarliestTimestampClamp(t *testing.T) {
	events := []reconcile.EnrollmentEvent{
		activated("2015-01-02T00:00:00.000000", "honor"),
		activated("2015-01-01T00:00:00.000000", "honor"),
	}
	floor := ts("2015-01-01T12:00:00.000000")
	opts := reconcile.Options{
		IncludeNonstateChanges: true,
		LowerBound:             ts("2015-01-01T00:00:00.000000"),
		EarliestTimestamp:      &floor,
	}

	gaps := process(t, opts, events)

	require.Len(t, gaps, 1)
	require.Contains(t, string(gaps[0].Payload), "2015-01-01T12:00:00.000000")
}

// Property 6: with generate_before false, a lone deactivate whose creation
// timestamp is unknown produces no synthetic activate before the interval.
func TestReconcile_IntervalGating(t *testing.T) {
	events := []reconcile.EnrollmentEvent{
		deactivated("2015-07-15T00:00:00.000000", "honor"),
	}
	opts := reconcile.Options{
		GenerateBefore: false,
		LowerBound:     ts("2015-07-01T00:00:00.000000"),
	}

	gaps := process(t, opts, events)

	require.Empty(t, gaps)
}

// Property 7 (idempotence, partial): replaying a stream together with its
// own synthesized gap must not re-synthesize the same gap.
func TestReconcile_IdempotentUnderReplay(t *testing.T) {
	events := []reconcile.EnrollmentEvent{
		validated("2015-03-10T12:00:00.000000", "honor", false,
			"2015-01-01T00:00:00.000000", "2015-03-10T11:00:00.000000", "2015-03-10T12:00:00.000000"),
		activated("2015-02-01T00:00:00.000000", "honor"),
	}

	gaps := process(t, reconcile.Options{}, events)
	require.Len(t, gaps, 1)

	replay := append(append([]reconcile.EnrollmentEvent{}, events...),
		deactivated("2015-02-01T00:00:00.000001", "honor"))

	gaps2 := process(t, reconcile.Options{}, replay)
	require.Empty(t, gaps2)
}

func TestExtractOrgID(t *testing.T) {
	require.Equal(t, "MITx", reconcile.ExtractOrgID("course-v1:MITx+6.00x+2015"))
	require.Equal(t, "MITx", reconcile.ExtractOrgID("MITx/6.00x/2015"))
}
