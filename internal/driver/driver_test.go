package driver_test

import (
	"testing"
	"time"

	"github.com/malbeclabs/enrollvalidate/internal/driver"
	"github.com/malbeclabs/enrollvalidate/internal/ingest"
	"github.com/malbeclabs/enrollvalidate/internal/reconcile"
	"github.com/stretchr/testify/require"
)

func at(s string) time.Time {
	t, err := reconcile.ParseTimestamp(s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestRun_ReconcilesEachKeyIndependently(t *testing.T) {
	t.Parallel()

	keyA := ingest.Key{CourseID: "course-v1:MITx+6.00x+2015", UserID: 1}
	keyB := ingest.Key{CourseID: "course-v1:MITx+6.00x+2015", UserID: 2}

	events := map[ingest.Key][]reconcile.EnrollmentEvent{
		keyA: {
			{Timestamp: at("2015-01-02T00:00:00.000000"), Kind: reconcile.Activated, Mode: "honor"},
			{Timestamp: at("2015-01-01T00:00:00.000000"), Kind: reconcile.Activated, Mode: "honor"},
		},
		keyB: {
			{Timestamp: at("2015-02-01T00:00:00.000000"), Kind: reconcile.Deactivated, Mode: "honor"},
		},
	}

	cfg := driver.Config{
		Options: reconcile.Options{
			IncludeNonstateChanges: true,
			LowerBound:             at("2015-01-01T00:00:00.000000"),
		},
		Workers: 2,
		Emitter: func(courseID string, userID int64) reconcile.Emitter {
			return reconcile.TupleEmitter{CourseID: courseID, UserID: userID}
		},
	}

	gaps := driver.Run(cfg, events)

	require.Len(t, gaps, 1, "only keyA's duplicate activation should synthesize a gap")
	require.Contains(t, string(gaps[0].Payload), "\t1\t")
}

func TestRun_EmptyKeySetProducesNoGaps(t *testing.T) {
	t.Parallel()

	cfg := driver.Config{
		Workers: 4,
		Emitter: func(courseID string, userID int64) reconcile.Emitter {
			return reconcile.TupleEmitter{CourseID: courseID, UserID: userID}
		},
	}

	gaps := driver.Run(cfg, map[ingest.Key][]reconcile.EnrollmentEvent{})

	require.Empty(t, gaps)
}
