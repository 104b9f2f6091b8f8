// Package driver reconciles events already grouped by enrollment key
// independently and in parallel: keys share no state, so a batch run sized
// to fit memory needs no external shuffle step.
package driver

import (
	"bytes"
	"log/slog"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/malbeclabs/enrollvalidate/internal/ingest"
	"github.com/malbeclabs/enrollvalidate/internal/metrics"
	"github.com/malbeclabs/enrollvalidate/internal/reconcile"
)

// Config bundles the per-run reconciliation options with the concurrency
// knob that controls how many keys are reconciled at once.
type Config struct {
	Options reconcile.Options
	Workers int
	Emitter func(courseID string, userID int64) reconcile.Emitter
	Log     *slog.Logger
}

// keyResult is one key's reconciliation output, threaded back through the
// pool so the driver can fold every key's gaps into the output stage
// without any key's partial output becoming visible before it's complete.
type keyResult struct {
	key  ingest.Key
	gaps []reconcile.Gap
}

// Run reconciles every key concurrently, returning every synthesized Gap
// across all keys. No key's gaps are returned until that key's full event
// stream has been swept, so no partial output for a key is ever visible.
func Run(cfg Config, events map[ingest.Key][]reconcile.EnrollmentEvent) []reconcile.Gap {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	pool := pond.NewResultPool[keyResult](workers)

	keys := make([]ingest.Key, 0, len(events))
	for k := range events {
		keys = append(keys, k)
	}

	tasks := make([]pond.Task[keyResult], 0, len(keys))
	for _, k := range keys {
		k := k
		stream := events[k]
		tasks = append(tasks, pool.Submit(func() keyResult {
			return reconcileKey(cfg, k, stream)
		}))
	}

	var gaps []reconcile.Gap
	for _, task := range tasks {
		result, err := task.Wait()
		if err != nil {
			if cfg.Log != nil {
				cfg.Log.Error("key reconciliation panicked", "error", err)
			}
			continue
		}
		gaps = append(gaps, result.gaps...)
	}

	pool.StopAndWait()
	return gaps
}

func reconcileKey(cfg Config, key ingest.Key, stream []reconcile.EnrollmentEvent) keyResult {
	start := time.Now()
	defer func() {
		metrics.ReconcileDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	emitter := cfg.Emitter(key.CourseID, key.UserID)
	p := &reconcile.Processor{
		CourseID: key.CourseID,
		UserID:   key.UserID,
		Options:  cfg.Options,
		Emitter:  emitter,
		Log:      cfg.Log,
	}

	gaps := p.Reconcile(stream)

	metrics.KeysProcessedTotal.Inc()
	for _, g := range gaps {
		metrics.SyntheticEventsEmittedTotal.WithLabelValues(kindLabel(g)).Inc()
	}

	return keyResult{key: key, gaps: gaps}
}

// kindLabel extracts the event kind from a gap's payload for metrics
// labeling. The tuple and event emitters both carry the event_type literal,
// so a cheap substring probe is enough here; exactness doesn't matter for a
// metrics label, only not panicking.
func kindLabel(g reconcile.Gap) string {
	for _, kind := range []reconcile.Kind{reconcile.Activated, reconcile.Deactivated, reconcile.ModeChanged, reconcile.Validated} {
		if bytes.Contains(g.Payload, []byte(kind.EventType())) {
			return kind.String()
		}
	}
	return "unknown"
}
