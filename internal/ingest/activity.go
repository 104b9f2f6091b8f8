// Package ingest parses the two raw record streams (the product activity
// log and the periodic enrollment census) into reconcile.EnrollmentEvent
// values keyed by (course_id, user_id).
package ingest

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/malbeclabs/enrollvalidate/internal/metrics"
	"github.com/malbeclabs/enrollvalidate/internal/reconcile"
)

// Key identifies one enrollment: a (course, user) pair.
type Key struct {
	CourseID string
	UserID   int64
}

// activityRecord is a permissive intermediate decoding of one activity-log
// line. Unrecognized or missing fields are handled by the caller rather than
// rejected at the json.Unmarshal level, matching the mapper's field-by-field
// validation in the original source.
type activityRecord struct {
	EventType string          `json:"event_type"`
	Time      string          `json:"time"`
	Event     json.RawMessage `json:"event"`
}

type activityPayload struct {
	CourseID  string  `json:"course_id"`
	UserID    *int64  `json:"user_id"`
	Mode      string  `json:"mode"`
	IsActive  *bool   `json:"is_active"`
	Created   string  `json:"created"`
	DumpStart string  `json:"dump_start"`
	DumpEnd   string  `json:"dump_end"`
}

// ScanActivity reads one JSON activity record per line from r, logging and
// skipping any record that fails field validation: an unrecognized
// event_type is discarded silently, everything else missing a valid course
// id, user id, or timestamp, or a non-validated record missing a mode, is
// discarded with a logged error. A validated record without a mode gets
// "honor". fn is called once per surviving record.
func ScanActivity(r io.Reader, log *slog.Logger, fn func(Key, reconcile.EnrollmentEvent)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var rec activityRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			log.Error("encountered malformed activity record", "error", err)
			metrics.RecordsDiscardedTotal.WithLabelValues("malformed_json").Inc()
			continue
		}

		kind, ok := reconcile.ParseEventType(rec.EventType)
		if !ok {
			metrics.RecordsDiscardedTotal.WithLabelValues("unrecognized_event_type").Inc()
			continue
		}

		ts, err := reconcile.ParseTimestamp(rec.Time)
		if err != nil {
			log.Error("encountered event with bad timestamp", "event_type", rec.EventType, "error", err)
			metrics.RecordsDiscardedTotal.WithLabelValues("bad_timestamp").Inc()
			continue
		}

		var payload activityPayload
		if len(rec.Event) > 0 {
			if err := json.Unmarshal(rec.Event, &payload); err != nil {
				log.Error("encountered event with unparseable payload", "event_type", rec.EventType, "error", err)
				metrics.RecordsDiscardedTotal.WithLabelValues("unparseable_payload").Inc()
				continue
			}
		}

		if payload.CourseID == "" {
			log.Error("encountered enrollment event with no course_id", "event_type", rec.EventType)
			metrics.RecordsDiscardedTotal.WithLabelValues("missing_course_id").Inc()
			continue
		}
		if payload.UserID == nil {
			log.Error("encountered enrollment event with no user_id", "event_type", rec.EventType, "course_id", payload.CourseID)
			metrics.RecordsDiscardedTotal.WithLabelValues("missing_user_id").Inc()
			continue
		}

		mode := payload.Mode
		if mode == "" {
			// Synthetic events are permitted without mode info for
			// validation purposes; everything else needs one.
			if kind != reconcile.Validated {
				log.Error("encountered enrollment event with no mode", "event_type", rec.EventType, "course_id", payload.CourseID)
				metrics.RecordsDiscardedTotal.WithLabelValues("missing_mode").Inc()
				continue
			}
			mode = "honor"
		}

		event := reconcile.EnrollmentEvent{Timestamp: ts, Kind: kind, Mode: mode}
		if kind == reconcile.Validated {
			event.Validation = &reconcile.ValidationInfo{IsActive: payload.IsActive != nil && *payload.IsActive}
			if payload.Created != "" {
				if created, err := reconcile.ParseTimestamp(payload.Created); err == nil {
					event.Validation.Created = created
				}
			}
			if payload.DumpStart != "" {
				if dumpStart, err := reconcile.ParseTimestamp(payload.DumpStart); err == nil {
					event.Validation.DumpStart = dumpStart
				}
			}
			if payload.DumpEnd != "" {
				if dumpEnd, err := reconcile.ParseTimestamp(payload.DumpEnd); err == nil {
					event.Validation.DumpEnd = dumpEnd
				}
			}
		}

		fn(Key{CourseID: payload.CourseID, UserID: *payload.UserID}, event)
	}

	if err := scanner.Err(); err != nil {
		log.Error("activity stream scan failed", "error", err)
	}
}
