package reconcile

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	EventTypeActivated   = "edx.course.enrollment.activated"
	EventTypeDeactivated = "edx.course.enrollment.deactivated"
	EventTypeModeChanged = "edx.course.enrollment.mode_changed"
	EventTypeValidated   = "edx.course.enrollment.validated"
)

// EventType returns the activity-stream event_type literal for k. Sentinel
// has no wire representation.
func (k Kind) EventType() string {
	switch k {
	case Activated:
		return EventTypeActivated
	case Deactivated:
		return EventTypeDeactivated
	case ModeChanged:
		return EventTypeModeChanged
	case Validated:
		return EventTypeValidated
	default:
		return ""
	}
}

// ParseEventType maps a wire event_type literal to a Kind. ok is false for
// any value outside the four recognized kinds.
func ParseEventType(eventType string) (kind Kind, ok bool) {
	switch eventType {
	case EventTypeActivated:
		return Activated, true
	case EventTypeDeactivated:
		return Deactivated, true
	case EventTypeModeChanged:
		return ModeChanged, true
	case EventTypeValidated:
		return Validated, true
	default:
		return 0, false
	}
}

func datestampFor(ts time.Time) string {
	return ts.UTC().Format("2006-01-02")
}

func optionalTimestamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatTimestamp(*t)
}

// TupleEmitter renders a detected gap as a flat tuple, for TSV-based
// debugging output.
type TupleEmitter struct {
	CourseID string
	UserID   int64
}

func (e TupleEmitter) Emit(ts time.Time, kind Kind, mode, reason string, after, before *time.Time) (string, []byte) {
	cols := []string{
		e.CourseID,
		strconv.FormatInt(e.UserID, 10),
		FormatTimestamp(ts),
		kind.EventType(),
		mode,
		reason,
		optionalTimestamp(after),
		optionalTimestamp(before),
	}
	return datestampFor(ts), []byte(strings.Join(cols, "\t"))
}

// EventEmitter renders a detected gap as a fully-formed event record
// mimicking the activity stream, for re-ingest into the activity pipeline.
type EventEmitter struct {
	CourseID string
	UserID   int64
}

type syntheticEnvelope struct {
	Time        string          `json:"time"`
	EventType   string          `json:"event_type"`
	UserID      int64           `json:"user_id"`
	CourseID    string          `json:"course_id"`
	OrgID       string          `json:"org_id"`
	Event       syntheticPayload `json:"event"`
	Synthesized synthesizedInfo  `json:"synthesized"`
}

type syntheticPayload struct {
	CourseID string `json:"course_id"`
	UserID   int64  `json:"user_id"`
	Mode     string `json:"mode"`
}

type synthesizedInfo struct {
	Reason      string  `json:"reason"`
	Synthesizer string  `json:"synthesizer"`
	AfterTime   *string `json:"after_time,omitempty"`
	BeforeTime  *string `json:"before_time,omitempty"`
}

func (e EventEmitter) Emit(ts time.Time, kind Kind, mode, reason string, after, before *time.Time) (string, []byte) {
	env := syntheticEnvelope{
		Time:      FormatTimestamp(ts),
		EventType: kind.EventType(),
		UserID:    e.UserID,
		CourseID:  e.CourseID,
		OrgID:     ExtractOrgID(e.CourseID),
		Event: syntheticPayload{
			CourseID: e.CourseID,
			UserID:   e.UserID,
			Mode:     mode,
		},
		Synthesized: synthesizedInfo{
			Reason:      reason,
			Synthesizer: "enrollment_validation",
		},
	}
	if after != nil {
		s := FormatTimestamp(*after)
		env.Synthesized.AfterTime = &s
	}
	if before != nil {
		s := FormatTimestamp(*before)
		env.Synthesized.BeforeTime = &s
	}

	payload, err := json.Marshal(env)
	if err != nil {
		panic(fmt.Sprintf("enrollvalidate: marshal synthetic event: %v", err))
	}
	return datestampFor(ts), payload
}
