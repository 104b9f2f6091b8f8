package reconcile

import "time"

// wireLayout is the ISO-8601 microsecond-precision layout used on the
// activity-stream and census wire formats.
const wireLayout = "2006-01-02T15:04:05.000000"

// NormalizeTimestamp rounds t to the nearest microsecond (in UTC) so that lexical
// and temporal ordering agree once timestamps are formatted back out.
func NormalizeTimestamp(t time.Time) time.Time {
	return t.UTC().Round(time.Microsecond)
}

// AddMicroseconds returns t shifted by n microseconds.
func AddMicroseconds(t time.Time, n int) time.Time {
	return t.Add(time.Duration(n) * time.Microsecond)
}

// FormatTimestamp renders t as an ISO-8601 string with exactly six
// fractional digits, the wire format for both activity and census events.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(wireLayout)
}

// ParseTimestamp parses the ISO-8601 wire format, tolerating a trailing "Z"
// or an omitted fractional component.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02T15:04:05.000000",
		"2006-01-02T15:04:05.000000Z07:00",
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return NormalizeTimestamp(t), nil
		}
	}
	return time.Time{}, &ReconcileError{
		Type:      ErrorTypeValidation,
		Operation: "parse_timestamp",
		Message:   "unrecognized timestamp format: " + s,
	}
}
