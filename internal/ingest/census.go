package ingest

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/malbeclabs/enrollvalidate/internal/metrics"
	"github.com/malbeclabs/enrollvalidate/internal/reconcile"
)

// censusMetadata is the sibling ".metadata" JSON file accompanying a census
// dump: the wall-clock window during which the dump was taken.
type censusMetadata struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// mysqlDatetimeLayout is the MySQL DATETIME text format used by the
// "created_mysql" column in census row exports.
const mysqlDatetimeLayout = "2006-01-02 15:04:05.999999"

// ParseMySQLDatetime converts a MySQL-format datetime string to a
// microsecond-precision time.Time.
func ParseMySQLDatetime(s string) (time.Time, error) {
	t, err := time.Parse(mysqlDatetimeLayout, s)
	if err != nil {
		return time.Time{}, &reconcile.ReconcileError{
			Type:      reconcile.ErrorTypeMalformed,
			Operation: "parse_mysql_datetime",
			Message:   "unrecognized mysql datetime: " + s,
			Cause:     err,
		}
	}
	return reconcile.NormalizeTimestamp(t), nil
}

// ScanCensus reads one census dump (rows, plus its sibling metadata) and
// emits a Validated EnrollmentEvent per surviving row, timestamped at the
// dump's end_time. Rows are `\x01`-separated:
// (db_id, user_id, course_id, created_mysql, is_active_mysql, mode).
func ScanCensus(rows io.Reader, metadata io.Reader, log *slog.Logger, fn func(Key, reconcile.EnrollmentEvent)) {
	var meta censusMetadata
	if err := json.NewDecoder(metadata).Decode(&meta); err != nil {
		metaErr := &reconcile.ReconcileError{
			Type:      reconcile.ErrorTypeMetadata,
			Operation: "decode_census_metadata",
			Message:   "malformed census metadata json",
			Cause:     err,
		}
		log.Error("failed to decode census metadata", "error", metaErr)
		return
	}

	dumpStart, err := reconcile.ParseTimestamp(meta.StartTime)
	if err != nil {
		metaErr := &reconcile.ReconcileError{
			Type:      reconcile.ErrorTypeMetadata,
			Operation: "decode_census_metadata",
			Message:   "census metadata has bad start_time",
			Cause:     err,
		}
		log.Error("census metadata has bad start_time", "error", metaErr)
		return
	}
	dumpEnd, err := reconcile.ParseTimestamp(meta.EndTime)
	if err != nil {
		metaErr := &reconcile.ReconcileError{
			Type:      reconcile.ErrorTypeMetadata,
			Operation: "decode_census_metadata",
			Message:   "census metadata has bad end_time",
			Cause:     err,
		}
		log.Error("census metadata has bad end_time", "error", metaErr)
		return
	}

	scanner := bufio.NewScanner(rows)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		fields := strings.Split(line, "\x01")
		if len(fields) != 6 {
			log.Error("bad census row: wrong field count", "fields", len(fields))
			metrics.RecordsDiscardedTotal.WithLabelValues("bad_field_count").Inc()
			continue
		}

		_, userIDStr, courseID, createdMySQL, isActiveMySQL, mode := fields[0], fields[1], fields[2], fields[3], fields[4], fields[5]

		userID, err := strconv.ParseInt(userIDStr, 10, 64)
		if err != nil {
			log.Error("bad census row: invalid user_id", "user_id", userIDStr)
			metrics.RecordsDiscardedTotal.WithLabelValues("invalid_user_id").Inc()
			continue
		}

		created, err := ParseMySQLDatetime(createdMySQL)
		if err != nil {
			log.Error("bad census row: invalid created timestamp", "course_id", courseID, "user_id", userID, "error", err)
			metrics.RecordsDiscardedTotal.WithLabelValues("invalid_created_timestamp").Inc()
			continue
		}

		if mode == "" {
			mode = "honor"
		}

		event := reconcile.EnrollmentEvent{
			Timestamp: dumpEnd,
			Kind:      reconcile.Validated,
			Mode:      mode,
			Validation: &reconcile.ValidationInfo{
				IsActive:  isActiveMySQL == "true",
				Created:   created,
				DumpStart: dumpStart,
				DumpEnd:   dumpEnd,
			},
		}

		fn(Key{CourseID: courseID, UserID: userID}, event)
	}

	if err := scanner.Err(); err != nil {
		log.Error("census row scan failed", "error", err)
	}
}
