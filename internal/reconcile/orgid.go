package reconcile

import "strings"

// ExtractOrgID derives the organization identifier from a course id,
// supporting both the opaque-key format ("course-v1:Org+Number+Term") and
// the legacy slash-delimited format ("Org/Number/Term").
func ExtractOrgID(courseID string) string {
	if rest, ok := strings.CutPrefix(courseID, "course-v1:"); ok {
		if i := strings.IndexByte(rest, '+'); i >= 0 {
			return rest[:i]
		}
		return rest
	}
	if i := strings.IndexByte(courseID, '/'); i >= 0 {
		return courseID[:i]
	}
	return courseID
}
