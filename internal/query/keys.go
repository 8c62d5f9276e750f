package query

import (
	"strings"
	"time"
)

// Key addresses a cached query: entity type first, then disambiguating parameters.
type Key []string

func (k Key) String() string {
	return strings.Join(k, "/")
}

// Enabled reports whether every segment is set. A query whose key is missing
// an identifying parameter must not run.
func (k Key) Enabled() bool {
	if len(k) == 0 {
		return false
	}
	for _, s := range k {
		if s == "" {
			return false
		}
	}
	return true
}

// HasPrefix reports whether k starts with every segment of prefix.
// The empty prefix matches all keys.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i, s := range prefix {
		if k[i] != s {
			return false
		}
	}
	return true
}

// trim drops trailing empty segments so an unknown id widens the prefix instead of matching nothing.
func (k Key) trim() Key {
	n := len(k)
	for n > 0 && k[n-1] == "" {
		n--
	}
	return k[:n]
}

var (
	KeyAuth        = Key{"auth"}
	KeyClasses     = Key{"classes"}
	KeyAssignments = Key{"assignments"}
	KeySubmissions = Key{"submissions"}
	KeyDashboard   = Key{"dashboard"}
)

func KeyMe() Key { return Key{"auth", "me"} }
func KeyMyClasses() Key { return Key{"classes", "my"} }
func KeyClassDetail(id string) Key { return Key{"classes", "detail", id} }
func KeyAssignmentsByClass(id string) Key { return Key{"assignments", "byClass", id} }
func KeyAssignmentDetail(id string) Key { return Key{"assignments", "detail", id} }

// KeyTeacherAssignments keys a teacher's assignment list, optionally narrowed to one class.
func KeyTeacherAssignments(classID string) Key {
	if classID == "" {
		classID = "all"
	}
	return Key{"assignments", "teacher", classID}
}

func KeySubmissionsByAssignment(id string) Key { return Key{"submissions", "byAssignment", id} }
func KeyMySubmission(assignmentID string) Key { return Key{"submissions", "my", assignmentID} }
func KeyDashboardStats() Key { return Key{"dashboard", "stats"} }

// Staleness windows per entity.
const (
	StaleProfile            = 5 * time.Minute
	StaleClasses            = 2 * time.Minute
	StaleClassDetail        = 5 * time.Minute
	StaleAssignmentsByClass = 2 * time.Minute
	StaleAssignmentDetail   = 5 * time.Minute
	StaleSubmissions        = time.Minute
	StaleDashboard          = time.Minute

	DefaultStaleTime = 30 * time.Second
	DefaultGCTime    = 5 * time.Minute
)
