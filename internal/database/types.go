package database

import (
	"slices"
	"time"
)

// Owner is the person a session acts for. Owners create courses and own their attendance records.
type Owner struct {
	Key         string
	DisplayName string
	CreatedAt   time.Time
}

// Identity is a registered person with a reference picture.
type Identity struct {
	Key            string // canonical, unique, immutable
	DisplayName    string
	ReferenceImage []byte
	ImageFormat    string    // MIME type, image/jpeg or image/png
	FaceEmbedding  []float32 // reference face embedding, nil when no embedding service was configured
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Course is an owner's roster.
type Course struct {
	FullKey   string // owner-scoped unique key, see naming.CourseFullKey
	OwnerKey  string
	Key       string // canonical course name
	Name      string // name as entered
	Members   []string
	CreatedAt time.Time
}

// AttendanceRecord is the merged presence set for one (owner, course, label).
type AttendanceRecord struct {
	CompositeKey string
	OwnerKey     string
	CourseKey    string
	Label        string // label as entered on first submission
	LabelKey     string
	Present      []string // sorted, deduplicated member keys
	CapturedAt   time.Time
	CreatedAt    time.Time
}

// Has reports whether key is in the present set.
func (r *AttendanceRecord) Has(key string) bool {
	_, found := slices.BinarySearch(r.Present, key)
	return found
}

// StoredSession is a persisted web session.
type StoredSession struct {
	ID          string
	OwnerKey    string
	DisplayName string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}
