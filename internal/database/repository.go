package database

import (
	"context"
	"time"
)

// Lookups return (nil, nil) when the row does not exist.

// OwnerWriter stores the owners sessions act for.
type OwnerWriter interface {
	// UpsertOwner creates the owner or refreshes its display name
	UpsertOwner(ctx context.Context, key, displayName string) (*Owner, error)
	// FindOwnerByKey retrieves an owner, returns nil if not found
	FindOwnerByKey(ctx context.Context, key string) (*Owner, error)
}

// IdentityReader provides read-only access to registered identities
type IdentityReader interface {
	// FindIdentityByKey retrieves an identity by canonical key, returns nil if not found
	FindIdentityByKey(ctx context.Context, key string) (*Identity, error)
	// FindIdentitiesByKeys retrieves every identity whose key is listed, skipping misses
	FindIdentitiesByKeys(ctx context.Context, keys []string) ([]Identity, error)
}

// IdentityWriter provides write access to identities
type IdentityWriter interface {
	IdentityReader

	// CreateIdentity stores a new identity. Returns ErrConflict if the key is taken.
	CreateIdentity(ctx context.Context, identity *Identity) error

	// UpdateIdentityImage replaces the reference picture (and its embedding).
	// Returns ErrNotFound if the identity does not exist.
	UpdateIdentityImage(ctx context.Context, key string, image []byte, format string, embedding []float32) error
}

// CourseReader provides read-only access to courses and their rosters
type CourseReader interface {
	// FindCourseByFullKey retrieves a course, returns nil if not found
	FindCourseByFullKey(ctx context.Context, fullKey string) (*Course, error)
	// ListRosterMembers returns the member keys of a course in roster order, nil if not found
	ListRosterMembers(ctx context.Context, fullKey string) ([]string, error)
	// ListCoursesByOwner returns the owner's courses ordered by name
	ListCoursesByOwner(ctx context.Context, ownerKey string) ([]Course, error)
}

// CourseWriter provides write access to courses
type CourseWriter interface {
	CourseReader

	// CreateCourse stores a new course. Returns ErrConflict if the full key is taken.
	CreateCourse(ctx context.Context, course *Course) error
	// DeleteCourse removes a course wholesale, reports whether it existed
	DeleteCourse(ctx context.Context, fullKey string) (bool, error)
}

// AttendanceReader provides read-only access to attendance records
type AttendanceReader interface {
	// FindRecordByCompositeKey retrieves a record, returns nil if not found
	FindRecordByCompositeKey(ctx context.Context, compositeKey string) (*AttendanceRecord, error)
	// ListRecordsByCourse returns all records of a course ordered by capture time
	ListRecordsByCourse(ctx context.Context, ownerKey, courseKey string) ([]AttendanceRecord, error)
}

// AttendanceWriter provides write access to attendance records
type AttendanceWriter interface {
	AttendanceReader

	// UpsertRecord writes the record's present set and capture time in a single
	// atomic statement, inserting the row if absent. Readers never observe a
	// partially written set. Reports whether the row was created.
	UpsertRecord(ctx context.Context, record *AttendanceRecord) (bool, error)
}

// SessionStore persists web sessions across restarts
type SessionStore interface {
	Save(ctx context.Context, session *StoredSession) error
	// Get retrieves an unexpired session, returns nil if not found or expired
	Get(ctx context.Context, sessionID string) (*StoredSession, error)
	Delete(ctx context.Context, sessionID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Store bundles every repository of one backend.
type Store interface {
	OwnerWriter
	IdentityWriter
	CourseWriter
	AttendanceWriter
	Close() error
}
