// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
)

// MockStore is an in-memory implementation of database.Store.
type MockStore struct {
	mu         sync.RWMutex
	owners     map[string]*database.Owner
	identities map[string]*database.Identity
	courses    map[string]*database.Course
	records    map[string]*database.AttendanceRecord

	// Error injection
	FindIdentityError   error
	CreateIdentityError error
	UpdateImageError    error
	FindCourseError     error
	CreateCourseError   error
	FindRecordError     error
	UpsertRecordError   error
	UpsertOwnerError    error

	// IdentityLookupDelay is slept (honouring ctx) before every identity lookup.
	IdentityLookupDelay time.Duration

	identityLookups atomic.Int64
	upserts         atomic.Int64
}

// NewMockStore creates an empty mock store
func NewMockStore() *MockStore {
	return &MockStore{
		owners:     make(map[string]*database.Owner),
		identities: make(map[string]*database.Identity),
		courses:    make(map[string]*database.Course),
		records:    make(map[string]*database.AttendanceRecord),
	}
}

// AddIdentity adds an identity without conflict checks
func (m *MockStore) AddIdentity(identity database.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[identity.Key] = &identity
}

// AddCourse adds a course without conflict checks
func (m *MockStore) AddCourse(course database.Course) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.courses[course.FullKey] = &course
}

// AddRecord adds an attendance record
func (m *MockStore) AddRecord(record database.AttendanceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.CompositeKey] = &record
}

// IdentityLookups returns how many identity lookups were made
func (m *MockStore) IdentityLookups() int64 {
	return m.identityLookups.Load()
}

// Upserts returns how many record upserts were made
func (m *MockStore) Upserts() int64 {
	return m.upserts.Load()
}

// UpsertOwner creates or renames an owner
func (m *MockStore) UpsertOwner(ctx context.Context, key, displayName string) (*database.Owner, error) {
	if m.UpsertOwnerError != nil {
		return nil, m.UpsertOwnerError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.owners[key]
	if !ok {
		owner = &database.Owner{Key: key, CreatedAt: time.Now()}
		m.owners[key] = owner
	}
	owner.DisplayName = displayName
	copied := *owner
	return &copied, nil
}

// FindOwnerByKey retrieves an owner
func (m *MockStore) FindOwnerByKey(ctx context.Context, key string) (*database.Owner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	owner, ok := m.owners[key]
	if !ok {
		return nil, nil
	}
	copied := *owner
	return &copied, nil
}

// FindIdentityByKey retrieves an identity
func (m *MockStore) FindIdentityByKey(ctx context.Context, key string) (*database.Identity, error) {
	m.identityLookups.Add(1)
	if m.IdentityLookupDelay > 0 {
		select {
		case <-time.After(m.IdentityLookupDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.FindIdentityError != nil {
		return nil, m.FindIdentityError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	identity, ok := m.identities[key]
	if !ok {
		return nil, nil
	}
	copied := *identity
	return &copied, nil
}

// FindIdentitiesByKeys retrieves identities, skipping misses
func (m *MockStore) FindIdentitiesByKeys(ctx context.Context, keys []string) ([]database.Identity, error) {
	if m.FindIdentityError != nil {
		return nil, m.FindIdentityError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.Identity
	for _, key := range keys {
		if identity, ok := m.identities[key]; ok {
			result = append(result, *identity)
		}
	}
	return result, nil
}

// CreateIdentity stores a new identity
func (m *MockStore) CreateIdentity(ctx context.Context, identity *database.Identity) error {
	if m.CreateIdentityError != nil {
		return m.CreateIdentityError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[identity.Key]; ok {
		return database.ErrConflict
	}
	copied := *identity
	now := time.Now()
	copied.CreatedAt, copied.UpdatedAt = now, now
	m.identities[identity.Key] = &copied
	return nil
}

// UpdateIdentityImage replaces the reference picture
func (m *MockStore) UpdateIdentityImage(ctx context.Context, key string, image []byte, format string, embedding []float32) error {
	if m.UpdateImageError != nil {
		return m.UpdateImageError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.identities[key]
	if !ok {
		return database.ErrNotFound
	}
	identity.ReferenceImage = image
	identity.ImageFormat = format
	identity.FaceEmbedding = embedding
	identity.UpdatedAt = time.Now()
	return nil
}

// FindCourseByFullKey retrieves a course
func (m *MockStore) FindCourseByFullKey(ctx context.Context, fullKey string) (*database.Course, error) {
	if m.FindCourseError != nil {
		return nil, m.FindCourseError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	course, ok := m.courses[fullKey]
	if !ok {
		return nil, nil
	}
	copied := *course
	copied.Members = slices.Clone(course.Members)
	return &copied, nil
}

// ListRosterMembers returns a course's member keys
func (m *MockStore) ListRosterMembers(ctx context.Context, fullKey string) ([]string, error) {
	course, err := m.FindCourseByFullKey(ctx, fullKey)
	if err != nil || course == nil {
		return nil, err
	}
	return course.Members, nil
}

// ListCoursesByOwner returns an owner's courses ordered by name
func (m *MockStore) ListCoursesByOwner(ctx context.Context, ownerKey string) ([]database.Course, error) {
	if m.FindCourseError != nil {
		return nil, m.FindCourseError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.Course
	for _, course := range m.courses {
		if course.OwnerKey == ownerKey {
			copied := *course
			copied.Members = slices.Clone(course.Members)
			result = append(result, copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

// CreateCourse stores a new course
func (m *MockStore) CreateCourse(ctx context.Context, course *database.Course) error {
	if m.CreateCourseError != nil {
		return m.CreateCourseError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[course.FullKey]; ok {
		return database.ErrConflict
	}
	copied := *course
	copied.Members = slices.Clone(course.Members)
	copied.CreatedAt = time.Now()
	m.courses[course.FullKey] = &copied
	return nil
}

// DeleteCourse removes a course
func (m *MockStore) DeleteCourse(ctx context.Context, fullKey string) (bool, error) {
	if m.CreateCourseError != nil {
		return false, m.CreateCourseError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.courses[fullKey]
	delete(m.courses, fullKey)
	return ok, nil
}

// FindRecordByCompositeKey retrieves an attendance record
func (m *MockStore) FindRecordByCompositeKey(ctx context.Context, compositeKey string) (*database.AttendanceRecord, error) {
	if m.FindRecordError != nil {
		return nil, m.FindRecordError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[compositeKey]
	if !ok {
		return nil, nil
	}
	copied := *record
	copied.Present = slices.Clone(record.Present)
	return &copied, nil
}

// ListRecordsByCourse returns a course's records ordered by capture time
func (m *MockStore) ListRecordsByCourse(ctx context.Context, ownerKey, courseKey string) ([]database.AttendanceRecord, error) {
	if m.FindRecordError != nil {
		return nil, m.FindRecordError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []database.AttendanceRecord
	for _, record := range m.records {
		if record.OwnerKey == ownerKey && record.CourseKey == courseKey {
			copied := *record
			copied.Present = slices.Clone(record.Present)
			result = append(result, copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CapturedAt.Before(result[j].CapturedAt) })
	return result, nil
}

// UpsertRecord writes a record's present set
func (m *MockStore) UpsertRecord(ctx context.Context, record *database.AttendanceRecord) (bool, error) {
	m.upserts.Add(1)
	if m.UpsertRecordError != nil {
		return false, m.UpsertRecordError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.records[record.CompositeKey]
	if ok {
		existing.Present = slices.Clone(record.Present)
		existing.CapturedAt = record.CapturedAt
		return false, nil
	}
	copied := *record
	copied.Present = slices.Clone(record.Present)
	copied.CreatedAt = time.Now()
	m.records[record.CompositeKey] = &copied
	return true, nil
}

// Close is a no-op
func (m *MockStore) Close() error {
	return nil
}

// MockSessionStore is an in-memory database.SessionStore
type MockSessionStore struct {
	mu       sync.Mutex
	sessions map[string]database.StoredSession

	SaveError error
}

// NewMockSessionStore creates an empty session store
func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{sessions: make(map[string]database.StoredSession)}
}

// Save stores a session
func (m *MockSessionStore) Save(ctx context.Context, session *database.StoredSession) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = *session
	return nil
}

// Get retrieves an unexpired session
func (m *MockSessionStore) Get(ctx context.Context, sessionID string) (*database.StoredSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || time.Now().After(s.ExpiresAt) {
		return nil, nil
	}
	return &s, nil
}

// Delete removes a session
func (m *MockSessionStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// DeleteExpired removes expired sessions
func (m *MockSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions
func (m *MockSessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

var (
	_ database.Store        = (*MockStore)(nil)
	_ database.SessionStore = (*MockSessionStore)(nil)
)
