// Package attendance ties rosters, face matching and record merging together
// into the operations exposed by the CLI and the HTTP API.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/facematch"
	"github.com/kozaktomas/rollcall/internal/matcher"
	"github.com/kozaktomas/rollcall/internal/naming"
)

// DefaultMaxImageBytes limits uploaded pictures (14 MiB).
const DefaultMaxImageBytes = 14 << 20

// RosterMatcher finds which roster members appear in an image.
type RosterMatcher interface {
	Match(ctx context.Context, image []byte, roster []string) (*matcher.Result, error)
}

// ReferenceEmbedder computes the face embedding stored alongside a reference picture.
type ReferenceEmbedder interface {
	ReferenceEmbedding(ctx context.Context, image []byte) ([]float32, error)
}

// Options configure a Service.
type Options struct {
	MaxImageBytes int64
	// Embedder is optional; without it identities are stored without an embedding.
	Embedder ReferenceEmbedder
	Logger   *slog.Logger
}

// Service implements the attendance operations for one store.
type Service struct {
	store         database.Store
	matcher       RosterMatcher
	merger        *Merger
	embedder      ReferenceEmbedder
	maxImageBytes int64
	logger        *slog.Logger
}

// NewService creates the service.
func NewService(store database.Store, m RosterMatcher, merger *Merger, opts Options) *Service {
	s := &Service{
		store:         store,
		matcher:       m,
		merger:        merger,
		embedder:      opts.Embedder,
		maxImageBytes: opts.MaxImageBytes,
		logger:        opts.Logger,
	}
	if s.maxImageBytes <= 0 {
		s.maxImageBytes = DefaultMaxImageBytes
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Submission is the outcome of one attendance submission.
type Submission struct {
	BatchID        string
	Label          string
	PresentMembers []string // display names recognized in this picture, roster order
	RecordMembers  []string // member keys of the merged record
	WasNewRecord   bool
	Diagnostics    []matcher.MemberResult
}

// Submit matches image against the course roster and merges the present set
// into the record for label.
func (s *Service) Submit(ctx context.Context, ownerKey, courseName, label string, image []byte) (*Submission, error) {
	courseKey := naming.Key(courseName)
	switch {
	case !naming.IsKey(ownerKey):
		return nil, invalid("owner", "must be a non-empty canonical key")
	case courseKey == "":
		return nil, invalid("course", "name must contain at least one letter or digit")
	case naming.Key(label) == "":
		return nil, invalid("label", "must contain at least one letter or digit")
	}
	if _, err := s.validateImage(image); err != nil {
		return nil, err
	}

	course, err := s.store.FindCourseByFullKey(ctx, naming.CourseFullKey(ownerKey, courseKey))
	if err != nil {
		return nil, fmt.Errorf("loading course: %w", err)
	}
	if course == nil {
		return nil, notFound("course", courseName)
	}

	result, err := s.matcher.Match(ctx, image, course.Members)
	if err != nil {
		return nil, fmt.Errorf("matching roster: %w", err)
	}

	record, created, err := s.merger.Merge(ctx, ownerKey, courseKey, label, result.Present)
	if err != nil {
		return nil, err
	}

	present := make([]string, 0, len(result.Present))
	for _, member := range result.Members {
		if member.Outcome != matcher.OutcomeMatch {
			continue
		}
		name := member.DisplayName
		if name == "" {
			name = member.Key
		}
		present = append(present, name)
	}

	s.logger.Info("attendance submitted",
		"batch_id", result.BatchID,
		"owner", ownerKey,
		"course", courseKey,
		"label", record.LabelKey,
		"recognized", len(present),
		"new_record", created)

	return &Submission{
		BatchID:        result.BatchID,
		Label:          label,
		PresentMembers: present,
		RecordMembers:  record.Present,
		WasNewRecord:   created,
		Diagnostics:    result.Members,
	}, nil
}

// Login canonicalizes name and upserts the owner it identifies.
func (s *Service) Login(ctx context.Context, name string) (*database.Owner, error) {
	key := naming.Key(name)
	if key == "" {
		return nil, invalid("name", "must contain at least one letter or digit")
	}
	owner, err := s.store.UpsertOwner(ctx, key, displayName(name))
	if err != nil {
		return nil, fmt.Errorf("saving owner: %w", err)
	}
	return owner, nil
}

// RegisterStudent stores a new identity with its reference picture.
// Returns an error matching database.ErrConflict when the name is taken.
func (s *Service) RegisterStudent(ctx context.Context, name string, image []byte) (*database.Identity, error) {
	key := naming.Key(name)
	if key == "" {
		return nil, invalid("name", "must contain at least one letter or digit")
	}
	format, err := s.validateImage(image)
	if err != nil {
		return nil, err
	}
	embedding, err := s.referenceEmbedding(ctx, key, image)
	if err != nil {
		return nil, err
	}

	identity := &database.Identity{
		Key:            key,
		DisplayName:    displayName(name),
		ReferenceImage: image,
		ImageFormat:    format.MIME(),
		FaceEmbedding:  embedding,
	}
	if err := s.store.CreateIdentity(ctx, identity); err != nil {
		return nil, fmt.Errorf("registering student %s: %w", key, err)
	}
	s.logger.Info("student registered", "student", key, "embedding", len(embedding) > 0)
	return identity, nil
}

// UpdateStudentImage replaces a student's reference picture.
func (s *Service) UpdateStudentImage(ctx context.Context, name string, image []byte) error {
	key := naming.Key(name)
	if key == "" {
		return invalid("name", "must contain at least one letter or digit")
	}
	format, err := s.validateImage(image)
	if err != nil {
		return err
	}
	embedding, err := s.referenceEmbedding(ctx, key, image)
	if err != nil {
		return err
	}

	err = s.store.UpdateIdentityImage(ctx, key, image, format.MIME(), embedding)
	if errors.Is(err, database.ErrNotFound) {
		return notFound("student", name)
	}
	if err != nil {
		return fmt.Errorf("updating student %s: %w", key, err)
	}
	s.logger.Info("reference picture updated", "student", key)
	return nil
}

// GetStudent returns a registered identity.
func (s *Service) GetStudent(ctx context.Context, name string) (*database.Identity, error) {
	key := naming.Key(name)
	if key == "" {
		return nil, invalid("name", "must contain at least one letter or digit")
	}
	identity, err := s.store.FindIdentityByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("loading student: %w", err)
	}
	if identity == nil {
		return nil, notFound("student", name)
	}
	return identity, nil
}

// CreateCourse stores a roster. Member names are canonicalized and deduplicated.
func (s *Service) CreateCourse(ctx context.Context, ownerKey, name string, members []string) (*database.Course, error) {
	courseKey := naming.Key(name)
	switch {
	case !naming.IsKey(ownerKey):
		return nil, invalid("owner", "must be a non-empty canonical key")
	case courseKey == "":
		return nil, invalid("course", "name must contain at least one letter or digit")
	}

	course := &database.Course{
		FullKey:  naming.CourseFullKey(ownerKey, courseKey),
		OwnerKey: ownerKey,
		Key:      courseKey,
		Name:     strings.TrimSpace(name),
		Members:  naming.DedupeKeys(members),
	}
	if err := s.store.CreateCourse(ctx, course); err != nil {
		return nil, fmt.Errorf("creating course %s: %w", courseKey, err)
	}
	s.logger.Info("course created", "owner", ownerKey, "course", courseKey, "members", len(course.Members))
	return course, nil
}

// GetCourse returns one of the owner's courses.
func (s *Service) GetCourse(ctx context.Context, ownerKey, name string) (*database.Course, error) {
	fullKey, err := courseFullKey(ownerKey, name)
	if err != nil {
		return nil, err
	}
	course, err := s.store.FindCourseByFullKey(ctx, fullKey)
	if err != nil {
		return nil, fmt.Errorf("loading course: %w", err)
	}
	if course == nil {
		return nil, notFound("course", name)
	}
	return course, nil
}

// ListCourses returns the owner's courses ordered by name.
func (s *Service) ListCourses(ctx context.Context, ownerKey string) ([]database.Course, error) {
	if !naming.IsKey(ownerKey) {
		return nil, invalid("owner", "must be a non-empty canonical key")
	}
	courses, err := s.store.ListCoursesByOwner(ctx, ownerKey)
	if err != nil {
		return nil, fmt.Errorf("listing courses: %w", err)
	}
	return courses, nil
}

// DeleteCourse removes a course. Its attendance records are kept.
func (s *Service) DeleteCourse(ctx context.Context, ownerKey, name string) error {
	fullKey, err := courseFullKey(ownerKey, name)
	if err != nil {
		return err
	}
	existed, err := s.store.DeleteCourse(ctx, fullKey)
	if err != nil {
		return fmt.Errorf("deleting course: %w", err)
	}
	if !existed {
		return notFound("course", name)
	}
	s.logger.Info("course deleted", "course", fullKey)
	return nil
}

// MemberName pairs a member key with the name to show for it.
type MemberName struct {
	Key         string
	DisplayName string
}

// RecordView is an attendance record with display names resolved.
type RecordView struct {
	Record  database.AttendanceRecord
	Members []MemberName
}

// GetRecord returns the record stored under label.
func (s *Service) GetRecord(ctx context.Context, ownerKey, courseName, label string) (*RecordView, error) {
	courseKey := naming.Key(courseName)
	labelKey := naming.Key(label)
	switch {
	case !naming.IsKey(ownerKey):
		return nil, invalid("owner", "must be a non-empty canonical key")
	case courseKey == "":
		return nil, invalid("course", "name must contain at least one letter or digit")
	case labelKey == "":
		return nil, invalid("label", "must contain at least one letter or digit")
	}

	record, err := s.store.FindRecordByCompositeKey(ctx, naming.RecordKey(ownerKey, courseKey, labelKey))
	if err != nil {
		return nil, fmt.Errorf("loading record: %w", err)
	}
	if record == nil {
		return nil, notFound("attendance record", label)
	}
	members, err := s.resolveNames(ctx, record.Present)
	if err != nil {
		return nil, err
	}
	return &RecordView{Record: *record, Members: members}, nil
}

// ListRecords returns every record of a course ordered by capture time.
func (s *Service) ListRecords(ctx context.Context, ownerKey, courseName string) ([]database.AttendanceRecord, error) {
	course, err := s.GetCourse(ctx, ownerKey, courseName)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListRecordsByCourse(ctx, ownerKey, course.Key)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return records, nil
}

func (s *Service) resolveNames(ctx context.Context, keys []string) ([]MemberName, error) {
	identities, err := s.store.FindIdentitiesByKeys(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("resolving member names: %w", err)
	}
	names := make(map[string]string, len(identities))
	for _, id := range identities {
		names[id.Key] = id.DisplayName
	}
	out := make([]MemberName, 0, len(keys))
	for _, k := range keys {
		name := names[k]
		if name == "" {
			name = k
		}
		out = append(out, MemberName{Key: k, DisplayName: name})
	}
	return out, nil
}

// validateImage accepts non-empty JPEG or PNG data within the size limit.
func (s *Service) validateImage(image []byte) (facematch.Format, error) {
	if len(image) == 0 {
		return facematch.FormatUnknown, invalid("picture", "is required")
	}
	if int64(len(image)) > s.maxImageBytes {
		return facematch.FormatUnknown, invalid("picture", fmt.Sprintf("exceeds %d bytes", s.maxImageBytes))
	}
	format := facematch.DetectFormat(image)
	if format == facematch.FormatUnknown {
		return format, invalid("picture", "only JPEG and PNG images are accepted")
	}
	return format, nil
}

func (s *Service) referenceEmbedding(ctx context.Context, key string, image []byte) ([]float32, error) {
	if s.embedder == nil {
		return nil, nil
	}
	embedding, err := s.embedder.ReferenceEmbedding(ctx, image)
	if errors.Is(err, facematch.ErrNoFace) {
		return nil, invalid("picture", "no face detected")
	}
	if err != nil {
		// Matching falls back to the picture itself.
		s.logger.Warn("reference embedding unavailable", "student", key, "error", err)
		return nil, nil
	}
	return embedding, nil
}

func courseFullKey(ownerKey, name string) (string, error) {
	courseKey := naming.Key(name)
	switch {
	case !naming.IsKey(ownerKey):
		return "", invalid("owner", "must be a non-empty canonical key")
	case courseKey == "":
		return "", invalid("course", "name must contain at least one letter or digit")
	}
	return naming.CourseFullKey(ownerKey, courseKey), nil
}

// displayName collapses runs of whitespace in a name as entered.
func displayName(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
