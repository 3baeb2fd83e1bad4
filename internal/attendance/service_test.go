package attendance

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/database/mock"
	"github.com/kozaktomas/rollcall/internal/facematch"
	"github.com/kozaktomas/rollcall/internal/logging"
	"github.com/kozaktomas/rollcall/internal/matcher"
)

func pngBytes(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// pictureComparator matches when the submitted picture is listed for the reference.
type pictureComparator struct {
	present map[string][]string // submitted picture -> references shown in it
	failing map[string]bool     // references whose comparison errors
}

func (p *pictureComparator) Compare(ctx context.Context, target, reference []byte, threshold float64) (bool, error) {
	if p.failing[string(reference)] {
		return false, errors.New("comparison service unavailable")
	}
	for _, ref := range p.present[string(target)] {
		if ref == string(reference) {
			return true, nil
		}
	}
	return false, nil
}

type stubEmbedder struct {
	embedding []float32
	err       error
}

func (s stubEmbedder) ReferenceEmbedding(ctx context.Context, image []byte) ([]float32, error) {
	return s.embedding, s.err
}

type stubMatcher struct {
	err   error
	calls int
}

func (s *stubMatcher) Match(ctx context.Context, image []byte, roster []string) (*matcher.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &matcher.Result{Present: []string{}}, nil
}

type fixture struct {
	store   *mock.MockStore
	service *Service
	cmp     *pictureComparator
	alice   []byte
	bob     []byte
	carol   []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := mock.NewMockStore()
	cmp := &pictureComparator{present: map[string][]string{}, failing: map[string]bool{}}
	m := matcher.New(store, cmp, matcher.Options{Logger: logging.Discard()})
	svc := NewService(store, m, NewMerger(store, nil, logging.Discard()), Options{Logger: logging.Discard()})

	f := &fixture{
		store:   store,
		service: svc,
		cmp:     cmp,
		alice:   pngBytes(t, 10),
		bob:     pngBytes(t, 20),
		carol:   pngBytes(t, 30),
	}
	ctx := context.Background()
	_, err := svc.RegisterStudent(ctx, "Alice", f.alice)
	require.NoError(t, err)
	_, err = svc.RegisterStudent(ctx, "Bob", f.bob)
	require.NoError(t, err)
	_, err = svc.CreateCourse(ctx, "profe", "Math", []string{"Alice", "Bob", "Carol"})
	require.NoError(t, err)
	return f
}

func (f *fixture) photo(t *testing.T, shade uint8, shows ...[]byte) []byte {
	img := pngBytes(t, shade)
	for _, ref := range shows {
		f.cmp.present[string(img)] = append(f.cmp.present[string(img)], string(ref))
	}
	return img
}

func TestSubmit_ThreeSubmissionScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.service.Submit(ctx, "profe", "Math", "monday", f.photo(t, 100, f.alice))
	require.NoError(t, err)
	assert.True(t, sub.WasNewRecord)
	assert.Equal(t, "monday", sub.Label)
	assert.Equal(t, []string{"Alice"}, sub.PresentMembers)
	assert.Equal(t, []string{"Alice"}, sub.RecordMembers)

	sub, err = f.service.Submit(ctx, "profe", "Math", "monday", f.photo(t, 110, f.bob))
	require.NoError(t, err)
	assert.False(t, sub.WasNewRecord)
	assert.Equal(t, []string{"Bob"}, sub.PresentMembers)
	assert.Equal(t, []string{"Alice", "Bob"}, sub.RecordMembers)

	sub, err = f.service.Submit(ctx, "profe", "Math", "monday", f.photo(t, 120))
	require.NoError(t, err)
	assert.False(t, sub.WasNewRecord)
	assert.Empty(t, sub.PresentMembers)
	assert.Equal(t, []string{"Alice", "Bob"}, sub.RecordMembers)

	view, err := f.service.GetRecord(ctx, "profe", "Math", "monday")
	require.NoError(t, err)
	assert.Equal(t, []MemberName{{"Alice", "Alice"}, {"Bob", "Bob"}}, view.Members)
}

func TestSubmit_FailedComparisonIsADiagnostic(t *testing.T) {
	f := newFixture(t)
	f.cmp.failing[string(f.bob)] = true

	sub, err := f.service.Submit(context.Background(), "profe", "Math", "tuesday", f.photo(t, 100, f.alice, f.bob))
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, sub.PresentMembers)

	byKey := map[string]matcher.MemberResult{}
	for _, d := range sub.Diagnostics {
		byKey[d.Key] = d
	}
	assert.Equal(t, matcher.OutcomeMatch, byKey["Alice"].Outcome)
	assert.Equal(t, matcher.OutcomeFailed, byKey["Bob"].Outcome)
	assert.Equal(t, matcher.OutcomeMissing, byKey["Carol"].Outcome)
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pic := pngBytes(t, 1)

	tests := []struct {
		name, owner, course, label string
		image                      []byte
		field                      string
	}{
		{"no owner", "", "Math", "monday", pic, "owner"},
		{"empty course", "profe", "  ", "monday", pic, "course"},
		{"punctuation label", "profe", "Math", "?!", pic, "label"},
		{"no picture", "profe", "Math", "monday", nil, "picture"},
		{"gif picture", "profe", "Math", "monday", []byte("GIF89a........"), "picture"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookups := f.store.IdentityLookups()
			_, err := f.service.Submit(ctx, tt.owner, tt.course, tt.label, tt.image)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, lookups, f.store.IdentityLookups())
			assert.Zero(t, f.store.Upserts())
		})
	}
}

func TestSubmit_PictureTooLarge(t *testing.T) {
	store := mock.NewMockStore()
	svc := NewService(store, &stubMatcher{}, NewMerger(store, nil, logging.Discard()),
		Options{MaxImageBytes: 16, Logger: logging.Discard()})

	_, err := svc.Submit(context.Background(), "profe", "Math", "monday", pngBytes(t, 1))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSubmit_UnknownCourse(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Submit(context.Background(), "profe", "History", "monday", pngBytes(t, 1))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.service.Submit(context.Background(), "someoneelse", "Math", "monday", pngBytes(t, 1))
	assert.ErrorIs(t, err, ErrNotFound, "courses are scoped to their owner")
}

func TestSubmit_MatchStoreFailureIsSurfaced(t *testing.T) {
	store := mock.NewMockStore()
	store.AddCourse(database.Course{FullKey: "profe:Math", OwnerKey: "profe", Key: "Math", Members: []string{"Alice"}})
	m := &stubMatcher{err: database.Unavailable("find identity", errors.New("down"))}
	svc := NewService(store, m, NewMerger(store, nil, logging.Discard()), Options{Logger: logging.Discard()})

	_, err := svc.Submit(context.Background(), "profe", "Math", "monday", pngBytes(t, 1))
	assert.ErrorIs(t, err, database.ErrUnavailable)
	assert.Zero(t, store.Upserts(), "nothing merged when matching fails")
}

func TestRegisterStudent(t *testing.T) {
	store := mock.NewMockStore()
	svc := NewService(store, &stubMatcher{}, NewMerger(store, nil, logging.Discard()), Options{
		Embedder: stubEmbedder{embedding: []float32{0.1, 0.2}},
		Logger:   logging.Discard(),
	})
	ctx := context.Background()

	identity, err := svc.RegisterStudent(ctx, "  José   Pérez ", pngBytes(t, 5))
	require.NoError(t, err)
	assert.Equal(t, "JosePerez", identity.Key)
	assert.Equal(t, "José Pérez", identity.DisplayName)
	assert.Equal(t, "image/png", identity.ImageFormat)
	assert.Equal(t, []float32{0.1, 0.2}, identity.FaceEmbedding)

	_, err = svc.RegisterStudent(ctx, "Jose Perez", pngBytes(t, 6))
	assert.ErrorIs(t, err, database.ErrConflict)

	_, err = svc.RegisterStudent(ctx, "***", pngBytes(t, 6))
	assert.ErrorIs(t, err, ErrValidation)

	got, err := svc.GetStudent(ctx, "José Pérez")
	require.NoError(t, err)
	assert.Equal(t, "JosePerez", got.Key)

	_, err = svc.GetStudent(ctx, "Nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegisterStudent_ReferenceWithoutFace(t *testing.T) {
	store := mock.NewMockStore()
	svc := NewService(store, &stubMatcher{}, NewMerger(store, nil, logging.Discard()), Options{
		Embedder: stubEmbedder{err: facematch.ErrNoFace},
		Logger:   logging.Discard(),
	})

	_, err := svc.RegisterStudent(context.Background(), "Alice", pngBytes(t, 5))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "picture", verr.Field)

	identity, err := store.FindIdentityByKey(context.Background(), "Alice")
	require.NoError(t, err)
	assert.Nil(t, identity)
}

func TestRegisterStudent_EmbeddingServiceDown(t *testing.T) {
	store := mock.NewMockStore()
	svc := NewService(store, &stubMatcher{}, NewMerger(store, nil, logging.Discard()), Options{
		Embedder: stubEmbedder{err: errors.New("connection refused")},
		Logger:   logging.Discard(),
	})

	identity, err := svc.RegisterStudent(context.Background(), "Alice", pngBytes(t, 5))
	require.NoError(t, err)
	assert.Nil(t, identity.FaceEmbedding)
}

func TestUpdateStudentImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	newPic := pngBytes(t, 77)
	require.NoError(t, f.service.UpdateStudentImage(ctx, "Alice", newPic))
	got, err := f.service.GetStudent(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, newPic, got.ReferenceImage)

	err = f.service.UpdateStudentImage(ctx, "Zed", newPic)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateCourse(t *testing.T) {
	store := mock.NewMockStore()
	svc := NewService(store, &stubMatcher{}, NewMerger(store, nil, logging.Discard()), Options{Logger: logging.Discard()})
	ctx := context.Background()

	course, err := svc.CreateCourse(ctx, "ana", "Álgebra Lineal", []string{" Bob ", "Álice", "", "Bob", "Carol Díaz"})
	require.NoError(t, err)
	assert.Equal(t, "ana:AlgebraLineal", course.FullKey)
	assert.Equal(t, "Álgebra Lineal", course.Name)
	assert.Equal(t, []string{"Bob", "Alice", "CarolDiaz"}, course.Members)

	_, err = svc.CreateCourse(ctx, "ana", "Algebra Lineal", nil)
	assert.ErrorIs(t, err, database.ErrConflict)

	other, err := svc.CreateCourse(ctx, "luis", "Álgebra Lineal", nil)
	require.NoError(t, err)
	assert.NotEqual(t, course.FullKey, other.FullKey)

	courses, err := svc.ListCourses(ctx, "ana")
	require.NoError(t, err)
	require.Len(t, courses, 1)

	_, err = svc.CreateCourse(ctx, "ana", "---", nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDeleteCourse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Submit(ctx, "profe", "Math", "monday", f.photo(t, 100, f.alice))
	require.NoError(t, err)

	require.NoError(t, f.service.DeleteCourse(ctx, "profe", "Math"))
	_, err = f.service.GetCourse(ctx, "profe", "Math")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.service.DeleteCourse(ctx, "profe", "Math"), ErrNotFound)

	rec, err := f.store.FindRecordByCompositeKey(ctx, "profe:Math:monday")
	require.NoError(t, err)
	assert.NotNil(t, rec, "records outlive their course")
}

func TestListRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, label := range []string{"monday", "tuesday"} {
		_, err := f.service.Submit(ctx, "profe", "Math", label, f.photo(t, 100, f.alice))
		require.NoError(t, err)
	}

	records, err := f.service.ListRecords(ctx, "profe", "Math")
	require.NoError(t, err)
	require.Len(t, records, 2)

	_, err = f.service.ListRecords(ctx, "profe", "Biology")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.service.GetRecord(ctx, "profe", "Math", "friday")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLogin(t *testing.T) {
	store := mock.NewMockStore()
	svc := NewService(store, &stubMatcher{}, NewMerger(store, nil, logging.Discard()), Options{Logger: logging.Discard()})

	owner, err := svc.Login(context.Background(), "Profe  Núñez")
	require.NoError(t, err)
	assert.Equal(t, "ProfeNunez", owner.Key)
	assert.Equal(t, "Profe Núñez", owner.DisplayName)

	_, err = svc.Login(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrValidation)
}
