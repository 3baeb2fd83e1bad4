package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/database/mock"
	"github.com/kozaktomas/rollcall/internal/keylock"
	"github.com/kozaktomas/rollcall/internal/logging"
)

func newTestMerger(store *mock.MockStore) *Merger {
	return NewMerger(store, keylock.NewLocal(), logging.Discard())
}

func TestUnion(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want []string
	}{
		{"both empty", nil, nil, []string{}},
		{"disjoint", []string{"bob"}, []string{"alice"}, []string{"alice", "bob"}},
		{"overlap", []string{"alice", "bob"}, []string{"bob", "carol"}, []string{"alice", "bob", "carol"}},
		{"duplicates and empties", []string{"bob", "", "bob"}, []string{"alice", "alice"}, []string{"alice", "bob"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Union(tt.a, tt.b))
			assert.Equal(t, tt.want, Union(tt.b, tt.a))
		})
	}
}

func TestMerge_ThreeSubmissionScenario(t *testing.T) {
	store := mock.NewMockStore()
	m := newTestMerger(store)
	ctx := context.Background()

	rec, created, err := m.Merge(ctx, "profe", "Math", "monday", []string{"alice"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{"alice"}, rec.Present)

	rec, created, err = m.Merge(ctx, "profe", "Math", "monday", []string{"bob"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, []string{"alice", "bob"}, rec.Present)

	rec, created, err = m.Merge(ctx, "profe", "Math", "monday", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, []string{"alice", "bob"}, rec.Present)

	stored, err := store.FindRecordByCompositeKey(ctx, "profe:Math:monday")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, []string{"alice", "bob"}, stored.Present)
}

func TestMerge_Idempotent(t *testing.T) {
	store := mock.NewMockStore()
	m := newTestMerger(store)
	ctx := context.Background()

	first, _, err := m.Merge(ctx, "profe", "Math", "monday", []string{"bob", "alice"})
	require.NoError(t, err)
	second, created, err := m.Merge(ctx, "profe", "Math", "monday", []string{"alice", "bob"})
	require.NoError(t, err)

	assert.False(t, created)
	assert.Equal(t, first.Present, second.Present)
}

func TestMerge_Commutative(t *testing.T) {
	a := []string{"alice", "dave"}
	b := []string{"bob", "dave"}
	ctx := context.Background()

	storeAB := mock.NewMockStore()
	mAB := newTestMerger(storeAB)
	_, _, err := mAB.Merge(ctx, "t", "c", "l", a)
	require.NoError(t, err)
	recAB, _, err := mAB.Merge(ctx, "t", "c", "l", b)
	require.NoError(t, err)

	storeBA := mock.NewMockStore()
	mBA := newTestMerger(storeBA)
	_, _, err = mBA.Merge(ctx, "t", "c", "l", b)
	require.NoError(t, err)
	recBA, _, err := mBA.Merge(ctx, "t", "c", "l", a)
	require.NoError(t, err)

	assert.Equal(t, recAB.Present, recBA.Present)
}

func TestMerge_KeepsFirstLabelAndCreatedAt(t *testing.T) {
	store := mock.NewMockStore()
	m := newTestMerger(store)
	ctx := context.Background()

	first := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return first }
	_, _, err := m.Merge(ctx, "t", "c", "Week 1", []string{"alice"})
	require.NoError(t, err)

	later := first.Add(2 * time.Hour)
	m.now = func() time.Time { return later }
	rec, created, err := m.Merge(ctx, "t", "c", "Week-1", []string{"bob"})
	require.NoError(t, err)

	assert.False(t, created, "labels with the same canonical key share a record")
	assert.Equal(t, "Week 1", rec.Label)
	assert.Equal(t, "Week1", rec.LabelKey)
	assert.Equal(t, later, rec.CapturedAt)
}

func TestMerge_DistinctOwnersDoNotShareRecords(t *testing.T) {
	store := mock.NewMockStore()
	m := newTestMerger(store)
	ctx := context.Background()

	_, created1, err := m.Merge(ctx, "ana", "Math", "monday", []string{"alice"})
	require.NoError(t, err)
	rec, created2, err := m.Merge(ctx, "luis", "Math", "monday", []string{"bob"})
	require.NoError(t, err)

	assert.True(t, created1)
	assert.True(t, created2)
	assert.Equal(t, []string{"bob"}, rec.Present)
}

func TestMerge_ConcurrentSubmissionsLoseNothing(t *testing.T) {
	store := mock.NewMockStore()
	m := newTestMerger(store)
	ctx := context.Background()

	const n = 40
	var wg sync.WaitGroup
	var createdCount sync.Map
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := m.Merge(ctx, "t", "c", "monday", []string{fmt.Sprintf("student%02d", i)})
			assert.NoError(t, err)
			if created {
				createdCount.Store(i, true)
			}
		}()
	}
	wg.Wait()

	rec, err := store.FindRecordByCompositeKey(ctx, "t:c:monday")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Len(t, rec.Present, n)

	var creations int
	createdCount.Range(func(_, _ any) bool { creations++; return true })
	assert.Equal(t, 1, creations, "exactly one merge creates the record")
}

func TestMerge_ValidationBeforeIO(t *testing.T) {
	tests := []struct {
		name, owner, course, label, field string
	}{
		{"empty label", "t", "c", "", "label"},
		{"punctuation label", "t", "c", "!!! ---", "label"},
		{"empty owner", "", "c", "monday", "owner"},
		{"non canonical course", "t", "Math 1", "monday", "course"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mock.NewMockStore()
			_, _, err := newTestMerger(store).Merge(context.Background(), tt.owner, tt.course, tt.label, []string{"alice"})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.Zero(t, store.Upserts())
		})
	}
}

func TestMerge_StoreUnavailable(t *testing.T) {
	store := mock.NewMockStore()
	store.UpsertRecordError = database.Unavailable("upsert record", errors.New("connection reset"))
	m := newTestMerger(store)

	_, _, err := m.Merge(context.Background(), "t", "c", "monday", []string{"alice"})
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrUnavailable)

	rec, err := store.FindRecordByCompositeKey(context.Background(), "t:c:monday")
	require.NoError(t, err)
	assert.Nil(t, rec, "nothing is persisted on failure")
}

func TestMerge_LockWaitCancelled(t *testing.T) {
	store := mock.NewMockStore()
	locks := keylock.NewLocal()
	m := NewMerger(store, locks, logging.Discard())

	unlock, err := locks.Lock(context.Background(), "t:c:monday")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = m.Merge(ctx, "t", "c", "monday", []string{"alice"})
	require.Error(t, err)
	assert.ErrorIs(t, err, keylock.ErrNotHeld)
	assert.Zero(t, store.Upserts())
}
