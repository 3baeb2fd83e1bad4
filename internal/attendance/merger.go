package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/keylock"
	"github.com/kozaktomas/rollcall/internal/naming"
)

// Merger folds present sets into attendance records by set union.
// Merges for one record are serialized through the locker.
type Merger struct {
	records database.AttendanceWriter
	locks   keylock.Locker
	now     func() time.Time
	logger  *slog.Logger
}

// NewMerger creates a merger. A nil locker selects an in-process keyed mutex.
func NewMerger(records database.AttendanceWriter, locks keylock.Locker, logger *slog.Logger) *Merger {
	if locks == nil {
		locks = keylock.NewLocal()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{
		records: records,
		locks:   locks,
		now:     time.Now,
		logger:  logger,
	}
}

// Merge adds present to the record for (ownerKey, courseKey, label), creating
// it if absent. Merging the same set twice leaves the record unchanged apart
// from its capture time. Reports whether the record was created.
func (m *Merger) Merge(ctx context.Context, ownerKey, courseKey, label string, present []string) (*database.AttendanceRecord, bool, error) {
	labelKey := naming.Key(label)
	switch {
	case !naming.IsKey(ownerKey):
		return nil, false, invalid("owner", "must be a non-empty canonical key")
	case !naming.IsKey(courseKey):
		return nil, false, invalid("course", "must be a non-empty canonical key")
	case labelKey == "":
		return nil, false, invalid("label", "must contain at least one letter or digit")
	}
	compositeKey := naming.RecordKey(ownerKey, courseKey, labelKey)

	unlock, err := m.locks.Lock(ctx, compositeKey)
	if err != nil {
		if errors.Is(err, keylock.ErrNotHeld) {
			return nil, false, fmt.Errorf("waiting for record %s: %w", compositeKey, err)
		}
		return nil, false, database.Unavailable("locking record", err)
	}
	defer unlock()

	existing, err := m.records.FindRecordByCompositeKey(ctx, compositeKey)
	if err != nil {
		return nil, false, fmt.Errorf("loading record %s: %w", compositeKey, err)
	}

	record := &database.AttendanceRecord{
		CompositeKey: compositeKey,
		OwnerKey:     ownerKey,
		CourseKey:    courseKey,
		Label:        label,
		LabelKey:     labelKey,
		CapturedAt:   m.now().UTC(),
	}
	var before []string
	if existing != nil {
		record.Label = existing.Label
		record.CreatedAt = existing.CreatedAt
		before = existing.Present
	}
	record.Present = Union(before, present)

	created, err := m.records.UpsertRecord(ctx, record)
	if err != nil {
		return nil, false, fmt.Errorf("saving record %s: %w", compositeKey, err)
	}

	m.logger.Info("attendance merged",
		"record", compositeKey,
		"created", created,
		"added", len(record.Present)-len(before),
		"present", len(record.Present))
	return record, created, nil
}

// Union returns the sorted, deduplicated union of a and b without empty keys.
func Union(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	for _, k := range a {
		if k != "" {
			out = append(out, k)
		}
	}
	for _, k := range b {
		if k != "" {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
