package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/kozaktomas/rollcall/internal/database"
)

// AttendanceRepository provides PostgreSQL-backed attendance record storage
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new attendance repository
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

const recordColumns = `composite_key, owner_key, course_key, label, label_key, present, captured_at, created_at`

func scanRecord(scanner rowScanner) (*database.AttendanceRecord, error) {
	var rec database.AttendanceRecord
	var present pq.StringArray
	if err := scanner.Scan(
		&rec.CompositeKey,
		&rec.OwnerKey,
		&rec.CourseKey,
		&rec.Label,
		&rec.LabelKey,
		&present,
		&rec.CapturedAt,
		&rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	rec.Present = []string(present)
	return &rec, nil
}

// FindRecordByCompositeKey retrieves a record, returns nil if not found
func (r *AttendanceRepository) FindRecordByCompositeKey(ctx context.Context, compositeKey string) (*database.AttendanceRecord, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, "SELECT "+recordColumns+" FROM attendance WHERE composite_key = $1", compositeKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Unavailable("find record", err)
	}
	return rec, nil
}

// ListRecordsByCourse returns all records of a course ordered by capture time
func (r *AttendanceRepository) ListRecordsByCourse(ctx context.Context, ownerKey, courseKey string) ([]database.AttendanceRecord, error) {
	query := "SELECT " + recordColumns + " FROM attendance WHERE owner_key = $1 AND course_key = $2 ORDER BY captured_at, label_key"
	rows, err := r.pool.Query(ctx, query, ownerKey, courseKey)
	if err != nil {
		return nil, database.Unavailable("list records", err)
	}
	defer rows.Close()

	var result []database.AttendanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, database.Unavailable("scan record", err)
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Unavailable("iterate records", err)
	}
	return result, nil
}

// UpsertRecord writes the present set and capture time in one statement.
// xmax is 0 only for a freshly inserted row.
func (r *AttendanceRepository) UpsertRecord(ctx context.Context, record *database.AttendanceRecord) (bool, error) {
	query := `
		INSERT INTO attendance (composite_key, owner_key, course_key, label, label_key, present, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (composite_key) DO UPDATE SET
			present = EXCLUDED.present,
			captured_at = EXCLUDED.captured_at
		RETURNING (xmax = 0) AS created, created_at
	`
	present := record.Present
	if present == nil {
		present = []string{}
	}
	var created bool
	err := r.pool.QueryRow(ctx, query,
		record.CompositeKey,
		record.OwnerKey,
		record.CourseKey,
		record.Label,
		record.LabelKey,
		pq.Array(present),
		record.CapturedAt,
	).Scan(&created, &record.CreatedAt)
	if err != nil {
		return false, database.Unavailable("upsert record", err)
	}
	return created, nil
}
