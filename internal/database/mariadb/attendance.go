package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
)

const recordColumns = `composite_key, owner_key, course_key, label, label_key, present, captured_at, created_at`

func scanRecord(scanner rowScanner) (*database.AttendanceRecord, error) {
	var rec database.AttendanceRecord
	var present string
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
	keys, err := decodeKeys(present)
	if err != nil {
		return nil, err
	}
	rec.Present = keys
	return &rec, nil
}

// FindRecordByCompositeKey retrieves a record, returns nil if not found
func (s *Store) FindRecordByCompositeKey(ctx context.Context, compositeKey string) (*database.AttendanceRecord, error) {
	row := s.pool.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM attendance WHERE composite_key = ?", compositeKey)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Unavailable("find record", err)
	}
	return rec, nil
}

// ListRecordsByCourse returns all records of a course ordered by capture time
func (s *Store) ListRecordsByCourse(ctx context.Context, ownerKey, courseKey string) ([]database.AttendanceRecord, error) {
	query := "SELECT " + recordColumns + " FROM attendance WHERE owner_key = ? AND course_key = ? ORDER BY captured_at, label_key"
	rows, err := s.pool.db.QueryContext(ctx, query, ownerKey, courseKey)
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
// MariaDB reports 1 affected row for an insert and 2 for an update.
func (s *Store) UpsertRecord(ctx context.Context, record *database.AttendanceRecord) (bool, error) {
	present, err := encodeKeys(record.Present)
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	query := `
		INSERT INTO attendance (composite_key, owner_key, course_key, label, label_key, present, captured_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE present = VALUES(present), captured_at = VALUES(captured_at)
	`
	result, err := s.pool.db.ExecContext(ctx, query,
		record.CompositeKey,
		record.OwnerKey,
		record.CourseKey,
		record.Label,
		record.LabelKey,
		present,
		record.CapturedAt.UTC(),
		now,
	)
	if err != nil {
		return false, database.Unavailable("upsert record", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, database.Unavailable("upsert record", err)
	}
	if n == 1 {
		record.CreatedAt = now
		return true, nil
	}

	err = s.pool.db.QueryRowContext(ctx, "SELECT created_at FROM attendance WHERE composite_key = ?", record.CompositeKey).
		Scan(&record.CreatedAt)
	if err != nil {
		return false, database.Unavailable("upsert record", err)
	}
	return false, nil
}
