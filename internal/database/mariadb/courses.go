package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
)

const courseColumns = `full_key, owner_key, course_key, name, members, created_at`

func scanCourse(scanner rowScanner) (*database.Course, error) {
	var c database.Course
	var members string
	if err := scanner.Scan(&c.FullKey, &c.OwnerKey, &c.Key, &c.Name, &members, &c.CreatedAt); err != nil {
		return nil, err
	}
	keys, err := decodeKeys(members)
	if err != nil {
		return nil, err
	}
	c.Members = keys
	return &c, nil
}

// FindCourseByFullKey retrieves a course, returns nil if not found
func (s *Store) FindCourseByFullKey(ctx context.Context, fullKey string) (*database.Course, error) {
	c, err := scanCourse(s.pool.db.QueryRowContext(ctx, "SELECT "+courseColumns+" FROM courses WHERE full_key = ?", fullKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Unavailable("find course", err)
	}
	return c, nil
}

// ListRosterMembers returns the member keys of a course, nil if not found
func (s *Store) ListRosterMembers(ctx context.Context, fullKey string) ([]string, error) {
	c, err := s.FindCourseByFullKey(ctx, fullKey)
	if err != nil || c == nil {
		return nil, err
	}
	return c.Members, nil
}

// ListCoursesByOwner returns the owner's courses ordered by key
func (s *Store) ListCoursesByOwner(ctx context.Context, ownerKey string) ([]database.Course, error) {
	rows, err := s.pool.db.QueryContext(ctx, "SELECT "+courseColumns+" FROM courses WHERE owner_key = ? ORDER BY course_key", ownerKey)
	if err != nil {
		return nil, database.Unavailable("list courses", err)
	}
	defer rows.Close()

	var result []database.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, database.Unavailable("scan course", err)
		}
		result = append(result, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Unavailable("iterate courses", err)
	}
	return result, nil
}

// CreateCourse stores a new course, ErrConflict if the full key is taken
func (s *Store) CreateCourse(ctx context.Context, course *database.Course) error {
	members, err := encodeKeys(course.Members)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	query := `
		INSERT INTO courses (full_key, owner_key, course_key, name, members, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = s.pool.db.ExecContext(ctx, query, course.FullKey, course.OwnerKey, course.Key, course.Name, members, now)
	if isDuplicateEntry(err) {
		return database.ErrConflict
	}
	if err != nil {
		return database.Unavailable("create course", err)
	}
	course.CreatedAt = now
	return nil
}

// DeleteCourse removes a course, reports whether it existed
func (s *Store) DeleteCourse(ctx context.Context, fullKey string) (bool, error) {
	result, err := s.pool.db.ExecContext(ctx, "DELETE FROM courses WHERE full_key = ?", fullKey)
	if err != nil {
		return false, database.Unavailable("delete course", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, database.Unavailable("delete course", err)
	}
	return n > 0, nil
}
