package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/kozaktomas/rollcall/internal/database"
)

// CourseRepository provides PostgreSQL-backed course storage
type CourseRepository struct {
	pool *Pool
}

// NewCourseRepository creates a new course repository
func NewCourseRepository(pool *Pool) *CourseRepository {
	return &CourseRepository{pool: pool}
}

const courseColumns = `full_key, owner_key, key, name, members, created_at`

func scanCourse(scanner rowScanner) (*database.Course, error) {
	var c database.Course
	var members pq.StringArray
	if err := scanner.Scan(&c.FullKey, &c.OwnerKey, &c.Key, &c.Name, &members, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Members = []string(members)
	return &c, nil
}

// FindCourseByFullKey retrieves a course, returns nil if not found
func (r *CourseRepository) FindCourseByFullKey(ctx context.Context, fullKey string) (*database.Course, error) {
	c, err := scanCourse(r.pool.QueryRow(ctx, "SELECT "+courseColumns+" FROM courses WHERE full_key = $1", fullKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Unavailable("find course", err)
	}
	return c, nil
}

// ListRosterMembers returns the member keys of a course, nil if not found
func (r *CourseRepository) ListRosterMembers(ctx context.Context, fullKey string) ([]string, error) {
	var members pq.StringArray
	err := r.pool.QueryRow(ctx, "SELECT members FROM courses WHERE full_key = $1", fullKey).Scan(&members)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Unavailable("list roster members", err)
	}
	return []string(members), nil
}

// ListCoursesByOwner returns the owner's courses ordered by name
func (r *CourseRepository) ListCoursesByOwner(ctx context.Context, ownerKey string) ([]database.Course, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+courseColumns+" FROM courses WHERE owner_key = $1 ORDER BY key", ownerKey)
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
func (r *CourseRepository) CreateCourse(ctx context.Context, course *database.Course) error {
	query := `
		INSERT INTO courses (full_key, owner_key, key, name, members)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	members := course.Members
	if members == nil {
		members = []string{}
	}
	err := r.pool.QueryRow(ctx, query, course.FullKey, course.OwnerKey, course.Key, course.Name, pq.Array(members)).
		Scan(&course.CreatedAt)
	if isUniqueViolation(err) {
		return database.ErrConflict
	}
	if err != nil {
		return database.Unavailable("create course", err)
	}
	return nil
}

// DeleteCourse removes a course, reports whether it existed
func (r *CourseRepository) DeleteCourse(ctx context.Context, fullKey string) (bool, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM courses WHERE full_key = $1", fullKey)
	if err != nil {
		return false, database.Unavailable("delete course", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, database.Unavailable("delete course", err)
	}
	return n > 0, nil
}
