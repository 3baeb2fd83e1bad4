package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/database"
)

// duplicateEntry is the MariaDB error number for unique key violations.
const duplicateEntry = 1062

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool. Timestamps are read back as UTC time.Time.
func NewPool(cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg.MariaDBDSN == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	dsn, err := mysql.ParseDSN(cfg.MariaDBDSN)
	if err != nil {
		return nil, fmt.Errorf("invalid MariaDB DSN: %w", err)
	}
	dsn.ParseTime = true
	dsn.Loc = time.UTC
	if dsn.Params == nil {
		dsn.Params = map[string]string{}
	}
	dsn.Params["charset"] = "utf8mb4"

	connector, err := mysql.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}
	db := sql.OpenDB(connector)

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// schema is applied statement by statement, the driver runs one per Exec.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS owners (
		owner_key    VARCHAR(255) NOT NULL PRIMARY KEY,
		display_name VARCHAR(255) NOT NULL,
		created_at   DATETIME(6) NOT NULL
	) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin`,
	`CREATE TABLE IF NOT EXISTS identities (
		identity_key    VARCHAR(255) NOT NULL PRIMARY KEY,
		display_name    VARCHAR(255) NOT NULL,
		reference_image LONGBLOB NOT NULL,
		image_format    VARCHAR(32) NOT NULL,
		face_embedding  MEDIUMTEXT NULL,
		created_at      DATETIME(6) NOT NULL,
		updated_at      DATETIME(6) NOT NULL
	) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin`,
	`CREATE TABLE IF NOT EXISTS courses (
		full_key   VARCHAR(511) NOT NULL PRIMARY KEY,
		owner_key  VARCHAR(255) NOT NULL,
		course_key VARCHAR(255) NOT NULL,
		name       VARCHAR(255) NOT NULL,
		members    MEDIUMTEXT NOT NULL,
		created_at DATETIME(6) NOT NULL,
		INDEX idx_courses_owner (owner_key, course_key)
	) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin`,
	`CREATE TABLE IF NOT EXISTS attendance (
		composite_key VARCHAR(767) NOT NULL PRIMARY KEY,
		owner_key     VARCHAR(255) NOT NULL,
		course_key    VARCHAR(255) NOT NULL,
		label         VARCHAR(255) NOT NULL,
		label_key     VARCHAR(255) NOT NULL,
		present       MEDIUMTEXT NOT NULL,
		captured_at   DATETIME(6) NOT NULL,
		created_at    DATETIME(6) NOT NULL,
		INDEX idx_attendance_course (owner_key, course_key, captured_at)
	) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id           VARCHAR(64) NOT NULL PRIMARY KEY,
		owner_key    VARCHAR(255) NOT NULL,
		display_name VARCHAR(255) NOT NULL,
		created_at   DATETIME(6) NOT NULL,
		expires_at   DATETIME(6) NOT NULL,
		INDEX idx_sessions_expires (expires_at)
	) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin`,
}

// Migrate creates missing tables.
func (p *Pool) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	slog.Info("schema ready", "backend", "mariadb", "tables", len(schema))
	return nil
}

// Store implements database.Store on MariaDB.
type Store struct {
	pool *Pool
}

// Open connects, creates missing tables and returns a ready Store.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	pool, err := NewPool(cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return NewStore(pool), nil
}

// NewStore creates a store over a pool whose schema is in place.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Sessions returns a session repository sharing the store's pool.
func (s *Store) Sessions() *SessionRepository {
	return NewSessionRepository(s.pool)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == duplicateEntry
}

// encodeKeys stores a key list as a JSON array, never null.
func encodeKeys(keys []string) (string, error) {
	if keys == nil {
		keys = []string{}
	}
	data, err := json.Marshal(keys)
	if err != nil {
		return "", fmt.Errorf("marshal keys: %w", err)
	}
	return string(data), nil
}

func decodeKeys(data string) ([]string, error) {
	var keys []string
	if err := json.Unmarshal([]byte(data), &keys); err != nil {
		return nil, fmt.Errorf("unmarshal keys: %w", err)
	}
	return keys, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

var _ database.Store = (*Store)(nil)
