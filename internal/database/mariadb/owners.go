package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
)

// UpsertOwner creates the owner or refreshes its display name
func (s *Store) UpsertOwner(ctx context.Context, key, displayName string) (*database.Owner, error) {
	query := `
		INSERT INTO owners (owner_key, display_name, created_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE display_name = VALUES(display_name)
	`
	if _, err := s.pool.db.ExecContext(ctx, query, key, displayName, time.Now().UTC()); err != nil {
		return nil, database.Unavailable("upsert owner", err)
	}
	owner, err := s.FindOwnerByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, database.Unavailable("upsert owner", fmt.Errorf("owner %s vanished after upsert", key))
	}
	return owner, nil
}

// FindOwnerByKey retrieves an owner, returns nil if not found
func (s *Store) FindOwnerByKey(ctx context.Context, key string) (*database.Owner, error) {
	var o database.Owner
	err := s.pool.db.QueryRowContext(ctx, "SELECT owner_key, display_name, created_at FROM owners WHERE owner_key = ?", key).
		Scan(&o.Key, &o.DisplayName, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Unavailable("find owner", err)
	}
	return &o, nil
}
