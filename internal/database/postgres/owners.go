package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/kozaktomas/rollcall/internal/database"
)

// OwnerRepository provides PostgreSQL-backed owner storage
type OwnerRepository struct {
	pool *Pool
}

// NewOwnerRepository creates a new owner repository
func NewOwnerRepository(pool *Pool) *OwnerRepository {
	return &OwnerRepository{pool: pool}
}

// UpsertOwner creates the owner or refreshes its display name
func (r *OwnerRepository) UpsertOwner(ctx context.Context, key, displayName string) (*database.Owner, error) {
	query := `
		INSERT INTO owners (key, display_name)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET display_name = EXCLUDED.display_name
		RETURNING key, display_name, created_at
	`
	var o database.Owner
	if err := r.pool.QueryRow(ctx, query, key, displayName).Scan(&o.Key, &o.DisplayName, &o.CreatedAt); err != nil {
		return nil, database.Unavailable("upsert owner", err)
	}
	return &o, nil
}

// FindOwnerByKey retrieves an owner, returns nil if not found
func (r *OwnerRepository) FindOwnerByKey(ctx context.Context, key string) (*database.Owner, error) {
	var o database.Owner
	err := r.pool.QueryRow(ctx, "SELECT key, display_name, created_at FROM owners WHERE key = $1", key).
		Scan(&o.Key, &o.DisplayName, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Unavailable("find owner", err)
	}
	return &o, nil
}
