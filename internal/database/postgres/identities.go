package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/rollcall/internal/database"
)

// IdentityRepository provides PostgreSQL-backed identity storage
type IdentityRepository struct {
	pool *Pool
}

// NewIdentityRepository creates a new identity repository
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

const identityColumns = `key, display_name, reference_image, image_format, face_embedding, created_at, updated_at`

func scanIdentity(scanner rowScanner) (*database.Identity, error) {
	var id database.Identity
	var vec *pgvector.Vector
	if err := scanner.Scan(
		&id.Key,
		&id.DisplayName,
		&id.ReferenceImage,
		&id.ImageFormat,
		&vec,
		&id.CreatedAt,
		&id.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if vec != nil {
		id.FaceEmbedding = vec.Slice()
	}
	return &id, nil
}

// embeddingArg maps an empty embedding to SQL NULL.
func embeddingArg(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}

// FindIdentityByKey retrieves an identity, returns nil if not found
func (r *IdentityRepository) FindIdentityByKey(ctx context.Context, key string) (*database.Identity, error) {
	id, err := scanIdentity(r.pool.QueryRow(ctx, "SELECT "+identityColumns+" FROM identities WHERE key = $1", key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Unavailable("find identity", err)
	}
	return id, nil
}

// FindIdentitiesByKeys retrieves every listed identity, skipping misses
func (r *IdentityRepository) FindIdentitiesByKeys(ctx context.Context, keys []string) ([]database.Identity, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, "SELECT "+identityColumns+" FROM identities WHERE key = ANY($1) ORDER BY key", pq.Array(keys))
	if err != nil {
		return nil, database.Unavailable("find identities", err)
	}
	defer rows.Close()

	var result []database.Identity
	for rows.Next() {
		id, err := scanIdentity(rows)
		if err != nil {
			return nil, database.Unavailable("scan identity", err)
		}
		result = append(result, *id)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Unavailable("iterate identities", err)
	}
	return result, nil
}

// CreateIdentity stores a new identity, ErrConflict if the key is taken
func (r *IdentityRepository) CreateIdentity(ctx context.Context, identity *database.Identity) error {
	query := `
		INSERT INTO identities (key, display_name, reference_image, image_format, face_embedding)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		identity.Key,
		identity.DisplayName,
		identity.ReferenceImage,
		identity.ImageFormat,
		embeddingArg(identity.FaceEmbedding),
	).Scan(&identity.CreatedAt, &identity.UpdatedAt)
	if isUniqueViolation(err) {
		return database.ErrConflict
	}
	if err != nil {
		return database.Unavailable("create identity", err)
	}
	return nil
}

// UpdateIdentityImage replaces the reference picture and its embedding
func (r *IdentityRepository) UpdateIdentityImage(ctx context.Context, key string, image []byte, format string, embedding []float32) error {
	query := `
		UPDATE identities
		SET reference_image = $2, image_format = $3, face_embedding = $4, updated_at = NOW()
		WHERE key = $1
	`
	result, err := r.pool.Exec(ctx, query, key, image, format, embeddingArg(embedding))
	if err != nil {
		return database.Unavailable("update identity image", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return database.Unavailable("update identity image", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}
