package mariadb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/rollcall/internal/database"
)

const identityColumns = `identity_key, display_name, reference_image, image_format, face_embedding, created_at, updated_at`

func scanIdentity(scanner rowScanner) (*database.Identity, error) {
	var id database.Identity
	var embedding sql.NullString
	if err := scanner.Scan(
		&id.Key,
		&id.DisplayName,
		&id.ReferenceImage,
		&id.ImageFormat,
		&embedding,
		&id.CreatedAt,
		&id.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &id.FaceEmbedding); err != nil {
			return nil, fmt.Errorf("unmarshal embedding: %w", err)
		}
	}
	return &id, nil
}

// embeddingArg stores an embedding as a JSON list, SQL NULL when empty.
func embeddingArg(embedding []float32) (any, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding: %w", err)
	}
	return string(data), nil
}

// FindIdentityByKey retrieves an identity, returns nil if not found
func (s *Store) FindIdentityByKey(ctx context.Context, key string) (*database.Identity, error) {
	row := s.pool.db.QueryRowContext(ctx, "SELECT "+identityColumns+" FROM identities WHERE identity_key = ?", key)
	id, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Unavailable("find identity", err)
	}
	return id, nil
}

// FindIdentitiesByKeys retrieves every listed identity, skipping misses
func (s *Store) FindIdentitiesByKeys(ctx context.Context, keys []string) ([]database.Identity, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	query := "SELECT " + identityColumns + " FROM identities WHERE identity_key IN (" + placeholders + ") ORDER BY identity_key"
	rows, err := s.pool.db.QueryContext(ctx, query, args...)
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
func (s *Store) CreateIdentity(ctx context.Context, identity *database.Identity) error {
	embedding, err := embeddingArg(identity.FaceEmbedding)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	query := `
		INSERT INTO identities (identity_key, display_name, reference_image, image_format, face_embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.pool.db.ExecContext(ctx, query,
		identity.Key,
		identity.DisplayName,
		identity.ReferenceImage,
		identity.ImageFormat,
		embedding,
		now,
		now,
	)
	if isDuplicateEntry(err) {
		return database.ErrConflict
	}
	if err != nil {
		return database.Unavailable("create identity", err)
	}
	identity.CreatedAt = now
	identity.UpdatedAt = now
	return nil
}

// UpdateIdentityImage replaces the reference picture and its embedding
func (s *Store) UpdateIdentityImage(ctx context.Context, key string, image []byte, format string, embedding []float32) error {
	embeddingValue, err := embeddingArg(embedding)
	if err != nil {
		return err
	}

	// RowsAffected is 0 when the data is unchanged, check existence first
	var exists bool
	err = s.pool.db.QueryRowContext(ctx, "SELECT 1 FROM identities WHERE identity_key = ?", key).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return database.ErrNotFound
	}
	if err != nil {
		return database.Unavailable("update identity image", err)
	}

	query := `
		UPDATE identities
		SET reference_image = ?, image_format = ?, face_embedding = ?, updated_at = ?
		WHERE identity_key = ?
	`
	if _, err := s.pool.db.ExecContext(ctx, query, image, format, embeddingValue, time.Now().UTC(), key); err != nil {
		return database.Unavailable("update identity image", err)
	}
	return nil
}
