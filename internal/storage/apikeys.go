package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// APIKey is a stored credential. The key itself is never stored, only its
// Argon2id hash.
type APIKey struct {
	ID          uuid.UUID
	ClerkUserID string
	Role        string
	KeyHash     string
	CreatedAt   time.Time
	RevokedAt   *time.Time
}

// CreateAPIKey inserts a key record. The partial unique index keeps at
// most one live key per user; a second insert fails until the first is
// revoked.
func (db *DB) CreateAPIKey(ctx context.Context, k APIKey) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO api_keys (id, clerk_user_id, role, key_hash, created_at)
		 VALUES ($1, $2, $3, $4, now())`,
		k.ID, k.ClerkUserID, k.Role, k.KeyHash,
	)
	if err != nil {
		return fmt.Errorf("storage: create api key: %w", err)
	}
	return nil
}

// GetLiveAPIKey returns the user's unrevoked key.
func (db *DB) GetLiveAPIKey(ctx context.Context, clerkUserID string) (APIKey, error) {
	var k APIKey
	err := db.pool.QueryRow(ctx,
		`SELECT id, clerk_user_id, role, key_hash, created_at, revoked_at
		 FROM api_keys WHERE clerk_user_id = $1 AND revoked_at IS NULL`,
		clerkUserID,
	).Scan(&k.ID, &k.ClerkUserID, &k.Role, &k.KeyHash, &k.CreatedAt, &k.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return APIKey{}, ErrNotFound
	}
	if err != nil {
		return APIKey{}, fmt.Errorf("storage: get api key: %w", err)
	}
	return k, nil
}

// RevokeAPIKey retires the user's live key.
func (db *DB) RevokeAPIKey(ctx context.Context, clerkUserID string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE api_keys SET revoked_at = now() WHERE clerk_user_id = $1 AND revoked_at IS NULL`,
		clerkUserID)
	if err != nil {
		return fmt.Errorf("storage: revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
