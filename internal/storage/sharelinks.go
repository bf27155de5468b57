package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/metriq-ai/metriq/internal/model"
)

const shareLinkColumns = `id, template_id, token_hash, created_by, expires_at, max_uses, use_count, revoked, created_at`

func scanShareLink(row pgx.Row) (model.ShareLink, error) {
	var l model.ShareLink
	err := row.Scan(&l.ID, &l.TemplateID, &l.TokenHash, &l.CreatedBy, &l.ExpiresAt,
		&l.MaxUses, &l.UseCount, &l.Revoked, &l.CreatedAt)
	return l, err
}

// CreateShareLink inserts a share link. The cleartext token never reaches
// storage; only its hash does.
func (db *DB) CreateShareLink(ctx context.Context, l model.ShareLink) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO share_links (id, template_id, token_hash, created_by, expires_at, max_uses, use_count, revoked, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, FALSE, now())`,
		l.ID, l.TemplateID, l.TokenHash, l.CreatedBy, l.ExpiresAt, l.MaxUses,
	)
	if err != nil {
		return fmt.Errorf("storage: create share link: %w", err)
	}
	return nil
}

// GetShareLinkByTokenHash resolves an incoming URL token to its link.
func (db *DB) GetShareLinkByTokenHash(ctx context.Context, tokenHash string) (model.ShareLink, error) {
	l, err := scanShareLink(db.pool.QueryRow(ctx,
		`SELECT `+shareLinkColumns+` FROM share_links WHERE token_hash = $1`, tokenHash))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ShareLink{}, ErrNotFound
	}
	if err != nil {
		return model.ShareLink{}, fmt.Errorf("storage: get share link: %w", err)
	}
	return l, nil
}

// GetShareLink returns one share link by id.
func (db *DB) GetShareLink(ctx context.Context, id uuid.UUID) (model.ShareLink, error) {
	l, err := scanShareLink(db.pool.QueryRow(ctx,
		`SELECT `+shareLinkColumns+` FROM share_links WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ShareLink{}, ErrNotFound
	}
	if err != nil {
		return model.ShareLink{}, fmt.Errorf("storage: get share link: %w", err)
	}
	return l, nil
}

// ListShareLinks returns a template's links, newest first.
func (db *DB) ListShareLinks(ctx context.Context, templateID uuid.UUID) ([]model.ShareLink, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+shareLinkColumns+` FROM share_links WHERE template_id = $1 ORDER BY created_at DESC`,
		templateID)
	if err != nil {
		return nil, fmt.Errorf("storage: list share links: %w", err)
	}
	defer rows.Close()

	var out []model.ShareLink
	for rows.Next() {
		l, err := scanShareLink(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan share link: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// RevokeShareLink revokes a link. Existing sessions continue; new starts
// through the link are refused.
func (db *DB) RevokeShareLink(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE share_links SET revoked = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("storage: revoke share link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
