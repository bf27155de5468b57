package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/metriq-ai/metriq/internal/model"
)

// UpsertCompetencyReliability writes the Cronbach-alpha record for a competency.
func (db *DB) UpsertCompetencyReliability(ctx context.Context, r model.CompetencyReliability) error {
	var aidJSON []byte
	if r.AlphaIfDeleted != nil {
		var err error
		aidJSON, err = json.Marshal(r.AlphaIfDeleted)
		if err != nil {
			return fmt.Errorf("storage: encode alpha_if_deleted: %w", err)
		}
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO competency_reliability (competency_id, alpha, sample_size, item_count, status, alpha_if_deleted, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb, now())
		 ON CONFLICT (competency_id) DO UPDATE SET
		   alpha = EXCLUDED.alpha,
		   sample_size = EXCLUDED.sample_size,
		   item_count = EXCLUDED.item_count,
		   status = EXCLUDED.status,
		   alpha_if_deleted = EXCLUDED.alpha_if_deleted,
		   updated_at = now()`,
		r.CompetencyID, r.Alpha, r.SampleSize, r.ItemCount, r.Status, aidJSON,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert competency reliability: %w", err)
	}
	return nil
}

// GetCompetencyReliability returns the reliability record for a competency.
func (db *DB) GetCompetencyReliability(ctx context.Context, competencyID uuid.UUID) (model.CompetencyReliability, error) {
	var (
		r      model.CompetencyReliability
		aidRaw []byte
	)
	err := db.pool.QueryRow(ctx,
		`SELECT competency_id, alpha, sample_size, item_count, status, alpha_if_deleted, updated_at
		 FROM competency_reliability WHERE competency_id = $1`, competencyID,
	).Scan(&r.CompetencyID, &r.Alpha, &r.SampleSize, &r.ItemCount, &r.Status, &aidRaw, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CompetencyReliability{}, ErrNotFound
	}
	if err != nil {
		return model.CompetencyReliability{}, fmt.Errorf("storage: get competency reliability: %w", err)
	}
	if len(aidRaw) > 0 {
		if err := json.Unmarshal(aidRaw, &r.AlphaIfDeleted); err != nil {
			return model.CompetencyReliability{}, fmt.Errorf("storage: decode alpha_if_deleted: %w", err)
		}
	}
	return r, nil
}

// UpsertBigFiveReliability writes the per-trait reliability record.
func (db *DB) UpsertBigFiveReliability(ctx context.Context, r model.BigFiveReliability) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO big_five_reliability (trait, alpha, sample_size, item_count, status, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (trait) DO UPDATE SET
		   alpha = EXCLUDED.alpha,
		   sample_size = EXCLUDED.sample_size,
		   item_count = EXCLUDED.item_count,
		   status = EXCLUDED.status,
		   updated_at = now()`,
		string(r.Trait), r.Alpha, r.SampleSize, r.ItemCount, r.Status,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert big five reliability: %w", err)
	}
	return nil
}

// ListBigFiveReliability returns the reliability records of all five traits,
// keyed by trait. Traits never analysed are absent from the map.
func (db *DB) ListBigFiveReliability(ctx context.Context) (map[model.BigFiveTrait]model.BigFiveReliability, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT trait, alpha, sample_size, item_count, status, updated_at FROM big_five_reliability`)
	if err != nil {
		return nil, fmt.Errorf("storage: list big five reliability: %w", err)
	}
	defer rows.Close()

	out := make(map[model.BigFiveTrait]model.BigFiveReliability, 5)
	for rows.Next() {
		var r model.BigFiveReliability
		if err := rows.Scan(&r.Trait, &r.Alpha, &r.SampleSize, &r.ItemCount, &r.Status, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan big five reliability: %w", err)
		}
		out[r.Trait] = r
	}
	return out, rows.Err()
}
