package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/metriq-ai/metriq/internal/model"
)

// traitVector packs a Big-Five profile into the fixed-order vector column.
// Order follows model.AllTraits; missing traits encode as zero.
func traitVector(profile map[model.BigFiveTrait]float64) pgvector.Vector {
	vals := make([]float32, len(model.AllTraits))
	for i, t := range model.AllTraits {
		vals[i] = float32(profile[t])
	}
	return pgvector.NewVector(vals)
}

// UpsertPassport writes the per-user competency snapshot. Last write wins:
// passports always reflect the most recent scoring run that opted in.
func (db *DB) UpsertPassport(ctx context.Context, p model.Passport) error {
	scoresJSON, err := json.Marshal(p.CompetencyScores)
	if err != nil {
		return fmt.Errorf("storage: encode passport scores: %w", err)
	}
	var bigFiveJSON []byte
	if p.BigFiveProfile != nil {
		if bigFiveJSON, err = json.Marshal(p.BigFiveProfile); err != nil {
			return fmt.Errorf("storage: encode passport big five: %w", err)
		}
	}

	var vec any
	if p.BigFiveProfile != nil {
		vec = traitVector(p.BigFiveProfile)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO passports (clerk_user_id, competency_scores, big_five_profile, big_five,
		   last_assessed, expires_at, source_result_id)
		 VALUES ($1, $2::jsonb, $3::jsonb, $4, $5, $6, $7)
		 ON CONFLICT (clerk_user_id) DO UPDATE SET
		   competency_scores = EXCLUDED.competency_scores,
		   big_five_profile = EXCLUDED.big_five_profile,
		   big_five = EXCLUDED.big_five,
		   last_assessed = EXCLUDED.last_assessed,
		   expires_at = EXCLUDED.expires_at,
		   source_result_id = EXCLUDED.source_result_id`,
		p.ClerkUserID, scoresJSON, bigFiveJSON, vec, p.LastAssessed, p.ExpiresAt, p.SourceResultID,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert passport: %w", err)
	}
	return nil
}

// GetPassport returns the stored passport regardless of expiry. Callers
// apply Expired; the passport service hides expired snapshots.
func (db *DB) GetPassport(ctx context.Context, clerkUserID string) (model.Passport, error) {
	var (
		p          model.Passport
		scoresRaw  []byte
		bigFiveRaw []byte
	)
	err := db.pool.QueryRow(ctx,
		`SELECT clerk_user_id, competency_scores, big_five_profile, last_assessed, expires_at, source_result_id
		 FROM passports WHERE clerk_user_id = $1`, clerkUserID,
	).Scan(&p.ClerkUserID, &scoresRaw, &bigFiveRaw, &p.LastAssessed, &p.ExpiresAt, &p.SourceResultID)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Passport{}, ErrNotFound
	}
	if err != nil {
		return model.Passport{}, fmt.Errorf("storage: get passport: %w", err)
	}
	if len(scoresRaw) > 0 {
		if err := json.Unmarshal(scoresRaw, &p.CompetencyScores); err != nil {
			return model.Passport{}, fmt.Errorf("storage: decode passport scores: %w", err)
		}
	}
	if len(bigFiveRaw) > 0 {
		if err := json.Unmarshal(bigFiveRaw, &p.BigFiveProfile); err != nil {
			return model.Passport{}, fmt.Errorf("storage: decode passport big five: %w", err)
		}
	}
	return p, nil
}

// SimilarPassport is one neighbour from a personality-similarity lookup.
type SimilarPassport struct {
	ClerkUserID string
	Distance    float64 // cosine distance, lower is closer
}

// ListSimilarPassports returns up to limit unexpired passports nearest to
// the given Big-Five profile by cosine distance, excluding the user.
func (db *DB) ListSimilarPassports(ctx context.Context, clerkUserID string, profile map[model.BigFiveTrait]float64, limit int) ([]SimilarPassport, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.pool.Query(ctx,
		`SELECT clerk_user_id, big_five <=> $2 AS distance
		 FROM passports
		 WHERE clerk_user_id <> $1 AND big_five IS NOT NULL AND expires_at > now()
		 ORDER BY big_five <=> $2 ASC
		 LIMIT $3`,
		clerkUserID, traitVector(profile), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list similar passports: %w", err)
	}
	defer rows.Close()

	var out []SimilarPassport
	for rows.Next() {
		var s SimilarPassport
		if err := rows.Scan(&s.ClerkUserID, &s.Distance); err != nil {
			return nil, fmt.Errorf("storage: scan similar passport: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
