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

const statsColumns = `item_id, p_value, discrimination, previous_discrimination,
	 irt_a, irt_b, irt_c, response_count, validity_status, difficulty_flag,
	 discrimination_flag, flagged_since, status_history, updated_at`

func scanStats(row pgx.Row) (model.ItemStatistics, error) {
	var (
		s          model.ItemStatistics
		historyRaw []byte
	)
	if err := row.Scan(&s.ItemID, &s.PValue, &s.Discrimination, &s.PreviousDiscrimination,
		&s.IRTA, &s.IRTB, &s.IRTC, &s.ResponseCount, &s.ValidityStatus, &s.DifficultyFlag,
		&s.DiscriminationFlag, &s.FlaggedSince, &historyRaw, &s.UpdatedAt); err != nil {
		return model.ItemStatistics{}, err
	}
	if len(historyRaw) > 0 {
		if err := json.Unmarshal(historyRaw, &s.StatusHistory); err != nil {
			return model.ItemStatistics{}, fmt.Errorf("storage: decode status history: %w", err)
		}
	}
	return s, nil
}

// GetItemStatistics returns the statistics row for an item.
func (db *DB) GetItemStatistics(ctx context.Context, itemID uuid.UUID) (model.ItemStatistics, error) {
	s, err := scanStats(db.pool.QueryRow(ctx,
		`SELECT `+statsColumns+` FROM item_statistics WHERE item_id = $1`, itemID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ItemStatistics{}, ErrNotFound
	}
	if err != nil {
		return model.ItemStatistics{}, fmt.Errorf("storage: get item statistics: %w", err)
	}
	return s, nil
}

// UpsertItemStatistics writes the full statistics row for an item.
// The status history is replaced with the given slice; callers must append
// to the existing history, never rewrite past entries.
func (db *DB) UpsertItemStatistics(ctx context.Context, s model.ItemStatistics) error {
	historyJSON, err := json.Marshal(s.StatusHistory)
	if err != nil {
		return fmt.Errorf("storage: encode status history: %w", err)
	}
	if s.StatusHistory == nil {
		historyJSON = []byte(`[]`)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO item_statistics (item_id, p_value, discrimination, previous_discrimination,
		   irt_a, irt_b, irt_c, response_count, validity_status, difficulty_flag,
		   discrimination_flag, flagged_since, status_history, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb, now())
		 ON CONFLICT (item_id) DO UPDATE SET
		   p_value = EXCLUDED.p_value,
		   discrimination = EXCLUDED.discrimination,
		   previous_discrimination = EXCLUDED.previous_discrimination,
		   irt_a = EXCLUDED.irt_a,
		   irt_b = EXCLUDED.irt_b,
		   irt_c = EXCLUDED.irt_c,
		   response_count = EXCLUDED.response_count,
		   validity_status = EXCLUDED.validity_status,
		   difficulty_flag = EXCLUDED.difficulty_flag,
		   discrimination_flag = EXCLUDED.discrimination_flag,
		   flagged_since = EXCLUDED.flagged_since,
		   status_history = EXCLUDED.status_history,
		   updated_at = now()`,
		s.ItemID, s.PValue, s.Discrimination, s.PreviousDiscrimination,
		s.IRTA, s.IRTB, s.IRTC, s.ResponseCount, s.ValidityStatus, s.DifficultyFlag,
		s.DiscriminationFlag, s.FlaggedSince, historyJSON,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert item statistics: %w", err)
	}
	return nil
}
