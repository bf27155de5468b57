package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/metriq-ai/metriq/internal/model"
)

// InsertActivityEvents appends a batch of activity events. The sink flushes
// buffered events through here; a failed batch is retried by the sink, so
// the insert must tolerate replays. Primary-key conflicts are skipped.
func (db *DB) InsertActivityEvents(ctx context.Context, events []model.ActivityEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin activity batch: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, ev := range events {
		metaJSON := []byte(`{}`)
		if ev.Metadata != nil {
			if metaJSON, err = json.Marshal(ev.Metadata); err != nil {
				return fmt.Errorf("storage: encode activity metadata: %w", err)
			}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO activity_events (id, type, session_id, template_id, clerk_user_id, metadata, occurred_at)
			 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
			 ON CONFLICT (id) DO NOTHING`,
			ev.ID, ev.Type, ev.SessionID, ev.TemplateID, ev.ClerkUserID, metaJSON, ev.OccurredAt,
		); err != nil {
			return fmt.Errorf("storage: insert activity event: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit activity batch: %w", err)
	}
	return nil
}

// ListSessionActivity returns a session's events in occurrence order.
func (db *DB) ListSessionActivity(ctx context.Context, sessionID uuid.UUID) ([]model.ActivityEvent, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, type, session_id, template_id, clerk_user_id, metadata, occurred_at
		 FROM activity_events WHERE session_id = $1 ORDER BY occurred_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("storage: list session activity: %w", err)
	}
	defer rows.Close()

	var out []model.ActivityEvent
	for rows.Next() {
		var (
			ev      model.ActivityEvent
			metaRaw []byte
		)
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.SessionID, &ev.TemplateID, &ev.ClerkUserID, &metaRaw, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("storage: scan activity event: %w", err)
		}
		if len(metaRaw) > 0 {
			if err := json.Unmarshal(metaRaw, &ev.Metadata); err != nil {
				return nil, fmt.Errorf("storage: decode activity metadata: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
