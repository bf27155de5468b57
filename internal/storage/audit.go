package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/metriq-ai/metriq/internal/model"
)

// ListScoringAudit returns the audit records of a session in creation
// order. Normally at most one; retried degraded runs can leave more.
func (db *DB) ListScoringAudit(ctx context.Context, sessionID uuid.UUID) ([]model.ScoringAudit, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, session_id, result_id, template_id, goal, strategy, config_snapshot,
		   competency_scores, questions_answered, questions_skipped, duration_ms, created_at
		 FROM scoring_audit WHERE session_id = $1 ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("storage: list scoring audit: %w", err)
	}
	defer rows.Close()

	var out []model.ScoringAudit
	for rows.Next() {
		var (
			a         model.ScoringAudit
			configRaw []byte
			scoresRaw []byte
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &a.ResultID, &a.TemplateID, &a.Goal, &a.Strategy,
			&configRaw, &scoresRaw, &a.QuestionsAnswered, &a.QuestionsSkipped, &a.DurationMillis, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan scoring audit: %w", err)
		}
		if err := json.Unmarshal(configRaw, &a.ConfigSnapshot); err != nil {
			return nil, fmt.Errorf("storage: decode audit config: %w", err)
		}
		if err := json.Unmarshal(scoresRaw, &a.CompetencyScores); err != nil {
			return nil, fmt.Errorf("storage: decode audit scores: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
