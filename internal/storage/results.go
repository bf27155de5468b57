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

const resultColumns = `id, session_id, clerk_user_id, template_id, goal, overall_score,
	 overall_percentage, percentile, passed, competency_scores, big_five_profile,
	 extended_metrics, total_time_seconds, questions_answered, questions_skipped,
	 status, completed_at, created_at`

func scanResult(row pgx.Row) (model.Result, error) {
	var (
		r           model.Result
		scoresRaw   []byte
		bigFiveRaw  []byte
		extendedRaw []byte
	)
	if err := row.Scan(&r.ID, &r.SessionID, &r.ClerkUserID, &r.TemplateID, &r.Goal,
		&r.OverallScore, &r.OverallPercentage, &r.Percentile, &r.Passed,
		&scoresRaw, &bigFiveRaw, &extendedRaw, &r.TotalTimeSeconds,
		&r.QuestionsAnswered, &r.QuestionsSkipped, &r.Status, &r.CompletedAt, &r.CreatedAt); err != nil {
		return model.Result{}, err
	}
	if len(scoresRaw) > 0 {
		if err := json.Unmarshal(scoresRaw, &r.CompetencyScores); err != nil {
			return model.Result{}, fmt.Errorf("storage: decode competency scores: %w", err)
		}
	}
	if len(bigFiveRaw) > 0 {
		if err := json.Unmarshal(bigFiveRaw, &r.BigFiveProfile); err != nil {
			return model.Result{}, fmt.Errorf("storage: decode big five profile: %w", err)
		}
	}
	if len(extendedRaw) > 0 {
		if err := json.Unmarshal(extendedRaw, &r.ExtendedMetrics); err != nil {
			return model.Result{}, fmt.Errorf("storage: decode extended metrics: %w", err)
		}
	}
	return r, nil
}

// CreateResultTx persists a result, its audit record, and the answer score
// backfill in one transaction. The UNIQUE(session_id) constraint plus
// ON CONFLICT DO NOTHING make the write idempotent: if another scorer won
// the race, the existing canonical result is returned and the audit insert
// is skipped.
func (db *DB) CreateResultTx(ctx context.Context, r model.Result, audit model.ScoringAudit, answerScores map[uuid.UUID]model.Answer) (model.Result, error) {
	scoresJSON, err := json.Marshal(r.CompetencyScores)
	if err != nil {
		return model.Result{}, fmt.Errorf("storage: encode competency scores: %w", err)
	}
	var bigFiveJSON, extendedJSON []byte
	if r.BigFiveProfile != nil {
		if bigFiveJSON, err = json.Marshal(r.BigFiveProfile); err != nil {
			return model.Result{}, fmt.Errorf("storage: encode big five profile: %w", err)
		}
	}
	if r.ExtendedMetrics != nil {
		if extendedJSON, err = json.Marshal(r.ExtendedMetrics); err != nil {
			return model.Result{}, fmt.Errorf("storage: encode extended metrics: %w", err)
		}
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return model.Result{}, fmt.Errorf("storage: begin result tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO results (id, session_id, clerk_user_id, template_id, goal, overall_score,
		   overall_percentage, percentile, passed, competency_scores, big_five_profile,
		   extended_metrics, total_time_seconds, questions_answered, questions_skipped,
		   status, completed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11::jsonb, $12::jsonb,
		   $13, $14, $15, $16, $17, now())
		 ON CONFLICT (session_id) DO NOTHING`,
		r.ID, r.SessionID, r.ClerkUserID, r.TemplateID, r.Goal, r.OverallScore,
		r.OverallPercentage, r.Percentile, r.Passed, scoresJSON, bigFiveJSON,
		extendedJSON, r.TotalTimeSeconds, r.QuestionsAnswered, r.QuestionsSkipped,
		r.Status, r.CompletedAt,
	)
	if err != nil {
		return model.Result{}, fmt.Errorf("storage: insert result: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Lost the race: the session already has its canonical result.
		existing, err := scanResult(tx.QueryRow(ctx,
			`SELECT `+resultColumns+` FROM results WHERE session_id = $1`, r.SessionID))
		if err != nil {
			return model.Result{}, fmt.Errorf("storage: fetch existing result: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return model.Result{}, fmt.Errorf("storage: commit result tx: %w", err)
		}
		return existing, nil
	}

	for qid, a := range answerScores {
		if _, err := tx.Exec(ctx,
			`UPDATE answers SET score = $3, max_score = $4
			 WHERE session_id = $1 AND question_id = $2`,
			r.SessionID, qid, a.Score, a.MaxScore); err != nil {
			return model.Result{}, fmt.Errorf("storage: backfill answer score: %w", err)
		}
	}

	configJSON, err := json.Marshal(audit.ConfigSnapshot)
	if err != nil {
		return model.Result{}, fmt.Errorf("storage: encode audit config: %w", err)
	}
	auditScoresJSON, err := json.Marshal(audit.CompetencyScores)
	if err != nil {
		return model.Result{}, fmt.Errorf("storage: encode audit scores: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO scoring_audit (id, session_id, result_id, template_id, goal, strategy,
		   config_snapshot, competency_scores, questions_answered, questions_skipped, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9, $10, $11, now())`,
		audit.ID, audit.SessionID, audit.ResultID, audit.TemplateID, audit.Goal, audit.Strategy,
		configJSON, auditScoresJSON, audit.QuestionsAnswered, audit.QuestionsSkipped, audit.DurationMillis,
	); err != nil {
		return model.Result{}, fmt.Errorf("storage: insert scoring audit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Result{}, fmt.Errorf("storage: commit result tx: %w", err)
	}
	return r, nil
}

// GetResultBySession returns the canonical result of a session.
func (db *DB) GetResultBySession(ctx context.Context, sessionID uuid.UUID) (model.Result, error) {
	r, err := scanResult(db.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM results WHERE session_id = $1`, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Result{}, ErrNotFound
	}
	if err != nil {
		return model.Result{}, fmt.Errorf("storage: get result by session: %w", err)
	}
	return r, nil
}

// GetResult returns one result by id.
func (db *DB) GetResult(ctx context.Context, id uuid.UUID) (model.Result, error) {
	r, err := scanResult(db.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM results WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Result{}, ErrNotFound
	}
	if err != nil {
		return model.Result{}, fmt.Errorf("storage: get result: %w", err)
	}
	return r, nil
}

// PercentileCounts is the raw material for a cohort percentile: how many
// historical results on the template scored strictly below pct, and the
// cohort size.
type PercentileCounts struct {
	Below int64
	Total int64
}

// CountTemplatePercentile counts the template's result cohort relative to
// an overall percentage. The caller's own result is excluded by id.
func (db *DB) CountTemplatePercentile(ctx context.Context, templateID uuid.UUID, excludeResultID uuid.UUID, pct float64) (PercentileCounts, error) {
	var c PercentileCounts
	err := db.pool.QueryRow(ctx,
		`SELECT
		   count(*) FILTER (WHERE overall_percentage < $3),
		   count(*)
		 FROM results WHERE template_id = $1 AND id <> $2`,
		templateID, excludeResultID, pct,
	).Scan(&c.Below, &c.Total)
	if err != nil {
		return PercentileCounts{}, fmt.Errorf("storage: count template percentile: %w", err)
	}
	return c, nil
}

// ListResultsByUser returns a user's results, newest first.
func (db *DB) ListResultsByUser(ctx context.Context, clerkUserID string, limit int) ([]model.Result, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM results
		 WHERE clerk_user_id = $1 ORDER BY completed_at DESC LIMIT $2`,
		clerkUserID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list results by user: %w", err)
	}
	defer rows.Close()

	var out []model.Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
