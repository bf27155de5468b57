package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/metriq-ai/metriq/internal/model"
)

const sessionColumns = `id, template_id, clerk_user_id, status, current_question_index,
	 time_remaining_seconds, question_order, seed, last_activity_at, version,
	 share_link_id, access_token_hash, client_ip, user_agent, anonymous_taker,
	 started_at, completed_at, created_at`

func scanSession(row pgx.Row) (model.Session, error) {
	var (
		s        model.Session
		orderRaw []byte
		takerRaw []byte
	)
	if err := row.Scan(&s.ID, &s.TemplateID, &s.ClerkUserID, &s.Status, &s.CurrentQuestionIndex,
		&s.TimeRemainingSeconds, &orderRaw, &s.Seed, &s.LastActivityAt, &s.Version,
		&s.ShareLinkID, &s.AccessTokenHash, &s.ClientIP, &s.UserAgent, &takerRaw,
		&s.StartedAt, &s.CompletedAt, &s.CreatedAt); err != nil {
		return model.Session{}, err
	}
	if len(orderRaw) > 0 {
		if err := json.Unmarshal(orderRaw, &s.QuestionOrder); err != nil {
			return model.Session{}, fmt.Errorf("storage: decode question order: %w", err)
		}
	}
	if len(takerRaw) > 0 {
		if err := json.Unmarshal(takerRaw, &s.AnonymousTaker); err != nil {
			return model.Session{}, fmt.Errorf("storage: decode anonymous taker: %w", err)
		}
	}
	return s, nil
}

// CreateSessionTx inserts the session and atomically increments
// exposure_count on every item locked into its question order. Either the
// full order is persisted and exposures incremented, or nothing changes.
func (db *DB) CreateSessionTx(ctx context.Context, s model.Session) (model.Session, error) {
	orderJSON, err := json.Marshal(s.QuestionOrder)
	if err != nil {
		return model.Session{}, fmt.Errorf("storage: encode question order: %w", err)
	}

	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.Session{}, fmt.Errorf("storage: begin create session: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	created, err := scanSession(tx.QueryRow(ctx,
		`INSERT INTO sessions (id, template_id, clerk_user_id, status, current_question_index,
		   time_remaining_seconds, question_order, seed, last_activity_at, version,
		   share_link_id, access_token_hash, client_ip, user_agent, started_at)
		 VALUES ($1, $2, $3, $4, 0, $5, $6::jsonb, $7, now(), 1, $8, $9, $10, $11, $12)
		 RETURNING `+sessionColumns,
		s.ID, s.TemplateID, s.ClerkUserID, s.Status, s.TimeRemainingSeconds,
		orderJSON, s.Seed, s.ShareLinkID, s.AccessTokenHash, s.ClientIP, s.UserAgent, s.StartedAt,
	))
	if err != nil {
		return model.Session{}, fmt.Errorf("storage: insert session: %w", err)
	}

	if len(s.QuestionOrder) > 0 {
		if _, err := tx.Exec(ctx,
			`UPDATE items SET exposure_count = exposure_count + 1 WHERE id = ANY($1)`,
			s.QuestionOrder,
		); err != nil {
			return model.Session{}, fmt.Errorf("storage: increment exposure: %w", err)
		}
	}

	if s.ShareLinkID != nil {
		if _, err := tx.Exec(ctx,
			`UPDATE share_links SET use_count = use_count + 1 WHERE id = $1`,
			*s.ShareLinkID,
		); err != nil {
			return model.Session{}, fmt.Errorf("storage: increment share link use: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Session{}, fmt.Errorf("storage: commit create session: %w", err)
	}
	return created, nil
}

// GetSession returns one session by id.
func (db *DB) GetSession(ctx context.Context, id uuid.UUID) (model.Session, error) {
	s, err := scanSession(db.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Session{}, ErrNotFound
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("storage: get session: %w", err)
	}
	return s, nil
}

// SessionMutation is the set of optional field changes applied by a
// compare-and-swap session update. Nil fields keep their current value.
type SessionMutation struct {
	Status               *model.SessionStatus
	CurrentQuestionIndex *int
	TimeRemainingSeconds *int
	CompletedAt          *time.Time
	AnonymousTaker       *model.AnonymousTaker
}

// UpdateSession applies a mutation guarded by the optimistic version.
// Exactly one concurrent caller wins per increment; losers get
// ErrVersionConflict and must reread.
func (db *DB) UpdateSession(ctx context.Context, id uuid.UUID, expectedVersion int, m SessionMutation) (model.Session, error) {
	var takerJSON []byte
	if m.AnonymousTaker != nil {
		var err error
		takerJSON, err = json.Marshal(m.AnonymousTaker)
		if err != nil {
			return model.Session{}, fmt.Errorf("storage: encode anonymous taker: %w", err)
		}
	}
	var status *string
	if m.Status != nil {
		v := string(*m.Status)
		status = &v
	}

	s, err := scanSession(db.pool.QueryRow(ctx,
		`UPDATE sessions SET
		   status = COALESCE($3, status),
		   current_question_index = COALESCE($4, current_question_index),
		   time_remaining_seconds = COALESCE($5, time_remaining_seconds),
		   completed_at = COALESCE($6, completed_at),
		   anonymous_taker = COALESCE($7::jsonb, anonymous_taker),
		   last_activity_at = now(),
		   version = version + 1
		 WHERE id = $1 AND version = $2
		 RETURNING `+sessionColumns,
		id, expectedVersion, status, m.CurrentQuestionIndex, m.TimeRemainingSeconds,
		m.CompletedAt, takerJSON,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish a missing row from a lost race.
		var exists bool
		if checkErr := db.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, id,
		).Scan(&exists); checkErr != nil {
			return model.Session{}, fmt.Errorf("storage: update session existence check: %w", checkErr)
		}
		if !exists {
			return model.Session{}, ErrNotFound
		}
		return model.Session{}, ErrVersionConflict
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("storage: update session: %w", err)
	}
	return s, nil
}

// SubmitAnswerTx persists an answer and advances the session in one
// transaction: the session row is compare-and-swapped first, so a losing
// writer never leaves a stray answer behind.
func (db *DB) SubmitAnswerTx(ctx context.Context, sessionID uuid.UUID, expectedVersion int, m SessionMutation, a model.Answer) (model.Session, error) {
	payloadJSON, err := json.Marshal(a.Payload)
	if err != nil {
		return model.Session{}, fmt.Errorf("storage: encode answer payload: %w", err)
	}

	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return model.Session{}, fmt.Errorf("storage: begin submit answer: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	s, err := scanSession(tx.QueryRow(ctx,
		`UPDATE sessions SET
		   current_question_index = COALESCE($3, current_question_index),
		   last_activity_at = now(),
		   version = version + 1
		 WHERE id = $1 AND version = $2
		 RETURNING `+sessionColumns,
		sessionID, expectedVersion, m.CurrentQuestionIndex,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if checkErr := db.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, sessionID,
		).Scan(&exists); checkErr != nil {
			return model.Session{}, fmt.Errorf("storage: submit answer existence check: %w", checkErr)
		}
		if !exists {
			return model.Session{}, ErrNotFound
		}
		return model.Session{}, ErrVersionConflict
	}
	if err != nil {
		return model.Session{}, fmt.Errorf("storage: submit answer session update: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO answers (session_id, question_id, payload, answered_at, time_spent_seconds, is_skipped, score, max_score)
		 VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7, $8)
		 ON CONFLICT (session_id, question_id) DO UPDATE SET
		   payload = EXCLUDED.payload,
		   answered_at = EXCLUDED.answered_at,
		   time_spent_seconds = EXCLUDED.time_spent_seconds,
		   is_skipped = EXCLUDED.is_skipped,
		   score = EXCLUDED.score,
		   max_score = EXCLUDED.max_score`,
		a.SessionID, a.QuestionID, payloadJSON, a.AnsweredAt, a.TimeSpentSeconds,
		a.IsSkipped, a.Score, a.MaxScore,
	); err != nil {
		return model.Session{}, fmt.Errorf("storage: upsert answer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Session{}, fmt.Errorf("storage: commit submit answer: %w", err)
	}
	return s, nil
}

// ListDueTimeouts returns in-progress sessions whose template time limit
// has elapsed. The sweep transitions each one individually via the version
// guard, so a session observed here may already have moved on.
func (db *DB) ListDueTimeouts(ctx context.Context, now time.Time, limit int) ([]model.Session, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+prefixedSessionColumns("s")+`
		 FROM sessions s
		 JOIN templates t ON t.id = s.template_id
		 WHERE s.status = 'in_progress'
		   AND t.time_limit_minutes > 0
		   AND s.started_at + make_interval(mins => t.time_limit_minutes) <= $1
		 ORDER BY s.started_at ASC
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list due timeouts: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan due timeout: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ListStaleSessions returns in-progress sessions idle since before cutoff.
func (db *DB) ListStaleSessions(ctx context.Context, cutoff time.Time, limit int) ([]model.Session, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE status = 'in_progress' AND last_activity_at < $1
		 ORDER BY last_activity_at ASC
		 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list stale sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan stale session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// prefixedSessionColumns qualifies the session column list with a table alias.
func prefixedSessionColumns(alias string) string {
	return alias + `.id, ` + alias + `.template_id, ` + alias + `.clerk_user_id, ` +
		alias + `.status, ` + alias + `.current_question_index, ` +
		alias + `.time_remaining_seconds, ` + alias + `.question_order, ` +
		alias + `.seed, ` + alias + `.last_activity_at, ` + alias + `.version, ` +
		alias + `.share_link_id, ` + alias + `.access_token_hash, ` +
		alias + `.client_ip, ` + alias + `.user_agent, ` + alias + `.anonymous_taker, ` +
		alias + `.started_at, ` + alias + `.completed_at, ` + alias + `.created_at`
}
