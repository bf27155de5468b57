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

func scanAnswer(row pgx.Row) (model.Answer, error) {
	var (
		a          model.Answer
		payloadRaw []byte
	)
	if err := row.Scan(&a.SessionID, &a.QuestionID, &payloadRaw, &a.AnsweredAt,
		&a.TimeSpentSeconds, &a.IsSkipped, &a.Score, &a.MaxScore); err != nil {
		return model.Answer{}, err
	}
	if len(payloadRaw) > 0 {
		if err := json.Unmarshal(payloadRaw, &a.Payload); err != nil {
			return model.Answer{}, fmt.Errorf("storage: decode answer payload: %w", err)
		}
	}
	return a, nil
}

const answerColumns = `session_id, question_id, payload, answered_at, time_spent_seconds, is_skipped, score, max_score`

// GetAnswer returns the persisted answer for (session, question).
func (db *DB) GetAnswer(ctx context.Context, sessionID, questionID uuid.UUID) (model.Answer, error) {
	a, err := scanAnswer(db.pool.QueryRow(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE session_id = $1 AND question_id = $2`,
		sessionID, questionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Answer{}, ErrNotFound
	}
	if err != nil {
		return model.Answer{}, fmt.Errorf("storage: get answer: %w", err)
	}
	return a, nil
}

// ListAnswers returns all answers of a session, keyed by question id.
func (db *DB) ListAnswers(ctx context.Context, sessionID uuid.UUID) (map[uuid.UUID]model.Answer, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("storage: list answers: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]model.Answer)
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan answer: %w", err)
		}
		out[a.QuestionID] = a
	}
	return out, rows.Err()
}

// ItemResponsePair couples one respondent's normalised score on an item
// with their overall normalised score on the whole test. Input to the
// point-biserial discrimination computation.
type ItemResponsePair struct {
	SessionID uuid.UUID
	ItemScore float64 // score / max_score, in [0,1]
	Overall   float64 // overall_percentage / 100, in [0,1]
}

// ListItemResponsePairs returns scored, non-skipped responses to an item
// from sessions that have a canonical result, paired with the respondent's
// overall percentage.
func (db *DB) ListItemResponsePairs(ctx context.Context, itemID uuid.UUID) ([]ItemResponsePair, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT a.session_id, a.score / a.max_score, r.overall_percentage / 100.0
		 FROM answers a
		 JOIN results r ON r.session_id = a.session_id
		 WHERE a.question_id = $1
		   AND NOT a.is_skipped
		   AND a.score IS NOT NULL
		   AND a.max_score > 0`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list item response pairs: %w", err)
	}
	defer rows.Close()

	var pairs []ItemResponsePair
	for rows.Next() {
		var p ItemResponsePair
		if err := rows.Scan(&p.SessionID, &p.ItemScore, &p.Overall); err != nil {
			return nil, fmt.Errorf("storage: scan item response pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// CountItemResponses returns the number of scored responses to an item.
func (db *DB) CountItemResponses(ctx context.Context, itemID uuid.UUID) (int64, error) {
	var n int64
	if err := db.pool.QueryRow(ctx,
		`SELECT count(*) FROM answers
		 WHERE question_id = $1 AND NOT is_skipped AND score IS NOT NULL AND max_score > 0`,
		itemID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count item responses: %w", err)
	}
	return n, nil
}

// ListAnalysableItemIDs returns ids of non-retired active items with at
// least minResponses scored responses.
func (db *DB) ListAnalysableItemIDs(ctx context.Context, minResponses int64) ([]uuid.UUID, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT a.question_id
		 FROM answers a
		 JOIN items i ON i.id = a.question_id
		 LEFT JOIN item_statistics s ON s.item_id = i.id
		 WHERE i.active
		   AND NOT a.is_skipped AND a.score IS NOT NULL AND a.max_score > 0
		   AND (s.item_id IS NULL OR s.validity_status <> 'retired')
		 GROUP BY a.question_id
		 HAVING count(*) >= $1`,
		minResponses,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list analysable items: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage: scan analysable item id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ResponseCell is one cell of a competency's session x item score matrix.
type ResponseCell struct {
	SessionID uuid.UUID
	ItemID    uuid.UUID
	Score     float64 // normalised [0,1]
}

// ListCompetencyResponseMatrix returns every scored response to the
// competency's active items from sessions with a result. The analyser
// pivots these cells into per-session vectors for Cronbach alpha.
func (db *DB) ListCompetencyResponseMatrix(ctx context.Context, competencyID uuid.UUID) ([]ResponseCell, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT a.session_id, a.question_id, a.score / a.max_score
		 FROM answers a
		 JOIN items i ON i.id = a.question_id
		 JOIN behavioral_indicators bi ON bi.id = i.indicator_id
		 JOIN results r ON r.session_id = a.session_id
		 WHERE bi.competency_id = $1
		   AND i.active
		   AND NOT a.is_skipped AND a.score IS NOT NULL AND a.max_score > 0`,
		competencyID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list competency response matrix: %w", err)
	}
	defer rows.Close()

	var cells []ResponseCell
	for rows.Next() {
		var c ResponseCell
		if err := rows.Scan(&c.SessionID, &c.ItemID, &c.Score); err != nil {
			return nil, fmt.Errorf("storage: scan response cell: %w", err)
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

// ListTraitResponseMatrix is the Big-Five analogue: responses to active
// items of every competency labelled with the trait.
func (db *DB) ListTraitResponseMatrix(ctx context.Context, trait model.BigFiveTrait) ([]ResponseCell, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT a.session_id, a.question_id, a.score / a.max_score
		 FROM answers a
		 JOIN items i ON i.id = a.question_id
		 JOIN behavioral_indicators bi ON bi.id = i.indicator_id
		 JOIN competencies c ON c.id = bi.competency_id
		 JOIN results r ON r.session_id = a.session_id
		 WHERE c.big_five_trait = $1
		   AND i.active
		   AND NOT a.is_skipped AND a.score IS NOT NULL AND a.max_score > 0`,
		string(trait),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list trait response matrix: %w", err)
	}
	defer rows.Close()

	var cells []ResponseCell
	for rows.Next() {
		var c ResponseCell
		if err := rows.Scan(&c.SessionID, &c.ItemID, &c.Score); err != nil {
			return nil, fmt.Errorf("storage: scan response cell: %w", err)
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}
