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

const templateColumns = `id, name, version, parent_id, owner_clerk_id, visibility, lifecycle,
	 goal, blueprint, competency_ids, questions_per_indicator, time_limit_minutes,
	 passing_score, shuffle_questions, shuffle_options, allow_skip, allow_back_navigation,
	 created_at, deleted_at`

func scanTemplate(row pgx.Row) (model.Template, error) {
	var (
		t             model.Template
		blueprintRaw  []byte
		competencyRaw []byte
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Version, &t.ParentID, &t.OwnerClerkID,
		&t.Visibility, &t.Lifecycle, &t.Goal, &blueprintRaw, &competencyRaw,
		&t.QuestionsPerIndicator, &t.TimeLimitMinutes, &t.PassingScore,
		&t.ShuffleQuestions, &t.ShuffleOptions, &t.AllowSkip, &t.AllowBackNavigation,
		&t.CreatedAt, &t.DeletedAt); err != nil {
		return model.Template{}, err
	}
	if err := json.Unmarshal(blueprintRaw, &t.Blueprint); err != nil {
		return model.Template{}, fmt.Errorf("storage: decode blueprint: %w", err)
	}
	if len(competencyRaw) > 0 {
		if err := json.Unmarshal(competencyRaw, &t.CompetencyIDs); err != nil {
			return model.Template{}, fmt.Errorf("storage: decode competency ids: %w", err)
		}
	}
	return t, nil
}

// CreateTemplate inserts a new template (always a draft, version set by caller).
func (db *DB) CreateTemplate(ctx context.Context, t model.Template) error {
	blueprintJSON, err := json.Marshal(t.Blueprint)
	if err != nil {
		return fmt.Errorf("storage: encode blueprint: %w", err)
	}
	competencyJSON, err := json.Marshal(t.CompetencyIDs)
	if err != nil {
		return fmt.Errorf("storage: encode competency ids: %w", err)
	}
	if t.CompetencyIDs == nil {
		competencyJSON = []byte(`[]`)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO templates (id, name, version, parent_id, owner_clerk_id, visibility, lifecycle,
		   goal, blueprint, competency_ids, questions_per_indicator, time_limit_minutes,
		   passing_score, shuffle_questions, shuffle_options, allow_skip, allow_back_navigation, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10::jsonb, $11, $12, $13, $14, $15, $16, $17, now())`,
		t.ID, t.Name, t.Version, t.ParentID, t.OwnerClerkID, t.Visibility, t.Lifecycle,
		t.Goal, blueprintJSON, competencyJSON, t.QuestionsPerIndicator, t.TimeLimitMinutes,
		t.PassingScore, t.ShuffleQuestions, t.ShuffleOptions, t.AllowSkip, t.AllowBackNavigation,
	)
	if err != nil {
		return fmt.Errorf("storage: create template: %w", err)
	}
	return nil
}

// GetTemplate returns one template by id. Soft-deleted templates are
// still returned; callers decide whether deletion matters for them.
func (db *DB) GetTemplate(ctx context.Context, id uuid.UUID) (model.Template, error) {
	t, err := scanTemplate(db.pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Template{}, ErrNotFound
	}
	if err != nil {
		return model.Template{}, fmt.Errorf("storage: get template: %w", err)
	}
	return t, nil
}

// ListTemplatesByOwner returns the owner's non-deleted templates,
// newest first.
func (db *DB) ListTemplatesByOwner(ctx context.Context, ownerClerkID string) ([]model.Template, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+templateColumns+` FROM templates
		 WHERE owner_clerk_id = $1 AND deleted_at IS NULL
		 ORDER BY created_at DESC`, ownerClerkID)
	if err != nil {
		return nil, fmt.Errorf("storage: list templates: %w", err)
	}
	defer rows.Close()

	var out []model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateDraftTemplate rewrites an unpublished template in place. Published
// templates are immutable; the WHERE clause enforces that and a published
// target surfaces as ErrNotFound mapped to an invalid-state error upstream.
func (db *DB) UpdateDraftTemplate(ctx context.Context, t model.Template) error {
	blueprintJSON, err := json.Marshal(t.Blueprint)
	if err != nil {
		return fmt.Errorf("storage: encode blueprint: %w", err)
	}
	competencyJSON, err := json.Marshal(t.CompetencyIDs)
	if err != nil {
		return fmt.Errorf("storage: encode competency ids: %w", err)
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE templates SET
		   name = $2, visibility = $3, goal = $4, blueprint = $5::jsonb,
		   competency_ids = $6::jsonb, questions_per_indicator = $7,
		   time_limit_minutes = $8, passing_score = $9, shuffle_questions = $10,
		   shuffle_options = $11, allow_skip = $12, allow_back_navigation = $13
		 WHERE id = $1 AND lifecycle = 'draft' AND deleted_at IS NULL`,
		t.ID, t.Name, t.Visibility, t.Goal, blueprintJSON, competencyJSON,
		t.QuestionsPerIndicator, t.TimeLimitMinutes, t.PassingScore,
		t.ShuffleQuestions, t.ShuffleOptions, t.AllowSkip, t.AllowBackNavigation,
	)
	if err != nil {
		return fmt.Errorf("storage: update draft template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTemplateLifecycle transitions a template's lifecycle, guarded by the
// expected current state so concurrent publishes cannot double-fire.
func (db *DB) SetTemplateLifecycle(ctx context.Context, id uuid.UUID, from, to model.Lifecycle) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE templates SET lifecycle = $3 WHERE id = $1 AND lifecycle = $2 AND deleted_at IS NULL`,
		id, from, to)
	if err != nil {
		return fmt.Errorf("storage: set template lifecycle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteTemplate marks a template deleted without touching sessions
// or results that reference it.
func (db *DB) SoftDeleteTemplate(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE templates SET deleted_at = $2 WHERE id = $1 AND deleted_at IS NULL`, id, at)
	if err != nil {
		return fmt.Errorf("storage: soft delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
