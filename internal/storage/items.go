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

const itemColumns = `id, indicator_id, text, type, options, rubric, difficulty_band,
	 time_limit_seconds, metadata, active, exposure_count, created_at`

func scanItem(row pgx.Row) (model.Item, error) {
	var (
		it          model.Item
		optionsRaw  []byte
		rubricRaw   []byte
		metadataRaw []byte
	)
	if err := row.Scan(&it.ID, &it.IndicatorID, &it.Text, &it.Type, &optionsRaw, &rubricRaw,
		&it.DifficultyBand, &it.TimeLimitSeconds, &metadataRaw, &it.Active,
		&it.ExposureCount, &it.CreatedAt); err != nil {
		return model.Item{}, err
	}
	if len(optionsRaw) > 0 {
		if err := json.Unmarshal(optionsRaw, &it.Options); err != nil {
			return model.Item{}, fmt.Errorf("storage: decode item options: %w", err)
		}
	}
	if len(rubricRaw) > 0 {
		if err := json.Unmarshal(rubricRaw, &it.Rubric); err != nil {
			return model.Item{}, fmt.Errorf("storage: decode item rubric: %w", err)
		}
	}
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &it.Metadata); err != nil {
			return model.Item{}, fmt.Errorf("storage: decode item metadata: %w", err)
		}
	}
	return it, nil
}

func scanItems(rows pgx.Rows) ([]model.Item, error) {
	defer rows.Close()
	var items []model.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetItem returns one item by id.
func (db *DB) GetItem(ctx context.Context, id uuid.UUID) (model.Item, error) {
	it, err := scanItem(db.pool.QueryRow(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Item{}, ErrNotFound
	}
	if err != nil {
		return model.Item{}, fmt.Errorf("storage: get item: %w", err)
	}
	return it, nil
}

// GetItemsByIDs bulk-loads items. Missing ids are silently absent from the
// result; callers that care compare lengths.
func (db *DB) GetItemsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Item, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("storage: get items by ids: %w", err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, fmt.Errorf("storage: get items by ids: %w", err)
	}
	out := make(map[uuid.UUID]model.Item, len(items))
	for _, it := range items {
		out[it.ID] = it
	}
	return out, nil
}

// CandidateFilter scopes a selector query to one indicator and band.
type CandidateFilter struct {
	IndicatorID  uuid.UUID
	Band         model.DifficultyBand
	ContextScope model.ContextScope // zero value matches any scope
}

// ListCandidates returns active items in the indicator/band slice whose
// statistics keep them eligible for new assembly (active or probation;
// items with no statistics row yet count as probation). Each item carries
// the owning indicator's context scope so the selector can rank scope
// matches ahead of universal fallbacks. Ordered by scope match then
// ascending exposure_count; the selector applies its deterministic
// tiebreak on top.
func (db *DB) ListCandidates(ctx context.Context, f CandidateFilter) ([]model.Item, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+prefixedItemColumns("i")+`, bi.context_scope
		 FROM items i
		 JOIN behavioral_indicators bi ON bi.id = i.indicator_id
		 LEFT JOIN item_statistics s ON s.item_id = i.id
		 WHERE i.indicator_id = $1
		   AND i.difficulty_band = $2
		   AND i.active
		   AND bi.active
		   AND ($3 = '' OR bi.context_scope = $3 OR bi.context_scope = 'universal')
		   AND (s.item_id IS NULL OR s.validity_status IN ('active', 'probation'))
		 ORDER BY (bi.context_scope = $3) DESC, i.exposure_count ASC, i.id ASC`,
		f.IndicatorID, f.Band, string(f.ContextScope),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list candidates: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		it, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: list candidates: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list candidates: %w", err)
	}
	return items, nil
}

// scanCandidate reads the item columns plus the joined indicator scope.
func scanCandidate(row pgx.Row) (model.Item, error) {
	var (
		it          model.Item
		optionsRaw  []byte
		rubricRaw   []byte
		metadataRaw []byte
	)
	if err := row.Scan(&it.ID, &it.IndicatorID, &it.Text, &it.Type, &optionsRaw, &rubricRaw,
		&it.DifficultyBand, &it.TimeLimitSeconds, &metadataRaw, &it.Active,
		&it.ExposureCount, &it.CreatedAt, &it.IndicatorScope); err != nil {
		return model.Item{}, err
	}
	if len(optionsRaw) > 0 {
		if err := json.Unmarshal(optionsRaw, &it.Options); err != nil {
			return model.Item{}, fmt.Errorf("storage: decode item options: %w", err)
		}
	}
	if len(rubricRaw) > 0 {
		if err := json.Unmarshal(rubricRaw, &it.Rubric); err != nil {
			return model.Item{}, fmt.Errorf("storage: decode item rubric: %w", err)
		}
	}
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &it.Metadata); err != nil {
			return model.Item{}, fmt.Errorf("storage: decode item metadata: %w", err)
		}
	}
	return it, nil
}

// ListItemsByTag returns active items whose metadata tags contain tag,
// using JSONB containment so the GIN index applies.
func (db *DB) ListItemsByTag(ctx context.Context, tag string) ([]model.Item, error) {
	probe, err := json.Marshal(map[string]any{"tags": []string{tag}})
	if err != nil {
		return nil, fmt.Errorf("storage: encode tag probe: %w", err)
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM items WHERE active AND metadata @> $1::jsonb`, probe)
	if err != nil {
		return nil, fmt.Errorf("storage: list items by tag: %w", err)
	}
	items, err := scanItems(rows)
	if err != nil {
		return nil, fmt.Errorf("storage: list items by tag: %w", err)
	}
	return items, nil
}

// ListIndicators returns the active indicators of a competency.
func (db *DB) ListIndicators(ctx context.Context, competencyID uuid.UUID) ([]model.BehavioralIndicator, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, competency_id, name, context_scope, active, created_at
		 FROM behavioral_indicators
		 WHERE competency_id = $1 AND active
		 ORDER BY created_at ASC, id ASC`,
		competencyID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list indicators: %w", err)
	}
	defer rows.Close()

	var indicators []model.BehavioralIndicator
	for rows.Next() {
		var bi model.BehavioralIndicator
		if err := rows.Scan(&bi.ID, &bi.CompetencyID, &bi.Name, &bi.ContextScope, &bi.Active, &bi.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan indicator: %w", err)
		}
		indicators = append(indicators, bi)
	}
	return indicators, rows.Err()
}

// MapIndicatorCompetencies returns indicator_id -> competency_id for the
// given indicators. Scoring uses it to bucket answers by competency.
func (db *DB) MapIndicatorCompetencies(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, competency_id FROM behavioral_indicators WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("storage: map indicator competencies: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]uuid.UUID, len(ids))
	for rows.Next() {
		var indicatorID, competencyID uuid.UUID
		if err := rows.Scan(&indicatorID, &competencyID); err != nil {
			return nil, fmt.Errorf("storage: scan indicator competency: %w", err)
		}
		out[indicatorID] = competencyID
	}
	return out, rows.Err()
}

// GetCompetency returns one competency by id.
func (db *DB) GetCompetency(ctx context.Context, id uuid.UUID) (model.Competency, error) {
	var c model.Competency
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, description, big_five_trait, active, created_at
		 FROM competencies WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Description, &c.BigFiveTrait, &c.Active, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Competency{}, ErrNotFound
	}
	if err != nil {
		return model.Competency{}, fmt.Errorf("storage: get competency: %w", err)
	}
	return c, nil
}

// GetCompetenciesByIDs bulk-loads competencies, keyed by id.
func (db *DB) GetCompetenciesByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Competency, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, name, description, big_five_trait, active, created_at
		 FROM competencies WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("storage: get competencies by ids: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]model.Competency, len(ids))
	for rows.Next() {
		var c model.Competency
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.BigFiveTrait, &c.Active, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan competency: %w", err)
		}
		out[c.ID] = c
	}
	return out, rows.Err()
}

// ListActiveCompetencies returns all active competencies.
func (db *DB) ListActiveCompetencies(ctx context.Context) ([]model.Competency, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, name, description, big_five_trait, active, created_at
		 FROM competencies WHERE active ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list competencies: %w", err)
	}
	defer rows.Close()

	var out []model.Competency
	for rows.Next() {
		var c model.Competency
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.BigFiveTrait, &c.Active, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan competency: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// prefixedItemColumns qualifies the item column list with a table alias.
func prefixedItemColumns(alias string) string {
	return alias + `.id, ` + alias + `.indicator_id, ` + alias + `.text, ` + alias + `.type, ` +
		alias + `.options, ` + alias + `.rubric, ` + alias + `.difficulty_band, ` +
		alias + `.time_limit_seconds, ` + alias + `.metadata, ` + alias + `.active, ` +
		alias + `.exposure_count, ` + alias + `.created_at`
}
