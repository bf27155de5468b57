package assembly

import (
	"context"
	"log/slog"
	"math/rand"

	"github.com/google/uuid"

	"github.com/metriq-ai/metriq/internal/model"
)

// IndicatorSource lists the active indicators of a competency.
type IndicatorSource interface {
	ListIndicators(ctx context.Context, competencyID uuid.UUID) ([]model.BehavioralIndicator, error)
}

// Engine drives the selector across the whole plan and produces the final
// question order. Persisting the order and incrementing exposures happen
// together in the session layer's create transaction; the engine itself
// only reads.
type Engine struct {
	selector   *Selector
	indicators IndicatorSource
	logger     *slog.Logger
}

func NewEngine(selector *Selector, indicators IndicatorSource, logger *slog.Logger) *Engine {
	return &Engine{selector: selector, indicators: indicators, logger: logger}
}

// Assemble walks the plan competency by competency, selects items per
// (indicator, band), applies the deterministic session shuffle, and
// returns the ordered item ids with accumulated warnings.
func (e *Engine) Assemble(ctx context.Context, t model.Template, plan Plan, seed int64) ([]uuid.UUID, []Warning, error) {
	var (
		order    []uuid.UUID
		warnings []Warning
		chosen   = make(map[uuid.UUID]bool)
	)

	for _, compID := range plan.Competencies {
		indicators, err := e.indicators.ListIndicators(ctx, compID)
		if err != nil {
			return nil, nil, err
		}
		if len(indicators) == 0 {
			e.logger.Warn("competency has no active indicators, skipping",
				slog.String("competency_id", compID.String()))
			continue
		}
		siblings := make([]uuid.UUID, len(indicators))
		for i, bi := range indicators {
			siblings[i] = bi.ID
		}

		for _, bi := range indicators {
			counts := bandCounts(plan.QuestionsPerIndicator, plan.Bands)
			for bandIdx, band := range plan.Bands {
				items, warns, err := e.selector.Select(ctx, SelectRequest{
					CompetencyID: compID,
					IndicatorID:  bi.ID,
					Siblings:     siblings,
					Band:         band,
					ContextScope: plan.ContextScope,
					Count:        counts[bandIdx],
					Seed:         seed,
					Exclude:      chosen,
				})
				if err != nil {
					return nil, nil, err
				}
				warnings = append(warnings, warns...)
				for _, it := range items {
					chosen[it.ID] = true
					order = append(order, it.ID)
				}
			}
		}
	}

	if len(order) == 0 {
		return nil, nil, model.E(model.CodePreconditionFailed,
			"no eligible items for template %s", t.ID)
	}

	if t.ShuffleQuestions {
		shuffleOrder(order, seed)
	}
	return order, warnings, nil
}

// bandCounts spreads questions_per_indicator across the plan's bands,
// earlier bands first. With fewer questions than bands only the leading
// bands receive stock; bands allocated zero are never requested from the
// selector and draw no warnings.
func bandCounts(perIndicator int, bands []model.DifficultyBand) []int {
	counts := make([]int, len(bands))
	if len(bands) == 0 {
		return counts
	}
	base := perIndicator / len(bands)
	rem := perIndicator % len(bands)
	for i := range counts {
		counts[i] = base
		if i < rem {
			counts[i]++
		}
	}
	return counts
}

// shuffleOrder is the deterministic session shuffle: the same seed always
// yields the same permutation so a retake's order can be audited.
func shuffleOrder(order []uuid.UUID, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
}

// ShuffleOptions permutes an item's answer options deterministically from
// the session seed and the item id, so each session sees a stable order.
func ShuffleOptions(opts []model.AnswerOption, seed int64, itemID uuid.UUID) []model.AnswerOption {
	out := append([]model.AnswerOption(nil), opts...)
	rng := rand.New(rand.NewSource(int64(seededHash(itemID, seed))))
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
