// Package scoring converts a finished session's answers into the single
// canonical result: per-question normalisation, per-competency averaging,
// and goal-specific analytics dispatched by the orchestrator.
package scoring

import (
	"math"

	"github.com/metriq-ai/metriq/internal/model"
)

// Normalize maps one answer onto [0,1] for its item. The second return is
// false when the answer contributes nothing to scoring (free text, skips,
// malformed payloads).
func Normalize(item model.Item, a model.Answer) (float64, bool) {
	if a.IsSkipped || !item.Type.Scored() {
		return 0, false
	}

	switch item.Type {
	case model.TypeLikert:
		if a.Payload.LikertValue == nil {
			return 0, false
		}
		v := *a.Payload.LikertValue
		if v < 1 || v > 7 {
			return 0, false
		}
		return float64(v-1) / 6.0, true

	case model.TypeMultipleChoice, model.TypeSituationalJudgment:
		if item.Rubric == nil || item.Rubric.MaxPoints <= 0 {
			return 0, false
		}
		var points float64
		for _, id := range a.Payload.SelectedOptionIDs {
			points += item.Rubric.OptionPoints[id]
		}
		return clamp01(points / item.Rubric.MaxPoints), true

	case model.TypeRanking:
		if item.Rubric == nil || len(item.Rubric.CorrectOrder) < 2 {
			return 0, false
		}
		return rankingScore(item.Rubric.CorrectOrder, a.Payload.Ranking), true

	default:
		return 0, false
	}
}

// rankingScore is the fraction of concordant pairs between the submitted
// ranking and the rubric's correct order. A perfect order scores 1, a
// full reversal 0.
func rankingScore(correct, submitted []string) float64 {
	pos := make(map[string]int, len(submitted))
	for i, id := range submitted {
		pos[id] = i
	}

	var concordant, pairs int
	for i := 0; i < len(correct); i++ {
		pi, ok := pos[correct[i]]
		if !ok {
			continue
		}
		for j := i + 1; j < len(correct); j++ {
			pj, ok := pos[correct[j]]
			if !ok {
				continue
			}
			pairs++
			if pi < pj {
				concordant++
			}
		}
	}
	if pairs == 0 {
		return 0
	}
	return float64(concordant) / float64(pairs)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
