package scoring

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/metriq-ai/metriq/internal/model"
)

// Input is everything a strategy may read. The orchestrator assembles it
// once so strategies stay pure functions of their input plus the
// reliability tables.
type Input struct {
	Session      model.Session
	Template     model.Template
	Answers      map[uuid.UUID]model.Answer
	Items        map[uuid.UUID]model.Item
	Competencies map[uuid.UUID]model.Competency
	// IndicatorCompetency maps item indicators onto their competency.
	IndicatorCompetency map[uuid.UUID]uuid.UUID
	// Collaborator profiles; nil when the goal doesn't need them or the
	// provider stayed unavailable (degraded run).
	ONet     *model.ONetProfile
	Team     *model.TeamProfile
	Passport *model.Passport
}

// Outcome is a strategy's verdict, merged into the result row by the
// orchestrator.
type Outcome struct {
	OverallScore      float64 // 0-5
	OverallPercentage float64 // 0-100
	Passed            bool
	CompetencyScores  map[uuid.UUID]model.CompetencyScore
	BigFiveProfile    map[model.BigFiveTrait]float64
	ExtendedMetrics   map[string]float64
}

// Strategy scores one goal.
type Strategy interface {
	Name() string
	Score(ctx context.Context, in Input) (Outcome, error)
}

// competencyAccumulator collects per-question normalised scores by
// competency.
type competencyAccumulator struct {
	sum   map[uuid.UUID]float64
	count map[uuid.UUID]int
	// all normalised per-question scores, for consistency metrics
	scores []float64
}

// accumulate walks the answers once and buckets normalised scores by the
// owning competency.
func accumulate(in Input) competencyAccumulator {
	acc := competencyAccumulator{
		sum:   make(map[uuid.UUID]float64),
		count: make(map[uuid.UUID]int),
	}
	for qid, a := range in.Answers {
		item, ok := in.Items[qid]
		if !ok {
			continue
		}
		norm, scored := Normalize(item, a)
		if !scored {
			continue
		}
		compID, ok := in.IndicatorCompetency[item.IndicatorID]
		if !ok {
			continue
		}
		acc.sum[compID] += norm
		acc.count[compID]++
		acc.scores = append(acc.scores, norm)
	}
	return acc
}

// breakdown converts the accumulator into the per-competency entries all
// strategies share: score on 0-5, percentage, counts, correct-equivalent.
func (acc competencyAccumulator) breakdown() map[uuid.UUID]model.CompetencyScore {
	out := make(map[uuid.UUID]model.CompetencyScore, len(acc.sum))
	for compID, sum := range acc.sum {
		n := acc.count[compID]
		avg := sum / float64(n)
		out[compID] = model.CompetencyScore{
			Score:             avg * 5,
			Percentage:        avg * 100,
			QuestionsAnswered: n,
			CorrectEquivalent: sum,
		}
	}
	return out
}

// bigFiveProfile averages trait buckets into trait -> 0-100 scores.
// Competencies without a trait label contribute nothing.
func bigFiveProfile(in Input, acc competencyAccumulator) map[model.BigFiveTrait]float64 {
	sums := make(map[model.BigFiveTrait]float64)
	counts := make(map[model.BigFiveTrait]int)
	for qid, a := range in.Answers {
		item, ok := in.Items[qid]
		if !ok {
			continue
		}
		norm, scored := Normalize(item, a)
		if !scored {
			continue
		}
		compID, ok := in.IndicatorCompetency[item.IndicatorID]
		if !ok {
			continue
		}
		comp, ok := in.Competencies[compID]
		if !ok || comp.BigFiveTrait == nil {
			continue
		}
		sums[*comp.BigFiveTrait] += norm
		counts[*comp.BigFiveTrait]++
	}
	if len(sums) == 0 {
		return nil
	}
	out := make(map[model.BigFiveTrait]float64, len(sums))
	for trait, sum := range sums {
		out[trait] = sum / float64(counts[trait]) * 100
	}
	return out
}

// consistencyScore is 1 − stdev of the per-question normalised scores.
func consistencyScore(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var mean float64
	for _, v := range scores {
		mean += v
	}
	mean /= float64(len(scores))

	var variance float64
	for _, v := range scores {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(scores))

	return clamp01(1 - math.Sqrt(variance))
}

// answeredSkipped tallies the session's answered and skipped counts.
func answeredSkipped(answers map[uuid.UUID]model.Answer) (answered, skipped int) {
	for _, a := range answers {
		if a.IsSkipped {
			skipped++
		} else {
			answered++
		}
	}
	return answered, skipped
}

// totalTime sums per-answer time spent.
func totalTime(answers map[uuid.UUID]model.Answer) int {
	var total int
	for _, a := range answers {
		total += a.TimeSpentSeconds
	}
	return total
}
