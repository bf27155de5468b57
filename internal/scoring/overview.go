package scoring

import (
	"context"

	"github.com/google/uuid"

	"github.com/metriq-ai/metriq/internal/model"
)

// ReliabilityReader exposes the per-trait reliability table to the
// overview strategy for Big-Five suppression.
type ReliabilityReader interface {
	ListBigFiveReliability(ctx context.Context) (map[model.BigFiveTrait]model.BigFiveReliability, error)
}

// Overview is the plain competency assessment: unweighted mean of
// competency scores, pass/fail against the template threshold, optional
// reliability-gated Big-Five projection.
type Overview struct {
	reliability ReliabilityReader
}

func NewOverview(reliability ReliabilityReader) *Overview {
	return &Overview{reliability: reliability}
}

func (o *Overview) Name() string { return "overview" }

func (o *Overview) Score(ctx context.Context, in Input) (Outcome, error) {
	acc := accumulate(in)
	scores := acc.breakdown()

	var out Outcome
	out.CompetencyScores = scores
	out.OverallPercentage = meanPercentage(scores)
	out.OverallScore = out.OverallPercentage / 20 // 0-100 -> 0-5
	out.Passed = out.OverallPercentage >= in.Template.PassingScore

	if in.Template.Blueprint.IncludeBigFive {
		profile := bigFiveProfile(in, acc)
		if profile != nil {
			suppressed, err := o.anyTraitUnreliable(ctx, profile)
			if err != nil {
				return Outcome{}, err
			}
			if !suppressed {
				out.BigFiveProfile = profile
			}
		}
	}

	out.ExtendedMetrics = map[string]float64{
		"consistencyScore": consistencyScore(acc.scores),
	}
	return out, nil
}

// anyTraitUnreliable reports whether any trait contributing to the
// profile lacks Reliable status. One weak trait suppresses the whole
// profile.
func (o *Overview) anyTraitUnreliable(ctx context.Context, profile map[model.BigFiveTrait]float64) (bool, error) {
	records, err := o.reliability.ListBigFiveReliability(ctx)
	if err != nil {
		return false, err
	}
	for trait := range profile {
		rec, ok := records[trait]
		if !ok || rec.Status != model.ReliabilityReliable {
			return true, nil
		}
	}
	return false, nil
}

func meanPercentage(scores map[uuid.UUID]model.CompetencyScore) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, cs := range scores {
		sum += cs.Percentage
	}
	return sum / float64(len(scores))
}
