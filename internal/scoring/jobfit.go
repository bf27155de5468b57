package scoring

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/metriq-ai/metriq/internal/model"
)

// JobFit scores a candidate against an O*NET occupation benchmark using
// weighted cosine similarity over the shared competencies.
type JobFit struct{}

func NewJobFit() *JobFit { return &JobFit{} }

func (j *JobFit) Name() string { return "job_fit" }

func (j *JobFit) Score(ctx context.Context, in Input) (Outcome, error) {
	if in.ONet == nil {
		return Outcome{}, model.E(model.CodePreconditionFailed,
			"job_fit scoring requires an occupation profile")
	}

	acc := accumulate(in)
	scores := acc.breakdown()

	// Delta testing: benchmark competencies with no fresh answers reuse
	// the passport score, marked as imported in the breakdown.
	if in.Template.Blueprint.DeltaTesting && in.Passport != nil {
		for compID := range in.ONet.RequiredLevels {
			if _, tested := scores[compID]; tested {
				continue
			}
			stored, ok := in.Passport.CompetencyScores[compID]
			if !ok {
				continue
			}
			scores[compID] = model.CompetencyScore{
				Score:                stored,
				Percentage:           stored / 5 * 100,
				ImportedFromPassport: true,
			}
		}
	}

	// Candidate and benchmark vectors over the intersection, both in [0,1].
	type pair struct {
		candidate float64
		benchmark float64
		weight    float64
	}
	var (
		pairs       []pair
		totalWeight float64
	)
	for compID, required := range in.ONet.RequiredLevels {
		cs, ok := scores[compID]
		if !ok {
			continue
		}
		w := in.ONet.Importance[compID]
		if w <= 0 {
			w = 1
		}
		pairs = append(pairs, pair{
			candidate: cs.Score / 5,
			benchmark: required / model.ONetMaxLevel,
			weight:    w,
		})
		totalWeight += w

		cs.RequiredLevel = required
		cs.Gap = required - cs.Score
		scores[compID] = cs
	}

	similarity := 0.0
	if len(pairs) > 0 && totalWeight > 0 {
		var dot, normC, normB float64
		for _, p := range pairs {
			w := p.weight / totalWeight
			dot += w * p.candidate * p.benchmark
			normC += w * p.candidate * p.candidate
			normB += w * p.benchmark * p.benchmark
		}
		if normC > 0 && normB > 0 {
			similarity = clamp01(dot / (math.Sqrt(normC) * math.Sqrt(normB)))
		}
	}

	var out Outcome
	out.CompetencyScores = scores
	out.OverallPercentage = math.Min(100, 100*similarity*strictnessFactor(in.Template.Blueprint.StrictnessLevel))
	out.OverallScore = out.OverallPercentage / 20
	out.Passed = out.OverallPercentage >= in.Template.PassingScore
	out.ExtendedMetrics = map[string]float64{
		"similarity":       similarity,
		"strictnessFactor": strictnessFactor(in.Template.Blueprint.StrictnessLevel),
		"consistencyScore": consistencyScore(acc.scores),
	}
	return out, nil
}

// strictnessFactor maps the [0,100] strictness knob onto a multiplier:
// fully lenient boosts by 20%, neutral (50) passes through, fully strict
// penalises by 20%. Piecewise linear on both sides of neutral.
func strictnessFactor(level float64) float64 {
	level = math.Max(0, math.Min(100, level))
	if level == 0 {
		// Zero means "unset" for templates built before the knob existed.
		return 1.0
	}
	if level <= 50 {
		return 1.2 - 0.004*level
	}
	return 1.0 - 0.004*(level-50)
}

// GapReport lists benchmark deficits, largest first. Positive gap means
// the candidate is below the required level.
func GapReport(scores map[uuid.UUID]model.CompetencyScore) map[uuid.UUID]float64 {
	out := make(map[uuid.UUID]float64)
	for compID, cs := range scores {
		if cs.RequiredLevel > 0 {
			out[compID] = cs.Gap
		}
	}
	return out
}
