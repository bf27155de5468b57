package scoring

import (
	"context"
	"math"

	"github.com/metriq-ai/metriq/internal/model"
)

// TeamFit scores a candidate by how much they strengthen the weakest
// parts of an existing team: fit per competency is the candidate's score
// weighted by the team's remaining skill gap.
type TeamFit struct{}

func NewTeamFit() *TeamFit { return &TeamFit{} }

func (t *TeamFit) Name() string { return "team_fit" }

func (t *TeamFit) Score(ctx context.Context, in Input) (Outcome, error) {
	if in.Team == nil {
		return Outcome{}, model.E(model.CodePreconditionFailed,
			"team_fit scoring requires a team profile")
	}

	acc := accumulate(in)
	scores := acc.breakdown()

	var (
		fitSum float64
		fitN   int
		satSum float64
	)
	for compID, cs := range scores {
		saturation := in.Team.Saturation[compID]
		fit := (cs.Score / 5) * (1 - saturation)
		cs.SaturationContribution = fit
		scores[compID] = cs

		fitSum += fit
		fitN++
		satSum += 1 - saturation
	}

	meanFit := 0.0
	saturationRatio := 0.0
	if fitN > 0 {
		meanFit = fitSum / float64(fitN)
		saturationRatio = satSum / float64(fitN)
	}

	diversity := bigFiveDiversity(bigFiveProfile(in, acc), in.Team.AveragePersonality)
	multiplier := teamFitMultiplier(diversity, saturationRatio)

	var out Outcome
	out.CompetencyScores = scores
	out.OverallPercentage = math.Min(100, 100*meanFit*multiplier)
	out.OverallScore = out.OverallPercentage / 20
	out.Passed = out.OverallPercentage >= in.Template.PassingScore
	out.ExtendedMetrics = map[string]float64{
		"diversityRatio":    diversity,
		"saturationRatio":   saturationRatio,
		"teamFitMultiplier": multiplier,
		"consistencyScore":  consistencyScore(acc.scores),
	}
	return out, nil
}

// bigFiveDiversity is the mean absolute trait distance between candidate
// and team average, normalised to [0,1]. Missing profiles contribute zero
// diversity rather than failing the run.
func bigFiveDiversity(candidate, team map[model.BigFiveTrait]float64) float64 {
	if len(candidate) == 0 || len(team) == 0 {
		return 0
	}
	var sum float64
	var n int
	for _, trait := range model.AllTraits {
		c, okC := candidate[trait]
		t, okT := team[trait]
		if !okC || !okT {
			continue
		}
		sum += math.Abs(c-t) / 100
		n++
	}
	if n == 0 {
		return 0
	}
	return clamp01(sum / float64(n))
}

// teamFitMultiplier rewards personality diversity and large skill gaps,
// capped so the multiplier stays in [1.0, 1.5].
func teamFitMultiplier(diversity, saturationRatio float64) float64 {
	return 1 + 0.25*diversity + 0.25*saturationRatio
}
