package scoring

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metriq-ai/metriq/internal/model"
)

// teamFitInput: two competencies with one MCQ item each so the fixture
// can hit exact fractional scores. c1 scores 4/5, c2 scores 2/5.
func teamFitInput() (Input, uuid.UUID, uuid.UUID) {
	c1 := uuid.New()
	c2 := uuid.New()
	ind1 := uuid.New()
	ind2 := uuid.New()

	rubric1 := &model.ScoringRubric{OptionPoints: map[string]float64{"a": 4}, MaxPoints: 5}
	rubric2 := &model.ScoringRubric{OptionPoints: map[string]float64{"a": 2}, MaxPoints: 5}
	item1 := model.Item{ID: uuid.New(), IndicatorID: ind1, Type: model.TypeMultipleChoice, Rubric: rubric1}
	item2 := model.Item{ID: uuid.New(), IndicatorID: ind2, Type: model.TypeMultipleChoice, Rubric: rubric2}

	in := Input{
		Template: model.Template{
			PassingScore: 30,
			Blueprint:    model.Blueprint{Goal: model.GoalTeamFit},
		},
		Answers: map[uuid.UUID]model.Answer{
			item1.ID: {Payload: model.AnswerPayload{SelectedOptionIDs: []string{"a"}}},
			item2.ID: {Payload: model.AnswerPayload{SelectedOptionIDs: []string{"a"}}},
		},
		Items: map[uuid.UUID]model.Item{
			item1.ID: item1,
			item2.ID: item2,
		},
		Competencies: map[uuid.UUID]model.Competency{
			c1: {ID: c1},
			c2: {ID: c2},
		},
		IndicatorCompetency: map[uuid.UUID]uuid.UUID{
			ind1: c1,
			ind2: c2,
		},
		Team: &model.TeamProfile{
			TeamID:      uuid.New(),
			MemberCount: 5,
			Saturation: map[uuid.UUID]float64{
				c1: 0.2, // big gap, candidate is strong here
				c2: 0.8, // nearly covered already
			},
		},
	}
	return in, c1, c2
}

func TestTeamFitRequiresProfile(t *testing.T) {
	in, _, _ := teamFitInput()
	in.Team = nil

	_, err := NewTeamFit().Score(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, model.CodePreconditionFailed, model.CodeOf(err))
}

func TestTeamFitScore(t *testing.T) {
	in, c1, c2 := teamFitInput()

	out, err := NewTeamFit().Score(context.Background(), in)
	require.NoError(t, err)

	// fit = (score/5) * (1 - saturation):
	// c1: 0.8 * 0.8 = 0.64, c2: 0.4 * 0.2 = 0.08.
	assert.InDelta(t, 0.64, out.CompetencyScores[c1].SaturationContribution, 1e-9)
	assert.InDelta(t, 0.08, out.CompetencyScores[c2].SaturationContribution, 1e-9)

	// meanFit 0.36; saturationRatio ((1-0.2)+(1-0.8))/2 = 0.5; no
	// personality profiles so diversity is 0 and the multiplier is 1.125.
	assert.InDelta(t, 0.5, out.ExtendedMetrics["saturationRatio"], 1e-9)
	assert.InDelta(t, 0.0, out.ExtendedMetrics["diversityRatio"], 1e-9)
	assert.InDelta(t, 1.125, out.ExtendedMetrics["teamFitMultiplier"], 1e-9)
	assert.InDelta(t, 40.5, out.OverallPercentage, 1e-9)
	assert.InDelta(t, 40.5/20, out.OverallScore, 1e-9)
	assert.True(t, out.Passed)
}

func TestBigFiveDiversity(t *testing.T) {
	candidate := map[model.BigFiveTrait]float64{
		model.TraitOpenness:      80,
		model.TraitExtraversion:  20,
		model.TraitAgreeableness: 50,
	}
	team := map[model.BigFiveTrait]float64{
		model.TraitOpenness:     40,
		model.TraitExtraversion: 60,
	}

	// Shared traits only: |80-40|/100 and |20-60|/100, mean 0.4.
	assert.InDelta(t, 0.4, bigFiveDiversity(candidate, team), 1e-9)

	assert.Equal(t, 0.0, bigFiveDiversity(nil, team))
	assert.Equal(t, 0.0, bigFiveDiversity(candidate, nil))
	assert.Equal(t, 0.0, bigFiveDiversity(
		map[model.BigFiveTrait]float64{model.TraitOpenness: 50},
		map[model.BigFiveTrait]float64{model.TraitExtraversion: 50},
	))
}

func TestTeamFitMultiplierBounds(t *testing.T) {
	assert.InDelta(t, 1.0, teamFitMultiplier(0, 0), 1e-9)
	assert.InDelta(t, 1.5, teamFitMultiplier(1, 1), 1e-9)
	assert.InDelta(t, 1.25, teamFitMultiplier(0.5, 0.5), 1e-9)
}
