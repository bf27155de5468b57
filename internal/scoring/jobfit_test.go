package scoring

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metriq-ai/metriq/internal/model"
)

func TestStrictnessFactor(t *testing.T) {
	tests := []struct {
		level float64
		want  float64
	}{
		{0, 1.0}, // unset
		{1, 1.196},
		{25, 1.1},
		{50, 1.0},
		{75, 0.9},
		{100, 0.8},
		{-10, 1.0},  // clamps to 0, unset
		{1000, 0.8}, // clamps to 100
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, strictnessFactor(tt.level), 1e-9, "level %v", tt.level)
	}
}

// jobFitFixture: one competency with a likert item answered at the given
// value, benchmarked at the given required level.
func jobFitInput(likert int, required float64, strictness float64) (Input, uuid.UUID) {
	compID := uuid.New()
	indID := uuid.New()
	item := model.Item{ID: uuid.New(), IndicatorID: indID, Type: model.TypeLikert}

	return Input{
		Template: model.Template{
			PassingScore: 60,
			Blueprint: model.Blueprint{
				Goal:            model.GoalJobFit,
				StrictnessLevel: strictness,
			},
		},
		Answers: map[uuid.UUID]model.Answer{
			item.ID: {Payload: model.AnswerPayload{LikertValue: &likert}},
		},
		Items:               map[uuid.UUID]model.Item{item.ID: item},
		Competencies:        map[uuid.UUID]model.Competency{compID: {ID: compID}},
		IndicatorCompetency: map[uuid.UUID]uuid.UUID{indID: compID},
		ONet: &model.ONetProfile{
			OccupationCode: "15-1252.00",
			RequiredLevels: map[uuid.UUID]float64{compID: required},
			Importance:     map[uuid.UUID]float64{compID: 3},
		},
	}, compID
}

func TestJobFitRequiresProfile(t *testing.T) {
	in, _ := jobFitInput(7, 5, 50)
	in.ONet = nil

	_, err := NewJobFit().Score(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, model.CodePreconditionFailed, model.CodeOf(err))
}

func TestJobFitPerfectMatch(t *testing.T) {
	in, compID := jobFitInput(7, 5, 50)

	out, err := NewJobFit().Score(context.Background(), in)
	require.NoError(t, err)

	// Candidate vector equals the benchmark vector: similarity 1, neutral
	// strictness passes it through.
	assert.InDelta(t, 1.0, out.ExtendedMetrics["similarity"], 1e-9)
	assert.InDelta(t, 100.0, out.OverallPercentage, 1e-9)
	assert.InDelta(t, 5.0, out.OverallScore, 1e-9)
	assert.True(t, out.Passed)

	cs := out.CompetencyScores[compID]
	assert.InDelta(t, 5.0, cs.RequiredLevel, 1e-9)
	assert.InDelta(t, 0.0, cs.Gap, 1e-9)
}

func TestJobFitGapAndStrictness(t *testing.T) {
	// Likert 4 -> norm 0.5 -> score 2.5 against a required level of 4.
	in, compID := jobFitInput(4, 4, 100)

	out, err := NewJobFit().Score(context.Background(), in)
	require.NoError(t, err)

	cs := out.CompetencyScores[compID]
	assert.InDelta(t, 1.5, cs.Gap, 1e-9)

	// Single-pair cosine similarity is 1 regardless of magnitude; the
	// strict setting takes 20% off the top.
	assert.InDelta(t, 80.0, out.OverallPercentage, 1e-9)

	gaps := GapReport(out.CompetencyScores)
	require.Len(t, gaps, 1)
	assert.InDelta(t, 1.5, gaps[compID], 1e-9)
}

func TestJobFitDeltaImportsPassportScores(t *testing.T) {
	in, testedComp := jobFitInput(7, 5, 50)
	in.Template.Blueprint.DeltaTesting = true

	// A second benchmark competency with no fresh answers but a stored
	// passport score.
	storedComp := uuid.New()
	in.ONet.RequiredLevels[storedComp] = 4
	in.ONet.Importance[storedComp] = 2
	in.Passport = &model.Passport{
		ClerkUserID:      "user_123",
		CompetencyScores: map[uuid.UUID]float64{storedComp: 4.0},
	}

	out, err := NewJobFit().Score(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, out.CompetencyScores, 2)
	imported := out.CompetencyScores[storedComp]
	assert.True(t, imported.ImportedFromPassport)
	assert.InDelta(t, 4.0, imported.Score, 1e-9)
	assert.InDelta(t, 80.0, imported.Percentage, 1e-9)

	fresh := out.CompetencyScores[testedComp]
	assert.False(t, fresh.ImportedFromPassport)
}

func TestJobFitIgnoresPassportWithoutDeltaTesting(t *testing.T) {
	in, _ := jobFitInput(7, 5, 50)

	storedComp := uuid.New()
	in.ONet.RequiredLevels[storedComp] = 4
	in.Passport = &model.Passport{
		CompetencyScores: map[uuid.UUID]float64{storedComp: 4.0},
	}

	out, err := NewJobFit().Score(context.Background(), in)
	require.NoError(t, err)
	assert.Len(t, out.CompetencyScores, 1)
}
