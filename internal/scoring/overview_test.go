package scoring

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metriq-ai/metriq/internal/model"
)

// fakeReliability serves a canned Big-Five reliability table.
type fakeReliability struct {
	records map[model.BigFiveTrait]model.BigFiveReliability
	err     error
}

func (f *fakeReliability) ListBigFiveReliability(context.Context) (map[model.BigFiveTrait]model.BigFiveReliability, error) {
	return f.records, f.err
}

// overviewFixture builds an input with two competencies, one likert item
// each, answered 7 and 5. Competency A maps to openness.
type overviewFixture struct {
	in    Input
	compA uuid.UUID
	compB uuid.UUID
}

func newOverviewFixture() overviewFixture {
	compA := uuid.New()
	compB := uuid.New()
	indA := uuid.New()
	indB := uuid.New()
	itemA := model.Item{ID: uuid.New(), IndicatorID: indA, Type: model.TypeLikert}
	itemB := model.Item{ID: uuid.New(), IndicatorID: indB, Type: model.TypeLikert}

	seven := 7
	five := 5
	openness := model.TraitOpenness

	return overviewFixture{
		compA: compA,
		compB: compB,
		in: Input{
			Template: model.Template{
				PassingScore: 70,
				Blueprint:    model.Blueprint{IncludeBigFive: true},
			},
			Answers: map[uuid.UUID]model.Answer{
				itemA.ID: {Payload: model.AnswerPayload{LikertValue: &seven}},
				itemB.ID: {Payload: model.AnswerPayload{LikertValue: &five}},
			},
			Items: map[uuid.UUID]model.Item{
				itemA.ID: itemA,
				itemB.ID: itemB,
			},
			Competencies: map[uuid.UUID]model.Competency{
				compA: {ID: compA, BigFiveTrait: &openness},
				compB: {ID: compB},
			},
			IndicatorCompetency: map[uuid.UUID]uuid.UUID{
				indA: compA,
				indB: compB,
			},
		},
	}
}

func reliableTrait(trait model.BigFiveTrait) model.BigFiveReliability {
	alpha := 0.82
	return model.BigFiveReliability{Trait: trait, Alpha: &alpha, SampleSize: 500, Status: model.ReliabilityReliable}
}

func TestOverviewScore(t *testing.T) {
	fix := newOverviewFixture()
	o := NewOverview(&fakeReliability{records: map[model.BigFiveTrait]model.BigFiveReliability{
		model.TraitOpenness: reliableTrait(model.TraitOpenness),
	}})

	out, err := o.Score(context.Background(), fix.in)
	require.NoError(t, err)

	// compA: likert 7 -> 1.0; compB: likert 5 -> 2/3.
	require.Len(t, out.CompetencyScores, 2)
	assert.InDelta(t, 100.0, out.CompetencyScores[fix.compA].Percentage, 1e-9)
	assert.InDelta(t, 5.0, out.CompetencyScores[fix.compA].Score, 1e-9)
	assert.InDelta(t, 100.0*2.0/3.0, out.CompetencyScores[fix.compB].Percentage, 1e-9)
	assert.Equal(t, 1, out.CompetencyScores[fix.compA].QuestionsAnswered)

	// Overall is the unweighted mean: (100 + 66.67) / 2 = 83.33.
	assert.InDelta(t, 250.0/3.0, out.OverallPercentage, 1e-9)
	assert.InDelta(t, 250.0/3.0/20.0, out.OverallScore, 1e-9)
	assert.True(t, out.Passed)

	// Only compA carries a trait label, answered 7 -> 100.
	require.NotNil(t, out.BigFiveProfile)
	assert.InDelta(t, 100.0, out.BigFiveProfile[model.TraitOpenness], 1e-9)

	assert.Contains(t, out.ExtendedMetrics, "consistencyScore")
}

func TestOverviewFailsBelowThreshold(t *testing.T) {
	fix := newOverviewFixture()
	fix.in.Template.PassingScore = 90

	o := NewOverview(&fakeReliability{records: map[model.BigFiveTrait]model.BigFiveReliability{
		model.TraitOpenness: reliableTrait(model.TraitOpenness),
	}})
	out, err := o.Score(context.Background(), fix.in)
	require.NoError(t, err)
	assert.False(t, out.Passed)
}

func TestOverviewSuppressesUnreliableBigFive(t *testing.T) {
	fix := newOverviewFixture()

	tests := []struct {
		name    string
		records map[model.BigFiveTrait]model.BigFiveReliability
	}{
		{"missing trait record", map[model.BigFiveTrait]model.BigFiveReliability{}},
		{"unreliable trait", map[model.BigFiveTrait]model.BigFiveReliability{
			model.TraitOpenness: {Trait: model.TraitOpenness, Status: model.ReliabilityUnreliable},
		}},
		{"acceptable is not reliable", map[model.BigFiveTrait]model.BigFiveReliability{
			model.TraitOpenness: {Trait: model.TraitOpenness, Status: model.ReliabilityAcceptable},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOverview(&fakeReliability{records: tt.records})
			out, err := o.Score(context.Background(), fix.in)
			require.NoError(t, err)
			assert.Nil(t, out.BigFiveProfile)
			// Competency scores still come through.
			assert.Len(t, out.CompetencyScores, 2)
		})
	}
}

func TestOverviewSkipsBigFiveWhenExcluded(t *testing.T) {
	fix := newOverviewFixture()
	fix.in.Template.Blueprint.IncludeBigFive = false

	// Reader must not matter when the blueprint excludes the profile.
	o := NewOverview(&fakeReliability{err: assert.AnError})
	out, err := o.Score(context.Background(), fix.in)
	require.NoError(t, err)
	assert.Nil(t, out.BigFiveProfile)
}
