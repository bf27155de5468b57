package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBandReliability(t *testing.T) {
	const minSample = 200

	assert.Equal(t, ReliabilityInsufficientData, BandReliability(0.95, 199, minSample))
	assert.Equal(t, ReliabilityReliable, BandReliability(0.70, 200, minSample))
	assert.Equal(t, ReliabilityReliable, BandReliability(0.92, 1000, minSample))
	assert.Equal(t, ReliabilityAcceptable, BandReliability(0.60, 200, minSample))
	assert.Equal(t, ReliabilityAcceptable, BandReliability(0.69, 200, minSample))
	assert.Equal(t, ReliabilityUnreliable, BandReliability(0.59, 200, minSample))
	assert.Equal(t, ReliabilityUnreliable, BandReliability(-0.2, 500, minSample))
}

func TestValidateItem(t *testing.T) {
	likert := Item{Type: TypeLikert}
	assert.NoError(t, ValidateItem(likert))

	mcq := Item{Type: TypeMultipleChoice}
	assert.Error(t, ValidateItem(mcq), "choice types need a rubric")
	mcq.Rubric = &ScoringRubric{OptionPoints: map[string]float64{"a": 1}}
	assert.Error(t, ValidateItem(mcq), "max_points must be positive")
	mcq.Rubric.MaxPoints = 1
	assert.NoError(t, ValidateItem(mcq))

	ranking := Item{Type: TypeRanking, Rubric: &ScoringRubric{CorrectOrder: []string{"x"}}}
	assert.Error(t, ValidateItem(ranking), "ranking needs at least two ordered entries")
	ranking.Rubric.CorrectOrder = []string{"x", "y"}
	assert.NoError(t, ValidateItem(ranking))

	assert.NoError(t, ValidateItem(Item{Type: TypeFreeText}))
	assert.Error(t, ValidateItem(Item{Type: "essay"}))
}
