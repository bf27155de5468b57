package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/metriq-ai/metriq/internal/model"
)

func likertAnswer(v int) model.Answer {
	return model.Answer{Payload: model.AnswerPayload{LikertValue: &v}}
}

func TestNormalizeLikert(t *testing.T) {
	item := model.Item{Type: model.TypeLikert}

	tests := []struct {
		value int
		want  float64
	}{
		{1, 0},
		{4, 0.5},
		{6, 5.0 / 6.0},
		{7, 1},
	}
	for _, tt := range tests {
		got, scored := Normalize(item, likertAnswer(tt.value))
		assert.True(t, scored)
		assert.InDelta(t, tt.want, got, 1e-9, "likert %d", tt.value)
	}

	// Out-of-range values contribute nothing.
	_, scored := Normalize(item, likertAnswer(0))
	assert.False(t, scored)
	_, scored = Normalize(item, likertAnswer(8))
	assert.False(t, scored)
}

func TestNormalizeMultipleChoice(t *testing.T) {
	item := model.Item{
		Type: model.TypeMultipleChoice,
		Rubric: &model.ScoringRubric{
			OptionPoints: map[string]float64{"a": 5, "b": 2, "c": 0},
			MaxPoints:    5,
		},
	}

	got, scored := Normalize(item, model.Answer{
		Payload: model.AnswerPayload{SelectedOptionIDs: []string{"a"}},
	})
	assert.True(t, scored)
	assert.InDelta(t, 1.0, got, 1e-9)

	got, scored = Normalize(item, model.Answer{
		Payload: model.AnswerPayload{SelectedOptionIDs: []string{"b"}},
	})
	assert.True(t, scored)
	assert.InDelta(t, 0.4, got, 1e-9)

	// Points above max clamp to 1.
	got, scored = Normalize(item, model.Answer{
		Payload: model.AnswerPayload{SelectedOptionIDs: []string{"a", "b"}},
	})
	assert.True(t, scored)
	assert.InDelta(t, 1.0, got, 1e-9)

	// No rubric means no score.
	_, scored = Normalize(model.Item{Type: model.TypeMultipleChoice}, model.Answer{
		Payload: model.AnswerPayload{SelectedOptionIDs: []string{"a"}},
	})
	assert.False(t, scored)
}

func TestNormalizeRanking(t *testing.T) {
	item := model.Item{
		Type: model.TypeRanking,
		Rubric: &model.ScoringRubric{
			CorrectOrder: []string{"x", "y", "z"},
		},
	}

	got, scored := Normalize(item, model.Answer{
		Payload: model.AnswerPayload{Ranking: []string{"x", "y", "z"}},
	})
	assert.True(t, scored)
	assert.InDelta(t, 1.0, got, 1e-9)

	got, scored = Normalize(item, model.Answer{
		Payload: model.AnswerPayload{Ranking: []string{"z", "y", "x"}},
	})
	assert.True(t, scored)
	assert.InDelta(t, 0.0, got, 1e-9)

	// One inversion out of three pairs.
	got, scored = Normalize(item, model.Answer{
		Payload: model.AnswerPayload{Ranking: []string{"x", "z", "y"}},
	})
	assert.True(t, scored)
	assert.InDelta(t, 2.0/3.0, got, 1e-9)

	// Unknown entries in the submission are ignored, known ones still pair.
	got, scored = Normalize(item, model.Answer{
		Payload: model.AnswerPayload{Ranking: []string{"x", "q", "z"}},
	})
	assert.True(t, scored)
	assert.InDelta(t, 1.0, got, 1e-9)
}

func TestNormalizeUnscoredInputs(t *testing.T) {
	free := "thoughts"
	_, scored := Normalize(model.Item{Type: model.TypeFreeText}, model.Answer{
		Payload: model.AnswerPayload{FreeText: &free},
	})
	assert.False(t, scored, "free text is collected but never scored")

	_, scored = Normalize(model.Item{Type: model.TypeLikert}, model.Answer{IsSkipped: true})
	assert.False(t, scored, "skips contribute nothing")
}

func TestConsistencyScore(t *testing.T) {
	assert.InDelta(t, 1.0, consistencyScore([]float64{0.5, 0.5, 0.5}), 1e-9)
	assert.InDelta(t, 0.5, consistencyScore([]float64{0, 1, 0, 1}), 1e-9)
	assert.Equal(t, 0.0, consistencyScore(nil))
}
