package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStatusTerminal(t *testing.T) {
	assert.False(t, SessionNotStarted.Terminal())
	assert.False(t, SessionInProgress.Terminal())
	assert.True(t, SessionCompleted.Terminal())
	assert.True(t, SessionAbandoned.Terminal())
	assert.True(t, SessionTimedOut.Terminal())
}

func TestSessionAnonymous(t *testing.T) {
	user := "user_123"
	assert.False(t, Session{ClerkUserID: &user}.Anonymous())
	assert.True(t, Session{}.Anonymous())
}

func TestValidateAnswerPayload(t *testing.T) {
	four := 4
	zero := 0
	eight := 8
	text := "free-form"

	tests := []struct {
		name    string
		qt      QuestionType
		payload AnswerPayload
		ok      bool
	}{
		{"likert in range", TypeLikert, AnswerPayload{LikertValue: &four}, true},
		{"likert missing", TypeLikert, AnswerPayload{}, false},
		{"likert below range", TypeLikert, AnswerPayload{LikertValue: &zero}, false},
		{"likert above range", TypeLikert, AnswerPayload{LikertValue: &eight}, false},
		{"mcq with options", TypeMultipleChoice, AnswerPayload{SelectedOptionIDs: []string{"a"}}, true},
		{"mcq empty", TypeMultipleChoice, AnswerPayload{}, false},
		{"sjt with options", TypeSituationalJudgment, AnswerPayload{SelectedOptionIDs: []string{"b", "c"}}, true},
		{"ranking with two entries", TypeRanking, AnswerPayload{Ranking: []string{"x", "y"}}, true},
		{"ranking single entry", TypeRanking, AnswerPayload{Ranking: []string{"x"}}, false},
		{"free text present", TypeFreeText, AnswerPayload{FreeText: &text}, true},
		{"free text missing", TypeFreeText, AnswerPayload{}, false},
		{"unknown type", QuestionType("essay"), AnswerPayload{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAnswerPayload(tt.qt, tt.payload)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, CodeInvalidArgument, CodeOf(err))
			}
		})
	}
}
