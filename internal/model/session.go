package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a test session.
type SessionStatus string

const (
	SessionNotStarted SessionStatus = "not_started"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionAbandoned  SessionStatus = "abandoned"
	SessionTimedOut   SessionStatus = "timed_out"
)

// Terminal reports whether the status accepts no further mutations.
func (s SessionStatus) Terminal() bool {
	switch s {
	case SessionCompleted, SessionAbandoned, SessionTimedOut:
		return true
	}
	return false
}

// AnonymousTaker is the structured contact info an anonymous taker may
// attach after completing a session.
type AnonymousTaker struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// Session tracks one user's progression through a test.
//
// QuestionOrder is chosen once at start and never changes. Every mutation
// is guarded by the optimistic Version: concurrent writers race and exactly
// one wins per increment.
type Session struct {
	ID                   uuid.UUID       `json:"id"`
	TemplateID           uuid.UUID       `json:"template_id"`
	ClerkUserID          *string         `json:"clerk_user_id,omitempty"`
	Status               SessionStatus   `json:"status"`
	CurrentQuestionIndex int             `json:"current_question_index"`
	TimeRemainingSeconds int             `json:"time_remaining_seconds"`
	QuestionOrder        []uuid.UUID     `json:"question_order"`
	Seed                 int64           `json:"-"`
	LastActivityAt       time.Time       `json:"last_activity_at"`
	Version              int             `json:"version"`
	ShareLinkID          *uuid.UUID      `json:"share_link_id,omitempty"`
	AccessTokenHash      *string         `json:"-"`
	ClientIP             *string         `json:"-"`
	UserAgent            *string         `json:"-"`
	AnonymousTaker       *AnonymousTaker `json:"anonymous_taker,omitempty"`
	StartedAt            *time.Time      `json:"started_at,omitempty"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// Anonymous reports whether the session belongs to a share-link taker.
func (s Session) Anonymous() bool { return s.ClerkUserID == nil }

// AnswerPayload is the polymorphic response body of one answer.
// Exactly one of the value fields is set, matching the item type.
type AnswerPayload struct {
	SelectedOptionIDs []string `json:"selected_option_ids,omitempty"`
	LikertValue       *int     `json:"likert_value,omitempty"`
	Ranking           []string `json:"ranking,omitempty"`
	FreeText          *string  `json:"free_text,omitempty"`
}

// ValidateAnswerPayload checks the payload against the item's type.
func ValidateAnswerPayload(t QuestionType, p AnswerPayload) error {
	switch t {
	case TypeLikert:
		if p.LikertValue == nil {
			return E(CodeInvalidArgument, "likert answer requires likert_value")
		}
		if *p.LikertValue < 1 || *p.LikertValue > 7 {
			return E(CodeInvalidArgument, "likert_value must be in [1,7], got %d", *p.LikertValue)
		}
	case TypeMultipleChoice, TypeSituationalJudgment:
		if len(p.SelectedOptionIDs) == 0 {
			return E(CodeInvalidArgument, "%s answer requires selected_option_ids", t)
		}
	case TypeRanking:
		if len(p.Ranking) < 2 {
			return E(CodeInvalidArgument, "ranking answer requires at least two entries")
		}
	case TypeFreeText:
		if p.FreeText == nil {
			return E(CodeInvalidArgument, "free_text answer requires free_text")
		}
	default:
		return E(CodeInvalidArgument, "unknown question type %q", t)
	}
	return nil
}

// Answer is one persisted response, unique per (session, question).
// Rewritable until the session reaches a terminal state; replays with an
// identical payload are idempotent no-ops.
type Answer struct {
	SessionID        uuid.UUID     `json:"session_id"`
	QuestionID       uuid.UUID     `json:"question_id"`
	Payload          AnswerPayload `json:"payload"`
	AnsweredAt       time.Time     `json:"answered_at"`
	TimeSpentSeconds int           `json:"time_spent_seconds"`
	IsSkipped        bool          `json:"is_skipped"`
	Score            *float64      `json:"score,omitempty"`
	MaxScore         *float64      `json:"max_score,omitempty"`
}
