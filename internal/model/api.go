package model

import (
	"time"

	"github.com/google/uuid"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope. Its shape matches the
// documented error body: status, message, details, path, timestamp,
// correlation id, context.
type APIError struct {
	Status        int       `json:"status"`
	Code          Code      `json:"code"`
	Message       string    `json:"message"`
	Details       any       `json:"details,omitempty"`
	Path          string    `json:"path"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlationId"`
	Context       any       `json:"context,omitempty"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	CorrelationID string    `json:"correlation_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// StartSessionRequest is the request body for POST /tests/sessions.
type StartSessionRequest struct {
	TemplateID uuid.UUID `json:"template_id"`
}

// SubmitAnswerRequest is the request body for POST /tests/sessions/{id}/answer.
type SubmitAnswerRequest struct {
	QuestionID       uuid.UUID     `json:"question_id"`
	Payload          AnswerPayload `json:"payload"`
	TimeSpentSeconds int           `json:"time_spent_seconds"`
	Version          int           `json:"version"`
}

// SkipRequest is the request body for POST /tests/sessions/{id}/skip.
type SkipRequest struct {
	QuestionID uuid.UUID `json:"question_id"`
	Version    int       `json:"version"`
}

// NavigateRequest is the request body for navigation endpoints.
type NavigateRequest struct {
	Version int `json:"version"`
}

// CompleteSessionRequest is the request body for POST /tests/sessions/{id}/complete.
type CompleteSessionRequest struct {
	Version int `json:"version"`
}

// AttachTakerRequest attaches anonymous taker info after completion.
type AttachTakerRequest struct {
	Taker AnonymousTaker `json:"taker"`
}

// CurrentQuestionResponse is the body for GET /tests/sessions/{id}/current.
type CurrentQuestionResponse struct {
	SessionID            uuid.UUID     `json:"session_id"`
	Status               SessionStatus `json:"status"`
	CurrentQuestionIndex int           `json:"current_question_index"`
	TotalQuestions       int           `json:"total_questions"`
	TimeRemainingSeconds int           `json:"time_remaining_seconds"`
	Version              int           `json:"version"`
	Question             *Item         `json:"question,omitempty"` // nil once past the last question
}

// StartSessionResponse is the body for session-start endpoints.
// AccessToken is only set for anonymous sessions and only returned once.
type StartSessionResponse struct {
	Session     Session  `json:"session"`
	Warnings    []string `json:"warnings,omitempty"`
	AccessToken string   `json:"access_token,omitempty"`
}

// CreateTemplateRequest is the request body for POST /templates.
type CreateTemplateRequest struct {
	Name                  string      `json:"name"`
	ParentID              *uuid.UUID  `json:"parent_id,omitempty"`
	Visibility            Visibility  `json:"visibility"`
	Goal                  Goal        `json:"goal"`
	Blueprint             Blueprint   `json:"blueprint"`
	CompetencyIDs         []uuid.UUID `json:"competency_ids"`
	QuestionsPerIndicator int         `json:"questions_per_indicator"`
	TimeLimitMinutes      int         `json:"time_limit_minutes"`
	PassingScore          float64     `json:"passing_score"`
	ShuffleQuestions      bool        `json:"shuffle_questions"`
	ShuffleOptions        bool        `json:"shuffle_options"`
	AllowSkip             bool        `json:"allow_skip"`
	AllowBackNavigation   bool        `json:"allow_back_navigation"`
}

// CreateShareLinkRequest is the request body for POST /share-links.
type CreateShareLinkRequest struct {
	TemplateID uuid.UUID  `json:"template_id"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	MaxUses    *int       `json:"max_uses,omitempty"`
}

// CreateShareLinkResponse returns the cleartext token exactly once.
type CreateShareLinkResponse struct {
	ShareLink ShareLink `json:"share_link"`
	Token     string    `json:"token"`
}
