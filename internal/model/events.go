package model

import (
	"time"

	"github.com/google/uuid"
)

// ActivityType enumerates the append-only session activity events.
type ActivityType string

const (
	ActivitySessionStarted   ActivityType = "session_started"
	ActivitySessionCompleted ActivityType = "session_completed"
	ActivitySessionAbandoned ActivityType = "session_abandoned"
	ActivitySessionTimedOut  ActivityType = "session_timed_out"
)

// ActivityEvent is one row in the append-only activity stream.
// Never on the session's critical path: failures are logged and retried.
type ActivityEvent struct {
	ID          uuid.UUID      `json:"id"`
	Type        ActivityType   `json:"type"`
	SessionID   uuid.UUID      `json:"session_id"`
	TemplateID  uuid.UUID      `json:"template_id"`
	ClerkUserID *string        `json:"clerk_user_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// ScoringAudit snapshots one scoring run for later review.
type ScoringAudit struct {
	ID                uuid.UUID                     `json:"id"`
	SessionID         uuid.UUID                     `json:"session_id"`
	ResultID          uuid.UUID                     `json:"result_id"`
	TemplateID        uuid.UUID                     `json:"template_id"`
	Goal              Goal                          `json:"goal"`
	Strategy          string                        `json:"strategy"`
	ConfigSnapshot    Blueprint                     `json:"config_snapshot"`
	CompetencyScores  map[uuid.UUID]CompetencyScore `json:"competency_scores"`
	QuestionsAnswered int                           `json:"questions_answered"`
	QuestionsSkipped  int                           `json:"questions_skipped"`
	DurationMillis    int64                         `json:"duration_ms"`
	CreatedAt         time.Time                     `json:"created_at"`
}
