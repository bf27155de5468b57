package model

import (
	"time"

	"github.com/google/uuid"
)

// ResultStatus distinguishes a fully scored result from one computed with
// degraded inputs (an external dependency stayed unavailable after retries).
type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultDegraded  ResultStatus = "degraded"
)

// CompetencyScore is the per-competency breakdown entry on a result.
type CompetencyScore struct {
	Score                  float64 `json:"score"`      // 0-5 scale
	Percentage             float64 `json:"percentage"` // 0-100
	QuestionsAnswered      int     `json:"questions_answered"`
	CorrectEquivalent      float64 `json:"questions_correct_equivalent"`
	ImportedFromPassport   bool    `json:"imported_from_passport,omitempty"`
	RequiredLevel          float64 `json:"required_level,omitempty"` // job-fit only, 1-5
	Gap                    float64 `json:"gap,omitempty"`            // required - candidate
	SaturationContribution float64 `json:"saturation_contribution,omitempty"` // team-fit only
}

// Result is the single canonical scoring outcome of a session.
type Result struct {
	ID                uuid.UUID                     `json:"id"`
	SessionID         uuid.UUID                     `json:"session_id"`
	ClerkUserID       *string                       `json:"clerk_user_id,omitempty"`
	TemplateID        uuid.UUID                     `json:"template_id"`
	Goal              Goal                          `json:"goal"`
	OverallScore      float64                       `json:"overall_score"` // 0-5 scale
	OverallPercentage float64                       `json:"overall_percentage"`
	Percentile        *float64                      `json:"percentile,omitempty"`
	Passed            bool                          `json:"passed"`
	CompetencyScores  map[uuid.UUID]CompetencyScore `json:"competency_scores"`
	BigFiveProfile    map[BigFiveTrait]float64      `json:"big_five_profile,omitempty"` // trait -> 0-100
	ExtendedMetrics   map[string]float64            `json:"extended_metrics,omitempty"`
	TotalTimeSeconds  int                           `json:"total_time_seconds"`
	QuestionsAnswered int                           `json:"questions_answered"`
	QuestionsSkipped  int                           `json:"questions_skipped"`
	Status            ResultStatus                  `json:"status"`
	CompletedAt       time.Time                     `json:"completed_at"`
	CreatedAt         time.Time                     `json:"created_at"`
}

// Passport is the per-user, goal-agnostic competency snapshot.
// An expired passport is reported as absent by lookups but stays stored.
type Passport struct {
	ClerkUserID      string                   `json:"clerk_user_id"`
	CompetencyScores map[uuid.UUID]float64    `json:"competency_scores"` // 0-5 scale
	BigFiveProfile   map[BigFiveTrait]float64 `json:"big_five_profile,omitempty"`
	LastAssessed     time.Time                `json:"last_assessed"`
	ExpiresAt        time.Time                `json:"expires_at"`
	SourceResultID   uuid.UUID                `json:"source_result_id"`
}

// Expired reports whether the passport should be treated as absent.
func (p Passport) Expired(now time.Time) bool { return p.ExpiresAt.Before(now) }

// TeamProfile is the collaborator-provided view of a team consumed by
// team-fit assembly and scoring. Saturation is comp_id -> [0,1]; low
// saturation marks a skill gap the candidate can fill.
type TeamProfile struct {
	TeamID             uuid.UUID                `json:"team_id"`
	MemberCount        int                      `json:"member_count"`
	Saturation         map[uuid.UUID]float64    `json:"saturation"`
	Undersaturated     []uuid.UUID              `json:"undersaturated"`
	MemberScores       map[uuid.UUID]float64    `json:"member_scores,omitempty"`
	AveragePersonality map[BigFiveTrait]float64 `json:"average_personality,omitempty"` // trait -> 0-100
}

// ONetProfile is the benchmark lookup for one occupation.
// Levels are on a 1-5 scale; importance weights are arbitrary positive
// numbers normalised by the job-fit strategy.
type ONetProfile struct {
	OccupationCode string                `json:"occupation_code"`
	Title          string                `json:"title"`
	RequiredLevels map[uuid.UUID]float64 `json:"required_levels"`
	Importance     map[uuid.UUID]float64 `json:"importance"`
}

// ONetMaxLevel is the top of the O*NET level scale.
const ONetMaxLevel = 5.0
