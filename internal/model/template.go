package model

import (
	"time"

	"github.com/google/uuid"
)

// Goal selects the scoring strategy and blueprint shape of a template.
type Goal string

const (
	GoalOverview Goal = "overview"
	GoalJobFit   Goal = "job_fit"
	GoalTeamFit  Goal = "team_fit"
)

// Visibility controls who can start sessions from a template.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
	VisibilityLink    Visibility = "link"
)

// Lifecycle is the template publication state. Published templates are
// immutable; edits create a new version pointing at the predecessor.
type Lifecycle string

const (
	LifecycleDraft     Lifecycle = "draft"
	LifecyclePublished Lifecycle = "published"
	LifecycleArchived  Lifecycle = "archived"
)

// Blueprint is the goal-tagged configuration a template carries, stored
// as JSONB. Fields outside the template's goal are ignored.
type Blueprint struct {
	Goal Goal `json:"goal"`

	// Overview knobs.
	IncludeBigFive bool `json:"include_big_five,omitempty"`

	// Job-fit knobs.
	ONetOccupationCode string  `json:"onet_occupation_code,omitempty"`
	StrictnessLevel    float64 `json:"strictness_level,omitempty"` // [0,100], 50 = neutral
	DeltaTesting       bool    `json:"delta_testing,omitempty"`
	DeltaSkipThreshold float64 `json:"delta_skip_threshold,omitempty"` // 0-5 scale
	UpdatePassport     bool    `json:"update_passport,omitempty"`

	// Team-fit knobs.
	TeamID *uuid.UUID `json:"team_id,omitempty"`

	// Shared knobs.
	ContextScope       ContextScope `json:"context_scope,omitempty"`
	PassportMaxAgeDays int          `json:"passport_max_age_days,omitempty"`
}

// DefaultPassportMaxAgeDays applies when the blueprint leaves expiry unset.
const DefaultPassportMaxAgeDays = 180

// PassportMaxAge returns the configured passport lifetime.
func (b Blueprint) PassportMaxAge() time.Duration {
	days := b.PassportMaxAgeDays
	if days <= 0 {
		days = DefaultPassportMaxAgeDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// Template is a versioned, goal-typed test definition.
type Template struct {
	ID                    uuid.UUID   `json:"id"`
	Name                  string      `json:"name"`
	Version               int         `json:"version"`
	ParentID              *uuid.UUID  `json:"parent_id,omitempty"`
	OwnerClerkID          string      `json:"owner_clerk_id"`
	Visibility            Visibility  `json:"visibility"`
	Lifecycle             Lifecycle   `json:"lifecycle"`
	Goal                  Goal        `json:"goal"`
	Blueprint             Blueprint   `json:"blueprint"`
	CompetencyIDs         []uuid.UUID `json:"competency_ids"`
	QuestionsPerIndicator int         `json:"questions_per_indicator"`
	TimeLimitMinutes      int         `json:"time_limit_minutes"`
	PassingScore          float64     `json:"passing_score"` // percentage threshold
	ShuffleQuestions      bool        `json:"shuffle_questions"`
	ShuffleOptions        bool        `json:"shuffle_options"`
	AllowSkip             bool        `json:"allow_skip"`
	AllowBackNavigation   bool        `json:"allow_back_navigation"`
	CreatedAt             time.Time   `json:"created_at"`
	DeletedAt             *time.Time  `json:"deleted_at,omitempty"`
}

// ValidateTemplate checks a template before insert or publish.
func ValidateTemplate(t Template) error {
	if t.Name == "" {
		return E(CodeInvalidArgument, "template name is required")
	}
	if len(t.CompetencyIDs) == 0 && t.Goal != GoalTeamFit {
		return E(CodeInvalidArgument, "template requires at least one competency")
	}
	if t.QuestionsPerIndicator <= 0 {
		return E(CodeInvalidArgument, "questions_per_indicator must be positive")
	}
	if t.PassingScore < 0 || t.PassingScore > 100 {
		return E(CodeInvalidArgument, "passing_score must be in [0,100]")
	}
	if t.Blueprint.Goal != t.Goal {
		return E(CodeInvalidArgument, "blueprint goal %q does not match template goal %q", t.Blueprint.Goal, t.Goal)
	}
	switch t.Goal {
	case GoalOverview, GoalJobFit, GoalTeamFit:
	default:
		return E(CodeInvalidArgument, "unknown goal %q", t.Goal)
	}
	if t.Goal == GoalJobFit && t.Blueprint.ONetOccupationCode == "" {
		return E(CodeInvalidArgument, "job_fit template requires an occupation code")
	}
	if t.Goal == GoalTeamFit && t.Blueprint.TeamID == nil {
		return E(CodeInvalidArgument, "team_fit template requires a team id")
	}
	return nil
}
