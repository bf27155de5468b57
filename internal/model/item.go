// Package model defines the core entities of the assessment domain and the
// transport-agnostic error taxonomy shared by all services.
package model

import (
	"time"

	"github.com/google/uuid"
)

// BigFiveTrait labels a competency's contribution to the Big-Five profile.
type BigFiveTrait string

const (
	TraitOpenness           BigFiveTrait = "openness"
	TraitConscientiousness  BigFiveTrait = "conscientiousness"
	TraitExtraversion       BigFiveTrait = "extraversion"
	TraitAgreeableness      BigFiveTrait = "agreeableness"
	TraitEmotionalStability BigFiveTrait = "emotional_stability"
)

// AllTraits lists the five traits in canonical order. The order is load-bearing:
// it defines the layout of the vector(5) column holding Big-Five profiles.
var AllTraits = []BigFiveTrait{
	TraitOpenness,
	TraitConscientiousness,
	TraitExtraversion,
	TraitAgreeableness,
	TraitEmotionalStability,
}

// Competency is a named category of behavioral indicators.
// Archived competencies are excluded from new assembly but keep scoring
// for sessions already in flight.
type Competency struct {
	ID           uuid.UUID     `json:"id"`
	Name         string        `json:"name"`
	Description  *string       `json:"description,omitempty"`
	BigFiveTrait *BigFiveTrait `json:"big_five_trait,omitempty"`
	Active       bool          `json:"active"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ContextScope narrows an indicator to a usage context.
type ContextScope string

const (
	ScopeUniversal    ContextScope = "universal"
	ScopeProfessional ContextScope = "professional"
	ScopeTechnical    ContextScope = "technical"
	ScopeManagerial   ContextScope = "managerial"
)

// BehavioralIndicator belongs to exactly one competency.
type BehavioralIndicator struct {
	ID           uuid.UUID    `json:"id"`
	CompetencyID uuid.UUID    `json:"competency_id"`
	Name         string       `json:"name"`
	ContextScope ContextScope `json:"context_scope"`
	Active       bool         `json:"active"`
	CreatedAt    time.Time    `json:"created_at"`
}

// QuestionType enumerates supported item formats.
type QuestionType string

const (
	TypeLikert              QuestionType = "likert"
	TypeMultipleChoice      QuestionType = "multiple_choice"
	TypeSituationalJudgment QuestionType = "situational_judgment"
	TypeRanking             QuestionType = "ranking"
	TypeFreeText            QuestionType = "free_text"
)

// Scored reports whether the type contributes to competency scores.
// Free text is collected but never scored.
func (t QuestionType) Scored() bool { return t != TypeFreeText }

// DifficultyBand stratifies the item pool.
type DifficultyBand string

const (
	BandFoundational DifficultyBand = "foundational"
	BandIntermediate DifficultyBand = "intermediate"
	BandAdvanced     DifficultyBand = "advanced"
	BandExpert       DifficultyBand = "expert"
	BandSpecialized  DifficultyBand = "specialized"
)

// CoreBands are the three bands every assembly plan must cover.
var CoreBands = []DifficultyBand{BandFoundational, BandIntermediate, BandAdvanced}

// AnswerOption is one selectable option on an MCQ/SJT/ranking item.
type AnswerOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// ScoringRubric maps option ids (or rank positions) to points.
// MaxPoints normalises the per-question score into [0,1].
type ScoringRubric struct {
	OptionPoints map[string]float64 `json:"option_points,omitempty"`
	CorrectOrder []string           `json:"correct_order,omitempty"`
	MaxPoints    float64            `json:"max_points"`
}

// Item is an assessment question owned by one behavioral indicator.
type Item struct {
	ID               uuid.UUID      `json:"id"`
	IndicatorID      uuid.UUID      `json:"indicator_id"`
	Text             string         `json:"text"`
	Type             QuestionType   `json:"type"`
	Options          []AnswerOption `json:"options,omitempty"`
	Rubric           *ScoringRubric `json:"rubric,omitempty"`
	DifficultyBand   DifficultyBand `json:"difficulty_band"`
	TimeLimitSeconds *int           `json:"time_limit_seconds,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Active           bool           `json:"active"`
	ExposureCount    int64          `json:"exposure_count"`
	CreatedAt        time.Time      `json:"created_at"`

	// IndicatorScope is denormalised from the owning indicator on selector
	// reads; the ranking uses it to prefer scope matches over universal
	// items. Zero everywhere else.
	IndicatorScope ContextScope `json:"indicator_scope,omitempty"`
}

// ValidateItem checks structural invariants: Likert items carry a 1-7
// response scale, scored choice types carry a rubric with option points.
func ValidateItem(it Item) error {
	switch it.Type {
	case TypeLikert:
		// Likert scoring is positional; no rubric required.
	case TypeMultipleChoice, TypeSituationalJudgment:
		if it.Rubric == nil || len(it.Rubric.OptionPoints) == 0 {
			return E(CodeInvalidArgument, "item %s: %s requires a rubric with option points", it.ID, it.Type)
		}
		if it.Rubric.MaxPoints <= 0 {
			return E(CodeInvalidArgument, "item %s: rubric max_points must be positive", it.ID)
		}
	case TypeRanking:
		if it.Rubric == nil || len(it.Rubric.CorrectOrder) < 2 {
			return E(CodeInvalidArgument, "item %s: ranking requires a rubric with a correct order", it.ID)
		}
	case TypeFreeText:
		// Unscored; nothing to validate.
	default:
		return E(CodeInvalidArgument, "item %s: unknown question type %q", it.ID, it.Type)
	}
	return nil
}
