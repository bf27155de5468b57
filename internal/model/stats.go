package model

import (
	"time"

	"github.com/google/uuid"
)

// ValidityStatus is an item's psychometric lifecycle state.
type ValidityStatus string

const (
	StatusProbation        ValidityStatus = "probation"
	StatusActive           ValidityStatus = "active"
	StatusFlaggedForReview ValidityStatus = "flagged_for_review"
	StatusRetired          ValidityStatus = "retired"
)

// DifficultyFlag marks items whose p-value fell outside the usable range.
type DifficultyFlag string

const (
	DifficultyFlagNone    DifficultyFlag = "none"
	DifficultyFlagTooEasy DifficultyFlag = "too_easy"
	DifficultyFlagTooHard DifficultyFlag = "too_hard"
)

// DiscriminationFlag grades an item's point-biserial discrimination.
type DiscriminationFlag string

const (
	DiscriminationFlagNone     DiscriminationFlag = "none"
	DiscriminationFlagWarning  DiscriminationFlag = "warning"
	DiscriminationFlagCritical DiscriminationFlag = "critical"
	DiscriminationFlagNegative DiscriminationFlag = "negative"
)

// StatusChange is one entry in an item's append-only status history.
type StatusChange struct {
	From   ValidityStatus `json:"from"`
	To     ValidityStatus `json:"to"`
	At     time.Time      `json:"at"`
	Reason string         `json:"reason"`
}

// ItemStatistics holds the rolling psychometric metrics for one item.
// Written exclusively by the psychometric job under the named scheduler lock.
type ItemStatistics struct {
	ItemID                 uuid.UUID          `json:"item_id"`
	PValue                 *float64           `json:"p_value,omitempty"`
	Discrimination         *float64           `json:"discrimination,omitempty"`
	PreviousDiscrimination *float64           `json:"previous_discrimination,omitempty"`
	IRTA                   *float64           `json:"irt_a,omitempty"`
	IRTB                   *float64           `json:"irt_b,omitempty"`
	IRTC                   *float64           `json:"irt_c,omitempty"`
	ResponseCount          int64              `json:"response_count"`
	ValidityStatus         ValidityStatus     `json:"validity_status"`
	DifficultyFlag         DifficultyFlag     `json:"difficulty_flag"`
	DiscriminationFlag     DiscriminationFlag `json:"discrimination_flag"`
	FlaggedSince           *time.Time         `json:"flagged_since,omitempty"`
	StatusHistory          []StatusChange     `json:"status_history"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// EligibleForNewAssembly reports whether the selector may place this item
// into a fresh session. Flagged items stay answerable inside sessions whose
// order already contains them; retired items are excluded everywhere.
func (s ItemStatistics) EligibleForNewAssembly() bool {
	return s.ValidityStatus == StatusActive || s.ValidityStatus == StatusProbation
}

// ReliabilityStatus bands a Cronbach-alpha estimate.
type ReliabilityStatus string

const (
	ReliabilityReliable         ReliabilityStatus = "reliable"
	ReliabilityAcceptable       ReliabilityStatus = "acceptable"
	ReliabilityUnreliable       ReliabilityStatus = "unreliable"
	ReliabilityInsufficientData ReliabilityStatus = "insufficient_data"
)

// BandReliability maps an alpha value and sample size onto a status band.
func BandReliability(alpha float64, sampleSize int64, minSample int64) ReliabilityStatus {
	if sampleSize < minSample {
		return ReliabilityInsufficientData
	}
	switch {
	case alpha >= 0.70:
		return ReliabilityReliable
	case alpha >= 0.60:
		return ReliabilityAcceptable
	default:
		return ReliabilityUnreliable
	}
}

// CompetencyReliability is the Cronbach-alpha record for one competency.
type CompetencyReliability struct {
	CompetencyID   uuid.UUID             `json:"competency_id"`
	Alpha          *float64              `json:"alpha,omitempty"`
	SampleSize     int64                 `json:"sample_size"`
	ItemCount      int                   `json:"item_count"`
	Status         ReliabilityStatus     `json:"status"`
	AlphaIfDeleted map[uuid.UUID]float64 `json:"alpha_if_deleted,omitempty"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// BigFiveReliability is the per-trait aggregate over contributing competencies.
type BigFiveReliability struct {
	Trait      BigFiveTrait      `json:"trait"`
	Alpha      *float64          `json:"alpha,omitempty"`
	SampleSize int64             `json:"sample_size"`
	ItemCount  int               `json:"item_count"`
	Status     ReliabilityStatus `json:"status"`
	UpdatedAt  time.Time         `json:"updated_at"`
}
