package psychometrics

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metriq-ai/metriq/internal/model"
)

func testAnalyzer(now time.Time) *Analyzer {
	return &Analyzer{
		cfg: Config{
			MinItemResponses:     30,
			MinReliabilitySample: 200,
			ReviewDwell:          14 * 24 * time.Hour,
			Concurrency:          4,
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    func() time.Time { return now },
	}
}

func f64(v float64) *float64 { return &v }

func TestDifficultyFlag(t *testing.T) {
	assert.Equal(t, model.DifficultyFlagTooEasy, difficultyFlag(0.95))
	assert.Equal(t, model.DifficultyFlagNone, difficultyFlag(0.90))
	assert.Equal(t, model.DifficultyFlagNone, difficultyFlag(0.50))
	assert.Equal(t, model.DifficultyFlagNone, difficultyFlag(0.20))
	assert.Equal(t, model.DifficultyFlagTooHard, difficultyFlag(0.19))
}

func TestDiscriminationFlag(t *testing.T) {
	assert.Equal(t, model.DiscriminationFlagNone, discriminationFlag(nil))
	assert.Equal(t, model.DiscriminationFlagNegative, discriminationFlag(f64(-0.05)))
	assert.Equal(t, model.DiscriminationFlagCritical, discriminationFlag(f64(0.05)))
	assert.Equal(t, model.DiscriminationFlagWarning, discriminationFlag(f64(0.15)))
	assert.Equal(t, model.DiscriminationFlagNone, discriminationFlag(f64(0.25)))
	assert.Equal(t, model.DiscriminationFlagNone, discriminationFlag(f64(0.60)))
}

func TestTransitionProbationToActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := testAnalyzer(now)

	stats := model.ItemStatistics{
		ItemID:         uuid.New(),
		ValidityStatus: model.StatusProbation,
		ResponseCount:  45,
		Discrimination: f64(0.30),
	}
	a.transition(&stats, model.DiscriminationFlagNone)

	assert.Equal(t, model.StatusActive, stats.ValidityStatus)
	require.Len(t, stats.StatusHistory, 1)
	assert.Equal(t, model.StatusProbation, stats.StatusHistory[0].From)
	assert.Equal(t, model.StatusActive, stats.StatusHistory[0].To)
	assert.Equal(t, now, stats.StatusHistory[0].At)
}

func TestTransitionProbationHolds(t *testing.T) {
	a := testAnalyzer(time.Now().UTC())

	// Weak discrimination keeps the item in probation.
	stats := model.ItemStatistics{
		ValidityStatus: model.StatusProbation,
		ResponseCount:  45,
		Discrimination: f64(0.05),
	}
	a.transition(&stats, model.DiscriminationFlagNone)
	assert.Equal(t, model.StatusProbation, stats.ValidityStatus)

	// So does a thin sample, however sharp the item looks.
	stats = model.ItemStatistics{
		ValidityStatus: model.StatusProbation,
		ResponseCount:  10,
		Discrimination: f64(0.50),
	}
	a.transition(&stats, model.DiscriminationFlagNone)
	assert.Equal(t, model.StatusProbation, stats.ValidityStatus)
}

func TestTransitionActiveFlagsAfterConsecutiveSevereRuns(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := testAnalyzer(now)

	// First severe run: no transition yet.
	stats := model.ItemStatistics{
		ValidityStatus:     model.StatusActive,
		DiscriminationFlag: model.DiscriminationFlagCritical,
	}
	a.transition(&stats, model.DiscriminationFlagNone)
	assert.Equal(t, model.StatusActive, stats.ValidityStatus)
	assert.Nil(t, stats.FlaggedSince)

	// Second consecutive severe run flags the item.
	a.transition(&stats, model.DiscriminationFlagCritical)
	assert.Equal(t, model.StatusFlaggedForReview, stats.ValidityStatus)
	require.NotNil(t, stats.FlaggedSince)
	assert.Equal(t, now, *stats.FlaggedSince)
}

func TestTransitionFlaggedRecovers(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := testAnalyzer(now)

	flagged := now.Add(-48 * time.Hour)
	stats := model.ItemStatistics{
		ValidityStatus:     model.StatusFlaggedForReview,
		DiscriminationFlag: model.DiscriminationFlagNone,
		FlaggedSince:       &flagged,
	}
	a.transition(&stats, model.DiscriminationFlagCritical)

	assert.Equal(t, model.StatusActive, stats.ValidityStatus)
	assert.Nil(t, stats.FlaggedSince)
}

func TestTransitionFlaggedRetiresAfterDwell(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := testAnalyzer(now)

	// Still inside the dwell window: keep waiting.
	flagged := now.Add(-7 * 24 * time.Hour)
	stats := model.ItemStatistics{
		ValidityStatus:     model.StatusFlaggedForReview,
		DiscriminationFlag: model.DiscriminationFlagCritical,
		FlaggedSince:       &flagged,
	}
	a.transition(&stats, model.DiscriminationFlagCritical)
	assert.Equal(t, model.StatusFlaggedForReview, stats.ValidityStatus)

	// Past the dwell with no recovery: retire.
	flagged = now.Add(-15 * 24 * time.Hour)
	stats.FlaggedSince = &flagged
	a.transition(&stats, model.DiscriminationFlagCritical)
	assert.Equal(t, model.StatusRetired, stats.ValidityStatus)
}

func TestTransitionRetiredIsTerminal(t *testing.T) {
	a := testAnalyzer(time.Now().UTC())

	stats := model.ItemStatistics{
		ValidityStatus:     model.StatusRetired,
		DiscriminationFlag: model.DiscriminationFlagNone,
		Discrimination:     f64(0.9),
		ResponseCount:      1000,
	}
	a.transition(&stats, model.DiscriminationFlagNone)

	assert.Equal(t, model.StatusRetired, stats.ValidityStatus)
	assert.Empty(t, stats.StatusHistory)
}

func TestEligibleForNewAssembly(t *testing.T) {
	assert.True(t, model.ItemStatistics{ValidityStatus: model.StatusActive}.EligibleForNewAssembly())
	assert.True(t, model.ItemStatistics{ValidityStatus: model.StatusProbation}.EligibleForNewAssembly())
	assert.False(t, model.ItemStatistics{ValidityStatus: model.StatusFlaggedForReview}.EligibleForNewAssembly())
	assert.False(t, model.ItemStatistics{ValidityStatus: model.StatusRetired}.EligibleForNewAssembly())
}
