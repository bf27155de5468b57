package assembly

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metriq-ai/metriq/internal/model"
)

func TestResolveOverview(t *testing.T) {
	r := NewResolver(4.0)
	comps := []uuid.UUID{uuid.New(), uuid.New()}
	tmpl := model.Template{
		ID:                    uuid.New(),
		Goal:                  model.GoalOverview,
		CompetencyIDs:         comps,
		QuestionsPerIndicator: 3,
		Blueprint: model.Blueprint{
			Goal:           model.GoalOverview,
			IncludeBigFive: true,
		},
	}

	plan, err := r.Resolve(tmpl, RuntimeContext{})
	require.NoError(t, err)
	assert.Equal(t, comps, plan.Competencies)
	assert.Equal(t, model.CoreBands, plan.Bands)
	assert.Equal(t, 3, plan.QuestionsPerIndicator)
	assert.True(t, plan.IncludeBigFive)
	assert.Nil(t, plan.Imported)
}

func TestResolveOverviewWithoutCompetencies(t *testing.T) {
	r := NewResolver(4.0)
	tmpl := model.Template{ID: uuid.New(), Goal: model.GoalOverview}

	_, err := r.Resolve(tmpl, RuntimeContext{})
	require.Error(t, err)
	assert.Equal(t, model.CodePreconditionFailed, model.CodeOf(err))
}

func TestResolveJobFitRequiresBenchmark(t *testing.T) {
	r := NewResolver(4.0)
	tmpl := model.Template{
		ID:            uuid.New(),
		Goal:          model.GoalJobFit,
		CompetencyIDs: []uuid.UUID{uuid.New()},
	}

	_, err := r.Resolve(tmpl, RuntimeContext{})
	require.Error(t, err)
	assert.Equal(t, model.CodePreconditionFailed, model.CodeOf(err))
}

func TestResolveJobFitIntersectsBenchmark(t *testing.T) {
	r := NewResolver(4.0)
	inBoth := uuid.New()
	templateOnly := uuid.New()
	benchmarkOnly := uuid.New()

	tmpl := model.Template{
		ID:            uuid.New(),
		Goal:          model.GoalJobFit,
		CompetencyIDs: []uuid.UUID{inBoth, templateOnly},
	}
	rc := RuntimeContext{ONet: &model.ONetProfile{
		RequiredLevels: map[uuid.UUID]float64{inBoth: 4, benchmarkOnly: 3},
	}}

	plan, err := r.Resolve(tmpl, rc)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{inBoth}, plan.Competencies)
}

func TestResolveJobFitEmptyTemplateUsesBenchmark(t *testing.T) {
	r := NewResolver(4.0)
	c1 := uuid.New()
	c2 := uuid.New()

	tmpl := model.Template{ID: uuid.New(), Goal: model.GoalJobFit}
	rc := RuntimeContext{ONet: &model.ONetProfile{
		RequiredLevels: map[uuid.UUID]float64{c1: 4, c2: 3},
	}}

	plan, err := r.Resolve(tmpl, rc)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{c1, c2}, plan.Competencies)

	// Benchmark-derived order is sorted, hence stable across calls.
	again, err := r.Resolve(tmpl, rc)
	require.NoError(t, err)
	assert.Equal(t, plan.Competencies, again.Competencies)
}

func TestResolveDeltaSkipsPassedCompetencies(t *testing.T) {
	r := NewResolver(4.0)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	strong := uuid.New()
	weak := uuid.New()

	tmpl := model.Template{
		ID:            uuid.New(),
		Goal:          model.GoalJobFit,
		CompetencyIDs: []uuid.UUID{strong, weak},
		Blueprint:     model.Blueprint{DeltaTesting: true},
	}
	rc := RuntimeContext{
		Now: now,
		ONet: &model.ONetProfile{
			RequiredLevels: map[uuid.UUID]float64{strong: 4, weak: 4},
		},
		Passport: &model.Passport{
			CompetencyScores: map[uuid.UUID]float64{strong: 4.5, weak: 2.0},
			ExpiresAt:        now.Add(24 * time.Hour),
		},
	}

	plan, err := r.Resolve(tmpl, rc)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{weak}, plan.Competencies)
	require.Len(t, plan.Imported, 1)
	assert.InDelta(t, 4.5, plan.Imported[strong], 1e-9)
}

func TestResolveDeltaBlueprintThresholdOverrides(t *testing.T) {
	r := NewResolver(4.0)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	comp := uuid.New()
	other := uuid.New()

	tmpl := model.Template{
		ID:            uuid.New(),
		Goal:          model.GoalJobFit,
		CompetencyIDs: []uuid.UUID{comp, other},
		Blueprint:     model.Blueprint{DeltaTesting: true, DeltaSkipThreshold: 3.0},
	}
	rc := RuntimeContext{
		Now: now,
		ONet: &model.ONetProfile{
			RequiredLevels: map[uuid.UUID]float64{comp: 4, other: 4},
		},
		Passport: &model.Passport{
			CompetencyScores: map[uuid.UUID]float64{comp: 3.5},
			ExpiresAt:        now.Add(time.Hour),
		},
	}

	plan, err := r.Resolve(tmpl, rc)
	require.NoError(t, err)
	// 3.5 clears the blueprint's 3.0 even though the default is 4.0.
	assert.Equal(t, []uuid.UUID{other}, plan.Competencies)
	assert.InDelta(t, 3.5, plan.Imported[comp], 1e-9)
}

func TestResolveDeltaKeepsFullSetWhenEverythingWouldSkip(t *testing.T) {
	r := NewResolver(4.0)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c1 := uuid.New()
	c2 := uuid.New()

	tmpl := model.Template{
		ID:            uuid.New(),
		Goal:          model.GoalJobFit,
		CompetencyIDs: []uuid.UUID{c1, c2},
		Blueprint:     model.Blueprint{DeltaTesting: true},
	}
	rc := RuntimeContext{
		Now: now,
		ONet: &model.ONetProfile{
			RequiredLevels: map[uuid.UUID]float64{c1: 4, c2: 4},
		},
		Passport: &model.Passport{
			CompetencyScores: map[uuid.UUID]float64{c1: 5, c2: 5},
			ExpiresAt:        now.Add(time.Hour),
		},
	}

	plan, err := r.Resolve(tmpl, rc)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{c1, c2}, plan.Competencies, "an all-skip delta falls back to a full run")
	assert.Nil(t, plan.Imported)
}

func TestResolveDeltaIgnoresExpiredPassport(t *testing.T) {
	r := NewResolver(4.0)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	comp := uuid.New()
	other := uuid.New()

	tmpl := model.Template{
		ID:            uuid.New(),
		Goal:          model.GoalJobFit,
		CompetencyIDs: []uuid.UUID{comp, other},
		Blueprint:     model.Blueprint{DeltaTesting: true},
	}
	rc := RuntimeContext{
		Now: now,
		ONet: &model.ONetProfile{
			RequiredLevels: map[uuid.UUID]float64{comp: 4, other: 4},
		},
		Passport: &model.Passport{
			CompetencyScores: map[uuid.UUID]float64{comp: 5},
			ExpiresAt:        now.Add(-time.Hour),
		},
	}

	plan, err := r.Resolve(tmpl, rc)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{comp, other}, plan.Competencies)
	assert.Nil(t, plan.Imported)
}

func TestResolveTeamFitOrdersBySaturation(t *testing.T) {
	r := NewResolver(4.0)
	gapA := uuid.New()  // saturation 0.1
	gapB := uuid.New()  // saturation 0.5
	extra := uuid.New() // template override, saturation 0.3

	tmpl := model.Template{
		ID:            uuid.New(),
		Goal:          model.GoalTeamFit,
		CompetencyIDs: []uuid.UUID{extra},
	}
	rc := RuntimeContext{Team: &model.TeamProfile{
		TeamID:         uuid.New(),
		Undersaturated: []uuid.UUID{gapB, gapA},
		Saturation: map[uuid.UUID]float64{
			gapA:  0.1,
			gapB:  0.5,
			extra: 0.3,
		},
	}}

	plan, err := r.Resolve(tmpl, rc)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{gapA, extra, gapB}, plan.Competencies)
}

func TestResolveTeamFitRequiresProfile(t *testing.T) {
	r := NewResolver(4.0)
	tmpl := model.Template{
		ID:            uuid.New(),
		Goal:          model.GoalTeamFit,
		CompetencyIDs: []uuid.UUID{uuid.New()},
	}

	_, err := r.Resolve(tmpl, RuntimeContext{})
	require.Error(t, err)
	assert.Equal(t, model.CodePreconditionFailed, model.CodeOf(err))
}

func TestResolveUnknownGoal(t *testing.T) {
	r := NewResolver(4.0)
	_, err := r.Resolve(model.Template{ID: uuid.New(), Goal: "vibes"}, RuntimeContext{})
	require.Error(t, err)
	assert.Equal(t, model.CodeInvalidArgument, model.CodeOf(err))
}
