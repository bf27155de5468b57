package assembly

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/metriq-ai/metriq/internal/model"
)

// Plan is the concrete assembly order derived from a template's blueprint
// and the runtime context of the taker.
type Plan struct {
	TemplateID            uuid.UUID
	Goal                  model.Goal
	Competencies          []uuid.UUID // selection order; team-fit puts lowest saturation first
	Bands                 []model.DifficultyBand
	QuestionsPerIndicator int
	ContextScope          model.ContextScope
	IncludeBigFive        bool
	// Imported maps competencies skipped by delta testing to the passport
	// score (0-5) the scorer reuses instead of fresh answers.
	Imported map[uuid.UUID]float64
}

// RuntimeContext carries the per-taker collaborator data the resolver may
// need. Goals that don't need a field ignore it.
type RuntimeContext struct {
	ClerkUserID string
	Team        *model.TeamProfile
	ONet        *model.ONetProfile
	Passport    *model.Passport
	Now         time.Time
}

// Resolver turns templates into plans.
type Resolver struct {
	deltaSkipThreshold float64 // 0-5 scale; passport scores at or above skip the competency
}

func NewResolver(deltaSkipThreshold float64) *Resolver {
	return &Resolver{deltaSkipThreshold: deltaSkipThreshold}
}

// Resolve builds the plan for one session start. A missing collaborator
// profile for a goal that requires it fails with PreconditionFailed.
func (r *Resolver) Resolve(t model.Template, rc RuntimeContext) (Plan, error) {
	plan := Plan{
		TemplateID:            t.ID,
		Goal:                  t.Goal,
		Bands:                 model.CoreBands,
		QuestionsPerIndicator: t.QuestionsPerIndicator,
		ContextScope:          t.Blueprint.ContextScope,
	}

	switch t.Goal {
	case model.GoalOverview:
		plan.Competencies = append([]uuid.UUID(nil), t.CompetencyIDs...)
		plan.IncludeBigFive = t.Blueprint.IncludeBigFive

	case model.GoalJobFit:
		if rc.ONet == nil {
			return Plan{}, model.E(model.CodePreconditionFailed,
				"job_fit assembly requires an occupation profile for %q", t.Blueprint.ONetOccupationCode)
		}
		plan.Competencies = intersectBenchmark(t.CompetencyIDs, rc.ONet.RequiredLevels)
		if t.Blueprint.DeltaTesting {
			plan.Competencies, plan.Imported = r.applyDelta(plan.Competencies, rc, t.Blueprint)
		}

	case model.GoalTeamFit:
		if rc.Team == nil {
			return Plan{}, model.E(model.CodePreconditionFailed, "team_fit assembly requires a team profile")
		}
		plan.Competencies = teamFitOrder(rc.Team, t.CompetencyIDs)

	default:
		return Plan{}, model.E(model.CodeInvalidArgument, "unknown goal %q", t.Goal)
	}

	if len(plan.Competencies) == 0 {
		return Plan{}, model.E(model.CodePreconditionFailed,
			"assembly plan for template %s resolved to zero competencies", t.ID)
	}
	return plan, nil
}

// intersectBenchmark keeps template competencies present in the benchmark.
// An empty template set means "whatever the benchmark covers". Order is
// the template's where given, the sorted benchmark otherwise.
func intersectBenchmark(templateIDs []uuid.UUID, benchmark map[uuid.UUID]float64) []uuid.UUID {
	if len(templateIDs) == 0 {
		out := make([]uuid.UUID, 0, len(benchmark))
		for id := range benchmark {
			out = append(out, id)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
		return out
	}
	var out []uuid.UUID
	for _, id := range templateIDs {
		if _, ok := benchmark[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// applyDelta drops competencies whose non-expired passport score clears
// the skip threshold, recording the reused score.
func (r *Resolver) applyDelta(ids []uuid.UUID, rc RuntimeContext, b model.Blueprint) ([]uuid.UUID, map[uuid.UUID]float64) {
	if rc.Passport == nil || rc.Passport.Expired(rc.Now) {
		return ids, nil
	}
	threshold := b.DeltaSkipThreshold
	if threshold <= 0 {
		threshold = r.deltaSkipThreshold
	}

	var (
		kept     []uuid.UUID
		imported map[uuid.UUID]float64
	)
	for _, id := range ids {
		score, ok := rc.Passport.CompetencyScores[id]
		if ok && score >= threshold {
			if imported == nil {
				imported = make(map[uuid.UUID]float64)
			}
			imported[id] = score
			continue
		}
		kept = append(kept, id)
	}
	if len(kept) == 0 {
		// Nothing left to test would make an empty session; keep the full
		// set and ignore the passport instead.
		return ids, nil
	}
	return kept, imported
}

// teamFitOrder unions the team's undersaturated competencies with template
// overrides and sorts ascending by saturation so the weakest areas lead
// the question order.
func teamFitOrder(team *model.TeamProfile, overrides []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, id := range team.Undersaturated {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range overrides {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return team.Saturation[out[i]] < team.Saturation[out[j]]
	})
	return out
}
