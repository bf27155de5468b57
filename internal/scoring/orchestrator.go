package scoring

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/metriq-ai/metriq/internal/model"
	"github.com/metriq-ai/metriq/internal/storage"
)

// ONetProvider looks up the benchmark profile for an occupation.
type ONetProvider interface {
	Profile(ctx context.Context, occupationCode string) (model.ONetProfile, error)
}

// TeamProvider looks up a team's saturation profile.
type TeamProvider interface {
	Profile(ctx context.Context, teamID uuid.UUID) (model.TeamProfile, error)
}

// Config is the scoring slice of application configuration.
type Config struct {
	RetryAttempts int
	RetryBase     time.Duration
}

// Orchestrator turns a finished session into its canonical result:
// at most one per session, strategy dispatch by goal, audit snapshot,
// passport update. Re-entry returns the existing row.
type Orchestrator struct {
	db     *storage.DB
	onet   ONetProvider
	teams  TeamProvider
	cfg    Config
	logger *slog.Logger

	strategies map[model.Goal]Strategy

	now func() time.Time
}

// NewOrchestrator wires the orchestrator with its strategy table.
func NewOrchestrator(db *storage.DB, onet ONetProvider, teams TeamProvider, cfg Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		db:     db,
		onet:   onet,
		teams:  teams,
		cfg:    cfg,
		logger: logger,
		strategies: map[model.Goal]Strategy{
			model.GoalOverview: NewOverview(db),
			model.GoalJobFit:   NewJobFit(),
			model.GoalTeamFit:  NewTeamFit(),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Score computes and persists the session's result. Idempotent: a session
// already scored hands back its stored result.
func (o *Orchestrator) Score(ctx context.Context, sessionID uuid.UUID) (model.Result, error) {
	if existing, err := o.db.GetResultBySession(ctx, sessionID); err == nil {
		return existing, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return model.Result{}, err
	}

	started := o.now()

	sess, err := o.db.GetSession(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Result{}, model.E(model.CodeNotFound, "session %s not found", sessionID)
	}
	if err != nil {
		return model.Result{}, err
	}
	if sess.Status != model.SessionCompleted && sess.Status != model.SessionTimedOut {
		return model.Result{}, model.E(model.CodeInvalidState,
			"session %s is %s, cannot score", sessionID, sess.Status)
	}

	in, err := o.assembleInput(ctx, sess)
	if err != nil {
		return model.Result{}, err
	}

	strategy, ok := o.strategies[in.Template.Goal]
	if !ok {
		return model.Result{}, model.E(model.CodeInternal, "no strategy for goal %q", in.Template.Goal)
	}

	status := model.ResultCompleted
	degraded, err := o.loadCollaborators(ctx, &in)
	if err != nil {
		return model.Result{}, err
	}

	var outcome Outcome
	if degraded {
		// External profile stayed unavailable after bounded retries: fall
		// back to the goal-agnostic competency breakdown with passed=false.
		outcome = o.fallbackOutcome(in)
		status = model.ResultDegraded
		strategy = nil
	} else {
		outcome, err = strategy.Score(ctx, in)
		if err != nil {
			return model.Result{}, err
		}
	}

	answered, skipped := answeredSkipped(in.Answers)
	result := model.Result{
		ID:                uuid.New(),
		SessionID:         sess.ID,
		ClerkUserID:       sess.ClerkUserID,
		TemplateID:        sess.TemplateID,
		Goal:              in.Template.Goal,
		OverallScore:      outcome.OverallScore,
		OverallPercentage: outcome.OverallPercentage,
		Passed:            outcome.Passed,
		CompetencyScores:  outcome.CompetencyScores,
		BigFiveProfile:    outcome.BigFiveProfile,
		ExtendedMetrics:   outcome.ExtendedMetrics,
		TotalTimeSeconds:  totalTime(in.Answers),
		QuestionsAnswered: answered,
		QuestionsSkipped:  skipped,
		Status:            status,
		CompletedAt:       completedAt(sess, o.now()),
	}

	pct, err := o.percentile(ctx, result)
	if err != nil {
		o.logger.Warn("scoring: percentile computation failed", "error", err,
			slog.String("session_id", sess.ID.String()))
	} else {
		result.Percentile = &pct
	}

	strategyName := "degraded_fallback"
	if strategy != nil {
		strategyName = strategy.Name()
	}
	audit := model.ScoringAudit{
		ID:                uuid.New(),
		SessionID:         sess.ID,
		ResultID:          result.ID,
		TemplateID:        sess.TemplateID,
		Goal:              in.Template.Goal,
		Strategy:          strategyName,
		ConfigSnapshot:    in.Template.Blueprint,
		CompetencyScores:  outcome.CompetencyScores,
		QuestionsAnswered: answered,
		QuestionsSkipped:  skipped,
		DurationMillis:    o.now().Sub(started).Milliseconds(),
	}

	// The scoring write touches results, answers, and the audit table in one
	// transaction; deadlocks against the sweep job are retried here.
	var persisted model.Result
	err = storage.WithRetry(ctx, o.cfg.RetryAttempts, o.cfg.RetryBase, func() error {
		var txErr error
		persisted, txErr = o.db.CreateResultTx(ctx, result, audit, o.scoreBackfill(in))
		return txErr
	})
	if err != nil {
		return model.Result{}, err
	}
	// Another scorer won the race; their result is canonical.
	if persisted.ID != result.ID {
		return persisted, nil
	}

	if err := o.updatePassport(ctx, in, persisted); err != nil {
		// Passport refresh is best-effort after the result committed.
		o.logger.Error("scoring: passport update failed", "error", err,
			slog.String("session_id", sess.ID.String()))
	}

	return persisted, nil
}

// assembleInput loads everything a strategy reads from storage.
func (o *Orchestrator) assembleInput(ctx context.Context, sess model.Session) (Input, error) {
	t, err := o.db.GetTemplate(ctx, sess.TemplateID)
	if err != nil {
		return Input{}, err
	}
	answers, err := o.db.ListAnswers(ctx, sess.ID)
	if err != nil {
		return Input{}, err
	}
	items, err := o.db.GetItemsByIDs(ctx, sess.QuestionOrder)
	if err != nil {
		return Input{}, err
	}

	indicatorIDs := make([]uuid.UUID, 0, len(items))
	seen := make(map[uuid.UUID]bool)
	for _, it := range items {
		if !seen[it.IndicatorID] {
			seen[it.IndicatorID] = true
			indicatorIDs = append(indicatorIDs, it.IndicatorID)
		}
	}
	indicatorComp, err := o.db.MapIndicatorCompetencies(ctx, indicatorIDs)
	if err != nil {
		return Input{}, err
	}

	compIDs := make([]uuid.UUID, 0, len(indicatorComp))
	seenComp := make(map[uuid.UUID]bool)
	for _, compID := range indicatorComp {
		if !seenComp[compID] {
			seenComp[compID] = true
			compIDs = append(compIDs, compID)
		}
	}
	competencies, err := o.db.GetCompetenciesByIDs(ctx, compIDs)
	if err != nil {
		return Input{}, err
	}

	return Input{
		Session:             sess,
		Template:            t,
		Answers:             answers,
		Items:               items,
		Competencies:        competencies,
		IndicatorCompetency: indicatorComp,
	}, nil
}

// loadCollaborators fetches external profiles with bounded retry. Returns
// degraded=true when the goal needs a profile that stayed unavailable.
func (o *Orchestrator) loadCollaborators(ctx context.Context, in *Input) (degraded bool, err error) {
	switch in.Template.Goal {
	case model.GoalJobFit:
		profile, err := withRetry(ctx, o.cfg, func(ctx context.Context) (model.ONetProfile, error) {
			if o.onet == nil {
				return model.ONetProfile{}, model.E(model.CodePreconditionFailed, "no occupation provider configured")
			}
			return o.onet.Profile(ctx, in.Template.Blueprint.ONetOccupationCode)
		})
		if err != nil {
			o.logger.Warn("scoring: occupation profile unavailable, degrading", "error", err,
				slog.String("occupation", in.Template.Blueprint.ONetOccupationCode))
			return true, nil
		}
		in.ONet = &profile

		if in.Template.Blueprint.DeltaTesting && in.Session.ClerkUserID != nil {
			passport, err := o.db.GetPassport(ctx, *in.Session.ClerkUserID)
			if err == nil && !passport.Expired(o.now()) {
				in.Passport = &passport
			} else if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return false, err
			}
		}

	case model.GoalTeamFit:
		teamID := in.Template.Blueprint.TeamID
		profile, err := withRetry(ctx, o.cfg, func(ctx context.Context) (model.TeamProfile, error) {
			if o.teams == nil || teamID == nil {
				return model.TeamProfile{}, model.E(model.CodePreconditionFailed, "no team provider configured")
			}
			return o.teams.Profile(ctx, *teamID)
		})
		if err != nil {
			o.logger.Warn("scoring: team profile unavailable, degrading", "error", err)
			return true, nil
		}
		in.Team = &profile
	}
	return false, nil
}

// fallbackOutcome is the degraded verdict: the goal-agnostic competency
// breakdown and overall mean, never a pass.
func (o *Orchestrator) fallbackOutcome(in Input) Outcome {
	acc := accumulate(in)
	scores := acc.breakdown()
	pct := meanPercentage(scores)
	return Outcome{
		OverallScore:      pct / 20,
		OverallPercentage: pct,
		Passed:            false,
		CompetencyScores:  scores,
		ExtendedMetrics: map[string]float64{
			"consistencyScore": consistencyScore(acc.scores),
		},
	}
}

// percentile ranks the result against the template's historical cohort:
// 100 x (results strictly below) / cohort size, 50 with no history.
func (o *Orchestrator) percentile(ctx context.Context, r model.Result) (float64, error) {
	counts, err := o.db.CountTemplatePercentile(ctx, r.TemplateID, r.ID, r.OverallPercentage)
	if err != nil {
		return 0, err
	}
	if counts.Total == 0 {
		return 50, nil
	}
	return 100 * float64(counts.Below) / float64(counts.Total), nil
}

// scoreBackfill normalises every answer for persistence next to the raw
// payload, feeding the psychometric pipeline.
func (o *Orchestrator) scoreBackfill(in Input) map[uuid.UUID]model.Answer {
	out := make(map[uuid.UUID]model.Answer, len(in.Answers))
	for qid, a := range in.Answers {
		item, ok := in.Items[qid]
		if !ok {
			continue
		}
		norm, scored := Normalize(item, a)
		if !scored {
			continue
		}
		score, maxScore := norm, 1.0
		a.Score = &score
		a.MaxScore = &maxScore
		out[qid] = a
	}
	return out
}

// updatePassport refreshes the taker's competency passport: always after
// an overview run, after job-fit only when the blueprint opts in. Degraded
// results and anonymous takers never touch passports.
func (o *Orchestrator) updatePassport(ctx context.Context, in Input, r model.Result) error {
	if r.Status != model.ResultCompleted || r.ClerkUserID == nil {
		return nil
	}
	switch in.Template.Goal {
	case model.GoalOverview:
	case model.GoalJobFit:
		if !in.Template.Blueprint.UpdatePassport {
			return nil
		}
	default:
		return nil
	}

	now := o.now()
	passport := model.Passport{
		ClerkUserID:      *r.ClerkUserID,
		CompetencyScores: make(map[uuid.UUID]float64),
		BigFiveProfile:   r.BigFiveProfile,
		LastAssessed:     now,
		ExpiresAt:        now.Add(in.Template.Blueprint.PassportMaxAge()),
		SourceResultID:   r.ID,
	}

	// Merge: keep prior competencies this run didn't touch.
	if existing, err := o.db.GetPassport(ctx, *r.ClerkUserID); err == nil {
		for compID, score := range existing.CompetencyScores {
			passport.CompetencyScores[compID] = score
		}
		if passport.BigFiveProfile == nil {
			passport.BigFiveProfile = existing.BigFiveProfile
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	for compID, cs := range r.CompetencyScores {
		if cs.ImportedFromPassport {
			continue
		}
		passport.CompetencyScores[compID] = cs.Score
	}

	return o.db.UpsertPassport(ctx, passport)
}

// completedAt prefers the session's recorded completion time.
func completedAt(sess model.Session, fallback time.Time) time.Time {
	if sess.CompletedAt != nil {
		return *sess.CompletedAt
	}
	return fallback
}

// withRetry runs fn with bounded exponential backoff. Context cancellation
// stops the loop immediately.
func withRetry[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		if i > 0 {
			backoff := cfg.RetryBase * time.Duration(1<<(i-1))
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
			}
		}
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
	}
	return zero, lastErr
}
