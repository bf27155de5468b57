// Package session implements the test-session state machine: start,
// answer intake, navigation, completion, and the timeout sweep. Every
// mutation is guarded by the session's optimistic version.
package session

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/metriq-ai/metriq/internal/activity"
	"github.com/metriq-ai/metriq/internal/assembly"
	"github.com/metriq-ai/metriq/internal/model"
	"github.com/metriq-ai/metriq/internal/storage"
)

// ScoreTrigger finalises a completed or timed-out session into its
// canonical result. Implemented by the scoring orchestrator.
type ScoreTrigger interface {
	Score(ctx context.Context, sessionID uuid.UUID) (model.Result, error)
}

// ONetProvider looks up the benchmark profile for an occupation.
type ONetProvider interface {
	Profile(ctx context.Context, occupationCode string) (model.ONetProfile, error)
}

// TeamProvider looks up a team's saturation profile.
type TeamProvider interface {
	Profile(ctx context.Context, teamID uuid.UUID) (model.TeamProfile, error)
}

// Config is the session-relevant slice of application configuration.
type Config struct {
	StaleAfter       time.Duration
	AnonymousIPLimit int
	AnonymousWindow  time.Duration
	AnonymousBlock   time.Duration
}

// Service drives the session lifecycle.
type Service struct {
	db       *storage.DB
	resolver *assembly.Resolver
	engine   *assembly.Engine
	scorer   ScoreTrigger
	sink     *activity.Sink
	onet     ONetProvider
	teams    TeamProvider
	cfg      Config
	logger   *slog.Logger

	now func() time.Time
}

// New wires the session service. scorer may be set later via SetScorer to
// break the construction cycle with the orchestrator.
func New(db *storage.DB, resolver *assembly.Resolver, engine *assembly.Engine,
	sink *activity.Sink, onet ONetProvider, teams TeamProvider, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		db:       db,
		resolver: resolver,
		engine:   engine,
		sink:     sink,
		onet:     onet,
		teams:    teams,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetScorer injects the scoring trigger after construction.
func (s *Service) SetScorer(scorer ScoreTrigger) { s.scorer = scorer }

// Principal identifies the caller of a session operation: either an
// authenticated user or an anonymous taker presenting a session token.
type Principal struct {
	ClerkUserID  string
	SessionToken string
}

// StartParams describes one authenticated session start.
type StartParams struct {
	TemplateID  uuid.UUID
	ClerkUserID string
}

// Start assembles and creates a session for an authenticated user.
func (s *Service) Start(ctx context.Context, p StartParams) (model.Session, []assembly.Warning, error) {
	t, err := s.loadStartableTemplate(ctx, p.TemplateID)
	if err != nil {
		return model.Session{}, nil, err
	}
	switch t.Visibility {
	case model.VisibilityPublic:
	case model.VisibilityPrivate:
		if t.OwnerClerkID != p.ClerkUserID {
			return model.Session{}, nil, model.E(model.CodePermissionDenied, "template %s is private", t.ID)
		}
	case model.VisibilityLink:
		return model.Session{}, nil, model.E(model.CodePermissionDenied, "template %s is link-only", t.ID)
	}

	sess, warnings, err := s.create(ctx, t, &p.ClerkUserID, nil, nil, nil, nil)
	if err != nil {
		return model.Session{}, nil, err
	}
	return sess, warnings, nil
}

// loadStartableTemplate fetches a template and checks it can mint sessions.
func (s *Service) loadStartableTemplate(ctx context.Context, id uuid.UUID) (model.Template, error) {
	t, err := s.db.GetTemplate(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Template{}, model.E(model.CodeNotFound, "template %s not found", id)
	}
	if err != nil {
		return model.Template{}, err
	}
	if t.DeletedAt != nil {
		return model.Template{}, model.E(model.CodeNotFound, "template %s not found", id)
	}
	if t.Lifecycle != model.LifecyclePublished {
		return model.Template{}, model.E(model.CodeInvalidState, "template %s is %s, not published", id, t.Lifecycle)
	}
	return t, nil
}

// create resolves the plan, assembles the order, and persists the session
// with its exposure increments in one transaction.
func (s *Service) create(ctx context.Context, t model.Template, clerkUserID *string,
	shareLinkID *uuid.UUID, tokenHash, clientIP, userAgent *string) (model.Session, []assembly.Warning, error) {

	rc := assembly.RuntimeContext{Now: s.now()}
	if clerkUserID != nil {
		rc.ClerkUserID = *clerkUserID
	}
	if err := s.loadCollaborators(ctx, t, &rc); err != nil {
		return model.Session{}, nil, err
	}

	plan, err := s.resolver.Resolve(t, rc)
	if err != nil {
		return model.Session{}, nil, err
	}

	seed := rand.Int63()
	order, warnings, err := s.engine.Assemble(ctx, t, plan, seed)
	if err != nil {
		return model.Session{}, nil, err
	}

	now := s.now()
	sess := model.Session{
		ID:                   uuid.New(),
		TemplateID:           t.ID,
		ClerkUserID:          clerkUserID,
		Status:               model.SessionInProgress,
		TimeRemainingSeconds: t.TimeLimitMinutes * 60,
		QuestionOrder:        order,
		Seed:                 seed,
		ShareLinkID:          shareLinkID,
		AccessTokenHash:      tokenHash,
		ClientIP:             clientIP,
		UserAgent:            userAgent,
		StartedAt:            &now,
	}

	created, err := s.db.CreateSessionTx(ctx, sess)
	if err != nil {
		return model.Session{}, nil, err
	}
	created.Seed = seed

	s.sink.Emit(model.ActivitySessionStarted, created, startMetadata(t, plan, len(order)))
	return created, warnings, nil
}

// startMetadata builds the SessionStarted event payload. Delta-testing
// provenance goes here: the competencies whose passport scores let the
// resolver skip them are only known at assembly time, and the event log is
// where that decision stays auditable (scoring re-reads the passport
// itself, so nothing else persists the skip set).
func startMetadata(t model.Template, plan assembly.Plan, questionCount int) map[string]any {
	meta := map[string]any{
		"question_count": questionCount,
		"goal":           string(t.Goal),
	}
	if len(plan.Imported) > 0 {
		skipped := make([]string, 0, len(plan.Imported))
		for compID := range plan.Imported {
			skipped = append(skipped, compID.String())
		}
		sort.Strings(skipped)
		meta["delta_skipped_competencies"] = skipped
	}
	return meta
}

// loadCollaborators fetches the external profiles the template's goal
// needs. Provider failures surface as PreconditionFailed at start time.
func (s *Service) loadCollaborators(ctx context.Context, t model.Template, rc *assembly.RuntimeContext) error {
	switch t.Goal {
	case model.GoalJobFit:
		if s.onet == nil {
			return model.E(model.CodePreconditionFailed, "no occupation profile provider configured")
		}
		profile, err := s.onet.Profile(ctx, t.Blueprint.ONetOccupationCode)
		if err != nil {
			return model.E(model.CodePreconditionFailed,
				"occupation profile %q unavailable: %v", t.Blueprint.ONetOccupationCode, err)
		}
		rc.ONet = &profile

		if t.Blueprint.DeltaTesting && rc.ClerkUserID != "" {
			passport, err := s.db.GetPassport(ctx, rc.ClerkUserID)
			if err == nil {
				rc.Passport = &passport
			} else if !errors.Is(err, storage.ErrNotFound) {
				return err
			}
		}

	case model.GoalTeamFit:
		if s.teams == nil {
			return model.E(model.CodePreconditionFailed, "no team profile provider configured")
		}
		profile, err := s.teams.Profile(ctx, *t.Blueprint.TeamID)
		if err != nil {
			return model.E(model.CodePreconditionFailed,
				"team profile %s unavailable: %v", t.Blueprint.TeamID, err)
		}
		rc.Team = &profile
	}
	return nil
}

// Get returns the session after an access check.
func (s *Service) Get(ctx context.Context, id uuid.UUID, p Principal) (model.Session, error) {
	sess, err := s.db.GetSession(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Session{}, model.E(model.CodeNotFound, "session %s not found", id)
	}
	if err != nil {
		return model.Session{}, err
	}
	if err := s.authorize(sess, p); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

// GetCurrent returns the session's current question with timing recomputed
// from the wall clock.
func (s *Service) GetCurrent(ctx context.Context, id uuid.UUID, p Principal) (model.CurrentQuestionResponse, error) {
	sess, err := s.Get(ctx, id, p)
	if err != nil {
		return model.CurrentQuestionResponse{}, err
	}
	t, err := s.db.GetTemplate(ctx, sess.TemplateID)
	if err != nil {
		return model.CurrentQuestionResponse{}, err
	}

	resp := model.CurrentQuestionResponse{
		SessionID:            sess.ID,
		Status:               sess.Status,
		CurrentQuestionIndex: sess.CurrentQuestionIndex,
		TotalQuestions:       len(sess.QuestionOrder),
		TimeRemainingSeconds: s.remainingSeconds(sess, t),
		Version:              sess.Version,
	}

	if sess.CurrentQuestionIndex < len(sess.QuestionOrder) {
		qid := sess.QuestionOrder[sess.CurrentQuestionIndex]
		item, err := s.db.GetItem(ctx, qid)
		if errors.Is(err, storage.ErrNotFound) {
			return model.CurrentQuestionResponse{}, model.E(model.CodeInternal, "session %s references missing item %s", id, qid)
		}
		if err != nil {
			return model.CurrentQuestionResponse{}, err
		}
		if t.ShuffleOptions && len(item.Options) > 1 {
			item.Options = assembly.ShuffleOptions(item.Options, sess.Seed, item.ID)
		}
		// Takers never see the rubric.
		item.Rubric = nil
		resp.Question = &item
	}
	return resp, nil
}

// remainingSeconds recomputes time left from started_at; untimed templates
// report zero.
func (s *Service) remainingSeconds(sess model.Session, t model.Template) int {
	if t.TimeLimitMinutes <= 0 || sess.StartedAt == nil {
		return 0
	}
	deadline := sess.StartedAt.Add(time.Duration(t.TimeLimitMinutes) * time.Minute)
	left := int(deadline.Sub(s.now()).Seconds())
	if left < 0 {
		left = 0
	}
	return left
}

// SubmitAnswer persists or replaces one answer. Idempotent per
// (session, question): a replay with an identical payload succeeds without
// side effects; a changed payload replaces the answer while InProgress.
func (s *Service) SubmitAnswer(ctx context.Context, id uuid.UUID, p Principal, req model.SubmitAnswerRequest) (model.Session, error) {
	sess, err := s.Get(ctx, id, p)
	if err != nil {
		return model.Session{}, err
	}
	t, err := s.db.GetTemplate(ctx, sess.TemplateID)
	if err != nil {
		return model.Session{}, err
	}
	if err := s.ensureAnswerable(ctx, sess, t); err != nil {
		return model.Session{}, err
	}

	idx := indexOf(sess.QuestionOrder, req.QuestionID)
	if idx < 0 {
		return model.Session{}, model.E(model.CodeInvalidArgument,
			"question %s is not part of session %s", req.QuestionID, id)
	}
	if idx < sess.CurrentQuestionIndex && !t.AllowBackNavigation {
		return model.Session{}, model.E(model.CodeInvalidState,
			"question %s is behind the current index and back navigation is disabled", req.QuestionID)
	}

	item, err := s.db.GetItem(ctx, req.QuestionID)
	if err != nil {
		return model.Session{}, err
	}
	if err := model.ValidateAnswerPayload(item.Type, req.Payload); err != nil {
		return model.Session{}, err
	}

	// Idempotence: identical payload replays return success untouched.
	existing, err := s.db.GetAnswer(ctx, id, req.QuestionID)
	if err == nil && !existing.IsSkipped && reflect.DeepEqual(existing.Payload, req.Payload) {
		return sess, nil
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return model.Session{}, err
	}

	mutation := storage.SessionMutation{}
	if idx == sess.CurrentQuestionIndex {
		next := idx + 1
		mutation.CurrentQuestionIndex = &next
	}

	answer := model.Answer{
		SessionID:        id,
		QuestionID:       req.QuestionID,
		Payload:          req.Payload,
		AnsweredAt:       s.now(),
		TimeSpentSeconds: req.TimeSpentSeconds,
	}

	updated, err := s.db.SubmitAnswerTx(ctx, id, req.Version, mutation, answer)
	if err != nil {
		return model.Session{}, mapStorageErr(err, id)
	}
	return updated, nil
}

// Skip records a skip marker for the current question and advances.
func (s *Service) Skip(ctx context.Context, id uuid.UUID, p Principal, req model.SkipRequest) (model.Session, error) {
	sess, err := s.Get(ctx, id, p)
	if err != nil {
		return model.Session{}, err
	}
	t, err := s.db.GetTemplate(ctx, sess.TemplateID)
	if err != nil {
		return model.Session{}, err
	}
	if err := s.ensureAnswerable(ctx, sess, t); err != nil {
		return model.Session{}, err
	}
	if !t.AllowSkip {
		return model.Session{}, model.E(model.CodeInvalidState, "template %s does not allow skipping", t.ID)
	}

	idx := indexOf(sess.QuestionOrder, req.QuestionID)
	if idx < 0 {
		return model.Session{}, model.E(model.CodeInvalidArgument,
			"question %s is not part of session %s", req.QuestionID, id)
	}

	mutation := storage.SessionMutation{}
	if idx == sess.CurrentQuestionIndex {
		next := idx + 1
		mutation.CurrentQuestionIndex = &next
	}

	answer := model.Answer{
		SessionID:  id,
		QuestionID: req.QuestionID,
		AnsweredAt: s.now(),
		IsSkipped:  true,
	}
	updated, err := s.db.SubmitAnswerTx(ctx, id, req.Version, mutation, answer)
	if err != nil {
		return model.Session{}, mapStorageErr(err, id)
	}
	return updated, nil
}

// NavigateBack moves the index back by one.
func (s *Service) NavigateBack(ctx context.Context, id uuid.UUID, p Principal, req model.NavigateRequest) (model.Session, error) {
	sess, err := s.Get(ctx, id, p)
	if err != nil {
		return model.Session{}, err
	}
	t, err := s.db.GetTemplate(ctx, sess.TemplateID)
	if err != nil {
		return model.Session{}, err
	}
	if err := s.ensureAnswerable(ctx, sess, t); err != nil {
		return model.Session{}, err
	}
	if !t.AllowBackNavigation {
		return model.Session{}, model.E(model.CodeInvalidState, "template %s does not allow back navigation", t.ID)
	}
	if sess.CurrentQuestionIndex == 0 {
		return model.Session{}, model.E(model.CodeInvalidState, "session %s is at the first question", id)
	}

	prev := sess.CurrentQuestionIndex - 1
	updated, err := s.db.UpdateSession(ctx, id, req.Version, storage.SessionMutation{CurrentQuestionIndex: &prev})
	if err != nil {
		return model.Session{}, mapStorageErr(err, id)
	}
	return updated, nil
}

// NavigateForward advances the index past an already-answered (or skipped)
// question. With allow_skip=false the current question must carry an
// answer first.
func (s *Service) NavigateForward(ctx context.Context, id uuid.UUID, p Principal, req model.NavigateRequest) (model.Session, error) {
	sess, err := s.Get(ctx, id, p)
	if err != nil {
		return model.Session{}, err
	}
	t, err := s.db.GetTemplate(ctx, sess.TemplateID)
	if err != nil {
		return model.Session{}, err
	}
	if err := s.ensureAnswerable(ctx, sess, t); err != nil {
		return model.Session{}, err
	}
	if sess.CurrentQuestionIndex >= len(sess.QuestionOrder) {
		return model.Session{}, model.E(model.CodeInvalidState, "session %s is past the last question", id)
	}

	if !t.AllowSkip {
		qid := sess.QuestionOrder[sess.CurrentQuestionIndex]
		if _, err := s.db.GetAnswer(ctx, id, qid); errors.Is(err, storage.ErrNotFound) {
			return model.Session{}, model.E(model.CodeInvalidState,
				"question %s must be answered before advancing", qid)
		} else if err != nil {
			return model.Session{}, err
		}
	}

	next := sess.CurrentQuestionIndex + 1
	updated, err := s.db.UpdateSession(ctx, id, req.Version, storage.SessionMutation{CurrentQuestionIndex: &next})
	if err != nil {
		return model.Session{}, mapStorageErr(err, id)
	}
	return updated, nil
}

// Complete transitions the session to Completed and runs scoring. Calling
// it twice returns the existing canonical result.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, p Principal, req model.CompleteSessionRequest) (model.Result, error) {
	sess, err := s.Get(ctx, id, p)
	if err != nil {
		return model.Result{}, err
	}
	if sess.Status.Terminal() {
		// Idempotent re-entry: hand back the canonical result if scoring
		// already ran.
		if result, err := s.scorer.Score(ctx, id); err == nil {
			return result, nil
		}
		return model.Result{}, model.E(model.CodeInvalidState, "session %s is already %s", id, sess.Status)
	}
	if sess.Status != model.SessionInProgress {
		return model.Result{}, model.E(model.CodeInvalidState, "session %s is %s", id, sess.Status)
	}

	now := s.now()
	completed := model.SessionCompleted
	_, err = s.db.UpdateSession(ctx, id, req.Version, storage.SessionMutation{
		Status:      &completed,
		CompletedAt: &now,
	})
	if err != nil {
		return model.Result{}, mapStorageErr(err, id)
	}

	result, err := s.scorer.Score(ctx, id)
	if err != nil {
		return model.Result{}, err
	}

	s.sink.Emit(model.ActivitySessionCompleted, sess, map[string]any{
		"result_id": result.ID.String(),
	})
	return result, nil
}

// Abandon transitions an in-progress session to Abandoned.
func (s *Service) Abandon(ctx context.Context, id uuid.UUID, p Principal, version int) (model.Session, error) {
	sess, err := s.Get(ctx, id, p)
	if err != nil {
		return model.Session{}, err
	}
	if sess.Status.Terminal() {
		return model.Session{}, model.E(model.CodeInvalidState, "session %s is already %s", id, sess.Status)
	}

	now := s.now()
	abandoned := model.SessionAbandoned
	updated, err := s.db.UpdateSession(ctx, id, version, storage.SessionMutation{
		Status:      &abandoned,
		CompletedAt: &now,
	})
	if err != nil {
		return model.Session{}, mapStorageErr(err, id)
	}

	s.sink.Emit(model.ActivitySessionAbandoned, updated, nil)
	return updated, nil
}

// AttachTaker stores anonymous taker contact info on a finished session.
func (s *Service) AttachTaker(ctx context.Context, id uuid.UUID, p Principal, taker model.AnonymousTaker) (model.Session, error) {
	sess, err := s.Get(ctx, id, p)
	if err != nil {
		return model.Session{}, err
	}
	if !sess.Anonymous() {
		return model.Session{}, model.E(model.CodeInvalidState, "session %s is not anonymous", id)
	}
	if !sess.Status.Terminal() {
		return model.Session{}, model.E(model.CodeInvalidState, "session %s is still in progress", id)
	}

	updated, err := s.db.UpdateSession(ctx, id, sess.Version, storage.SessionMutation{AnonymousTaker: &taker})
	if err != nil {
		return model.Session{}, mapStorageErr(err, id)
	}
	return updated, nil
}

// ensureAnswerable rejects mutations on terminal sessions and performs a
// lazy timeout check so an expired session fails closed even between
// sweeps.
func (s *Service) ensureAnswerable(ctx context.Context, sess model.Session, t model.Template) error {
	if sess.Status.Terminal() {
		return model.E(model.CodeInvalidState, "session %s is %s", sess.ID, sess.Status)
	}
	if sess.Status != model.SessionInProgress {
		return model.E(model.CodeInvalidState, "session %s is %s", sess.ID, sess.Status)
	}
	if t.TimeLimitMinutes > 0 && s.remainingSeconds(sess, t) == 0 {
		s.timeOut(ctx, sess)
		return model.E(model.CodeInvalidState, "session %s has timed out", sess.ID)
	}
	return nil
}

// authorize checks the principal against the session's owner.
func (s *Service) authorize(sess model.Session, p Principal) error {
	if sess.Anonymous() {
		if sess.AccessTokenHash == nil || p.SessionToken == "" {
			return model.E(model.CodeUnauthenticated, "session %s requires its access token", sess.ID)
		}
		if !verifyToken(p.SessionToken, *sess.AccessTokenHash) {
			return model.E(model.CodePermissionDenied, "invalid session token")
		}
		return nil
	}
	if p.ClerkUserID == "" {
		return model.E(model.CodeUnauthenticated, "authentication required")
	}
	if *sess.ClerkUserID != p.ClerkUserID {
		return model.E(model.CodePermissionDenied, "session %s belongs to another user", sess.ID)
	}
	return nil
}

func indexOf(order []uuid.UUID, id uuid.UUID) int {
	for i, q := range order {
		if q == id {
			return i
		}
	}
	return -1
}

// mapStorageErr translates storage sentinels into the error taxonomy.
func mapStorageErr(err error, sessionID uuid.UUID) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return model.E(model.CodeNotFound, "session %s not found", sessionID)
	case errors.Is(err, storage.ErrVersionConflict):
		return model.E(model.CodeConflict, "session %s was modified concurrently, reread and retry", sessionID)
	default:
		return err
	}
}
