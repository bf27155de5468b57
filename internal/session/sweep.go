package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/metriq-ai/metriq/internal/model"
	"github.com/metriq-ai/metriq/internal/storage"
)

// sweepBatch bounds how many sessions one sweep pass touches.
const sweepBatch = 200

// Tick is the timer sweep: it times out overdue sessions and abandons
// stale ones. Version conflicts mean the session moved on concurrently
// and are skipped, not retried.
func (s *Service) Tick(ctx context.Context) {
	now := s.now()

	due, err := s.db.ListDueTimeouts(ctx, now, sweepBatch)
	if err != nil {
		s.logger.Error("sweep: list due timeouts", "error", err)
	} else {
		for _, sess := range due {
			s.timeOut(ctx, sess)
		}
	}

	stale, err := s.db.ListStaleSessions(ctx, now.Add(-s.cfg.StaleAfter), sweepBatch)
	if err != nil {
		s.logger.Error("sweep: list stale sessions", "error", err)
		return
	}
	for _, sess := range stale {
		s.abandonStale(ctx, sess)
	}
}

// timeOut transitions one session to TimedOut and triggers scoring.
// Whatever answers exist at the deadline are scored as-is.
func (s *Service) timeOut(ctx context.Context, sess model.Session) {
	now := s.now()
	timedOut := model.SessionTimedOut
	updated, err := s.db.UpdateSession(ctx, sess.ID, sess.Version, storage.SessionMutation{
		Status:      &timedOut,
		CompletedAt: &now,
	})
	if errors.Is(err, storage.ErrVersionConflict) || errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Error("sweep: time out session", "error", err,
			slog.String("session_id", sess.ID.String()))
		return
	}

	s.sink.Emit(model.ActivitySessionTimedOut, updated, nil)

	if s.scorer != nil {
		if _, err := s.scorer.Score(ctx, sess.ID); err != nil {
			s.logger.Error("sweep: score timed-out session", "error", err,
				slog.String("session_id", sess.ID.String()))
		}
	}
}

// abandonStale transitions one idle session to Abandoned.
func (s *Service) abandonStale(ctx context.Context, sess model.Session) {
	now := s.now()
	abandoned := model.SessionAbandoned
	updated, err := s.db.UpdateSession(ctx, sess.ID, sess.Version, storage.SessionMutation{
		Status:      &abandoned,
		CompletedAt: &now,
	})
	if errors.Is(err, storage.ErrVersionConflict) || errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Error("sweep: abandon stale session", "error", err,
			slog.String("session_id", sess.ID.String()))
		return
	}

	s.sink.Emit(model.ActivitySessionAbandoned, updated, nil)
}
