// Package passport serves competency passports: the per-user snapshot of
// the latest qualifying assessment. Expired passports read as absent.
package passport

import (
	"context"
	"errors"
	"time"

	"github.com/metriq-ai/metriq/internal/model"
	"github.com/metriq-ai/metriq/internal/storage"
)

type Service struct {
	db  *storage.DB
	now func() time.Time
}

func New(db *storage.DB) *Service {
	return &Service{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Get returns the user's passport, treating expired snapshots as missing.
func (s *Service) Get(ctx context.Context, clerkUserID string) (model.Passport, error) {
	p, err := s.db.GetPassport(ctx, clerkUserID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Passport{}, model.E(model.CodeNotFound, "no passport for user %s", clerkUserID)
	}
	if err != nil {
		return model.Passport{}, err
	}
	if p.Expired(s.now()) {
		return model.Passport{}, model.E(model.CodeNotFound, "passport for user %s has expired", clerkUserID)
	}
	return p, nil
}

// Similar lists users whose Big-Five profiles sit closest to this user's,
// by cosine distance over the stored trait vectors.
func (s *Service) Similar(ctx context.Context, clerkUserID string, limit int) ([]storage.SimilarPassport, error) {
	p, err := s.Get(ctx, clerkUserID)
	if err != nil {
		return nil, err
	}
	if len(p.BigFiveProfile) == 0 {
		return nil, model.E(model.CodePreconditionFailed,
			"passport for user %s has no personality profile", clerkUserID)
	}
	return s.db.ListSimilarPassports(ctx, clerkUserID, p.BigFiveProfile, limit)
}
