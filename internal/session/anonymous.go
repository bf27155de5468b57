package session

import (
	"context"
	"errors"

	"github.com/metriq-ai/metriq/internal/assembly"
	"github.com/metriq-ai/metriq/internal/auth"
	"github.com/metriq-ai/metriq/internal/model"
	"github.com/metriq-ai/metriq/internal/storage"
)

// StartAnonymous mints a session from a share-link token. The returned
// access token is shown once; afterwards only its hash exists server-side.
func (s *Service) StartAnonymous(ctx context.Context, linkToken, clientIP, userAgent string) (model.Session, []assembly.Warning, string, error) {
	link, err := s.db.GetShareLinkByTokenHash(ctx, auth.HashToken(linkToken))
	if errors.Is(err, storage.ErrNotFound) {
		return model.Session{}, nil, "", model.E(model.CodeNotFound, "share link not found")
	}
	if err != nil {
		return model.Session{}, nil, "", err
	}
	if !link.Usable(s.now()) {
		return model.Session{}, nil, "", model.E(model.CodePermissionDenied, "share link is no longer usable")
	}

	decision, err := s.db.CheckAnonRate(ctx, clientIP, s.cfg.AnonymousIPLimit,
		s.cfg.AnonymousWindow, s.cfg.AnonymousBlock, s.now())
	if err != nil {
		return model.Session{}, nil, "", err
	}
	if !decision.Allowed {
		rlErr := model.E(model.CodeRateLimited, "too many anonymous sessions from this address")
		if decision.BlockedUntil != nil {
			rlErr = rlErr.WithDetails(map[string]any{"blocked_until": decision.BlockedUntil})
		}
		return model.Session{}, nil, "", rlErr
	}

	t, err := s.loadStartableTemplate(ctx, link.TemplateID)
	if err != nil {
		return model.Session{}, nil, "", err
	}
	if t.Visibility == model.VisibilityPrivate {
		return model.Session{}, nil, "", model.E(model.CodePermissionDenied, "template %s is private", t.ID)
	}

	accessToken, tokenHash, err := auth.NewToken()
	if err != nil {
		return model.Session{}, nil, "", err
	}

	sess, warnings, err := s.create(ctx, t, nil, &link.ID, &tokenHash, &clientIP, &userAgent)
	if err != nil {
		return model.Session{}, nil, "", err
	}
	return sess, warnings, accessToken, nil
}

// verifyToken checks an anonymous bearer token against its stored hash.
func verifyToken(token, storedHash string) bool {
	return auth.VerifyToken(token, storedHash)
}
