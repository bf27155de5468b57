package server

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/metriq-ai/metriq/internal/auth"
	"github.com/metriq-ai/metriq/internal/model"
	"github.com/metriq-ai/metriq/internal/storage"
)

type authTokenRequest struct {
	ClerkUserID string `json:"clerk_user_id"`
	APIKey      string `json:"api_key"`
}

type authTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	Role      string `json:"role"`
}

// HandleAuthToken handles POST /auth/token: exchanges an API key for a
// short-lived JWT. Failure paths run a dummy hash so response timing does
// not reveal whether the user exists.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req authTokenRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.ClerkUserID == "" || req.APIKey == "" {
		writeError(w, r, http.StatusBadRequest, string(model.CodeInvalidArgument), "clerk_user_id and api_key are required")
		return
	}

	key, err := h.db.GetLiveAPIKey(r.Context(), req.ClerkUserID)
	if err != nil {
		auth.DummyVerify()
		writeError(w, r, http.StatusUnauthorized, string(model.CodeUnauthenticated), "invalid credentials")
		return
	}

	valid, err := auth.VerifyAPIKey(req.APIKey, key.KeyHash)
	if err != nil || !valid {
		writeError(w, r, http.StatusUnauthorized, string(model.CodeUnauthenticated), "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(key.ClerkUserID, key.Role)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, authTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		Role:      key.Role,
	})
}

type createAPIKeyResponse struct {
	KeyID uuid.UUID `json:"key_id"`
	Key   string    `json:"key"` // cleartext, shown once
}

// HandleCreateAPIKey handles POST /auth/keys: mints a fresh key for the
// authenticated user. The partial unique index enforces one live key per
// user, so the old key must be revoked first.
func (h *Handlers) HandleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, string(model.CodeUnauthenticated), "authentication required")
		return
	}

	key, hash, err := auth.NewAPIKey()
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	record := storage.APIKey{
		ID:          uuid.New(),
		ClerkUserID: claims.ClerkUserID,
		Role:        claims.Role,
		KeyHash:     hash,
	}
	if err := h.db.CreateAPIKey(r.Context(), record); err != nil {
		writeError(w, r, http.StatusConflict, string(model.CodeConflict), "a live key already exists, revoke it first")
		return
	}
	writeJSON(w, r, http.StatusCreated, createAPIKeyResponse{KeyID: record.ID, Key: key})
}

// HandleRevokeAPIKey handles DELETE /auth/keys.
func (h *Handlers) HandleRevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, string(model.CodeUnauthenticated), "authentication required")
		return
	}
	if err := h.db.RevokeAPIKey(r.Context(), claims.ClerkUserID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, string(model.CodeNotFound), "no live key to revoke")
			return
		}
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
