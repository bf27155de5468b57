package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/metriq-ai/metriq/internal/model"
	"github.com/metriq-ai/metriq/internal/storage"
)

// HandleGetResult handles GET /tests/results/{result_id}. The session
// owner reads it, whether authenticated or anonymous with the session
// token.
func (h *Handlers) HandleGetResult(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "result_id")
	if !ok {
		return
	}
	result, err := h.db.GetResult(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, string(model.CodeNotFound), "result not found")
		return
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	// Access rides on the session's own authorization rules.
	if _, err := h.sessions.Get(r.Context(), result.SessionID, principalFrom(r)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// HandleListMyResults handles GET /tests/results.
func (h *Handlers) HandleListMyResults(w http.ResponseWriter, r *http.Request) {
	clerkUserID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	results, err := h.db.ListResultsByUser(r.Context(), clerkUserID, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, results)
}

// HandleResultAudit handles GET /tests/results/{result_id}/audit.
func (h *Handlers) HandleResultAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "result_id")
	if !ok {
		return
	}
	result, err := h.db.GetResult(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, string(model.CodeNotFound), "result not found")
		return
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if _, err := h.sessions.Get(r.Context(), result.SessionID, principalFrom(r)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	audits, err := h.db.ListScoringAudit(r.Context(), result.SessionID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, audits)
}

// HandleGetPassport handles GET /passports/user/{clerk_user_id}.
func (h *Handlers) HandleGetPassport(w http.ResponseWriter, r *http.Request) {
	clerkUserID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	target := r.PathValue("clerk_user_id")
	if target != clerkUserID {
		writeError(w, r, http.StatusForbidden, string(model.CodePermissionDenied),
			"passports are readable by their owner only")
		return
	}
	p, err := h.passports.Get(r.Context(), target)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// HandleSimilarPassports handles GET /passports/user/{clerk_user_id}/similar.
func (h *Handlers) HandleSimilarPassports(w http.ResponseWriter, r *http.Request) {
	clerkUserID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	target := r.PathValue("clerk_user_id")
	if target != clerkUserID {
		writeError(w, r, http.StatusForbidden, string(model.CodePermissionDenied),
			"passports are readable by their owner only")
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 50 {
			limit = n
		}
	}
	similar, err := h.passports.Similar(r.Context(), target, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, similar)
}
