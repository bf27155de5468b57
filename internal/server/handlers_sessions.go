package server

import (
	"fmt"
	"net/http"

	"github.com/metriq-ai/metriq/internal/assembly"
	"github.com/metriq-ai/metriq/internal/model"
	"github.com/metriq-ai/metriq/internal/session"
)

// warningStrings flattens assembly warnings into the response shape.
func warningStrings(warnings []assembly.Warning) []string {
	if len(warnings) == 0 {
		return nil
	}
	out := make([]string, len(warnings))
	for i, w := range warnings {
		out[i] = fmt.Sprintf("%s: %s", w.Code, w.Detail)
	}
	return out
}

// HandleStartSession handles POST /tests/sessions.
func (h *Handlers) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	clerkUserID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req model.StartSessionRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	sess, warnings, err := h.sessions.Start(r.Context(), session.StartParams{
		TemplateID:  req.TemplateID,
		ClerkUserID: clerkUserID,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, model.StartSessionResponse{
		Session:  sess,
		Warnings: warningStrings(warnings),
	})
}

// HandleStartAnonymousSession handles POST /share-links/{token}/sessions.
// The one-time access token in the response is the anonymous taker's only
// credential for the session.
func (h *Handlers) HandleStartAnonymousSession(w http.ResponseWriter, r *http.Request) {
	linkToken := r.PathValue("token")
	if linkToken == "" {
		writeError(w, r, http.StatusBadRequest, string(model.CodeInvalidArgument), "missing share link token")
		return
	}

	sess, warnings, accessToken, err := h.sessions.StartAnonymous(r.Context(),
		linkToken, clientIP(r), r.UserAgent())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, model.StartSessionResponse{
		Session:     sess,
		Warnings:    warningStrings(warnings),
		AccessToken: accessToken,
	})
}

// HandleGetSession handles GET /tests/sessions/{session_id}.
func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "session_id")
	if !ok {
		return
	}
	sess, err := h.sessions.Get(r.Context(), id, principalFrom(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess)
}

// HandleCurrentQuestion handles GET /tests/sessions/{session_id}/current.
func (h *Handlers) HandleCurrentQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "session_id")
	if !ok {
		return
	}
	resp, err := h.sessions.GetCurrent(r.Context(), id, principalFrom(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// HandleSubmitAnswer handles POST /tests/sessions/{session_id}/answer.
func (h *Handlers) HandleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "session_id")
	if !ok {
		return
	}
	var req model.SubmitAnswerRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	sess, err := h.sessions.SubmitAnswer(r.Context(), id, principalFrom(r), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess)
}

// HandleSkipQuestion handles POST /tests/sessions/{session_id}/skip.
func (h *Handlers) HandleSkipQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "session_id")
	if !ok {
		return
	}
	var req model.SkipRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	sess, err := h.sessions.Skip(r.Context(), id, principalFrom(r), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess)
}

// HandleNavigateBack handles POST /tests/sessions/{session_id}/navigate/back.
func (h *Handlers) HandleNavigateBack(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "session_id")
	if !ok {
		return
	}
	var req model.NavigateRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	sess, err := h.sessions.NavigateBack(r.Context(), id, principalFrom(r), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess)
}

// HandleNavigateForward handles POST /tests/sessions/{session_id}/navigate/forward.
func (h *Handlers) HandleNavigateForward(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "session_id")
	if !ok {
		return
	}
	var req model.NavigateRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	sess, err := h.sessions.NavigateForward(r.Context(), id, principalFrom(r), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess)
}

// HandleCompleteSession handles POST /tests/sessions/{session_id}/complete.
func (h *Handlers) HandleCompleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "session_id")
	if !ok {
		return
	}
	var req model.CompleteSessionRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	result, err := h.sessions.Complete(r.Context(), id, principalFrom(r), req)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// HandleAbandonSession handles POST /tests/sessions/{session_id}/abandon.
func (h *Handlers) HandleAbandonSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "session_id")
	if !ok {
		return
	}
	var req model.NavigateRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	sess, err := h.sessions.Abandon(r.Context(), id, principalFrom(r), req.Version)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess)
}

// HandleAttachTaker handles POST /tests/sessions/{session_id}/taker.
func (h *Handlers) HandleAttachTaker(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "session_id")
	if !ok {
		return
	}
	var req model.AttachTakerRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	sess, err := h.sessions.AttachTaker(r.Context(), id, principalFrom(r), req.Taker)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sess)
}

// HandleSessionActivity handles GET /tests/sessions/{session_id}/activity.
func (h *Handlers) HandleSessionActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "session_id")
	if !ok {
		return
	}
	if _, err := h.sessions.Get(r.Context(), id, principalFrom(r)); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	events, err := h.db.ListSessionActivity(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, events)
}
