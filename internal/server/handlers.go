package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/metriq-ai/metriq/internal/auth"
	"github.com/metriq-ai/metriq/internal/model"
	"github.com/metriq-ai/metriq/internal/passport"
	"github.com/metriq-ai/metriq/internal/session"
	"github.com/metriq-ai/metriq/internal/storage"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db                  *storage.DB
	jwtMgr              *auth.JWTManager
	sessions            *session.Service
	passports           *passport.Service
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	DB                  *storage.DB
	JWTMgr              *auth.JWTManager
	Sessions            *session.Service
	Passports           *passport.Service
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		db:                  d.DB,
		jwtMgr:              d.JWTMgr,
		sessions:            d.Sessions,
		passports:           d.Passports,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// principal builds the caller identity from JWT claims and the per-session
// access token header.
func principalFrom(r *http.Request) session.Principal {
	p := session.Principal{SessionToken: r.Header.Get("X-Session-Token")}
	if claims := ClaimsFromContext(r.Context()); claims != nil {
		p.ClerkUserID = claims.ClerkUserID
	}
	return p
}

// requireUser returns the authenticated user's ID or writes a 401.
func (h *Handlers) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, r, http.StatusUnauthorized, string(model.CodeUnauthenticated), "authentication required")
		return "", false
	}
	return claims.ClerkUserID, true
}

// writeJSON writes a JSON response with the standard envelope.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Data: data,
		Meta: model.ResponseMeta{
			CorrelationID: CorrelationIDFromContext(r.Context()),
			Timestamp:     time.Now().UTC(),
		},
	})
}

// writeError writes the documented error body.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeErrorDetails(w, r, status, code, message, nil)
}

func writeErrorDetails(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIError{
		Status:        status,
		Code:          model.Code(code),
		Message:       message,
		Details:       details,
		Path:          r.URL.Path,
		Timestamp:     time.Now().UTC(),
		CorrelationID: CorrelationIDFromContext(r.Context()),
	})
}

// writeDomainError maps a service error onto the HTTP boundary.
func (h *Handlers) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := model.CodeOf(err)
	status := model.HTTPStatus(code)

	var de *model.Error
	if errors.As(err, &de) {
		writeErrorDetails(w, r, status, string(code), de.Message, de.Details)
		return
	}

	h.logger.Error("request failed", "error", err,
		"path", r.URL.Path,
		"correlation_id", CorrelationIDFromContext(r.Context()))
	writeError(w, r, status, string(code), "internal server error")
}

// decodeJSON decodes a JSON request body with a size cap.
func decodeJSON(w http.ResponseWriter, r *http.Request, target any, maxBytes int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func handleDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeError(w, r, http.StatusRequestEntityTooLarge, string(model.CodeInvalidArgument), "request body too large")
		return
	}
	writeError(w, r, http.StatusBadRequest, string(model.CodeInvalidArgument), "invalid request body: "+err.Error())
}

// pathUUID parses a UUID path segment, writing a 400 on failure.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, string(model.CodeInvalidArgument), "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func timeNowUTC() time.Time { return time.Now().UTC() }

// HandleHealth handles GET /healthz.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.db.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, map[string]any{
		"status":         status,
		"version":        h.version,
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	})
}
