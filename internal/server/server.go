package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/metriq-ai/metriq/internal/auth"
	"github.com/metriq-ai/metriq/internal/passport"
	"github.com/metriq-ai/metriq/internal/session"
	"github.com/metriq-ai/metriq/internal/storage"
)

// Server is the assessment HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
type ServerConfig struct {
	DB        *storage.DB
	JWTMgr    *auth.JWTManager
	Sessions  *session.Service
	Passports *passport.Service
	Logger    *slog.Logger

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		JWTMgr:              cfg.JWTMgr,
		Sessions:            cfg.Sessions,
		Passports:           cfg.Passports,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	mux := http.NewServeMux()

	// Credentials.
	mux.HandleFunc("POST /auth/token", h.HandleAuthToken)
	mux.HandleFunc("POST /auth/keys", h.HandleCreateAPIKey)
	mux.HandleFunc("DELETE /auth/keys", h.HandleRevokeAPIKey)

	// Session lifecycle.
	mux.HandleFunc("POST /tests/sessions", h.HandleStartSession)
	mux.HandleFunc("GET /tests/sessions/{session_id}", h.HandleGetSession)
	mux.HandleFunc("GET /tests/sessions/{session_id}/current", h.HandleCurrentQuestion)
	mux.HandleFunc("POST /tests/sessions/{session_id}/answer", h.HandleSubmitAnswer)
	mux.HandleFunc("POST /tests/sessions/{session_id}/skip", h.HandleSkipQuestion)
	mux.HandleFunc("POST /tests/sessions/{session_id}/navigate/back", h.HandleNavigateBack)
	mux.HandleFunc("POST /tests/sessions/{session_id}/navigate/forward", h.HandleNavigateForward)
	mux.HandleFunc("POST /tests/sessions/{session_id}/complete", h.HandleCompleteSession)
	mux.HandleFunc("POST /tests/sessions/{session_id}/abandon", h.HandleAbandonSession)
	mux.HandleFunc("POST /tests/sessions/{session_id}/taker", h.HandleAttachTaker)
	mux.HandleFunc("GET /tests/sessions/{session_id}/activity", h.HandleSessionActivity)

	// Results.
	mux.HandleFunc("GET /tests/results", h.HandleListMyResults)
	mux.HandleFunc("GET /tests/results/{result_id}", h.HandleGetResult)
	mux.HandleFunc("GET /tests/results/{result_id}/audit", h.HandleResultAudit)

	// Templates.
	mux.HandleFunc("POST /templates", h.HandleCreateTemplate)
	mux.HandleFunc("GET /templates", h.HandleListTemplates)
	mux.HandleFunc("GET /templates/{template_id}", h.HandleGetTemplate)
	mux.HandleFunc("PUT /templates/{template_id}", h.HandleUpdateTemplate)
	mux.HandleFunc("POST /templates/{template_id}/publish", h.HandlePublishTemplate)
	mux.HandleFunc("POST /templates/{template_id}/archive", h.HandleArchiveTemplate)
	mux.HandleFunc("POST /templates/{template_id}/versions", h.HandleCreateTemplateVersion)
	mux.HandleFunc("DELETE /templates/{template_id}", h.HandleDeleteTemplate)
	mux.HandleFunc("GET /templates/{template_id}/share-links", h.HandleListShareLinks)

	// Share links and anonymous starts.
	mux.HandleFunc("POST /share-links", h.HandleCreateShareLink)
	mux.HandleFunc("DELETE /share-links/{share_link_id}", h.HandleRevokeShareLink)
	mux.HandleFunc("POST /share-links/{token}/sessions", h.HandleStartAnonymousSession)

	// Passports.
	mux.HandleFunc("GET /passports/user/{clerk_user_id}", h.HandleGetPassport)
	mux.HandleFunc("GET /passports/user/{clerk_user_id}/similar", h.HandleSimilarPassports)

	// Health.
	mux.HandleFunc("GET /healthz", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// correlation ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = correlationIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// Handlers returns the underlying Handlers.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
