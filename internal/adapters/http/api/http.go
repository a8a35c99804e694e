// Package api exposes the match pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/spinta/internal/auth"
	"github.com/okian/spinta/internal/domain/model"
	"github.com/okian/spinta/pkg/logger"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	Login(ctx context.Context, email, password string) (auth.LoginResult, error)
	Session(ctx context.Context) (model.Session, bool, error)
	Logout(ctx context.Context) error

	Submit(ctx context.Context, sub model.MatchSubmission) (model.Run, error)
	Get(ctx context.Context, id string) (model.Run, error)
	Reanalyze(ctx context.Context, id string) (model.Run, error)
	Confirm(ctx context.Context, id string) (model.Run, error)
	Discard(ctx context.Context, id string) (model.Run, error)
}

// Server wires HTTP routes for the coach API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	sessionHandler *SessionHandler
	matchHandler   *MatchHandler
}

// Option configures the Server.
type Option func(*serverOptions)

type serverOptions struct {
	spoolDir string
	logger   logger.Logger
}

// WithSpoolDir sets where uploaded files are written.
func WithSpoolDir(dir string) Option {
	return func(o *serverOptions) {
		if dir != "" {
			o.spoolDir = dir
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(o *serverOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	o := serverOptions{spoolDir: "data/uploads", logger: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		sessionHandler: NewSessionHandler(deps),
		matchHandler:   NewMatchHandler(deps, o.spoolDir, o.logger),
	}
}

// Register attaches all API routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	if r == nil {
		panic("router is nil")
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", MetricsMiddleware(s.sessionHandler.HandleLogin, "login"))
		r.Get("/session", MetricsMiddleware(s.sessionHandler.HandleSession, "session"))
		r.Delete("/session", MetricsMiddleware(s.sessionHandler.HandleLogout, "session"))

		r.Post("/matches", MetricsMiddleware(s.matchHandler.HandleSubmit, "matches"))
		r.Route("/matches/{id}", func(r chi.Router) {
			r.Get("/", MetricsMiddleware(s.matchHandler.HandleGet, "match"))
			r.Delete("/", MetricsMiddleware(s.matchHandler.HandleDiscard, "match"))
			r.Get("/video", MetricsMiddleware(s.matchHandler.HandleVideo, "match_video"))
			r.Post("/reanalyze", MetricsMiddleware(s.matchHandler.HandleReanalyze, "match_reanalyze"))
			r.Post("/confirm", MetricsMiddleware(s.matchHandler.HandleConfirm, "match_confirm"))
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, body := classify(err)
	writeJSON(w, status, body)
}
