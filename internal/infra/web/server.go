package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"pizza-order-bot/internal/config"
	"pizza-order-bot/internal/domain/model"
)

// SessionAdmin is the engine surface used by the admin routes.
type SessionAdmin interface {
	Inspect(ctx context.Context, key model.SessionKey) (*model.Session, error)
	Reset(ctx context.Context, key model.SessionKey) error
}

type InvoiceLister interface {
	ListBySession(ctx context.Context, key model.SessionKey, limit int) ([]model.Invoice, error)
}

// Webhook is the Messenger callback endpoint pair.
type Webhook interface {
	Verify(w http.ResponseWriter, r *http.Request)
	Receive(w http.ResponseWriter, r *http.Request)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps wires the routes. Facebook, Invoices, Auth and Checks are optional.
type Deps struct {
	Sessions SessionAdmin
	Invoices InvoiceLister
	Facebook Webhook
	Auth     *Authenticator
	Checks   map[string]Pinger
	Metrics  http.Handler
}

type Server struct {
	deps   Deps
	log    *zerolog.Logger
	router chi.Router
	srv    *http.Server
}

func NewServer(cfg config.HTTPConfig, deps Deps, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "http").Logger()
	if deps.Metrics == nil {
		deps.Metrics = promhttp.Handler()
	}
	s := &Server{deps: deps, log: &l}
	s.router = s.routes(cfg.WriteTimeout)
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes(timeout time.Duration) chi.Router {
	r := chi.NewRouter()
	r.Use(TraceID(), Recover(s.log), RequestLog(s.log))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.deps.Metrics)

	if s.deps.Facebook != nil {
		r.Get("/webhooks/facebook", s.deps.Facebook.Verify)
		r.Post("/webhooks/facebook", s.deps.Facebook.Receive)
	}

	r.Route("/admin", func(r chi.Router) {
		r.Use(RequireAdmin(s.deps.Auth, s.log))
		if timeout > 0 {
			r.Use(Timeout(timeout))
		}
		r.Get("/sessions/{channel}/{userID}", s.handleInspectSession)
		r.Delete("/sessions/{channel}/{userID}", s.handleResetSession)
	})
	return r
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
