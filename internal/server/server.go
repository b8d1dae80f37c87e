// Package server exposes the ops HTTP surface: health, archive replay, and
// read access to dead letters and overdue escalations. The data plane never
// goes through HTTP; this exists for operators.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gosuda/casebridge/internal/config"
	"github.com/gosuda/casebridge/internal/domain"
)

// Replayer re-emits archived events into the dispatcher.
type Replayer interface {
	Replay(ctx context.Context, from, to time.Time) (int, error)
}

type Server struct {
	router      chi.Router
	httpServer  *http.Server
	deadLetters domain.DeadLetterRepository
	escalations domain.EscalationRepository
	replayer    Replayer
}

// New creates a Server with all routes wired.
func New(cfg *config.Config, deadLetters domain.DeadLetterRepository, escalations domain.EscalationRepository, replayer Replayer) *Server {
	router := chi.NewRouter()

	// Global middleware stack.
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Logger)
	router.Use(chimw.Recoverer)

	s := &Server{
		router:      router,
		deadLetters: deadLetters,
		escalations: escalations,
		replayer:    replayer,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	router.Get("/healthz", s.handleHealth)
	router.Route("/v1", func(r chi.Router) {
		r.Post("/replay", s.handleReplay)
		r.Get("/deadletters", s.handleDeadLetters)
		r.Get("/escalations", s.handleEscalations)
	})

	return s
}

// Handler returns the route tree, used by tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
