package adminapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hugodataanalyst/ingestpipe/internal/ingest"
)

// HealthChecker is the narrow slice of a store client the readiness/liveness
// handlers need.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EventParser is the slice of C11's Dispatcher the webhook handler needs.
// Declared here, satisfied by *ingest.Dispatcher, so adminapi can be tested
// without a live staging-store client.
type EventParser interface {
	ParseEvent(ctx context.Context, raw map[string]any) ingest.Summary
}

// Server is the admin HTTP surface: health/readiness probes plus the
// webhook ingress that feeds C11, trimmed to the dependencies this surface
// actually needs.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *Config
	dispatcher EventParser
	staging    HealthChecker
	relational HealthChecker
	isLeader   func() bool
	startTime  time.Time
}

// NewServer builds the admin HTTP surface. staging and relational may be
// nil (health checks against that dependency are skipped); isLeader may be
// nil (the health response omits the leader field).
func NewServer(
	cfg *Config,
	dispatcher EventParser,
	staging HealthChecker,
	relational HealthChecker,
	isLeader func() bool,
	logger *slog.Logger,
) *Server {
	s := &Server{
		cfg:        cfg,
		logger:     logger,
		dispatcher: dispatcher,
		staging:    staging,
		relational: relational,
		isLeader:   isLeader,
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// Start begins serving and blocks until ctx is cancelled, at which point it
// shuts the HTTP server down gracefully within cfg.ShutdownTimeout.
func (s *Server) Start(ctx context.Context) error {
	s.startTime = time.Now()

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("starting admin HTTP surface", "address", s.cfg.Address())

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("admin HTTP surface failed: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		return s.Stop(context.Background())
	}
}

// Stop gracefully shuts the HTTP server down within cfg.ShutdownTimeout.
func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin HTTP surface shutdown failed: %w", err)
	}

	return nil
}
