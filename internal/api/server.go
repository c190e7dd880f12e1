// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the relay over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"github.com/ManuGH/camproxy/internal/api/middleware"
	"github.com/ManuGH/camproxy/internal/config"
	"github.com/ManuGH/camproxy/internal/health"
	"github.com/ManuGH/camproxy/internal/log"
	pnet "github.com/ManuGH/camproxy/internal/platform/net"
	"github.com/ManuGH/camproxy/internal/relay"
)

// Resolver is the relay core as seen by the handler.
type Resolver interface {
	Resolve(ctx context.Context, req relay.RetrievalRequest) (*relay.Resource, error)
}

// Deps are the collaborators a Server needs.
type Deps struct {
	Resolver Resolver
	Health   *health.Manager
	// TracingService enables server spans when non-empty.
	TracingService string
}

// Server owns the router, the upstream concurrency gate and the http.Server.
type Server struct {
	cfg      config.AppConfig
	resolver Resolver
	health   *health.Manager
	guard    *pnet.Guard

	slots      *semaphore.Weighted
	maxSlots   int64
	slotsInUse atomic.Int64

	router  chi.Router
	httpSrv *http.Server
}

// New wires a Server from configuration.
func New(cfg config.AppConfig, deps Deps) (*Server, error) {
	if deps.Resolver == nil {
		return nil, errors.New("api: resolver is required")
	}
	if deps.Health == nil {
		deps.Health = health.NewManager(cfg.Version)
	}
	maxSlots := int64(cfg.Relay.MaxConcurrent)
	if maxSlots <= 0 {
		return nil, fmt.Errorf("api: relay.max_concurrent must be positive, got %d", maxSlots)
	}

	guard, err := TargetGuard(cfg)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		resolver: deps.Resolver,
		health:   deps.Health,
		guard:    guard,
		slots:    semaphore.NewWeighted(maxSlots),
		maxSlots: maxSlots,
	}
	s.health.RegisterChecker(health.NewCapacityChecker(s.SlotUsage))
	s.router = s.routes(deps.TracingService)
	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		MaxHeaderBytes:    cfg.Server.MaxHeaderBytes,
	}
	return s, nil
}

// TargetGuard compiles the relay target allowlist. The same guard must be
// handed to the outbound client so redirects and dials are held to it too.
func TargetGuard(cfg config.AppConfig) (*pnet.Guard, error) {
	guard, err := pnet.NewGuard(pnet.TargetPolicy{
		Hosts: cfg.Relay.AllowedHosts,
		CIDRs: cfg.Relay.AllowedCIDRs,
		Ports: cfg.Relay.AllowedPorts,
	})
	if err != nil {
		return nil, fmt.Errorf("api: target allowlist: %w", err)
	}
	return guard, nil
}

func (s *Server) routes(tracingService string) chi.Router {
	r := chi.NewRouter()

	// Health checks and scrapes stay outside the rate limiter and access log.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recoverer)
		r.Get("/healthz", s.health.ServeHealth)
		r.Get("/readyz", s.health.ServeReady)
		r.Handle("/metrics", promhttp.Handler())
	})

	r.Group(func(r chi.Router) {
		middleware.ApplyStack(r, middleware.StackConfig{
			EnableCORS:            true,
			AllowedOrigins:        s.cfg.CORS.AllowedOrigins,
			EnableSecurityHeaders: true,
			EnableMetrics:         true,
			TracingService:        tracingService,
			EnableLogging:         true,
			EnableRateLimit:       s.cfg.RateLimit.Enabled,
			RequestsPerMinute:     s.cfg.RateLimit.RequestsPerMinute,
		})
		r.Get("/proxy", s.handleProxy)
		r.Options("/proxy", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "Unknown endpoint.")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", "GET")
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET is supported.")
	})
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// SlotUsage reports busy and total upstream slots.
func (s *Server) SlotUsage() (inUse, capacity int64) {
	return s.slotsInUse.Load(), s.maxSlots
}

// Serve accepts connections on ln until Shutdown. It returns nil after a
// graceful shutdown.
func (s *Server) Serve(ln net.Listener) error {
	logger := log.WithComponent("api")
	logger.Info().
		Str(log.FieldEvent, "server.listening").
		Str("addr", ln.Addr().String()).
		Msg("relay listening")
	if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe binds the configured address and serves.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.httpSrv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpSrv.Addr, err)
	}
	return s.Serve(ln)
}

// Shutdown stops accepting connections and waits for in-flight relays.
func (s *Server) Shutdown(ctx context.Context) error {
	logger := log.WithComponent("api")
	logger.Info().Str(log.FieldEvent, "server.shutdown").Msg("shutting down server")
	return s.httpSrv.Shutdown(ctx)
}
