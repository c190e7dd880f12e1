// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package health provides liveness and readiness endpoints for container orchestrators.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/camproxy/internal/log"
)

// Status represents the overall health/readiness status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a component health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the liveness payload.
type HealthResponse struct {
	Status    Status                 `json:"status"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Uptime    int64                  `json:"uptime_seconds"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// ReadinessResponse is the readiness payload.
type ReadinessResponse struct {
	Ready     bool                   `json:"ready"`
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Checker defines the interface for health checks
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Manager manages health and readiness checks
type Manager struct {
	version string
	started time.Time

	mu       sync.RWMutex
	checkers []Checker
	details  map[string]interface{}
}

// NewManager creates a new health check manager
func NewManager(version string) *Manager {
	return &Manager{
		version: version,
		started: time.Now(),
		details: make(map[string]interface{}),
	}
}

// RegisterChecker adds a health checker to the manager
func (m *Manager) RegisterChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// SetDetail publishes a static fact (for example the strategy order) on /readyz.
func (m *Manager) SetDetail(key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details[key] = value
}

func (m *Manager) snapshot() ([]Checker, map[string]interface{}) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	checkers := append([]Checker(nil), m.checkers...)
	var details map[string]interface{}
	if len(m.details) > 0 {
		details = make(map[string]interface{}, len(m.details))
		for k, v := range m.details {
			details[k] = v
		}
	}
	return checkers, details
}

// runChecks executes every checker and folds the results into one status.
func runChecks(ctx context.Context, checkers []Checker) (Status, map[string]CheckResult) {
	if len(checkers) == 0 {
		return StatusHealthy, nil
	}
	status := StatusHealthy
	results := make(map[string]CheckResult, len(checkers))
	for _, c := range checkers {
		res := c.Check(ctx)
		results[c.Name()] = res
		switch res.Status {
		case StatusUnhealthy:
			status = StatusUnhealthy
		case StatusDegraded:
			if status == StatusHealthy {
				status = StatusDegraded
			}
		}
	}
	return status, results
}

// Health performs a liveness check. The process is alive whenever it can
// answer; component checks are only evaluated when verbose is set.
func (m *Manager) Health(ctx context.Context, verbose bool) HealthResponse {
	resp := HealthResponse{
		Status:    StatusHealthy,
		Version:   m.version,
		Timestamp: time.Now(),
		Uptime:    int64(time.Since(m.started).Seconds()),
	}
	if verbose {
		checkers, _ := m.snapshot()
		resp.Status, resp.Checks = runChecks(ctx, checkers)
	}
	return resp
}

// Ready performs a readiness check. Any unhealthy component makes the
// instance unready; degraded components keep it in rotation.
func (m *Manager) Ready(ctx context.Context) ReadinessResponse {
	checkers, details := m.snapshot()
	status, results := runChecks(ctx, checkers)
	return ReadinessResponse{
		Ready:     status != StatusUnhealthy,
		Status:    status,
		Timestamp: time.Now(),
		Checks:    results,
		Details:   details,
	}
}

// ServeHealth handles HTTP health check requests
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"
	resp := m.Health(r.Context(), verbose)
	writeJSON(w, r, http.StatusOK, resp, "health")
}

// ServeReady handles HTTP readiness check requests
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	resp := m.Ready(r.Context())
	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, resp, "readiness")
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, body interface{}, component string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger := log.WithComponentFromContext(r.Context(), component)
		logger.Error().Err(err).
			Str("event", component+".encode_error").
			Msg("failed to encode health response")
	}
}
