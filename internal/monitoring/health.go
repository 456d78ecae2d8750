// Package monitoring wires the health probes of the service.
package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lewisedginton/librus_mcp/pkg/health"
	"github.com/lewisedginton/librus_mcp/pkg/health/checkers"
	"github.com/lewisedginton/librus_mcp/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Health status constants
const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusReady     = "ready"
	statusNotReady  = "not_ready"
)

var errShuttingDown = errors.New("shutting down")

// Pinger is anything with a connection that can be checked, e.g. the SQLite archive.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds configuration for the health monitor
type Config struct {
	Logger  logger.Logger
	Version string

	// PortalURL, when set, is probed with GET as a readiness check
	PortalURL string
	// Storage is round-tripped with a probe file
	Storage checkers.ReadWriter
	// Archive is pinged when the archive backend has a connection
	Archive Pinger
	// Redis is pinged when the archive cache is enabled
	Redis redis.UniversalClient

	Timeout          time.Duration
	FailureThreshold int
}

// HealthMonitor manages health checks and monitoring endpoints for the application
type HealthMonitor struct {
	checker      *health.HealthChecker
	logger       logger.Logger
	version      string
	startTime    time.Time
	shuttingDown atomic.Bool
}

// NewHealthMonitor creates a new health monitor with configured checks
func NewHealthMonitor(cfg Config) *HealthMonitor {
	if cfg.Logger == nil {
		panic("logger cannot be nil")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	failureThreshold := cfg.FailureThreshold
	if failureThreshold == 0 {
		failureThreshold = 3
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	hm := &HealthMonitor{
		checker: health.New(
			health.WithLogger(cfg.Logger),
			health.WithTimeout(timeout),
			health.WithFailureThreshold(failureThreshold),
		),
		logger:    cfg.Logger,
		version:   version,
		startTime: time.Now(),
	}

	hm.checker.AddLivenessCheck(health.NewCheckFunc("process", func(context.Context) error {
		return nil
	}))

	hm.checker.AddReadinessCheck(health.NewCheckFunc("shutdown", func(context.Context) error {
		if hm.shuttingDown.Load() {
			return errShuttingDown
		}
		return nil
	}))
	if cfg.Storage != nil {
		hm.checker.AddReadinessCheck(checkers.NewStorageChecker(cfg.Storage, "storage"))
	}
	if cfg.Archive != nil {
		hm.checker.AddReadinessCheck(health.NewCheckFunc("archive", cfg.Archive.Ping))
	}
	if cfg.Redis != nil {
		hm.checker.AddReadinessCheck(checkers.NewRedisChecker(cfg.Redis, "archive_cache"))
	}
	if cfg.PortalURL != "" {
		hm.checker.AddReadinessCheck(checkers.NewHTTPChecker(cfg.PortalURL, "librus_portal"))
	}
	return hm
}

// LivenessHandler returns 200 if the process is alive and can handle requests
func (hm *HealthMonitor) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := hm.checker.CheckLiveness(r.Context())

		response := map[string]any{
			"status":    statusHealthy,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"uptime":    time.Since(hm.startTime).String(),
			"checks":    health.NewResponse(status, err).Checks,
		}
		code := http.StatusOK
		if err != nil {
			response["status"] = statusUnhealthy
			response["error"] = err.Error()
			code = http.StatusServiceUnavailable
			hm.logger.Error("Liveness check failed", logger.ErrorField(err))
		}
		writeJSON(w, code, response)
	}
}

// ReadinessHandler returns 200 if the stores and the portal are reachable
func (hm *HealthMonitor) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := hm.checker.CheckReadiness(r.Context())

		response := map[string]any{
			"status":    statusReady,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"checks":    health.NewResponse(status, err).Checks,
		}
		code := http.StatusOK
		if err != nil {
			response["status"] = statusNotReady
			response["error"] = err.Error()
			code = http.StatusServiceUnavailable
			hm.logger.Warn("Readiness check failed", logger.ErrorField(err))
		}
		writeJSON(w, code, response)
	}
}

// HealthHandler combines liveness and readiness with the version and uptime
func (hm *HealthMonitor) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		liveness, livenessErr := hm.checker.CheckLiveness(ctx)
		readiness, readinessErr := hm.checker.CheckReadiness(ctx)

		live := map[string]any{"status": statusHealthy, "checks": health.NewResponse(liveness, livenessErr).Checks}
		ready := map[string]any{"status": statusReady, "checks": health.NewResponse(readiness, readinessErr).Checks}
		if livenessErr != nil {
			live["status"] = statusUnhealthy
			live["error"] = livenessErr.Error()
		}
		if readinessErr != nil {
			ready["status"] = statusNotReady
			ready["error"] = readinessErr.Error()
		}

		response := map[string]any{
			"status":    statusHealthy,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"uptime":    time.Since(hm.startTime).String(),
			"version":   hm.version,
			"liveness":  live,
			"readiness": ready,
		}
		code := http.StatusOK
		if livenessErr != nil || readinessErr != nil {
			response["status"] = statusUnhealthy
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, response)
	}
}

// Mount registers the probe endpoints on router. The combined endpoint is /health.
func (hm *HealthMonitor) Mount(router chi.Router, livenessPath, readinessPath string) {
	router.Get("/health", hm.HealthHandler())
	router.Get(livenessPath, hm.LivenessHandler())
	router.Get(readinessPath, hm.ReadinessHandler())
}

// MarkShuttingDown fails readiness from now on so load balancers drain the instance.
func (hm *HealthMonitor) MarkShuttingDown() {
	hm.shuttingDown.Store(true)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
