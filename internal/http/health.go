package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mzansi-solutions/farm-alert-service/internal/lifecycle"
	"github.com/mzansi-solutions/farm-alert-service/internal/observability"
)

// HealthConfig holds thresholds and dependency probes for the health handler.
type HealthConfig struct {
	Version              string
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int // 0 when the rate limiter is disabled
	// CachePing, when set, checks the provider cache backend.
	CachePing func() error
	// StorePing, when set, checks the session and crop store.
	StorePing func(ctx context.Context) error
}

type healthState struct {
	cfg  *HealthConfig
	mu   sync.Mutex
	prev string
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.health.mu.Lock()
	prev := h.health.prev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.health.prev = result.status
	h.health.mu.Unlock()

	checks := map[string]string{"weatherApi": "healthy"}
	if result.status == "degraded" {
		checks["weatherApi"] = "unhealthy"
	}
	version := "dev"
	if cfg := h.health.cfg; cfg != nil {
		if cfg.Version != "" {
			version = cfg.Version
		}
		if cfg.CachePing != nil {
			checks["cache"] = probe(cfg.CachePing())
		}
		if cfg.StorePing != nil {
			checks["store"] = probe(cfg.StorePing(r.Context()))
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   observability.ServiceName,
		"version":   version,
		"checks":    checks,
		"uptime":    h.lifecycle.Uptime().Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if result.reason != "" {
		resp["reason"] = result.reason
	}
	writeJSON(w, result.statusCode, resp)
}

func probe(err error) string {
	if err != nil {
		return "unhealthy"
	}
	return "healthy"
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > starting > API key invalid > overloaded > degraded > healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	switch h.lifecycle.Phase() {
	case lifecycle.PhaseDraining:
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	case lifecycle.PhaseStarting:
		return healthResult{"starting", http.StatusServiceUnavailable, "startup"}
	}
	if err := h.weather.ValidateAPIKey(ctx); err != nil {
		return healthResult{"degraded", http.StatusServiceUnavailable, "api_key_invalid"}
	}
	cfg := h.health.cfg
	if cfg != nil && cfg.RateLimitRPS > 0 && cfg.OverloadWindow > 0 && cfg.OverloadThresholdPct > 0 {
		threshold := float64(cfg.RateLimitRPS) * cfg.OverloadWindow.Seconds() * float64(cfg.OverloadThresholdPct) / 100
		if float64(h.tracker.RequestCount(cfg.OverloadWindow)) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}
		}
	}
	if degradedNow, _ := h.monitor.Degraded(); degradedNow {
		h.recovery.Notify()
		return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
	}
	if h.recovery.Running() {
		return healthResult{"degraded", http.StatusServiceUnavailable, "recovering"}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}
