package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/qontrol/qontrol/internal/bullmq"
	"github.com/qontrol/qontrol/internal/logging"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// RedisHealth describes backend connectivity. Latency is in milliseconds.
type RedisHealth struct {
	Connected bool   `json:"connected"`
	Latency   *int64 `json:"latency,omitempty"`
}

// HealthReport is the service health snapshot.
type HealthReport struct {
	Status    string      `json:"status"`
	Redis     RedisHealth `json:"redis"`
	Timestamp time.Time   `json:"timestamp"`
	Version   string      `json:"version"`
}

// Healthy reports whether the backend answered.
func (r HealthReport) Healthy() bool {
	return r.Status == StatusHealthy
}

// RedisStats is the parsed INFO output.
type RedisStats struct {
	Info      map[string]any `json:"info"`
	Timestamp time.Time      `json:"timestamp"`
}

// Health pings the backend and exposes its statistics.
type Health struct {
	backend bullmq.Backend
	version string
	logger  *slog.Logger
	now     func() time.Time
}

// NewHealth creates a health reporter.
func NewHealth(backend bullmq.Backend, version string, logger *slog.Logger, now func() time.Time) *Health {
	if now == nil {
		now = time.Now
	}
	return &Health{
		backend: backend,
		version: version,
		logger:  logger.With(slog.String("component", "health")),
		now:     now,
	}
}

// Check pings the backend. Any ping failure marks the service unhealthy.
func (h *Health) Check(ctx context.Context) HealthReport {
	report := HealthReport{Timestamp: h.now().UTC(), Version: h.version}

	latency, err := h.backend.Ping(ctx)
	if err != nil {
		h.logger.Warn("backend ping failed", logging.Err(err))
		report.Status = StatusUnhealthy
		return report
	}

	ms := latency.Milliseconds()
	report.Status = StatusHealthy
	report.Redis = RedisHealth{Connected: true, Latency: &ms}
	return report
}

// RedisStats fetches and parses INFO.
func (h *Health) RedisStats(ctx context.Context) (RedisStats, error) {
	raw, err := h.backend.Info(ctx)
	if err != nil {
		return RedisStats{}, fmt.Errorf("redis info: %w", err)
	}
	return RedisStats{Info: bullmq.ParseInfo(raw), Timestamp: h.now().UTC()}, nil
}
