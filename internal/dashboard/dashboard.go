// Package dashboard discovers BullMQ queues and inspects and mutates their jobs.
package dashboard

import (
	"log/slog"
	"time"

	"github.com/qontrol/qontrol/internal/bullmq"
	"github.com/qontrol/qontrol/internal/logging"
)

// Options configures a Service.
type Options struct {
	Logger  *slog.Logger
	Version string
	// Now overrides the clock used for durations and timestamps.
	Now func() time.Time
}

// Service wires the scanner, registry, job engine and health reporter over one backend.
type Service struct {
	Scanner  *Scanner
	Registry *Registry
	Jobs     *Jobs
	Health   *Health
}

// New builds a Service.
func New(backend bullmq.Backend, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	scanner := NewScanner(backend, logger)
	registry := NewRegistry(backend, scanner, logger)
	return &Service{
		Scanner:  scanner,
		Registry: registry,
		Jobs:     NewJobs(registry, logger, now),
		Health:   NewHealth(backend, opts.Version, logger, now),
	}
}

// Close releases every cached queue handle.
func (s *Service) Close() error {
	return s.Registry.Cleanup()
}
