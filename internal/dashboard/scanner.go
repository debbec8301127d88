package dashboard

import (
	"context"
	"log/slog"
	"slices"

	"github.com/qontrol/qontrol/internal/bullmq"
	"github.com/qontrol/qontrol/internal/logging"
)

// Scanner discovers queues from BullMQ meta keys in a shared key-space.
type Scanner struct {
	backend bullmq.Backend
	logger  *slog.Logger
}

// NewScanner creates a scanner over backend.
func NewScanner(backend bullmq.Backend, logger *slog.Logger) *Scanner {
	return &Scanner{backend: backend, logger: logger.With(slog.String("component", "scanner"))}
}

// Discover returns the sorted, de-duplicated names of valid queues.
// Backend failures are logged and yield an empty result.
func (s *Scanner) Discover(ctx context.Context) []string {
	names, err := s.discover(ctx)
	if err != nil {
		return []string{}
	}
	return names
}

// discover is Discover that also reports a failed scan, so callers can tell
// an empty key-space from an unreachable one.
func (s *Scanner) discover(ctx context.Context) ([]string, error) {
	prefix := s.backend.Prefix()
	keys, err := s.backend.ScanKeys(ctx, prefix+":*:meta")
	if err != nil {
		s.logger.Error("queue discovery failed", logging.Err(err))
		return nil, err
	}

	seen := make(map[string]struct{}, len(keys))
	names := make([]string, 0, len(keys))
	filtered := 0
	for _, key := range keys {
		name, ok := bullmq.QueueNameFromMetaKey(prefix, key)
		reason := "key does not match prefix layout"
		if ok {
			reason = queueNameRejection(name)
		}
		if reason != "" {
			filtered++
			s.logger.Warn("ignoring queue key", slog.String("key", key), slog.String("name", name), slog.String("reason", reason))
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	slices.Sort(names)

	s.logger.Info("queue discovery finished", slog.Int("valid", len(names)), slog.Int("filtered", filtered))
	return names, nil
}
