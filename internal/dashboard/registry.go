package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/qontrol/qontrol/internal/bullmq"
	"github.com/qontrol/qontrol/internal/logging"
)

const queueInfoConcurrency = 16

// Registry caches queue handles and reports per-queue summaries.
// The cache only reuses handles; every read goes to the backend.
// Handles handed out by Queue stay usable after eviction: eviction only drops
// them from the cache, and only Cleanup closes them.
type Registry struct {
	backend bullmq.Backend
	scanner *Scanner
	logger  *slog.Logger

	mu      sync.Mutex
	handles map[string]bullmq.QueueHandle
}

// NewRegistry creates a registry backed by scanner discovery.
func NewRegistry(backend bullmq.Backend, scanner *Scanner, logger *slog.Logger) *Registry {
	return &Registry{
		backend: backend,
		scanner: scanner,
		logger:  logger.With(slog.String("component", "registry")),
		handles: make(map[string]bullmq.QueueHandle),
	}
}

// Queue returns the cached handle for name, creating it on first use.
func (r *Registry) Queue(name string) bullmq.QueueHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if handle, ok := r.handles[name]; ok {
		return handle
	}
	handle := r.backend.NewQueue(name)
	r.handles[name] = handle
	return handle
}

// Cached returns the names currently held in the handle cache.
func (r *Registry) Cached() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Exists reports whether name is among the discovered queues.
func (r *Registry) Exists(ctx context.Context, name string) bool {
	return slices.Contains(r.scanner.Discover(ctx), name)
}

// QueueInfo returns counts and pause state. Backend errors yield zeroed info.
func (r *Registry) QueueInfo(ctx context.Context, name string) QueueInfo {
	handle := r.Queue(name)

	counts, err := handle.Counts(ctx)
	if err != nil {
		r.logger.Error("fetch queue counts failed", slog.String("queue", name), logging.Err(err))
		return zeroQueueInfo(name)
	}
	paused, err := handle.IsPaused(ctx)
	if err != nil {
		r.logger.Error("fetch queue pause state failed", slog.String("queue", name), logging.Err(err))
		return zeroQueueInfo(name)
	}

	info := QueueInfo{Name: name, Counts: zeroCounts(), IsPaused: paused}
	for state, count := range counts {
		info.Counts[state] = count
	}
	return info
}

// AllQueuesInfo discovers queues, drops stale handles and fetches every summary concurrently.
// A failed discovery returns no queues and leaves the cache untouched.
func (r *Registry) AllQueuesInfo(ctx context.Context) []QueueInfo {
	names, err := r.scanner.discover(ctx)
	if err != nil {
		return []QueueInfo{}
	}
	r.evictStale(names)

	infos := make([]QueueInfo, len(names))
	var g errgroup.Group
	g.SetLimit(queueInfoConcurrency)
	for i, name := range names {
		g.Go(func() error {
			infos[i] = r.QueueInfo(ctx, name)
			return nil
		})
	}
	_ = g.Wait()
	return infos
}

func (r *Registry) evictStale(discovered []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name := range r.handles {
		if slices.Contains(discovered, name) {
			continue
		}
		delete(r.handles, name)
		r.logger.Debug("evicted stale queue handle", slog.String("queue", name))
	}
}

func (r *Registry) evict(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.handles, name)
}

// Cleanup closes every cached handle and empties the cache.
func (r *Registry) Cleanup() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, handle := range r.handles {
		if err := handle.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	clear(r.handles)
	return errors.Join(errs...)
}

// Pause stops workers from taking new jobs from the queue.
func (r *Registry) Pause(ctx context.Context, name string) error {
	if err := r.Queue(name).Pause(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("pause %s: %w", name, err)
	}
	r.logger.Info("queue paused", slog.String("queue", name))
	return nil
}

// Resume reverses Pause.
func (r *Registry) Resume(ctx context.Context, name string) error {
	if err := r.Queue(name).Resume(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("resume %s: %w", name, err)
	}
	r.logger.Info("queue resumed", slog.String("queue", name))
	return nil
}

// Clean removes up to limit jobs in state older than grace (0 means no limit).
func (r *Registry) Clean(ctx context.Context, name string, grace time.Duration, limit int64, state bullmq.JobState) ([]string, error) {
	removed, err := r.Queue(name).Clean(context.WithoutCancel(ctx), grace, limit, bullmq.RawStateOf(state))
	if err != nil {
		return nil, fmt.Errorf("clean %s: %w", name, err)
	}
	r.logger.Info("queue cleaned", slog.String("queue", name), slog.String("state", string(state)), slog.Int("removed", len(removed)))
	return removed, nil
}

// Drain removes waiting jobs, and delayed ones too when delayed is set.
func (r *Registry) Drain(ctx context.Context, name string, delayed bool) (int64, error) {
	n, err := r.Queue(name).Drain(context.WithoutCancel(ctx), delayed)
	if err != nil {
		return 0, fmt.Errorf("drain %s: %w", name, err)
	}
	r.logger.Info("queue drained", slog.String("queue", name), slog.Int64("removed", n))
	return n, nil
}

// Obliterate deletes the queue and all of its jobs, then forgets its handle.
func (r *Registry) Obliterate(ctx context.Context, name string, force bool) error {
	if err := r.Queue(name).Obliterate(context.WithoutCancel(ctx), force); err != nil {
		return fmt.Errorf("obliterate %s: %w", name, err)
	}
	r.evict(name)
	r.logger.Warn("queue obliterated", slog.String("queue", name), slog.Bool("force", force))
	return nil
}
