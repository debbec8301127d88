package bullmq

import (
	"context"
	"time"
)

// Backend defines the Redis-level capabilities the dashboard needs.
// This interface enables swapping the client for a fake in tests.
type Backend interface {
	// Prefix returns the BullMQ key prefix (usually "bull").
	Prefix() string

	// ScanKeys returns every key matching a glob pattern.
	ScanKeys(ctx context.Context, pattern string) ([]string, error)

	// Ping round-trips a PING and reports the latency.
	Ping(ctx context.Context) (time.Duration, error)

	// Info returns the raw Redis INFO blob.
	Info(ctx context.Context) (string, error)

	// NewQueue creates a handle for the named queue.
	NewQueue(name string) QueueHandle

	// Close closes the Redis connection.
	Close() error
}

// QueueHandle is a per-queue accessor over the BullMQ key layout.
type QueueHandle interface {
	Name() string

	// Counts returns the size of every state structure.
	Counts(ctx context.Context) (map[JobState]int64, error)

	// Count returns the size of a single state structure.
	Count(ctx context.Context, state RawState) (int64, error)

	IsPaused(ctx context.Context) (bool, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error

	// GetJobs returns jobs in [start, end] of a state structure. end = -1 means all.
	// asc orders oldest first.
	GetJobs(ctx context.Context, state RawState, start, end int64, asc bool) ([]*Job, error)

	// GetJob returns ErrJobNotFound when the job hash does not exist.
	GetJob(ctx context.Context, id string) (*Job, error)
	GetState(ctx context.Context, id string) (RawState, error)
	IsDelayed(ctx context.Context, id string) (bool, error)
	Logs(ctx context.Context, id string, start, end int64) ([]string, int64, error)
	Dependencies(ctx context.Context, id string) (Children, error)

	Add(ctx context.Context, name, data string, opts AddOptions) (string, error)
	Retry(ctx context.Context, id string) error
	Discard(ctx context.Context, id string) error
	Promote(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error

	// Clean removes jobs older than grace from a state structure, returning their ids.
	Clean(ctx context.Context, grace time.Duration, limit int64, state RawState) ([]string, error)
	// Drain removes waiting (and optionally delayed) jobs, returning how many were removed.
	Drain(ctx context.Context, delayed bool) (int64, error)
	Obliterate(ctx context.Context, force bool) error

	Close() error
}

// Ensure Client implements Backend and Queue implements QueueHandle at compile time.
var (
	_ Backend     = (*Client)(nil)
	_ QueueHandle = (*Queue)(nil)
)
