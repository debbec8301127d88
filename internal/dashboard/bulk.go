package dashboard

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/qontrol/qontrol/internal/bullmq"
	"github.com/qontrol/qontrol/internal/mathutil"
)

const (
	// BulkChunkSize bounds how many ids of a bulk request run at once.
	BulkChunkSize = 10
	// MaxBulkJobs is the largest accepted bulk request.
	MaxBulkJobs = 100
)

var errBulkNotFailed = errors.New("job is not in failed state")

// BulkError reports why one id of a bulk request failed.
type BulkError struct {
	JobID string `json:"jobId"`
	Error string `json:"error"`
}

// BulkResult aggregates a bulk request; Errors follow input order.
type BulkResult struct {
	Success int         `json:"success"`
	Failed  int         `json:"failed"`
	Errors  []BulkError `json:"errors"`
}

// BulkRemove removes every id independently, BulkChunkSize at a time.
func (j *Jobs) BulkRemove(ctx context.Context, queue string, ids []string) BulkResult {
	handle := j.registry.Queue(queue)
	return j.runBulk(ctx, "bulk-remove", queue, ids, func(ctx context.Context, id string) error {
		if _, err := handle.GetJob(ctx, id); err != nil {
			if errors.Is(err, bullmq.ErrJobNotFound) {
				return ErrJobNotFound
			}
			return err
		}
		return handle.Remove(ctx, id)
	})
}

// BulkRetry retries every id that finished with a failure, BulkChunkSize at a time.
func (j *Jobs) BulkRetry(ctx context.Context, queue string, ids []string) BulkResult {
	handle := j.registry.Queue(queue)
	return j.runBulk(ctx, "bulk-retry", queue, ids, func(ctx context.Context, id string) error {
		job, err := handle.GetJob(ctx, id)
		if err != nil {
			if errors.Is(err, bullmq.ErrJobNotFound) {
				return ErrJobNotFound
			}
			return err
		}
		if job.FinishedOn == 0 || job.FailedReason == "" {
			return errBulkNotFailed
		}
		return handle.Retry(ctx, id)
	})
}

// runBulk runs op for each id. Ids in one chunk run concurrently; a chunk starts only
// after the previous one has finished. One failure never stops its siblings.
func (j *Jobs) runBulk(ctx context.Context, op, queue string, ids []string, fn func(context.Context, string) error) BulkResult {
	ctx = context.WithoutCancel(ctx)
	results := make([]error, len(ids))

	offset := 0
	for _, chunk := range mathutil.Chunk(ids, BulkChunkSize) {
		var g errgroup.Group
		for i, id := range chunk {
			idx := offset + i
			g.Go(func() error {
				results[idx] = fn(ctx, id)
				return nil
			})
		}
		_ = g.Wait()
		offset += len(chunk)
	}

	result := BulkResult{Errors: []BulkError{}}
	for i, err := range results {
		if err == nil {
			result.Success++
			continue
		}
		result.Failed++
		result.Errors = append(result.Errors, BulkError{JobID: ids[i], Error: bulkMessage(err)})
	}

	j.logger.Info("bulk operation finished",
		slog.String("op", op),
		slog.String("queue", queue),
		slog.Int("success", result.Success),
		slog.Int("failed", result.Failed),
	)
	return result
}

func bulkMessage(err error) string {
	switch {
	case errors.Is(err, ErrJobNotFound), errors.Is(err, bullmq.ErrJobNotFound):
		return "Job not found"
	case errors.Is(err, bullmq.ErrJobLocked):
		return "Job is locked by a worker"
	case errors.Is(err, errBulkNotFailed), errors.Is(err, bullmq.ErrNotInState):
		return "Job is not in failed state"
	}
	return err.Error()
}
