package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/qontrol/qontrol/internal/bullmq"
	"github.com/qontrol/qontrol/internal/logging"
)

// Outcome is the business result of a single-job mutation.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeNotFound
	OutcomeWrongState
)

// OK reports whether the mutation was applied.
func (o Outcome) OK() bool {
	return o == OutcomeApplied
}

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeNotFound:
		return "not found"
	case OutcomeWrongState:
		return "wrong state"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// discardableStates are the raw states a job may be discarded from.
// Waiting jobs of a paused queue sit in the paused list, and prioritized jobs
// in the prioritized set; both count as waiting.
var discardableStates = map[bullmq.RawState]bool{
	bullmq.RawActive:          true,
	bullmq.RawWaiting:         true,
	bullmq.RawPaused:          true,
	bullmq.RawPrioritized:     true,
	bullmq.RawWaitingChildren: true,
}

// outcomeOf classifies a backend mutation error. Races where the job vanished or
// moved after the precondition read become outcomes rather than errors.
func outcomeOf(err error) (Outcome, error) {
	switch {
	case err == nil:
		return OutcomeApplied, nil
	case errors.Is(err, bullmq.ErrJobNotFound):
		return OutcomeNotFound, nil
	case errors.Is(err, bullmq.ErrNotInState), errors.Is(err, bullmq.ErrJobLocked):
		return OutcomeWrongState, nil
	default:
		return OutcomeApplied, err
	}
}

func (j *Jobs) logOutcome(op, queue, id string, outcome Outcome, err error) {
	attrs := []any{slog.String("op", op), slog.String("queue", queue), slog.String("job_id", id)}
	switch {
	case err != nil:
		j.logger.Error("job mutation failed", append(attrs, logging.Err(err))...)
	case outcome.OK():
		j.logger.Info("job mutation applied", attrs...)
	default:
		j.logger.Warn("job mutation rejected", append(attrs, slog.String("outcome", outcome.String()))...)
	}
}

// Retry moves a failed job back to waiting. Jobs without a failure reason are WrongState.
func (j *Jobs) Retry(ctx context.Context, queue, id string) (outcome Outcome, err error) {
	ctx = context.WithoutCancel(ctx)
	defer func() { j.logOutcome("retry", queue, id, outcome, err) }()

	handle := j.registry.Queue(queue)
	job, err := handle.GetJob(ctx, id)
	if errors.Is(err, bullmq.ErrJobNotFound) {
		return OutcomeNotFound, nil
	}
	if err != nil {
		return OutcomeNotFound, fmt.Errorf("retry %s/%s: %w", queue, id, err)
	}
	if job.FailedReason == "" {
		return OutcomeWrongState, nil
	}
	outcome, err = outcomeOf(handle.Retry(ctx, id))
	if err != nil {
		return outcome, fmt.Errorf("retry %s/%s: %w", queue, id, err)
	}
	return outcome, nil
}

// Discard flags an active, waiting (including prioritized) or waiting-children job
// so it is not retried.
func (j *Jobs) Discard(ctx context.Context, queue, id string) (outcome Outcome, err error) {
	ctx = context.WithoutCancel(ctx)
	defer func() { j.logOutcome("discard", queue, id, outcome, err) }()

	handle := j.registry.Queue(queue)
	if _, err := handle.GetJob(ctx, id); err != nil {
		if errors.Is(err, bullmq.ErrJobNotFound) {
			return OutcomeNotFound, nil
		}
		return OutcomeNotFound, fmt.Errorf("discard %s/%s: %w", queue, id, err)
	}
	raw, err := handle.GetState(ctx, id)
	if err != nil {
		return OutcomeNotFound, fmt.Errorf("discard %s/%s: %w", queue, id, err)
	}
	if !discardableStates[raw] {
		return OutcomeWrongState, nil
	}
	outcome, err = outcomeOf(handle.Discard(ctx, id))
	if err != nil {
		return outcome, fmt.Errorf("discard %s/%s: %w", queue, id, err)
	}
	return outcome, nil
}

// Promote moves a delayed job to waiting immediately.
func (j *Jobs) Promote(ctx context.Context, queue, id string) (outcome Outcome, err error) {
	ctx = context.WithoutCancel(ctx)
	defer func() { j.logOutcome("promote", queue, id, outcome, err) }()

	handle := j.registry.Queue(queue)
	if _, err := handle.GetJob(ctx, id); err != nil {
		if errors.Is(err, bullmq.ErrJobNotFound) {
			return OutcomeNotFound, nil
		}
		return OutcomeNotFound, fmt.Errorf("promote %s/%s: %w", queue, id, err)
	}
	delayed, err := handle.IsDelayed(ctx, id)
	if err != nil {
		return OutcomeNotFound, fmt.Errorf("promote %s/%s: %w", queue, id, err)
	}
	if !delayed {
		return OutcomeWrongState, nil
	}
	outcome, err = outcomeOf(handle.Promote(ctx, id))
	if err != nil {
		return outcome, fmt.Errorf("promote %s/%s: %w", queue, id, err)
	}
	return outcome, nil
}

// Remove deletes a job and its children. A job locked by a worker is WrongState.
func (j *Jobs) Remove(ctx context.Context, queue, id string) (outcome Outcome, err error) {
	ctx = context.WithoutCancel(ctx)
	defer func() { j.logOutcome("remove", queue, id, outcome, err) }()

	handle := j.registry.Queue(queue)
	if _, err := handle.GetJob(ctx, id); err != nil {
		if errors.Is(err, bullmq.ErrJobNotFound) {
			return OutcomeNotFound, nil
		}
		return OutcomeNotFound, fmt.Errorf("remove %s/%s: %w", queue, id, err)
	}
	outcome, err = outcomeOf(handle.Remove(ctx, id))
	if err != nil {
		return outcome, fmt.Errorf("remove %s/%s: %w", queue, id, err)
	}
	return outcome, nil
}
