package bullmq

import "errors"

var (
	ErrJobNotFound        = errors.New("job not found")
	ErrJobLocked          = errors.New("job is locked by a worker")
	ErrNotInState         = errors.New("job is not in the expected state")
	ErrQueueNotPaused     = errors.New("queue must be paused first")
	ErrQueueHasActiveJobs = errors.New("queue has active jobs")
	ErrDuplicateJob       = errors.New("job id already exists")
	ErrQueueClosed        = errors.New("queue handle is closed")
)

// scriptError maps the negative status codes returned by the Lua scripts.
func scriptError(code int64) error {
	switch code {
	case -1:
		return ErrJobNotFound
	case -2:
		return ErrJobLocked
	case -3:
		return ErrNotInState
	}
	return nil
}
