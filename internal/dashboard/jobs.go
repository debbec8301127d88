package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/qontrol/qontrol/internal/bullmq"
	"github.com/qontrol/qontrol/internal/logging"
	"github.com/qontrol/qontrol/internal/mathutil"
)

// Jobs reads and mutates the jobs of registered queues.
type Jobs struct {
	registry *Registry
	logger   *slog.Logger
	now      func() time.Time
}

// NewJobs creates the job query and mutation engine.
func NewJobs(registry *Registry, logger *slog.Logger, now func() time.Time) *Jobs {
	if now == nil {
		now = time.Now
	}
	return &Jobs{
		registry: registry,
		logger:   logger.With(slog.String("component", "jobs")),
		now:      now,
	}
}

// isPaused reads the pause flag, treating a backend error as not paused.
func (j *Jobs) isPaused(ctx context.Context, queue string, handle bullmq.QueueHandle) bool {
	paused, err := handle.IsPaused(ctx)
	if err != nil {
		j.logger.Warn("read queue pause state failed", slog.String("queue", queue), logging.Err(err))
		return false
	}
	return paused
}

// List fetches every job in the requested states, then filters, sorts and pages in memory.
// Backend failures degrade to fewer (or no) jobs; only invalid queries return an error.
func (j *Jobs) List(ctx context.Context, queue string, query JobQuery) (JobPage, error) {
	q, err := query.Normalize()
	if err != nil {
		return JobPage{}, err
	}
	if q.SearchType == SearchID && q.Search != "" {
		return j.ByID(ctx, queue, q.Search), nil
	}

	handle := j.registry.Queue(queue)
	paused := j.isPaused(ctx, queue, handle)
	now := j.now()

	type fetch struct {
		raw  bullmq.RawState
		jobs []*bullmq.Job
	}
	var fetches []*fetch
	for _, state := range q.States {
		for _, raw := range rawStatesFor(state) {
			if !slices.ContainsFunc(fetches, func(f *fetch) bool { return f.raw == raw }) {
				fetches = append(fetches, &fetch{raw: raw})
			}
		}
	}

	var g errgroup.Group
	for _, f := range fetches {
		g.Go(func() error {
			jobs, err := handle.GetJobs(ctx, f.raw, 0, -1, false)
			if err != nil {
				j.logger.Error("fetch jobs failed", slog.String("queue", queue), slog.String("state", string(f.raw)), logging.Err(err))
				return nil
			}
			f.jobs = jobs
			return nil
		})
	}
	_ = g.Wait()

	var items []candidate
	for _, f := range fetches {
		state := DeriveState(f.raw, paused)
		for _, job := range f.jobs {
			items = append(items, candidate{job: job, state: state})
		}
	}

	items = applyFilters(items, q, now)
	sortCandidates(items, q.SortBy, q.SortOrder, now)

	start, end := mathutil.PageWindow(q.Page, q.PageSize, len(items))
	page := JobPage{Jobs: make([]JobSummary, 0, end-start), Total: len(items)}
	for _, item := range items[start:end] {
		page.Jobs = append(page.Jobs, toSummary(item.job, item.state, now))
	}
	return page, nil
}

// Stream pages through each requested state in backend order, one window at a time.
// Only the name/data search is applied per window and Total is the state's backend
// count, so pages may hold fewer than PageSize jobs. Without query.All only the
// requested page of each state is produced.
func (j *Jobs) Stream(ctx context.Context, queue string, query JobQuery) iter.Seq2[JobPage, error] {
	return func(yield func(JobPage, error) bool) {
		q, err := query.Normalize()
		if err != nil {
			yield(JobPage{}, err)
			return
		}

		handle := j.registry.Queue(queue)
		paused := j.isPaused(ctx, queue, handle)
		asc := q.SortOrder == SortAsc
		size := int64(q.PageSize)

		for _, state := range q.States {
			for _, raw := range rawStatesFor(state) {
				total, err := handle.Count(ctx, raw)
				if err != nil {
					if !yield(JobPage{}, fmt.Errorf("count %s jobs: %w", raw, err)) {
						return
					}
					continue
				}

				derived := DeriveState(raw, paused)
				for page := q.Page; ; page++ {
					if err := ctx.Err(); err != nil {
						yield(JobPage{}, err)
						return
					}
					start := int64(page-1) * size
					if start >= total {
						break
					}
					jobs, err := handle.GetJobs(ctx, raw, start, start+size-1, asc)
					if err != nil {
						if !yield(JobPage{}, fmt.Errorf("fetch %s jobs: %w", raw, err)) {
							return
						}
						break
					}

					now := j.now()
					out := JobPage{Jobs: make([]JobSummary, 0, len(jobs)), Total: int(total), State: derived, Page: page}
					for _, job := range jobs {
						if q.Search != "" && !matchesSearch(job, q.Search, q.SearchType) {
							continue
						}
						out.Jobs = append(out.Jobs, toSummary(job, derived, now))
					}
					if !yield(out, nil) {
						return
					}
					if !q.All {
						break
					}
				}
			}
		}
	}
}

// ByID looks a job up directly, ignoring every filter. Absent jobs and backend
// errors both produce an empty page.
func (j *Jobs) ByID(ctx context.Context, queue, id string) JobPage {
	empty := JobPage{Jobs: []JobSummary{}}
	handle := j.registry.Queue(queue)

	job, err := handle.GetJob(ctx, id)
	if err != nil {
		if !errors.Is(err, bullmq.ErrJobNotFound) {
			j.logger.Error("fetch job failed", slog.String("queue", queue), slog.String("job_id", id), logging.Err(err))
		}
		return empty
	}
	state, err := j.state(ctx, queue, handle, id)
	if err != nil {
		j.logger.Error("fetch job state failed", slog.String("queue", queue), slog.String("job_id", id), logging.Err(err))
		return empty
	}
	return JobPage{Jobs: []JobSummary{toSummary(job, state, j.now())}, Total: 1}
}

func (j *Jobs) state(ctx context.Context, queue string, handle bullmq.QueueHandle, id string) (bullmq.JobState, error) {
	raw, err := handle.GetState(ctx, id)
	if err != nil {
		return "", err
	}
	return DeriveState(raw, j.isPaused(ctx, queue, handle)), nil
}

// Detail returns the full view of a job, or ErrJobNotFound.
func (j *Jobs) Detail(ctx context.Context, queue, id string) (JobDetail, error) {
	handle := j.registry.Queue(queue)

	job, err := handle.GetJob(ctx, id)
	if errors.Is(err, bullmq.ErrJobNotFound) {
		return JobDetail{}, fmt.Errorf("%s/%s: %w", queue, id, ErrJobNotFound)
	}
	if err != nil {
		return JobDetail{}, fmt.Errorf("fetch job %s/%s: %w", queue, id, err)
	}
	state, err := j.state(ctx, queue, handle, id)
	if err != nil {
		return JobDetail{}, fmt.Errorf("fetch job state %s/%s: %w", queue, id, err)
	}

	detail := toDetail(job, state, j.now())
	logs := j.Logs(ctx, queue, id, 0, -1)
	detail.Logs = &logs

	children, err := handle.Dependencies(ctx, id)
	if err != nil {
		j.logger.Warn("fetch job children failed", slog.String("queue", queue), slog.String("job_id", id), logging.Err(err))
	} else if len(children.Pending) > 0 || len(children.Processed) > 0 {
		detail.Children = &ChildrenView{Pending: children.Pending, Processed: children.Processed}
	}
	return detail, nil
}

// Logs returns worker log lines in [start, end]; read failures yield no lines.
func (j *Jobs) Logs(ctx context.Context, queue, id string, start, end int64) JobLogs {
	lines, count, err := j.registry.Queue(queue).Logs(ctx, id, start, end)
	if err != nil {
		j.logger.Warn("fetch job logs failed", slog.String("queue", queue), slog.String("job_id", id), logging.Err(err))
		return JobLogs{Entries: []string{}}
	}
	if lines == nil {
		lines = []string{}
	}
	return JobLogs{Entries: lines, Count: count}
}

// NewJob describes a job to enqueue.
type NewJob struct {
	Name    string          `json:"name"`
	Data    json.RawMessage `json:"data,omitempty"`
	Options AddJobOptions   `json:"options"`
}

// AddJobOptions are the options honoured when enqueueing. Extra is stored verbatim.
type AddJobOptions struct {
	JobID    string         `json:"jobId,omitempty"`
	Delay    int64          `json:"delay,omitempty"`
	Priority int64          `json:"priority,omitempty"`
	Attempts int64          `json:"attempts,omitempty"`
	Extra    map[string]any `json:"-"`
}

// Add enqueues a job and returns its id.
func (j *Jobs) Add(ctx context.Context, queue string, job NewJob) (string, error) {
	if job.Name == "" {
		return "", fmt.Errorf("%w: job name is required", ErrInvalidQuery)
	}
	if job.Options.Delay < 0 || job.Options.Priority < 0 || job.Options.Attempts < 0 {
		return "", fmt.Errorf("%w: delay, priority and attempts must be >= 0", ErrInvalidQuery)
	}

	data := "{}"
	if len(job.Data) > 0 {
		if !json.Valid(job.Data) {
			return "", fmt.Errorf("%w: data is not valid JSON", ErrInvalidQuery)
		}
		data = string(job.Data)
	}

	id, err := j.registry.Queue(queue).Add(context.WithoutCancel(ctx), job.Name, data, bullmq.AddOptions{
		JobID:    job.Options.JobID,
		Delay:    time.Duration(job.Options.Delay) * time.Millisecond,
		Priority: job.Options.Priority,
		Attempts: job.Options.Attempts,
		Extra:    job.Options.Extra,
	})
	if err != nil {
		return id, fmt.Errorf("add job to %s: %w", queue, err)
	}
	j.logger.Info("job added", slog.String("queue", queue), slog.String("job_id", id), slog.String("name", job.Name))
	return id, nil
}
