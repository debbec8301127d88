package dashboard

import (
	"encoding/json"
	"time"

	"github.com/qontrol/qontrol/internal/bullmq"
)

// QueueInfo summarises one queue.
type QueueInfo struct {
	Name     string                    `json:"name"`
	Counts   map[bullmq.JobState]int64 `json:"counts"`
	IsPaused bool                      `json:"isPaused"`
}

func zeroQueueInfo(name string) QueueInfo {
	return QueueInfo{Name: name, Counts: zeroCounts()}
}

func zeroCounts() map[bullmq.JobState]int64 {
	counts := make(map[bullmq.JobState]int64, len(bullmq.AllStates))
	for _, state := range bullmq.AllStates {
		counts[state] = 0
	}
	return counts
}

// JobSummary is the list view of a job.
type JobSummary struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	State       bullmq.JobState `json:"state"`
	CreatedAt   time.Time       `json:"createdAt"`
	ProcessedOn *time.Time      `json:"processedOn,omitempty"`
	FinishedOn  *time.Time      `json:"finishedOn,omitempty"`
	Duration    *int64          `json:"duration,omitempty"`
	Attempts    int64           `json:"attempts"`
	Priority    *int64          `json:"priority,omitempty"`
	Delay       *int64          `json:"delay,omitempty"`
}

// JobLogs holds log lines written by workers.
type JobLogs struct {
	Entries []string `json:"entries"`
	Count   int64    `json:"count"`
}

// JobOptionsView exposes the subset of job options useful to operators.
type JobOptionsView struct {
	Attempts any `json:"attempts,omitempty"`
	Backoff  any `json:"backoff,omitempty"`
	Delay    any `json:"delay,omitempty"`
	Repeat   any `json:"repeat,omitempty"`
	Priority any `json:"priority,omitempty"`
}

// ParentView links a child job to its parent.
type ParentView struct {
	ID    string `json:"id"`
	Queue string `json:"queue"`
}

// ChildrenView lists child job keys of a flow parent.
type ChildrenView struct {
	Pending   []string          `json:"pending"`
	Processed map[string]string `json:"processed"`
}

// JobDetail is the full view of a single job.
type JobDetail struct {
	JobSummary
	// AttemptsStarted counts worker pickups, including ones that never finished.
	AttemptsStarted int64           `json:"attemptsStarted"`
	MaxAttempts     int64           `json:"maxAttempts"`
	Data            json.RawMessage `json:"data"`
	Result          json.RawMessage `json:"result,omitempty"`
	FailedReason    string          `json:"failedReason,omitempty"`
	Stacktrace      []string        `json:"stacktrace,omitempty"`
	Logs            *JobLogs        `json:"logs,omitempty"`
	Opts            JobOptionsView  `json:"opts"`
	Parent          *ParentView     `json:"parent,omitempty"`
	Children        *ChildrenView   `json:"children,omitempty"`
	Discarded       bool            `json:"discarded"`
}

// JobPage is one page of a job listing.
type JobPage struct {
	Jobs  []JobSummary `json:"jobs"`
	Total int          `json:"total"`
	// Set by Stream only.
	State bullmq.JobState `json:"state,omitempty"`
	Page  int             `json:"page,omitempty"`
}

// jobDuration is finishedOn-processedOn, or elapsed time for a job still running.
func jobDuration(job *bullmq.Job, now time.Time) (int64, bool) {
	switch {
	case job.ProcessedOn > 0 && job.FinishedOn > 0:
		return job.FinishedOn - job.ProcessedOn, true
	case job.ProcessedOn > 0:
		return now.UnixMilli() - job.ProcessedOn, true
	}
	return 0, false
}

func toSummary(job *bullmq.Job, state bullmq.JobState, now time.Time) JobSummary {
	summary := JobSummary{
		ID:        job.ID,
		Name:      job.Name,
		State:     state,
		CreatedAt: time.UnixMilli(job.Timestamp).UTC(),
		Attempts:  job.AttemptsMade,
	}
	if job.ProcessedOn > 0 {
		t := time.UnixMilli(job.ProcessedOn).UTC()
		summary.ProcessedOn = &t
	}
	if job.FinishedOn > 0 {
		t := time.UnixMilli(job.FinishedOn).UTC()
		summary.FinishedOn = &t
	}
	if d, ok := jobDuration(job, now); ok {
		summary.Duration = &d
	}

	opts := job.Options()
	if v, ok := optionalInt(opts["priority"]); ok {
		summary.Priority = &v
	}
	if v, ok := optionalInt(opts["delay"]); ok {
		summary.Delay = &v
	}
	return summary
}

func optionalInt(value any) (int64, bool) {
	switch v := value.(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return n, true
	case float64:
		return int64(v), true
	}
	return 0, false
}

func toDetail(job *bullmq.Job, state bullmq.JobState, now time.Time) JobDetail {
	opts := job.Options()
	detail := JobDetail{
		JobSummary:      toSummary(job, state, now),
		AttemptsStarted: job.AttemptsStarted,
		MaxAttempts:     job.MaxAttempts(),
		Data:            SanitizePayload(job.Data),
		FailedReason:    job.FailedReason,
		Stacktrace:      job.Stacktrace,
		Opts: JobOptionsView{
			Attempts: opts["attempts"],
			Backoff:  opts["backoff"],
			Delay:    opts["delay"],
			Repeat:   opts["repeat"],
			Priority: opts["priority"],
		},
		Discarded: job.Discarded,
	}
	if job.HasReturnValue() {
		detail.Result = SanitizePayload(job.ReturnValue)
	}
	if detail.Data == nil {
		detail.Data = json.RawMessage("null")
	}
	if job.Parent != nil {
		detail.Parent = &ParentView{ID: job.Parent.ID, Queue: job.Parent.QueueKey}
	}
	return detail
}
