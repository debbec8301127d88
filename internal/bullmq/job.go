package bullmq

import (
	"encoding/json"
	"strings"
)

// ParentRef identifies the parent of a child job in a flow.
type ParentRef struct {
	ID       string `json:"id"`
	QueueKey string `json:"queueKey"`
}

// Job is a BullMQ job hash as stored under {prefix}:{queue}:{id}.
// Timestamps are epoch milliseconds; zero means the field is absent.
type Job struct {
	ID              string
	Queue           string
	Name            string
	Data            string
	Opts            string
	ReturnValue     string
	FailedReason    string
	Stacktrace      []string
	Timestamp       int64
	ProcessedOn     int64
	FinishedOn      int64
	Delay           int64
	Priority        int64
	AttemptsMade    int64
	AttemptsStarted int64
	ParentKey       string
	Parent          *ParentRef
	Discarded       bool

	hasReturnValue bool
}

// parseJob builds a Job from the fields returned by HGETALL.
func parseJob(queue, id string, fields map[string]string) *Job {
	job := &Job{
		ID:              id,
		Queue:           queue,
		Name:            fields["name"],
		Data:            fields["data"],
		Opts:            fields["opts"],
		FailedReason:    fields["failedReason"],
		Timestamp:       hashInt64(fields, "timestamp"),
		ProcessedOn:     hashInt64(fields, "processedOn"),
		FinishedOn:      hashInt64(fields, "finishedOn"),
		Delay:           hashInt64(fields, "delay"),
		Priority:        hashInt64(fields, "priority"),
		AttemptsStarted: hashInt64(fields, "ats"),
		ParentKey:       fields["parentKey"],
	}

	// Older BullMQ versions wrote attemptsMade; newer ones write atm.
	if value, ok := parseOptionalInt64(fields["atm"]); ok {
		job.AttemptsMade = value
	} else {
		job.AttemptsMade = hashInt64(fields, "attemptsMade")
	}

	if value, ok := fields["returnvalue"]; ok {
		job.ReturnValue = value
		job.hasReturnValue = true
	}

	if raw := fields["stacktrace"]; raw != "" {
		var stack []string
		if err := json.Unmarshal([]byte(raw), &stack); err == nil {
			job.Stacktrace = stack
		}
	}

	if raw := fields["parent"]; raw != "" {
		var parent ParentRef
		if err := json.Unmarshal([]byte(raw), &parent); err == nil && parent.ID != "" {
			job.Parent = &parent
		}
	}
	if job.Parent == nil && job.ParentKey != "" {
		if idx := strings.LastIndex(job.ParentKey, ":"); idx > 0 {
			job.Parent = &ParentRef{ID: job.ParentKey[idx+1:], QueueKey: job.ParentKey[:idx]}
		}
	}

	switch fields["discarded"] {
	case "1", "true":
		job.Discarded = true
	}

	return job
}

// HasReturnValue reports whether the job hash carried a returnvalue field.
func (j *Job) HasReturnValue() bool {
	return j.hasReturnValue
}

// Options decodes the opts field. Malformed options yield an empty map.
func (j *Job) Options() map[string]any {
	opts := map[string]any{}
	if j.Opts == "" {
		return opts
	}
	if err := safeParseJSON([]byte(j.Opts), &opts); err != nil {
		return map[string]any{}
	}
	return opts
}

// MaxAttempts returns opts.attempts, defaulting to 1.
func (j *Job) MaxAttempts() int64 {
	if value, ok := parseOptionalInt64(j.Options()["attempts"]); ok && value > 0 {
		return value
	}
	return 1
}

// Children lists the job keys recorded as this job's dependencies.
type Children struct {
	Pending   []string
	Processed map[string]string
}
