package dashboard

import (
	"fmt"
	"slices"
	"time"

	"github.com/qontrol/qontrol/internal/bullmq"
	"github.com/qontrol/qontrol/internal/mathutil"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 1000
	MaxSearchLength = 500
)

// SortField names a job attribute to sort by.
type SortField string

const (
	SortCreatedAt   SortField = "createdAt"
	SortProcessedOn SortField = "processedOn"
	SortFinishedOn  SortField = "finishedOn"
	SortDuration    SortField = "duration"
	SortState       SortField = "state"
	SortName        SortField = "name"
)

var sortFields = []SortField{SortCreatedAt, SortProcessedOn, SortFinishedOn, SortDuration, SortState, SortName}

type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// TimeField names the timestamp a time range applies to.
type TimeField string

const (
	TimeCreatedAt   TimeField = "createdAt"
	TimeProcessedOn TimeField = "processedOn"
	TimeFinishedOn  TimeField = "finishedOn"
)

// SearchType restricts what Search matches. Empty matches name or data.
type SearchType string

const (
	SearchAny  SearchType = ""
	SearchName SearchType = "name"
	SearchData SearchType = "data"
	SearchID   SearchType = "id"
)

// TimeRange is an inclusive window over one timestamp. Nil bounds are open.
type TimeRange struct {
	Field TimeField  `json:"field"`
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// JobQuery selects, filters, sorts and pages jobs of one queue.
type JobQuery struct {
	Page        int               `json:"page"`
	PageSize    int               `json:"pageSize"`
	States      []bullmq.JobState `json:"states"`
	SortBy      SortField         `json:"sortBy"`
	SortOrder   SortOrder         `json:"sortOrder"`
	TimeRange   *TimeRange        `json:"timeRange,omitempty"`
	MinDuration *int64            `json:"minDuration,omitempty"`
	MinAttempts *int64            `json:"minAttempts,omitempty"`
	Search      string            `json:"search,omitempty"`
	SearchType  SearchType        `json:"searchType,omitempty"`
	// All makes Stream continue past the first window of each state.
	All bool `json:"all,omitempty"`
}

// Normalize fills defaults and rejects out-of-range values with ErrInvalidQuery.
// PageSize above MaxPageSize is capped rather than rejected.
func (q JobQuery) Normalize() (JobQuery, error) {
	invalid := func(format string, args ...any) (JobQuery, error) {
		return q, fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
	}

	switch {
	case q.Page == 0:
		q.Page = 1
	case q.Page < 0:
		return invalid("page must be >= 1")
	}
	switch {
	case q.PageSize == 0:
		q.PageSize = DefaultPageSize
	case q.PageSize < 0:
		return invalid("pageSize must be >= 1")
	}
	q.PageSize = mathutil.Clamp(q.PageSize, 1, MaxPageSize)

	if len(q.States) == 0 {
		q.States = []bullmq.JobState{bullmq.StateWaiting}
	}
	states := make([]bullmq.JobState, 0, len(q.States))
	for _, state := range q.States {
		if _, err := bullmq.ParseJobState(string(state)); err != nil {
			return invalid("%v", err)
		}
		if !slices.Contains(states, state) {
			states = append(states, state)
		}
	}
	q.States = states

	if q.SortBy == "" {
		q.SortBy = SortCreatedAt
	} else if !slices.Contains(sortFields, q.SortBy) {
		return invalid("unknown sortBy %q", q.SortBy)
	}
	switch q.SortOrder {
	case "":
		q.SortOrder = SortDesc
	case SortAsc, SortDesc:
	default:
		return invalid("sortOrder must be asc or desc")
	}

	if tr := q.TimeRange; tr != nil {
		switch tr.Field {
		case TimeCreatedAt, TimeProcessedOn, TimeFinishedOn:
		default:
			return invalid("unknown timeRange.field %q", tr.Field)
		}
		if tr.Start != nil && tr.End != nil && tr.Start.After(*tr.End) {
			return invalid("timeRange.start is after timeRange.end")
		}
	}
	if q.MinDuration != nil && *q.MinDuration < 0 {
		return invalid("minDuration must be >= 0")
	}
	if q.MinAttempts != nil && *q.MinAttempts < 0 {
		return invalid("minAttempts must be >= 0")
	}
	if len(q.Search) > MaxSearchLength {
		return invalid("search longer than %d characters", MaxSearchLength)
	}
	switch q.SearchType {
	case SearchAny, SearchName, SearchData, SearchID:
	default:
		return invalid("unknown searchType %q", q.SearchType)
	}
	return q, nil
}
