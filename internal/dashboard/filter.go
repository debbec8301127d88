package dashboard

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/qontrol/qontrol/internal/bullmq"
)

// candidate is a fetched job with its derived state, pending filtering.
type candidate struct {
	job   *bullmq.Job
	state bullmq.JobState
}

func (c candidate) timestamp(field TimeField) int64 {
	switch field {
	case TimeProcessedOn:
		return c.job.ProcessedOn
	case TimeFinishedOn:
		return c.job.FinishedOn
	default:
		return c.job.Timestamp
	}
}

// applyFilters runs the time range, duration, attempts and search filters in order.
func applyFilters(items []candidate, q JobQuery, now time.Time) []candidate {
	if tr := q.TimeRange; tr != nil {
		items = slices.DeleteFunc(items, func(c candidate) bool {
			ts := c.timestamp(tr.Field)
			if ts == 0 {
				return true
			}
			if tr.Start != nil && ts < tr.Start.UnixMilli() {
				return true
			}
			return tr.End != nil && ts > tr.End.UnixMilli()
		})
	}
	if q.MinDuration != nil {
		minDuration := *q.MinDuration
		items = slices.DeleteFunc(items, func(c candidate) bool {
			d, ok := jobDuration(c.job, now)
			return !ok || d < minDuration
		})
	}
	if q.MinAttempts != nil {
		minAttempts := *q.MinAttempts
		items = slices.DeleteFunc(items, func(c candidate) bool {
			return c.job.AttemptsMade < minAttempts
		})
	}
	if q.Search != "" {
		items = slices.DeleteFunc(items, func(c candidate) bool {
			return !matchesSearch(c.job, q.Search, q.SearchType)
		})
	}
	return items
}

// matchesSearch is a case-insensitive substring match over the name and/or the
// serialized job data.
func matchesSearch(job *bullmq.Job, search string, searchType SearchType) bool {
	needle := strings.ToLower(search)
	inName := strings.Contains(strings.ToLower(job.Name), needle)
	switch searchType {
	case SearchName:
		return inName
	case SearchData:
		return strings.Contains(strings.ToLower(job.Data), needle)
	case SearchID:
		return job.ID == search
	default:
		return inName || strings.Contains(strings.ToLower(job.Data), needle)
	}
}

// sortCandidates orders items in place; missing numeric fields compare as 0.
func sortCandidates(items []candidate, by SortField, order SortOrder, now time.Time) {
	compare := func(a, b candidate) int {
		switch by {
		case SortProcessedOn:
			return cmp.Compare(a.job.ProcessedOn, b.job.ProcessedOn)
		case SortFinishedOn:
			return cmp.Compare(a.job.FinishedOn, b.job.FinishedOn)
		case SortDuration:
			da, _ := jobDuration(a.job, now)
			db, _ := jobDuration(b.job, now)
			return cmp.Compare(da, db)
		case SortState:
			return cmp.Compare(a.state, b.state)
		case SortName:
			return cmp.Compare(a.job.Name, b.job.Name)
		default:
			return cmp.Compare(a.job.Timestamp, b.job.Timestamp)
		}
	}
	if order == SortDesc {
		slices.SortStableFunc(items, func(a, b candidate) int { return compare(b, a) })
		return
	}
	slices.SortStableFunc(items, compare)
}
