package server

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/qontrol/qontrol/internal/bullmq"
	"github.com/qontrol/qontrol/internal/dashboard"
)

// parseJobQuery reads a JobQuery from the query string. Every rejected field is
// reported, not just the first.
func parseJobQuery(values url.Values) (dashboard.JobQuery, []fieldError) {
	var q dashboard.JobQuery
	var errs []fieldError
	reject := func(field, format string, args ...any) {
		errs = append(errs, fieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if raw := values.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			reject("page", "must be an integer >= 1")
		}
		q.Page = page
	}
	if raw := values.Get("pageSize"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 || size > dashboard.MaxPageSize {
			reject("pageSize", "must be an integer between 1 and %d", dashboard.MaxPageSize)
		}
		q.PageSize = size
	}

	for _, raw := range stateValues(values) {
		state, err := bullmq.ParseJobState(raw)
		if err != nil {
			reject("states", "%v", err)
			continue
		}
		q.States = append(q.States, state)
	}

	if raw := values.Get("sortBy"); raw != "" {
		q.SortBy = dashboard.SortField(raw)
		switch q.SortBy {
		case dashboard.SortCreatedAt, dashboard.SortProcessedOn, dashboard.SortFinishedOn,
			dashboard.SortDuration, dashboard.SortState, dashboard.SortName:
		default:
			reject("sortBy", "unknown sort field %q", raw)
		}
	}
	if raw := values.Get("sortOrder"); raw != "" {
		q.SortOrder = dashboard.SortOrder(raw)
		if q.SortOrder != dashboard.SortAsc && q.SortOrder != dashboard.SortDesc {
			reject("sortOrder", "must be asc or desc")
		}
	}

	if raw := values.Get("search"); raw != "" {
		if len(raw) > dashboard.MaxSearchLength {
			reject("search", "must be at most %d characters", dashboard.MaxSearchLength)
		}
		q.Search = raw
	}
	if raw := values.Get("searchType"); raw != "" {
		q.SearchType = dashboard.SearchType(raw)
		switch q.SearchType {
		case dashboard.SearchName, dashboard.SearchData, dashboard.SearchID:
		default:
			reject("searchType", "must be name, data or id")
		}
	}

	for _, field := range []string{"minDuration", "minAttempts"} {
		raw := values.Get(field)
		if raw == "" {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			reject(field, "must be an integer >= 0")
			continue
		}
		if field == "minDuration" {
			q.MinDuration = &n
		} else {
			q.MinAttempts = &n
		}
	}

	if raw := values.Get("all"); raw != "" {
		all, err := strconv.ParseBool(raw)
		if err != nil {
			reject("all", "must be a boolean")
		}
		q.All = all
	}

	if field := values.Get("timeRange.field"); field != "" {
		tr := &dashboard.TimeRange{Field: dashboard.TimeField(field)}
		switch tr.Field {
		case dashboard.TimeCreatedAt, dashboard.TimeProcessedOn, dashboard.TimeFinishedOn:
		default:
			reject("timeRange.field", "must be createdAt, processedOn or finishedOn")
		}
		for _, bound := range []struct {
			name string
			dest **time.Time
		}{{"timeRange.start", &tr.Start}, {"timeRange.end", &tr.End}} {
			raw := values.Get(bound.name)
			if raw == "" {
				continue
			}
			ts, err := parseTime(raw)
			if err != nil {
				reject(bound.name, "must be an RFC 3339 date or epoch milliseconds")
				continue
			}
			*bound.dest = &ts
		}
		if tr.Start != nil && tr.End != nil && tr.Start.After(*tr.End) {
			reject("timeRange", "start must not be after end")
		}
		q.TimeRange = tr
	}

	return q, errs
}

// stateValues accepts states=a&states=b, states[]=a and states=a,b.
func stateValues(values url.Values) []string {
	var out []string
	for _, key := range []string{"states", "states[]"} {
		for _, value := range values[key] {
			for part := range strings.SplitSeq(value, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
		}
	}
	return out
}

func parseTime(raw string) (time.Time, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateOnly} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", raw)
}
