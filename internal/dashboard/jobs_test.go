package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
	"testing"
	"time"

	"github.com/qontrol/qontrol/internal/bullmq"
)

func summaryIDs(jobs []JobSummary) []string {
	ids := make([]string, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
	}
	return ids
}

func TestList_DefaultsToWaiting(t *testing.T) {
	mr, svc := setupService(t)

	seedJob(t, mr, "emails", "1", bullmq.RawWaiting, map[string]string{"timestamp": ms(-3 * time.Minute)})
	seedJob(t, mr, "emails", "2", bullmq.RawWaiting, map[string]string{"timestamp": ms(-2 * time.Minute)})
	seedJob(t, mr, "emails", "3", bullmq.RawCompleted, nil)

	page, err := svc.Jobs.List(context.Background(), "emails", JobQuery{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("Total = %d, want 2", page.Total)
	}
	// createdAt desc by default
	if got := summaryIDs(page.Jobs); !slices.Equal(got, []string{"2", "1"}) {
		t.Fatalf("ids = %v, want [2 1]", got)
	}
	if page.Jobs[0].State != bullmq.StateWaiting {
		t.Errorf("State = %q, want waiting", page.Jobs[0].State)
	}
}

func TestList_PausedOverlay(t *testing.T) {
	mr, svc := setupService(t)
	ctx := context.Background()

	seedJob(t, mr, "emails", "1", bullmq.RawWaiting, nil)
	seedJob(t, mr, "emails", "2", bullmq.RawActive, map[string]string{"processedOn": ms(-time.Second)})
	if err := svc.Registry.Pause(ctx, "emails"); err != nil {
		t.Fatalf("Pause() error: %v", err)
	}

	page, err := svc.Jobs.List(ctx, "emails", JobQuery{States: []bullmq.JobState{bullmq.StateWaiting, bullmq.StateActive}})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("Total = %d, want 2 (waiting list moved to paused must still be listed)", page.Total)
	}
	for _, job := range page.Jobs {
		if job.State != bullmq.StatePaused {
			t.Errorf("job %s state = %q, want paused", job.ID, job.State)
		}
	}
}

func TestList_MinDuration(t *testing.T) {
	mr, svc := setupService(t)

	// finished: 5s, 1s; running: 10s elapsed, 2s elapsed; never started.
	seedJob(t, mr, "q", "slow", bullmq.RawCompleted, map[string]string{"processedOn": ms(-time.Minute), "finishedOn": ms(-time.Minute + 5*time.Second)})
	seedJob(t, mr, "q", "fast", bullmq.RawCompleted, map[string]string{"processedOn": ms(-time.Minute), "finishedOn": ms(-time.Minute + time.Second)})
	seedJob(t, mr, "q", "long-running", bullmq.RawActive, map[string]string{"processedOn": ms(-10 * time.Second)})
	seedJob(t, mr, "q", "just-started", bullmq.RawActive, map[string]string{"processedOn": ms(-2 * time.Second)})
	seedJob(t, mr, "q", "queued", bullmq.RawWaiting, nil)

	minDuration := int64(3000)
	page, err := svc.Jobs.List(context.Background(), "q", JobQuery{
		States:      []bullmq.JobState{bullmq.StateCompleted, bullmq.StateActive, bullmq.StateWaiting},
		MinDuration: &minDuration,
		SortBy:      SortDuration,
		SortOrder:   SortAsc,
	})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}

	if got := summaryIDs(page.Jobs); !slices.Equal(got, []string{"slow", "long-running"}) {
		t.Fatalf("ids = %v, want [slow long-running]", got)
	}
	for _, job := range page.Jobs {
		if job.Duration == nil || *job.Duration < minDuration {
			t.Errorf("job %s duration = %v, want >= %d", job.ID, job.Duration, minDuration)
		}
	}
}

func TestList_PaginationIdempotent(t *testing.T) {
	mr, svc := setupService(t)
	ctx := context.Background()

	for i := range 23 {
		id := strconv.Itoa(i + 1)
		state := bullmq.RawCompleted
		if i%3 == 0 {
			state = bullmq.RawFailed
		}
		seedJob(t, mr, "q", id, state, map[string]string{
			"timestamp": ms(-time.Duration(i%5) * time.Second),
			"name":      "job-" + strconv.Itoa(i%4),
		})
	}

	base := JobQuery{States: []bullmq.JobState{bullmq.StateCompleted, bullmq.StateFailed}, SortBy: SortName, PageSize: 5}
	all := base
	all.PageSize = 23
	full, err := svc.Jobs.List(ctx, "q", all)
	if err != nil {
		t.Fatalf("List(all) error: %v", err)
	}

	var paged []string
	for page := 1; page <= 5; page++ {
		q := base
		q.Page = page
		result, err := svc.Jobs.List(ctx, "q", q)
		if err != nil {
			t.Fatalf("List(page %d) error: %v", page, err)
		}
		if result.Total != 23 {
			t.Fatalf("page %d Total = %d, want 23", page, result.Total)
		}
		paged = append(paged, summaryIDs(result.Jobs)...)
	}

	if !slices.Equal(paged, summaryIDs(full.Jobs)) {
		t.Fatalf("paged ids = %v\nfull ids = %v", paged, summaryIDs(full.Jobs))
	}
}

func TestList_FiltersAndSearch(t *testing.T) {
	mr, svc := setupService(t)
	ctx := context.Background()

	seedJob(t, mr, "q", "1", bullmq.RawFailed, map[string]string{"name": "SendEmail", "data": `{"to":"ops@example.com"}`, "atm": "3", "finishedOn": ms(-time.Hour)})
	seedJob(t, mr, "q", "2", bullmq.RawFailed, map[string]string{"name": "resize", "data": `{"file":"Email-banner.png"}`, "atm": "1", "finishedOn": ms(-time.Minute)})
	seedJob(t, mr, "q", "3", bullmq.RawFailed, map[string]string{"name": "cleanup", "data": `{}`, "atm": "5"})
	failed := []bullmq.JobState{bullmq.StateFailed}

	tests := []struct {
		name  string
		query JobQuery
		want  []string
	}{
		{
			name:  "search name or data",
			query: JobQuery{States: failed, Search: "email", SortOrder: SortAsc, SortBy: SortName},
			want:  []string{"1", "2"},
		},
		{
			name:  "search name only",
			query: JobQuery{States: failed, Search: "EMAIL", SearchType: SearchName},
			want:  []string{"1"},
		},
		{
			name:  "search data only",
			query: JobQuery{States: failed, Search: "banner", SearchType: SearchData},
			want:  []string{"2"},
		},
		{
			name:  "search by id",
			query: JobQuery{States: failed, Search: "3", SearchType: SearchID},
			want:  []string{"3"},
		},
		{
			name:  "min attempts",
			query: JobQuery{States: failed, MinAttempts: ptr(int64(3)), SortBy: SortName, SortOrder: SortAsc},
			want:  []string{"1", "3"},
		},
		{
			name: "time range excludes missing field",
			query: JobQuery{States: failed, TimeRange: &TimeRange{
				Field: TimeFinishedOn,
				Start: ptr(testNow.Add(-2 * time.Hour)),
				End:   ptr(testNow.Add(-time.Hour)),
			}},
			want: []string{"1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.Jobs.List(ctx, "q", tt.query)
			if err != nil {
				t.Fatalf("List() error: %v", err)
			}
			if got := summaryIDs(page.Jobs); !slices.Equal(got, tt.want) {
				t.Fatalf("ids = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestList_InvalidQuery(t *testing.T) {
	_, svc := setupService(t)

	queries := []JobQuery{
		{Page: -1},
		{States: []bullmq.JobState{"stuck"}},
		{SortBy: "size"},
		{SortOrder: "sideways"},
		{MinDuration: ptr(int64(-1))},
		{TimeRange: &TimeRange{Field: "updatedAt"}},
	}
	for _, q := range queries {
		if _, err := svc.Jobs.List(context.Background(), "q", q); !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("List(%+v) error = %v, want ErrInvalidQuery", q, err)
		}
	}
}

func TestList_BackendOutageDegradesToEmpty(t *testing.T) {
	mr, svc := setupService(t)
	seedJob(t, mr, "q", "1", bullmq.RawWaiting, nil)
	mr.SetError("ERR backend unavailable")

	page, err := svc.Jobs.List(context.Background(), "q", JobQuery{})
	if err != nil {
		t.Fatalf("List() error = %v, want nil", err)
	}
	if page.Total != 0 || len(page.Jobs) != 0 {
		t.Fatalf("page = %+v, want empty", page)
	}
}

func TestNormalize_CapsPageSize(t *testing.T) {
	t.Parallel()

	q, err := JobQuery{PageSize: 5000}.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error: %v", err)
	}
	if q.PageSize != MaxPageSize || q.Page != 1 || q.SortBy != SortCreatedAt || q.SortOrder != SortDesc {
		t.Fatalf("normalized = %+v", q)
	}
	if !slices.Equal(q.States, []bullmq.JobState{bullmq.StateWaiting}) {
		t.Fatalf("States = %v, want [waiting]", q.States)
	}
}

func TestStream(t *testing.T) {
	mr, svc := setupService(t)
	ctx := context.Background()

	for i := range 7 {
		seedJob(t, mr, "q", strconv.Itoa(i+1), bullmq.RawWaiting, nil)
	}
	seedJob(t, mr, "q", "f1", bullmq.RawFailed, nil)

	var pages []JobPage
	for page, err := range svc.Jobs.Stream(ctx, "q", JobQuery{
		States:   []bullmq.JobState{bullmq.StateWaiting, bullmq.StateFailed},
		PageSize: 3,
		All:      true,
	}) {
		if err != nil {
			t.Fatalf("Stream() error: %v", err)
		}
		pages = append(pages, page)
	}

	if len(pages) != 4 {
		t.Fatalf("got %d pages, want 4 (3 waiting windows + 1 failed)", len(pages))
	}
	if pages[0].Total != 7 || len(pages[0].Jobs) != 3 || pages[2].Page != 3 || len(pages[2].Jobs) != 1 {
		t.Fatalf("waiting pages = %+v", pages[:3])
	}
	if pages[3].State != bullmq.StateFailed || pages[3].Total != 1 {
		t.Fatalf("failed page = %+v", pages[3])
	}

	count := 0
	for range svc.Jobs.Stream(ctx, "q", JobQuery{PageSize: 3}) {
		count++
	}
	if count != 1 {
		t.Fatalf("Stream without All produced %d pages, want 1", count)
	}
}

func TestByID(t *testing.T) {
	mr, svc := setupService(t)
	seedJob(t, mr, "q", "42", bullmq.RawDelayed, map[string]string{"opts": `{"delay":5000,"priority":3}`})

	page := svc.Jobs.ByID(context.Background(), "q", "42")
	if page.Total != 1 || len(page.Jobs) != 1 {
		t.Fatalf("ByID() = %+v, want one job", page)
	}
	job := page.Jobs[0]
	if job.State != bullmq.StateDelayed || job.Delay == nil || *job.Delay != 5000 || job.Priority == nil || *job.Priority != 3 {
		t.Fatalf("job = %+v", job)
	}

	if missing := svc.Jobs.ByID(context.Background(), "q", "nope"); missing.Total != 0 || len(missing.Jobs) != 0 {
		t.Fatalf("ByID(missing) = %+v, want empty", missing)
	}
}

func TestDetail(t *testing.T) {
	mr, svc := setupService(t)
	ctx := context.Background()

	seedJob(t, mr, "q", "7", bullmq.RawFailed, map[string]string{
		"data":         `{"user":12}`,
		"returnvalue":  `{"ok":false}`,
		"opts":         `{"attempts":3,"backoff":{"type":"exponential","delay":500}}`,
		"failedReason": "boom",
		"stacktrace":   `["Error: boom"]`,
		"processedOn":  ms(-2 * time.Second),
		"finishedOn":   ms(-time.Second),
		"parentKey":    "bull:flows:1",
		"ats":          "2",
	})
	_, _ = mr.Push("bull:q:7:logs", "starting", "exploded")
	_, _ = mr.SetAdd("bull:q:7:dependencies", "bull:q:8")

	detail, err := svc.Jobs.Detail(ctx, "q", "7")
	if err != nil {
		t.Fatalf("Detail() error: %v", err)
	}
	if detail.State != bullmq.StateFailed || detail.FailedReason != "boom" {
		t.Fatalf("detail = %+v", detail)
	}
	if string(detail.Data) != `{"user":12}` || string(detail.Result) != `{"ok":false}` {
		t.Fatalf("data/result = %s / %s", detail.Data, detail.Result)
	}
	if detail.Duration == nil || *detail.Duration != 1000 {
		t.Fatalf("Duration = %v, want 1000", detail.Duration)
	}
	if detail.AttemptsStarted != 2 || detail.MaxAttempts != 3 {
		t.Fatalf("attempts started/max = %d/%d, want 2/3", detail.AttemptsStarted, detail.MaxAttempts)
	}
	if detail.Logs == nil || detail.Logs.Count != 2 {
		t.Fatalf("Logs = %+v, want 2 lines", detail.Logs)
	}
	if detail.Parent == nil || detail.Parent.ID != "1" || detail.Parent.Queue != "bull:flows" {
		t.Fatalf("Parent = %+v", detail.Parent)
	}
	if detail.Children == nil || !slices.Equal(detail.Children.Pending, []string{"bull:q:8"}) {
		t.Fatalf("Children = %+v", detail.Children)
	}

	encoded, err := json.Marshal(detail)
	if err != nil {
		t.Fatalf("json.Marshal() error: %v", err)
	}
	var decoded map[string]any
	_ = json.Unmarshal(encoded, &decoded)
	if decoded["id"] != "7" || decoded["attempts"] == nil {
		t.Fatalf("embedded summary fields missing from JSON: %s", encoded)
	}

	if _, err := svc.Jobs.Detail(ctx, "q", "404"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("Detail(missing) error = %v, want ErrJobNotFound", err)
	}
}

func TestDetail_BackendErrorPropagates(t *testing.T) {
	mr, svc := setupService(t)
	mr.SetError("ERR backend unavailable")

	_, err := svc.Jobs.Detail(context.Background(), "q", "1")
	if err == nil || errors.Is(err, ErrJobNotFound) {
		t.Fatalf("Detail() error = %v, want backend error", err)
	}
}

func TestLogs(t *testing.T) {
	mr, svc := setupService(t)
	_, _ = mr.Push("bull:q:1:logs", "a", "b", "c")

	logs := svc.Jobs.Logs(context.Background(), "q", "1", 0, 1)
	if logs.Count != 3 || !slices.Equal(logs.Entries, []string{"a", "b"}) {
		t.Fatalf("Logs() = %+v", logs)
	}

	empty := svc.Jobs.Logs(context.Background(), "q", "none", 0, -1)
	if empty.Entries == nil || empty.Count != 0 {
		t.Fatalf("Logs(missing) = %+v, want empty non-nil entries", empty)
	}
}

func TestAdd(t *testing.T) {
	mr, svc := setupService(t)
	ctx := context.Background()

	id, err := svc.Jobs.Add(ctx, "emails", NewJob{
		Name:    "welcome",
		Data:    json.RawMessage(`{"to":"a@example.com"}`),
		Options: AddJobOptions{Attempts: 3, Extra: map[string]any{"removeOnComplete": true}},
	})
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if id != "1" {
		t.Fatalf("id = %q, want 1", id)
	}
	if got := mr.HGet("bull:emails:1", "data"); got != `{"to":"a@example.com"}` {
		t.Fatalf("stored data = %q", got)
	}
	if !svc.Registry.Exists(ctx, "emails") {
		t.Fatal("added queue is not discoverable")
	}

	if _, err := svc.Jobs.Add(ctx, "emails", NewJob{}); !errors.Is(err, ErrInvalidQuery) {
		t.Fatalf("Add(no name) error = %v, want ErrInvalidQuery", err)
	}
	_, err = svc.Jobs.Add(ctx, "emails", NewJob{Name: "dup", Options: AddJobOptions{JobID: "1"}})
	if !errors.Is(err, bullmq.ErrDuplicateJob) {
		t.Fatalf("Add(duplicate) error = %v, want ErrDuplicateJob", err)
	}
}
