package dashboard

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/qontrol/qontrol/internal/bullmq"
)

func TestOutcomeString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		outcome Outcome
		want    string
	}{
		{OutcomeApplied, "applied"},
		{OutcomeNotFound, "not found"},
		{OutcomeWrongState, "wrong state"},
		{Outcome(9), "Outcome(9)"},
	}
	for _, tt := range tests {
		if got := tt.outcome.String(); got != tt.want {
			t.Errorf("Outcome(%d).String() = %q, want %q", int(tt.outcome), got, tt.want)
		}
	}
}

func TestRetry_RoundTrip(t *testing.T) {
	mr, svc := setupService(t)
	ctx := context.Background()

	seedJob(t, mr, "q", "9", bullmq.RawFailed, map[string]string{
		"failedReason": "boom",
		"processedOn":  ms(-2 * time.Second),
		"finishedOn":   ms(-time.Second),
	})

	outcome, err := svc.Jobs.Retry(ctx, "q", "9")
	if err != nil || outcome != OutcomeApplied {
		t.Fatalf("Retry() = %v, %v; want applied", outcome, err)
	}

	waiting, err := svc.Jobs.List(ctx, "q", JobQuery{States: []bullmq.JobState{bullmq.StateWaiting}})
	if err != nil {
		t.Fatalf("List(waiting) error: %v", err)
	}
	if got := summaryIDs(waiting.Jobs); !slices.Equal(got, []string{"9"}) {
		t.Fatalf("waiting ids = %v, want [9]", got)
	}
	failed, _ := svc.Jobs.List(ctx, "q", JobQuery{States: []bullmq.JobState{bullmq.StateFailed}})
	if failed.Total != 0 {
		t.Fatalf("failed Total = %d, want 0", failed.Total)
	}

	detail, err := svc.Jobs.Detail(ctx, "q", "9")
	if err != nil {
		t.Fatalf("Detail() error: %v", err)
	}
	if detail.FailedReason != "" || detail.FinishedOn != nil {
		t.Fatalf("retried job kept failure fields: %+v", detail)
	}

	// A second retry finds no failure reason.
	if outcome, err := svc.Jobs.Retry(ctx, "q", "9"); err != nil || outcome != OutcomeWrongState {
		t.Fatalf("second Retry() = %v, %v; want wrong state", outcome, err)
	}
}

func TestRetry_Outcomes(t *testing.T) {
	mr, svc := setupService(t)
	ctx := context.Background()

	seedJob(t, mr, "q", "done", bullmq.RawCompleted, map[string]string{"finishedOn": ms(-time.Second)})
	seedJob(t, mr, "q", "locked", bullmq.RawFailed, map[string]string{"failedReason": "boom"})
	mr.Set("bull:q:locked:lock", "worker-1")

	tests := []struct {
		id   string
		want Outcome
	}{
		{"missing", OutcomeNotFound},
		{"done", OutcomeWrongState},
		{"locked", OutcomeWrongState},
	}
	for _, tt := range tests {
		got, err := svc.Jobs.Retry(ctx, "q", tt.id)
		if err != nil {
			t.Fatalf("Retry(%s) error: %v", tt.id, err)
		}
		if got != tt.want {
			t.Errorf("Retry(%s) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestDiscard(t *testing.T) {
	mr, svc := setupService(t)
	ctx := context.Background()

	seedJob(t, mr, "q", "active", bullmq.RawActive, map[string]string{"processedOn": ms(-time.Second)})
	seedJob(t, mr, "q", "parent", bullmq.RawWaitingChildren, nil)
	seedJob(t, mr, "q", "urgent", bullmq.RawPrioritized, map[string]string{"priority": "1"})
	seedJob(t, mr, "q", "done", bullmq.RawCompleted, nil)

	for _, id := range []string{"active", "parent", "urgent"} {
		outcome, err := svc.Jobs.Discard(ctx, "q", id)
		if err != nil || outcome != OutcomeApplied {
			t.Fatalf("Discard(%s) = %v, %v; want applied", id, outcome, err)
		}
		detail, err := svc.Jobs.Detail(ctx, "q", id)
		if err != nil {
			t.Fatalf("Detail(%s) error: %v", id, err)
		}
		if !detail.Discarded {
			t.Errorf("Detail(%s).Discarded = false, want true", id)
		}
	}
	if got := mr.HGet("bull:q:active", "discarded"); got != "1" {
		t.Fatalf("discarded field = %q, want 1", got)
	}

	if outcome, _ := svc.Jobs.Discard(ctx, "q", "done"); outcome != OutcomeWrongState {
		t.Errorf("Discard(completed) = %v, want wrong state", outcome)
	}
	if outcome, _ := svc.Jobs.Discard(ctx, "q", "missing"); outcome != OutcomeNotFound {
		t.Errorf("Discard(missing) = %v, want not found", outcome)
	}
}

func TestDiscard_WaitingInPausedQueue(t *testing.T) {
	mr, svc := setupService(t)
	ctx := context.Background()

	seedJob(t, mr, "q", "1", bullmq.RawWaiting, nil)
	if err := svc.Registry.Pause(ctx, "q"); err != nil {
		t.Fatalf("Pause() error: %v", err)
	}
	if outcome, err := svc.Jobs.Discard(ctx, "q", "1"); err != nil || outcome != OutcomeApplied {
		t.Fatalf("Discard() = %v, %v; want applied", outcome, err)
	}
}

func TestPromote(t *testing.T) {
	mr, svc := setupService(t)
	ctx := context.Background()

	seedJob(t, mr, "q", "later", bullmq.RawDelayed, map[string]string{"delay": "60000"})
	seedJob(t, mr, "q", "now", bullmq.RawWaiting, nil)

	if outcome, err := svc.Jobs.Promote(ctx, "q", "later"); err != nil || outcome != OutcomeApplied {
		t.Fatalf("Promote() = %v, %v; want applied", outcome, err)
	}
	if mr.Exists("bull:q:delayed") {
		members, _ := mr.ZMembers("bull:q:delayed")
		if slices.Contains(members, "later") {
			t.Fatal("promoted job is still delayed")
		}
	}
	list, _ := mr.List("bull:q:wait")
	if !slices.Contains(list, "later") {
		t.Fatalf("wait list = %v, want it to contain later", list)
	}

	if outcome, _ := svc.Jobs.Promote(ctx, "q", "now"); outcome != OutcomeWrongState {
		t.Errorf("Promote(waiting) = %v, want wrong state", outcome)
	}
	if outcome, _ := svc.Jobs.Promote(ctx, "q", "missing"); outcome != OutcomeNotFound {
		t.Errorf("Promote(missing) = %v, want not found", outcome)
	}
}

func TestRemove(t *testing.T) {
	mr, svc, logs := setupServiceWithLogs(t)
	ctx := context.Background()

	seedJob(t, mr, "q", "1", bullmq.RawCompleted, nil)
	seedJob(t, mr, "q", "2", bullmq.RawActive, nil)
	mr.Set("bull:q:2:lock", "worker-1")

	if outcome, err := svc.Jobs.Remove(ctx, "q", "1"); err != nil || outcome != OutcomeApplied {
		t.Fatalf("Remove() = %v, %v; want applied", outcome, err)
	}
	if mr.Exists("bull:q:1") {
		t.Fatal("removed job hash still exists")
	}
	if _, err := svc.Jobs.Detail(ctx, "q", "1"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("Detail(removed) error = %v, want ErrJobNotFound", err)
	}

	if outcome, _ := svc.Jobs.Remove(ctx, "q", "2"); outcome != OutcomeWrongState {
		t.Errorf("Remove(locked) = %v, want wrong state", outcome)
	}
	if outcome, _ := svc.Jobs.Remove(ctx, "q", "1"); outcome != OutcomeNotFound {
		t.Errorf("Remove(again) = %v, want not found", outcome)
	}

	out := logs.String()
	if !strings.Contains(out, `"msg":"job mutation applied"`) || !strings.Contains(out, `"msg":"job mutation rejected"`) {
		t.Fatalf("mutation log lines missing:\n%s", out)
	}
}

func TestMutations_BackendOutageIsError(t *testing.T) {
	mr, svc := setupService(t)
	ctx := context.Background()
	seedJob(t, mr, "q", "1", bullmq.RawFailed, map[string]string{"failedReason": "boom"})
	mr.SetError("ERR backend unavailable")

	ops := map[string]func(context.Context, string, string) (Outcome, error){
		"retry":   svc.Jobs.Retry,
		"discard": svc.Jobs.Discard,
		"promote": svc.Jobs.Promote,
		"remove":  svc.Jobs.Remove,
	}
	for name, op := range ops {
		if _, err := op(ctx, "q", "1"); err == nil {
			t.Errorf("%s() error = nil, want backend error", name)
		}
	}
}

func TestMutations_IgnoreCallerCancellation(t *testing.T) {
	mr, svc := setupService(t)
	seedJob(t, mr, "q", "1", bullmq.RawCompleted, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if outcome, err := svc.Jobs.Remove(ctx, "q", "1"); err != nil || outcome != OutcomeApplied {
		t.Fatalf("Remove(cancelled ctx) = %v, %v; want applied", outcome, err)
	}
}
