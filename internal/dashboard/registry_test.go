package dashboard

import (
	"context"
	"slices"
	"testing"

	"github.com/qontrol/qontrol/internal/bullmq"
)

func TestRegistry_QueueCachesHandle(t *testing.T) {
	_, svc := setupService(t)

	first := svc.Registry.Queue("emails")
	second := svc.Registry.Queue("emails")
	if first != second {
		t.Fatal("Queue() returned a new handle for a cached name")
	}
	if got := svc.Registry.Cached(); !slices.Equal(got, []string{"emails"}) {
		t.Fatalf("Cached() = %v, want [emails]", got)
	}
}

func TestRegistry_QueueInfo(t *testing.T) {
	mr, svc := setupService(t)
	ctx := context.Background()

	seedJob(t, mr, "emails", "1", bullmq.RawWaiting, nil)
	seedJob(t, mr, "emails", "2", bullmq.RawWaiting, nil)
	seedJob(t, mr, "emails", "3", bullmq.RawFailed, nil)
	seedJob(t, mr, "emails", "4", bullmq.RawDelayed, nil)
	if err := svc.Registry.Pause(ctx, "emails"); err != nil {
		t.Fatalf("Pause() error: %v", err)
	}

	info := svc.Registry.QueueInfo(ctx, "emails")
	if !info.IsPaused {
		t.Error("IsPaused = false, want true")
	}
	if len(info.Counts) != len(bullmq.AllStates) {
		t.Fatalf("len(Counts) = %d, want %d", len(info.Counts), len(bullmq.AllStates))
	}
	want := map[bullmq.JobState]int64{bullmq.StatePaused: 2, bullmq.StateFailed: 1, bullmq.StateDelayed: 1}
	for _, state := range bullmq.AllStates {
		if info.Counts[state] != want[state] {
			t.Errorf("Counts[%s] = %d, want %d", state, info.Counts[state], want[state])
		}
	}
}

func TestRegistry_QueueInfoZeroedOnBackendError(t *testing.T) {
	mr, svc := setupService(t)
	seedJob(t, mr, "emails", "1", bullmq.RawWaiting, nil)
	mr.SetError("ERR backend unavailable")

	info := svc.Registry.QueueInfo(context.Background(), "emails")
	if info.Name != "emails" || info.IsPaused {
		t.Fatalf("info = %+v, want zeroed info for emails", info)
	}
	for state, count := range info.Counts {
		if count != 0 {
			t.Errorf("Counts[%s] = %d, want 0", state, count)
		}
	}
	if len(info.Counts) != len(bullmq.AllStates) {
		t.Errorf("len(Counts) = %d, want %d", len(info.Counts), len(bullmq.AllStates))
	}
}

func TestRegistry_AllQueuesInfoEvictsStaleHandles(t *testing.T) {
	mr, svc := setupService(t)
	ctx := context.Background()

	seedJob(t, mr, "emails", "1", bullmq.RawWaiting, nil)
	seedJob(t, mr, "reports", "1", bullmq.RawCompleted, nil)
	stale := svc.Registry.Queue("removed-queue").(*bullmq.Queue)

	infos := svc.Registry.AllQueuesInfo(ctx)

	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	if !slices.Equal(names, []string{"emails", "reports"}) {
		t.Fatalf("names = %v, want [emails reports]", names)
	}
	if infos[0].Counts[bullmq.StateWaiting] != 1 || infos[1].Counts[bullmq.StateCompleted] != 1 {
		t.Fatalf("counts = %v / %v", infos[0].Counts, infos[1].Counts)
	}
	for _, name := range svc.Registry.Cached() {
		if !slices.Contains(names, name) {
			t.Errorf("cache holds %q which was not discovered", name)
		}
	}
	if stale.Closed() {
		t.Fatal("evicted handle was closed while its holder may still use it")
	}
	if _, err := stale.Add(ctx, "late", `{}`, bullmq.AddOptions{}); err != nil {
		t.Fatalf("Add() on an evicted handle error: %v", err)
	}
}

func TestRegistry_FailedDiscoveryKeepsHandles(t *testing.T) {
	mr, svc := setupService(t)
	ctx := context.Background()

	seedJob(t, mr, "emails", "1", bullmq.RawWaiting, nil)
	handle := svc.Registry.Queue("emails")

	mr.SetError("ERR backend unavailable")
	if infos := svc.Registry.AllQueuesInfo(ctx); len(infos) != 0 {
		t.Fatalf("AllQueuesInfo() = %v, want no queues while the backend is down", infos)
	}
	mr.SetError("")

	if got := svc.Registry.Cached(); !slices.Equal(got, []string{"emails"}) {
		t.Fatalf("Cached() = %v, want [emails]", got)
	}
	if svc.Registry.Queue("emails") != handle {
		t.Fatal("Queue() built a new handle after a failed discovery")
	}
	if err := handle.Pause(ctx); err != nil {
		t.Fatalf("Pause() on the held handle error: %v", err)
	}
}

func TestRegistry_Cleanup(t *testing.T) {
	_, svc := setupService(t)

	handle := svc.Registry.Queue("emails").(*bullmq.Queue)
	if err := svc.Registry.Cleanup(); err != nil {
		t.Fatalf("Cleanup() error: %v", err)
	}
	if !handle.Closed() {
		t.Error("Cleanup() did not close the handle")
	}
	if len(svc.Registry.Cached()) != 0 {
		t.Errorf("Cached() = %v, want empty", svc.Registry.Cached())
	}
}

func TestRegistry_QueueActions(t *testing.T) {
	mr, svc := setupService(t)
	ctx := context.Background()

	seedJob(t, mr, "emails", "1", bullmq.RawCompleted, map[string]string{"finishedOn": "1000"})
	seedJob(t, mr, "emails", "2", bullmq.RawWaiting, nil)
	seedJob(t, mr, "emails", "3", bullmq.RawDelayed, nil)

	removed, err := svc.Registry.Clean(ctx, "emails", 0, 0, bullmq.StateCompleted)
	if err != nil || !slices.Equal(removed, []string{"1"}) {
		t.Fatalf("Clean() = %v, %v; want [1]", removed, err)
	}

	drained, err := svc.Registry.Drain(ctx, "emails", false)
	if err != nil || drained != 1 {
		t.Fatalf("Drain() = %d, %v; want 1", drained, err)
	}

	if err := svc.Registry.Obliterate(ctx, "emails", false); err == nil {
		t.Fatal("Obliterate() on a running queue should fail")
	}
	if err := svc.Registry.Pause(ctx, "emails"); err != nil {
		t.Fatalf("Pause() error: %v", err)
	}
	if err := svc.Registry.Obliterate(ctx, "emails", false); err != nil {
		t.Fatalf("Obliterate() error: %v", err)
	}
	if mr.Exists("bull:emails:meta") || mr.Exists("bull:emails:3") {
		t.Fatal("queue keys survived obliterate")
	}
	if slices.Contains(svc.Registry.Cached(), "emails") {
		t.Fatal("obliterated queue still cached")
	}
	if svc.Registry.Exists(ctx, "emails") {
		t.Fatal("Exists() = true after obliterate")
	}
}
