package dashboard

import (
	"context"
	"testing"
)

func TestHealthCheck(t *testing.T) {
	mr, svc := setupService(t)
	ctx := context.Background()

	report := svc.Health.Check(ctx)
	if !report.Healthy() || !report.Redis.Connected || report.Redis.Latency == nil {
		t.Fatalf("Check() = %+v, want healthy with latency", report)
	}
	if *report.Redis.Latency < 0 || *report.Redis.Latency >= 50 {
		t.Fatalf("Latency = %dms, want under 50ms against a local backend", *report.Redis.Latency)
	}
	if report.Version != "test" || !report.Timestamp.Equal(testNow) {
		t.Fatalf("Check() version/timestamp = %q/%v", report.Version, report.Timestamp)
	}

	mr.SetError("ERR backend unavailable")
	report = svc.Health.Check(ctx)
	if report.Healthy() || report.Status != StatusUnhealthy {
		t.Fatalf("Status = %q, want unhealthy", report.Status)
	}
	if report.Redis.Connected || report.Redis.Latency != nil {
		t.Fatalf("Redis = %+v, want disconnected", report.Redis)
	}
}

func TestRedisStats(t *testing.T) {
	mr, svc := setupService(t)
	ctx := context.Background()

	stats, err := svc.Health.RedisStats(ctx)
	if err != nil {
		t.Fatalf("RedisStats() error: %v", err)
	}
	if stats.Info == nil || !stats.Timestamp.Equal(testNow) {
		t.Fatalf("RedisStats() = %+v", stats)
	}

	mr.SetError("ERR backend unavailable")
	if _, err := svc.Health.RedisStats(ctx); err == nil {
		t.Fatal("RedisStats() error = nil, want backend error")
	}
}
