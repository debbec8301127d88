package dashboard

import (
	"testing"

	"github.com/qontrol/qontrol/internal/bullmq"
)

func TestDeriveState(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     bullmq.RawState
		running bullmq.JobState
		paused  bullmq.JobState
	}{
		{bullmq.RawActive, bullmq.StateActive, bullmq.StatePaused},
		{bullmq.RawWaiting, bullmq.StateWaiting, bullmq.StatePaused},
		{bullmq.RawPrioritized, bullmq.StatePrioritized, bullmq.StatePaused},
		{bullmq.RawPaused, bullmq.StatePaused, bullmq.StatePaused},
		{bullmq.RawCompleted, bullmq.StateCompleted, bullmq.StateCompleted},
		{bullmq.RawFailed, bullmq.StateFailed, bullmq.StateFailed},
		{bullmq.RawDelayed, bullmq.StateDelayed, bullmq.StateDelayed},
		{bullmq.RawWaitingChildren, bullmq.StateWaitingChildren, bullmq.StateWaitingChildren},
		{bullmq.RawUnknown, bullmq.StateWaiting, bullmq.StateWaiting},
	}

	for _, tt := range tests {
		if got := DeriveState(tt.raw, false); got != tt.running {
			t.Errorf("DeriveState(%q, false) = %q, want %q", tt.raw, got, tt.running)
		}
		if got := DeriveState(tt.raw, true); got != tt.paused {
			t.Errorf("DeriveState(%q, true) = %q, want %q", tt.raw, got, tt.paused)
		}
	}
}
