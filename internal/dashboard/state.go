package dashboard

import "github.com/qontrol/qontrol/internal/bullmq"

// DeriveState maps the structure a job was found in to the state shown to users.
// A paused queue reports its not-yet-started jobs as paused.
func DeriveState(raw bullmq.RawState, queuePaused bool) bullmq.JobState {
	switch raw {
	case bullmq.RawActive:
		if queuePaused {
			return bullmq.StatePaused
		}
		return bullmq.StateActive
	case bullmq.RawWaiting:
		if queuePaused {
			return bullmq.StatePaused
		}
		return bullmq.StateWaiting
	case bullmq.RawPrioritized:
		if queuePaused {
			return bullmq.StatePaused
		}
		return bullmq.StatePrioritized
	case bullmq.RawPaused:
		return bullmq.StatePaused
	case bullmq.RawCompleted:
		return bullmq.StateCompleted
	case bullmq.RawFailed:
		return bullmq.StateFailed
	case bullmq.RawDelayed:
		return bullmq.StateDelayed
	case bullmq.RawWaitingChildren:
		return bullmq.StateWaitingChildren
	case bullmq.RawUnknown:
		return bullmq.StateWaiting
	default:
		return bullmq.StateWaiting
	}
}

// rawStatesFor lists the structures read for a requested state.
// Waiting jobs of a paused queue live in the paused list, so waiting covers both.
func rawStatesFor(state bullmq.JobState) []bullmq.RawState {
	if state == bullmq.StateWaiting {
		return []bullmq.RawState{bullmq.RawWaiting, bullmq.RawPaused}
	}
	return []bullmq.RawState{bullmq.RawStateOf(state)}
}
