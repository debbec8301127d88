package bullmq

import "fmt"

// JobState is a job state as reported to dashboard users.
type JobState string

// Job states.
const (
	StateWaiting         JobState = "waiting"
	StateActive          JobState = "active"
	StateCompleted       JobState = "completed"
	StateFailed          JobState = "failed"
	StateDelayed         JobState = "delayed"
	StatePaused          JobState = "paused"
	StateWaitingChildren JobState = "waiting-children"
	StatePrioritized     JobState = "prioritized"
)

// AllStates lists every JobState in display order.
var AllStates = []JobState{
	StateWaiting,
	StateActive,
	StateCompleted,
	StateFailed,
	StateDelayed,
	StatePaused,
	StateWaitingChildren,
	StatePrioritized,
}

// ParseJobState validates a state name.
func ParseJobState(value string) (JobState, error) {
	for _, state := range AllStates {
		if string(state) == value {
			return state, nil
		}
	}
	return "", fmt.Errorf("unknown job state %q", value)
}

// RawState is the structure a job id was found in on the backend.
type RawState string

// Raw states. RawUnknown means the id is in none of the queue structures.
const (
	RawWaiting         RawState = "waiting"
	RawActive          RawState = "active"
	RawCompleted       RawState = "completed"
	RawFailed          RawState = "failed"
	RawDelayed         RawState = "delayed"
	RawPaused          RawState = "paused"
	RawWaitingChildren RawState = "waiting-children"
	RawPrioritized     RawState = "prioritized"
	RawUnknown         RawState = "unknown"
)

// RawStateOf maps a requested JobState to the structure it is read from.
func RawStateOf(state JobState) RawState {
	return RawState(state)
}

// stateKeySuffix returns the key suffix and whether the structure is a list.
func stateKeySuffix(state RawState) (string, bool) {
	switch state {
	case RawWaiting:
		return "wait", true
	case RawActive:
		return "active", true
	case RawPaused:
		return "paused", true
	case RawCompleted:
		return "completed", false
	case RawFailed:
		return "failed", false
	case RawDelayed:
		return "delayed", false
	case RawWaitingChildren:
		return "waiting-children", false
	case RawPrioritized:
		return "prioritized", false
	default:
		return "", false
	}
}
