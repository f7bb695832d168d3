package race

import "fmt"

// State is the lifecycle state of one attempt.
//
//	Scheduled -> Connecting -> Staged -> Transmitted -> AwaitingResponse -> Completed
//	Scheduled, Staged -> Abandoned
//	any non-terminal -> Failed
type State string

const (
	StateScheduled        State = "SCHEDULED"
	StateConnecting       State = "CONNECTING"
	StateStaged           State = "STAGED"
	StateTransmitted      State = "TRANSMITTED"
	StateAwaitingResponse State = "AWAITING_RESPONSE"
	StateCompleted        State = "COMPLETED"
	StateFailed           State = "FAILED"
	StateAbandoned        State = "ABANDONED"
)

// IsTerminal reports whether the state is final.
func IsTerminal(s State) bool {
	switch s {
	case StateCompleted, StateFailed, StateAbandoned:
		return true
	default:
		return false
	}
}

// transition validates a move between states. No state is ever re-entered,
// which is what keeps every attempt single-shot.
func transition(from, to State) error {
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed attempt transition: %s -> %s", from, to)
	}
	return nil
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StateScheduled:
		return to == StateConnecting || to == StateAbandoned || to == StateFailed
	case StateConnecting:
		return to == StateStaged || to == StateFailed
	case StateStaged:
		return to == StateTransmitted || to == StateAbandoned || to == StateFailed
	case StateTransmitted:
		return to == StateAwaitingResponse || to == StateFailed
	case StateAwaitingResponse:
		return to == StateCompleted || to == StateFailed
	default:
		return false
	}
}
