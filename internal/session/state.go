package session

import "github.com/soheil-star01/anjoman/internal/core/domain"

// State is the controller's lifecycle position.
type State int

const (
	StateNoSession State = iota
	StateProposing
	StateReviewingProposal
	StateActive
	StateCompleted
	StateError
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "no_session"
	case StateProposing:
		return "proposing"
	case StateReviewingProposal:
		return "reviewing_proposal"
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError
}

// stateFor maps a server status onto a controller state. A paused session
// stays Active so it can be inspected and completed, but not iterated.
func stateFor(status domain.SessionStatus) State {
	switch status {
	case domain.SessionCompleted:
		return StateCompleted
	case domain.SessionError:
		return StateError
	default:
		return StateActive
	}
}
