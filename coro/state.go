package coro

// State is the lifecycle state of a Task.
type State int8

const (
	StateNew State = iota
	StateActive
	StateCompleting
	StateCompleted
	StateCancelling
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateActive:
		return "Active"
	case StateCompleting:
		return "Completing"
	case StateCompleted:
		return "Completed"
	case StateCancelling:
		return "Cancelling"
	case StateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Terminal reports whether s is a terminal state. A terminal task has its
// result set and never runs again.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled
}

// AllowedTransition reports whether a task may move from one state to
// another. States only ever move forward along these edges:
//
//	New        -> Active      (first time the task is scheduled)
//	New        -> Cancelled   (cancelled before it ever ran)
//	Active     -> Completing  (body finished, possibly with children pending)
//	Active     -> Cancelling  (cancellation or failure observed)
//	Completing -> Completed   (last child terminal, no cancellation pending)
//	Completing -> Cancelling  (cancelled while waiting for children)
//	Cancelling -> Cancelled   (children terminal, cleanup done)
func AllowedTransition(from, to State) bool {
	switch from {
	case StateNew:
		return to == StateActive || to == StateCancelled
	case StateActive:
		return to == StateCompleting || to == StateCancelling
	case StateCompleting:
		return to == StateCompleted || to == StateCancelling
	case StateCancelling:
		return to == StateCancelled
	default:
		return false
	}
}
