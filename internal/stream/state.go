package stream

// State is the lifecycle of a single Bridge.
//
//	pending --open--> producing --end--> completed
//	pending --fail--> errored
//	producing --fail/cancel--> errored
//
// Completed and Errored are terminal; nothing transitions out of them.
type State int

const (
	StatePending State = iota
	StateProducing
	StateCompleted
	StateErrored
)

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateErrored
}

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateProducing:
		return "producing"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}
