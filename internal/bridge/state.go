package bridge

// State is the lifecycle of one streaming request.
type State uint8

const (
	StateIdle State = iota
	StatePromptQueued
	StateAwaitingGate
	StateStreaming
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePromptQueued:
		return "prompt_queued"
	case StateAwaitingGate:
		return "awaiting_gate"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Final reports whether no further transition is possible.
func (s State) Final() bool { return s == StateCompleted || s == StateAborted }

// next lists the legal transitions. Aborted is reachable from every
// non-final state.
var next = map[State][]State{
	StateIdle:         {StatePromptQueued},
	StatePromptQueued: {StateAwaitingGate},
	StateAwaitingGate: {StateStreaming},
	StateStreaming:    {StateCompleted},
}

// CanTransition reports whether from -> to is legal.
func CanTransition(from, to State) bool {
	if from.Final() {
		return false
	}
	if to == StateAborted {
		return true
	}
	for _, s := range next[from] {
		if s == to {
			return true
		}
	}
	return false
}
