package session

import "sync"

// State is the lifecycle position of one call.
type State int

const (
	StateInit State = iota
	StateConnecting
	StateWelcome
	StateListening
	StateThinking
	StateSpeaking
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateConnecting:
		return "connecting"
	case StateWelcome:
		return "welcome"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// legalTransitions encodes the lifecycle graph. ENDED is reachable from every
// state through Machine.End; it is absent here because Transition refuses it.
var legalTransitions = map[State][]State{
	StateInit:       {StateConnecting},
	StateConnecting: {StateWelcome},
	StateWelcome:    {StateSpeaking, StateListening},
	StateListening:  {StateThinking, StateSpeaking},
	StateThinking:   {StateListening, StateSpeaking},
	StateSpeaking:   {StateListening},
}

// Machine guards state transitions so an illegal one (speaking after the call
// ended, thinking before the welcome) is refused instead of corrupting flags.
type Machine struct {
	mu    sync.Mutex
	state State
}

// NewMachine starts in StateInit.
func NewMachine() *Machine {
	return &Machine{state: StateInit}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Transition moves to the target state if the lifecycle graph allows it and
// reports whether the move happened.
func (m *Machine) Transition(to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, allowed := range legalTransitions[m.state] {
		if allowed == to {
			m.state = to
			return true
		}
	}
	return false
}

// End forces the terminal state from anywhere. Returns false if the machine
// was already ended.
func (m *Machine) End() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateEnded {
		return false
	}
	m.state = StateEnded
	return true
}

// Is reports whether the machine is currently in the given state.
func (m *Machine) Is(s State) bool {
	return m.State() == s
}
