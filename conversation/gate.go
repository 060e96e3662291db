package conversation

import "sync/atomic"

// TurnState is the single "who is speaking" state of a conversation.
type TurnState int32

const (
	StateIdle TurnState = iota
	StateAgentSpeaking
	StateListening
)

func (s TurnState) String() string {
	switch s {
	case StateAgentSpeaking:
		return "agent-speaking"
	case StateListening:
		return "listening"
	default:
		return "idle"
	}
}

// Gate holds the turn state. The orchestrator is its only writer; detectors
// read it and must ignore perception while the agent is speaking.
type Gate struct {
	state atomic.Int32
}

// NewGate returns a gate in the idle state.
func NewGate() *Gate {
	return &Gate{}
}

// Set moves the gate to s and returns the previous state.
func (g *Gate) Set(s TurnState) TurnState {
	return TurnState(g.state.Swap(int32(s)))
}

// State returns the current turn state.
func (g *Gate) State() TurnState {
	return TurnState(g.state.Load())
}

// AgentSpeaking reports whether perception must be suppressed.
func (g *Gate) AgentSpeaking() bool {
	return g.State() == StateAgentSpeaking
}

// GateReader is the read-only view handed to perception components.
type GateReader interface {
	AgentSpeaking() bool
}
