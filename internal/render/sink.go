package render

import "github.com/ashureev/simviewer/internal/domain"

// Sink is the command surface of a rendering technology.
// Spawn for an already known agent must be a no-op on the sink side.
type Sink interface {
	Spawn(agentID string, x, y float64, colorHint, genderHint string)
	Move(agentID string, x, y float64, colorHint string)
	Speak(agentID, content string)
	PhaseChanged(phase domain.Phase)
}

// Apply maps one command to exactly one sink call.
func Apply(s Sink, cmd Command) bool {
	switch cmd.Kind {
	case KindSpawn:
		s.Spawn(cmd.AgentID, cmd.X, cmd.Y, cmd.ColorHint, cmd.GenderHint)
	case KindMove:
		s.Move(cmd.AgentID, cmd.X, cmd.Y, cmd.ColorHint)
	case KindSpeak:
		s.Speak(cmd.AgentID, cmd.Content)
	case KindPhaseChanged:
		s.PhaseChanged(cmd.Phase)
	default:
		return false
	}
	return true
}

// MultiSink fans every call out to each sink in order.
type MultiSink []Sink

func (m MultiSink) Spawn(agentID string, x, y float64, colorHint, genderHint string) {
	for _, s := range m {
		s.Spawn(agentID, x, y, colorHint, genderHint)
	}
}

func (m MultiSink) Move(agentID string, x, y float64, colorHint string) {
	for _, s := range m {
		s.Move(agentID, x, y, colorHint)
	}
}

func (m MultiSink) Speak(agentID, content string) {
	for _, s := range m {
		s.Speak(agentID, content)
	}
}

func (m MultiSink) PhaseChanged(phase domain.Phase) {
	for _, s := range m {
		s.PhaseChanged(phase)
	}
}

// Reset resets every member that keeps run state.
func (m MultiSink) Reset() {
	for _, s := range m {
		if r, ok := s.(Resetter); ok {
			r.Reset()
		}
	}
}
