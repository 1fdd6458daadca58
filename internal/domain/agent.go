package domain

// AgentDecision is the last known decision snapshot for one agent.
// A new decision replaces the previous one wholesale.
type AgentDecision struct {
	AgentID       string  `json:"agent_id"`
	Action        string  `json:"action"`
	SpokenContent *string `json:"spoken_content,omitempty"`
	InnerThought  *string `json:"inner_thought,omitempty"`
	ColorHint     string  `json:"color_hint,omitempty"`
}

// TranscriptEntry is one utterance inside a pair transcript.
type TranscriptEntry struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// FinalResult is one row of the terminal ranking.
type FinalResult struct {
	AgentA  string  `json:"a"`
	AgentB  string  `json:"b,omitempty"`
	Score   float64 `json:"score"`
	Summary string  `json:"summary,omitempty"`
}

// HasPartner returns true if the result ranks a pair rather than a single agent.
func (r FinalResult) HasPartner() bool {
	return r.AgentB != ""
}

// Character is a roster entry used to spawn sprites on the rendering surface.
type Character struct {
	Name        string  `json:"name"`
	Gender      string  `json:"gender"`
	Personality string  `json:"personality"`
	ColorHint   string  `json:"avatar_color"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
}
