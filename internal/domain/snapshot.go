package domain

import "maps"

// Snapshot is the published, read-only view of derived simulation state.
// Every map and slice in a Snapshot is owned by the receiver.
type Snapshot struct {
	ConnectionID string                       `json:"connection_id,omitempty"`
	Status       ConnectionStatus             `json:"status"`
	Phase        Phase                        `json:"phase"`
	Day          int                          `json:"day"`
	Decisions    map[string]AgentDecision     `json:"decisions"`
	PairSessions map[string]string            `json:"pair_sessions"`
	Transcripts  map[string][]TranscriptEntry `json:"transcripts"`
	Results      []FinalResult                `json:"results,omitempty"`
	Log          []string                     `json:"log"`
	Dropped      int                          `json:"dropped"`
}

// NewSnapshot returns an empty snapshot with the initial phase and day.
func NewSnapshot() Snapshot {
	return Snapshot{
		Status:       StatusDisconnected,
		Phase:        PhaseAiChat,
		Day:          1,
		Decisions:    make(map[string]AgentDecision),
		PairSessions: make(map[string]string),
		Transcripts:  make(map[string][]TranscriptEntry),
	}
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Decisions = make(map[string]AgentDecision, len(s.Decisions))
	for id, d := range s.Decisions {
		out.Decisions[id] = d.clone()
	}
	out.PairSessions = maps.Clone(s.PairSessions)
	if out.PairSessions == nil {
		out.PairSessions = make(map[string]string)
	}
	out.Transcripts = make(map[string][]TranscriptEntry, len(s.Transcripts))
	for key, entries := range s.Transcripts {
		out.Transcripts[key] = append([]TranscriptEntry(nil), entries...)
	}
	if s.Results != nil {
		out.Results = append([]FinalResult(nil), s.Results...)
	}
	out.Log = append([]string(nil), s.Log...)
	return out
}

func (d AgentDecision) clone() AgentDecision {
	if d.SpokenContent != nil {
		v := *d.SpokenContent
		d.SpokenContent = &v
	}
	if d.InnerThought != nil {
		v := *d.InnerThought
		d.InnerThought = &v
	}
	return d
}
