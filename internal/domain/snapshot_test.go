package domain

import "testing"

func TestParsePhase(t *testing.T) {
	tests := map[string]Phase{
		"AiChat":      PhaseAiChat,
		"AI_CHAT":     PhaseAiChat,
		"free_chat":   PhaseFreeChat,
		"PLAYER_TURN": PhasePlayerTurn,
		" GameOver ":  PhaseGameOver,
	}
	for in, want := range tests {
		got, err := ParsePhase(in)
		if err != nil {
			t.Errorf("ParsePhase(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParsePhase(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParsePhase("NIGHT"); err == nil {
		t.Error("Expected error for unknown phase")
	}
}

func TestSnapshotCloneIsIndependent(t *testing.T) {
	content := "hello"
	s := NewSnapshot()
	s.Decisions["Alice"] = AgentDecision{AgentID: "Alice", Action: "walk", SpokenContent: &content}
	s.PairSessions["Alice"] = "Bob"
	s.Transcripts["Alice-Bob"] = []TranscriptEntry{{Sender: "Alice", Content: "hi"}}
	s.Log = []string{"one"}

	c := s.Clone()
	*c.Decisions["Alice"].SpokenContent = "changed"
	c.PairSessions["Alice"] = "Charlie"
	c.Transcripts["Alice-Bob"][0].Content = "changed"
	c.Log[0] = "changed"

	if *s.Decisions["Alice"].SpokenContent != "hello" {
		t.Error("Clone shares decision content")
	}
	if s.PairSessions["Alice"] != "Bob" {
		t.Error("Clone shares pair sessions")
	}
	if s.Transcripts["Alice-Bob"][0].Content != "hi" {
		t.Error("Clone shares transcripts")
	}
	if s.Log[0] != "one" {
		t.Error("Clone shares log")
	}
}
