// Package render forwards render commands to the external rendering surface.
package render

import "github.com/ashureev/simviewer/internal/domain"

// Kind names a render command.
type Kind string

// Commands understood by the rendering surface.
const (
	KindSpawn        Kind = "spawn"
	KindMove         Kind = "move"
	KindSpeak        Kind = "speak"
	KindPhaseChanged Kind = "phaseChanged"
)

// Command is a one-shot instruction for the rendering surface.
// Only the fields relevant to Kind are set.
type Command struct {
	Kind       Kind         `json:"kind"`
	AgentID    string       `json:"agentId,omitempty"`
	X          float64      `json:"x"`
	Y          float64      `json:"y"`
	ColorHint  string       `json:"colorHint,omitempty"`
	GenderHint string       `json:"genderHint,omitempty"`
	Content    string       `json:"content,omitempty"`
	Phase      domain.Phase `json:"phase,omitempty"`
}

// Spawn places an agent sprite.
func Spawn(agentID string, x, y float64, colorHint, genderHint string) Command {
	return Command{Kind: KindSpawn, AgentID: agentID, X: x, Y: y, ColorHint: colorHint, GenderHint: genderHint}
}

// Move animates an agent to a position.
func Move(agentID string, x, y float64, colorHint string) Command {
	return Command{Kind: KindMove, AgentID: agentID, X: x, Y: y, ColorHint: colorHint}
}

// Speak shows a speech bubble.
func Speak(agentID, content string) Command {
	return Command{Kind: KindSpeak, AgentID: agentID, Content: content}
}

// PhaseChanged announces a new phase.
func PhaseChanged(phase domain.Phase) Command {
	return Command{Kind: KindPhaseChanged, Phase: phase}
}

// SpawnRoster builds spawn commands for every roster character.
func SpawnRoster(roster []domain.Character) []Command {
	cmds := make([]Command, 0, len(roster))
	for _, c := range roster {
		cmds = append(cmds, Spawn(c.Name, c.X, c.Y, c.ColorHint, c.Gender))
	}
	return cmds
}
