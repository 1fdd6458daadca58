// Package domain contains core domain types for the simulation viewer.
package domain

import (
	"fmt"
	"strings"
)

// Phase is the server-directed stage of a simulation run.
type Phase string

const (
	// PhaseAiChat is the paired AI conversation round.
	PhaseAiChat Phase = "AiChat"
	// PhaseFreeChat lets agents wander and talk freely.
	PhaseFreeChat Phase = "FreeChat"
	// PhasePlayerTurn hands matchmaking to the host.
	PhasePlayerTurn Phase = "PlayerTurn"
	// PhaseGameOver is terminal for the current run.
	PhaseGameOver Phase = "GameOver"
)

var phaseByKey = map[string]Phase{
	"aichat":     PhaseAiChat,
	"freechat":   PhaseFreeChat,
	"playerturn": PhasePlayerTurn,
	"gameover":   PhaseGameOver,
}

// ParsePhase accepts both "AiChat" and legacy "AI_CHAT" spellings.
func ParsePhase(s string) (Phase, error) {
	key := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", ""))
	if p, ok := phaseByKey[key]; ok {
		return p, nil
	}
	return "", fmt.Errorf("unknown phase %q", s)
}

// IsTerminal reports whether no further phase transitions are accepted in this run.
func (p Phase) IsTerminal() bool {
	return p == PhaseGameOver
}

// ConnectionStatus is the connectivity state surfaced by the connection manager.
type ConnectionStatus string

const (
	// StatusDisconnected is the idle state, before Start and after Stop or close.
	StatusDisconnected ConnectionStatus = "disconnected"
	// StatusConnecting means the source was opened and has not signalled open yet.
	StatusConnecting ConnectionStatus = "connecting"
	// StatusConnected means the source signalled open.
	StatusConnected ConnectionStatus = "connected"
)

// Active returns true while a connection attempt or connection is live.
func (s ConnectionStatus) Active() bool {
	return s == StatusConnecting || s == StatusConnected
}
