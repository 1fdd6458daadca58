// Package protocol decodes server frames into typed simulation events.
package protocol

import "github.com/ashureev/simviewer/internal/domain"

// Kind names a recognized event kind.
type Kind string

// Recognized kinds. "tick" and "state" are synonyms.
const (
	KindSnapshot Kind = "snapshot"
	KindTick     Kind = "tick"
	KindState    Kind = "state"
	KindDecision Kind = "decision"
	KindMove     Kind = "move"
	KindSpeak    Kind = "speak"
)

// Message is one decoded frame. Log is applied independently of Event.
type Message struct {
	Event Event
	Log   string
}

// Event is the closed set of payload variants. UnknownEvent is the fallback arm.
type Event interface {
	Kind() Kind
	isEvent()
}

// SnapshotEvent is a bulk partial overwrite. Nil fields were absent on the wire.
type SnapshotEvent struct {
	Phase        *domain.Phase
	Day          *int
	Results      []domain.FinalResult
	PairSessions map[string]string
}

// TickEvent is a lightweight periodic sync of phase and day.
// Name distinguishes "tick" from "state"; both are handled identically.
type TickEvent struct {
	Name  Kind
	Phase *domain.Phase
	Day   *int
}

// DecisionEvent carries a full per-agent decision.
type DecisionEvent struct {
	Decision domain.AgentDecision
}

// MoveEvent is a render-only movement instruction.
type MoveEvent struct {
	AgentID    string
	X          float64
	Y          float64
	ColorHint  string
	GenderHint string
}

// SpeakEvent is an utterance by one agent.
type SpeakEvent struct {
	AgentID string
	Content string
}

// UnknownEvent is any frame whose kind is not recognized.
type UnknownEvent struct {
	Name string
}

func (SnapshotEvent) Kind() Kind { return KindSnapshot }
func (e TickEvent) Kind() Kind {
	if e.Name == KindState {
		return KindState
	}
	return KindTick
}
func (DecisionEvent) Kind() Kind { return KindDecision }
func (MoveEvent) Kind() Kind { return KindMove }
func (SpeakEvent) Kind() Kind { return KindSpeak }
func (e UnknownEvent) Kind() Kind { return Kind(e.Name) }

func (SnapshotEvent) isEvent() {}
func (TickEvent) isEvent() {}
func (DecisionEvent) isEvent() {}
func (MoveEvent) isEvent() {}
func (SpeakEvent) isEvent() {}
func (UnknownEvent) isEvent() {}
