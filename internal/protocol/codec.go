package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/simviewer/internal/domain"
)

// ErrMalformed is wrapped by every decode failure.
var ErrMalformed = errors.New("malformed message")

// kindAliases maps lowercased wire names, including the legacy upper-case
// type names, to recognized kinds.
var kindAliases = map[string]Kind{
	"snapshot":        KindSnapshot,
	"tick":            KindTick,
	"state":           KindState,
	"game_state":      KindState,
	"decision":        KindDecision,
	"agent_decision":  KindDecision,
	"move":            KindMove,
	"move_char":       KindMove,
	"speak":           KindSpeak,
	"character_speak": KindSpeak,
}

// envelope is the wire shape { "kind", "payload"?, "log"? }. Older servers send "type".
type envelope struct {
	Kind    string          `json:"kind"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Log     string          `json:"log"`
}

type statePayload struct {
	Phase          *string           `json:"phase"`
	Day            *int              `json:"day"`
	Results        []resultPayload   `json:"results"`
	FinalResults   []resultPayload   `json:"final_results"`
	PairSessions   map[string]string `json:"pairSessions"`
	ActiveSessions map[string]string `json:"active_sessions"`
}

type resultPayload struct {
	A       string  `json:"a"`
	AgentA  string  `json:"agentA"`
	B       string  `json:"b"`
	AgentB  string  `json:"agentB"`
	Score   float64 `json:"score"`
	Summary string  `json:"summary"`
}

type agentRef struct {
	AgentID string `json:"agentId"`
	CharID  string `json:"char_id"`
}

func (r agentRef) id() string {
	return firstNonEmpty(r.AgentID, r.CharID)
}

type decisionPayload struct {
	agentRef
	Action       *string `json:"action"`
	Content      *string `json:"content"`
	Thought      *string `json:"thought"`
	InnerThought *string `json:"inner_thought"`
	ColorHint    string  `json:"colorHint"`
	CharColor    string  `json:"char_color"`
}

type movePayload struct {
	agentRef
	X          *float64 `json:"x"`
	Y          *float64 `json:"y"`
	ColorHint  string   `json:"colorHint"`
	Color      string   `json:"color"`
	GenderHint string   `json:"genderHint"`
	Gender     string   `json:"gender"`
}

type speakPayload struct {
	agentRef
	Content *string `json:"content"`
}

// Decode parses one raw frame. Unrecognized kinds decode to UnknownEvent
// without error; every other failure wraps ErrMalformed.
func Decode(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Message{}, fmt.Errorf("%w: decode envelope: %v", ErrMalformed, err)
	}

	name := firstNonEmpty(env.Kind, env.Type)
	if name == "" {
		return Message{}, fmt.Errorf("%w: missing kind", ErrMalformed)
	}

	kind, ok := kindAliases[strings.ToLower(name)]
	if !ok {
		return Message{Event: UnknownEvent{Name: name}, Log: env.Log}, nil
	}

	ev, err := decodePayload(kind, env.Payload)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %s: %v", ErrMalformed, kind, err)
	}
	return Message{Event: ev, Log: env.Log}, nil
}

func decodePayload(kind Kind, payload json.RawMessage) (Event, error) {
	switch kind {
	case KindSnapshot:
		var p statePayload
		if err := unmarshalOptional(payload, &p); err != nil {
			return nil, err
		}
		phase, err := parseOptionalPhase(p.Phase)
		if err != nil {
			return nil, err
		}
		if err := checkDay(p.Day); err != nil {
			return nil, err
		}
		sessions := p.PairSessions
		if sessions == nil {
			sessions = p.ActiveSessions
		}
		return SnapshotEvent{
			Phase:        phase,
			Day:          p.Day,
			Results:      convertResults(p.Results, p.FinalResults),
			PairSessions: sessions,
		}, nil

	case KindTick, KindState:
		var p statePayload
		if err := unmarshalOptional(payload, &p); err != nil {
			return nil, err
		}
		phase, err := parseOptionalPhase(p.Phase)
		if err != nil {
			return nil, err
		}
		if err := checkDay(p.Day); err != nil {
			return nil, err
		}
		return TickEvent{Name: kind, Phase: phase, Day: p.Day}, nil

	case KindDecision:
		var p decisionPayload
		if err := unmarshalRequired(payload, &p); err != nil {
			return nil, err
		}
		if p.id() == "" {
			return nil, errors.New("agentId is required")
		}
		if p.Action == nil {
			return nil, errors.New("action is required")
		}
		thought := p.Thought
		if thought == nil {
			thought = p.InnerThought
		}
		return DecisionEvent{Decision: domain.AgentDecision{
			AgentID:       p.id(),
			Action:        *p.Action,
			SpokenContent: p.Content,
			InnerThought:  thought,
			ColorHint:     firstNonEmpty(p.ColorHint, p.CharColor),
		}}, nil

	case KindMove:
		var p movePayload
		if err := unmarshalRequired(payload, &p); err != nil {
			return nil, err
		}
		if p.id() == "" {
			return nil, errors.New("agentId is required")
		}
		if p.X == nil || p.Y == nil {
			return nil, errors.New("x and y are required")
		}
		return MoveEvent{
			AgentID:    p.id(),
			X:          *p.X,
			Y:          *p.Y,
			ColorHint:  firstNonEmpty(p.ColorHint, p.Color),
			GenderHint: firstNonEmpty(p.GenderHint, p.Gender),
		}, nil

	case KindSpeak:
		var p speakPayload
		if err := unmarshalRequired(payload, &p); err != nil {
			return nil, err
		}
		if p.id() == "" {
			return nil, errors.New("agentId is required")
		}
		if p.Content == nil {
			return nil, errors.New("content is required")
		}
		return SpeakEvent{AgentID: p.id(), Content: *p.Content}, nil
	}
	return nil, fmt.Errorf("no decoder for kind %q", kind)
}

func unmarshalOptional(payload json.RawMessage, v any) error {
	if isAbsent(payload) {
		return nil
	}
	return json.Unmarshal(payload, v)
}

func unmarshalRequired(payload json.RawMessage, v any) error {
	if isAbsent(payload) {
		return errors.New("payload is required")
	}
	return json.Unmarshal(payload, v)
}

func isAbsent(payload json.RawMessage) bool {
	trimmed := bytes.TrimSpace(payload)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func parseOptionalPhase(s *string) (*domain.Phase, error) {
	if s == nil {
		return nil, nil
	}
	p, err := domain.ParsePhase(*s)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func checkDay(day *int) error {
	if day != nil && *day < 1 {
		return fmt.Errorf("day must be positive, got %d", *day)
	}
	return nil
}

func convertResults(primary, fallback []resultPayload) []domain.FinalResult {
	src := primary
	if src == nil {
		src = fallback
	}
	if src == nil {
		return nil
	}
	out := make([]domain.FinalResult, 0, len(src))
	for _, r := range src {
		out = append(out, domain.FinalResult{
			AgentA:  firstNonEmpty(r.A, r.AgentA),
			AgentB:  firstNonEmpty(r.B, r.AgentB),
			Score:   r.Score,
			Summary: r.Summary,
		})
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
