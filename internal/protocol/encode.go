package protocol

import (
	"encoding/json"
	"fmt"
)

// outbound mirrors envelope for frames this process produces.
type outbound struct {
	Kind    Kind   `json:"kind"`
	Payload any    `json:"payload,omitempty"`
	Log     string `json:"log,omitempty"`
}

// Encode builds a wire frame.
func Encode(kind Kind, payload any, log string) ([]byte, error) {
	data, err := json.Marshal(outbound{Kind: kind, Payload: payload, Log: log})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	return data, nil
}

// MovePayload is the wire payload of a move frame.
type MovePayload struct {
	AgentID    string  `json:"agentId"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	ColorHint  string  `json:"colorHint,omitempty"`
	GenderHint string  `json:"genderHint,omitempty"`
}

// SpeakPayload is the wire payload of a speak frame.
type SpeakPayload struct {
	AgentID string `json:"agentId"`
	Content string `json:"content"`
}
