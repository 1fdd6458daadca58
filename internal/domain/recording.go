package domain

import "time"

// Run is one recorded connection session.
type Run struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Frames    int        `json:"frames"`
}

// Frame is one raw inbound message as delivered by the transport.
type Frame struct {
	RunID      string    `json:"run_id"`
	Seq        int64     `json:"seq"`
	ReceivedAt time.Time `json:"received_at"`
	Payload    []byte    `json:"payload"`
}
