// Package source provides transports that deliver raw server frames to the
// connection manager.
package source

import (
	"context"
	"errors"

	"github.com/ashureev/simviewer/internal/domain"
)

// Source errors.
var (
	ErrAlreadyOpen = errors.New("source already open")
	ErrNotOpen     = errors.New("source not open")
)

// Handler receives the lifecycle of one opened source. Calls are serial and
// follow transport order. OnClose is delivered exactly once per Open.
type Handler interface {
	OnOpen()
	OnMessage(raw []byte)
	OnError(err error)
	OnClose(err error)
}

// Source is a persistent message transport.
type Source interface {
	// Open starts the transport without blocking. Lifecycle is reported to h.
	Open(ctx context.Context, h Handler) error
	// Send writes an outbound frame on a best-effort basis.
	Send(ctx context.Context, msg []byte) error
	// Close ends the transport; h.OnClose follows eventually.
	Close() error
	// Name identifies the engine in log lines.
	Name() string
}

// Rostered is implemented by sources that know their characters up front.
type Rostered interface {
	Roster() []domain.Character
}
