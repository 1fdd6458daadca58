package render

import (
	"log/slog"
	"sync"

	"github.com/ashureev/simviewer/internal/metrics"
)

// DefaultBufferLimit caps commands held while no sink is attached.
const DefaultBufferLimit = 256

// Bridge decouples the reducer from the concrete sink. Commands dispatched
// before a sink attaches are buffered up to a limit and flushed in order.
type Bridge struct {
	mu      sync.Mutex
	sink    Sink
	pending []Command
	limit   int
	logger  *slog.Logger
}

// NewBridge creates a bridge with no sink attached.
func NewBridge(limit int, logger *slog.Logger) *Bridge {
	if limit <= 0 {
		limit = DefaultBufferLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{limit: limit, logger: logger}
}

// Attach sets the sink and flushes buffered commands.
func (b *Bridge) Attach(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = s
	if len(b.pending) > 0 {
		b.logger.Info("Flushing buffered render commands", "count", len(b.pending))
	}
	for _, cmd := range b.pending {
		b.apply(cmd)
	}
	b.pending = nil
}

// Detach removes the sink; later commands are buffered again.
func (b *Bridge) Detach() {
	b.mu.Lock()
	b.sink = nil
	b.mu.Unlock()
}

// Dispatch forwards commands in order. Without a sink, commands past the
// buffer limit are dropped so the earliest (spawns) survive.
func (b *Bridge) Dispatch(cmds ...Command) {
	if len(cmds) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cmd := range cmds {
		if b.sink != nil {
			b.apply(cmd)
			continue
		}
		if len(b.pending) >= b.limit {
			metrics.RenderCommandsDiscarded.Inc()
			b.logger.Warn("Render sink not attached, dropping command", "kind", cmd.Kind, "agent_id", cmd.AgentID)
			continue
		}
		b.pending = append(b.pending, cmd)
	}
}

// Pending returns the number of buffered commands.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Bridge) apply(cmd Command) {
	if !Apply(b.sink, cmd) {
		b.logger.Warn("Unknown render command", "kind", cmd.Kind)
		return
	}
	metrics.RenderCommands.WithLabelValues(string(cmd.Kind)).Inc()
}

// Resetter is implemented by sinks that keep per-run state.
type Resetter interface {
	Reset()
}

// Reset drops buffered commands and resets the sink if it keeps run state.
func (b *Bridge) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
	if r, ok := b.sink.(Resetter); ok {
		r.Reset()
	}
}
