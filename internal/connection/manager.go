// Package connection owns the lifecycle of one event source and runs every
// inbound frame through decode, reduce, publish and render dispatch.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/simviewer/internal/domain"
	"github.com/ashureev/simviewer/internal/ledger"
	"github.com/ashureev/simviewer/internal/metrics"
	"github.com/ashureev/simviewer/internal/protocol"
	"github.com/ashureev/simviewer/internal/reducer"
	"github.com/ashureev/simviewer/internal/render"
	"github.com/ashureev/simviewer/internal/source"
	"github.com/google/uuid"
)

// ErrNotConnected is returned by Send when no source is open.
var ErrNotConnected = errors.New("not connected")

// Factory creates a fresh source for each connection attempt.
type Factory func() (source.Source, error)

// ReconnectPolicy controls automatic reopening after the source closes.
// MaxAttempts of zero means no limit.
type ReconnectPolicy struct {
	Enabled     bool
	MaxAttempts int
	Delay       time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithLogLimit caps the rolling log of the derived state.
func WithLogLimit(n int) Option {
	return func(m *Manager) { m.logLimit = n }
}

// WithClock sets the time source for log timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithReconnect enables the given reconnect policy.
func WithReconnect(p ReconnectPolicy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithRoster sets the characters spawned on open when the source has none.
func WithRoster(roster []domain.Character) Option {
	return func(m *Manager) { m.roster = append([]domain.Character(nil), roster...) }
}

// Manager is the single owner of derived state.
type Manager struct {
	factory  Factory
	bridge   *render.Bridge
	ledger   *ledger.Ledger
	reducer  *reducer.Reducer
	logger   *slog.Logger
	logLimit int
	now      func() time.Time
	policy   ReconnectPolicy
	roster   []domain.Character

	mu       sync.Mutex
	state    domain.Snapshot
	current  *conn
	ctx      context.Context
	epoch    uint64
	attempts int
	retry    *time.Timer

	subMu sync.Mutex
	subs  map[*subscriber]struct{}
}

// New creates a manager. Nothing is opened until Start.
func New(factory Factory, bridge *render.Bridge, opts ...Option) *Manager {
	m := &Manager{
		factory: factory,
		bridge:  bridge,
		ledger:  ledger.New(ledger.DefaultTranscriptLimit),
		logger:  slog.Default(),
		now:     time.Now,
		state:   domain.NewSnapshot(),
		subs:    make(map[*subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.bridge == nil {
		m.bridge = render.NewBridge(render.DefaultBufferLimit, m.logger)
	}
	m.reducer = reducer.New(m.ledger,
		reducer.WithClock(m.now),
		reducer.WithLogLimit(m.logLimit),
		reducer.WithLogger(m.logger))
	return m
}

// Start creates fresh state and opens a new source. It is a no-op while a
// connection is being opened or is open. Sources live until Stop or until
// ctx is cancelled.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Status.Active() {
		return nil
	}
	m.stopRetryLocked()
	m.epoch++
	m.ctx = ctx
	m.attempts = 0
	m.state = domain.NewSnapshot()
	m.ledger.Reset()
	return m.connectLocked()
}

func (m *Manager) connectLocked() error {
	src, err := m.factory()
	if err != nil {
		m.state = m.reducer.AppendLog(m.state, "System: Failed to create source: "+err.Error())
		m.publishLocked()
		return fmt.Errorf("create source: %w", err)
	}

	c := &conn{id: uuid.NewString(), src: src, m: m}
	m.current = c
	m.state.ConnectionID = c.id
	m.setStatusLocked(domain.StatusConnecting)
	m.publishLocked()

	m.logger.Info("Opening source", "source", src.Name(), "connection_id", c.id)
	if err := src.Open(m.ctx, c); err != nil {
		m.current = nil
		m.setStatusLocked(domain.StatusDisconnected)
		m.state = m.reducer.AppendLog(m.state, "System: Failed to open source: "+err.Error())
		m.publishLocked()
		return fmt.Errorf("open %s source: %w", src.Name(), err)
	}
	return nil
}

// Stop detaches the current connection, discards derived state and closes
// the source. Frames still in flight from that source are ignored.
func (m *Manager) Stop() error {
	m.mu.Lock()
	c := m.current
	m.current = nil
	m.stopRetryLocked()
	m.epoch++
	m.state = domain.NewSnapshot()
	m.ledger.Reset()
	m.setStatusLocked(domain.StatusDisconnected)
	m.publishLocked()
	m.mu.Unlock()

	m.bridge.Reset()
	if c == nil {
		return nil
	}
	m.logger.Info("Closing source", "source", c.src.Name(), "connection_id", c.id)
	if err := c.src.Close(); err != nil {
		return fmt.Errorf("close %s source: %w", c.src.Name(), err)
	}
	return nil
}

// State returns a copy of the current derived state.
func (m *Manager) State() domain.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Ledger exposes the session ledger for direct partner lookups.
func (m *Manager) Ledger() *ledger.Ledger {
	return m.ledger
}

// Send writes a frame to the current source.
func (m *Manager) Send(ctx context.Context, msg []byte) error {
	m.mu.Lock()
	c := m.current
	m.mu.Unlock()
	if c == nil {
		return ErrNotConnected
	}
	return c.src.Send(ctx, msg)
}

func (m *Manager) setStatusLocked(s domain.ConnectionStatus) {
	m.state.Status = s
	switch s {
	case domain.StatusConnecting:
		metrics.ConnectionStatus.Set(1)
	case domain.StatusConnected:
		metrics.ConnectionStatus.Set(2)
	default:
		metrics.ConnectionStatus.Set(0)
	}
}

func (m *Manager) stopRetryLocked() {
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
}

// scheduleReconnectLocked arms the retry timer if the policy allows another attempt.
func (m *Manager) scheduleReconnectLocked() {
	if !m.policy.Enabled || m.ctx == nil || m.ctx.Err() != nil {
		return
	}
	if m.policy.MaxAttempts > 0 && m.attempts >= m.policy.MaxAttempts {
		m.state = m.reducer.AppendLog(m.state,
			fmt.Sprintf("System: Giving up after %d reconnect attempts.", m.attempts))
		return
	}
	m.attempts++
	m.state = m.reducer.AppendLog(m.state,
		fmt.Sprintf("System: Reconnecting in %s (attempt %d).", m.policy.Delay, m.attempts))

	epoch := m.epoch
	m.retry = time.AfterFunc(m.policy.Delay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.epoch != epoch || m.current != nil {
			return
		}
		m.retry = nil
		if err := m.connectLocked(); err != nil {
			m.logger.Warn("Reconnect failed", "attempt", m.attempts, "error", err)
			m.scheduleReconnectLocked()
			m.publishLocked()
		}
	})
}

// rosterFor prefers the source's own characters over the configured roster.
func (m *Manager) rosterFor(src source.Source) []domain.Character {
	if rs, ok := src.(source.Rostered); ok {
		if roster := rs.Roster(); len(roster) > 0 {
			return roster
		}
	}
	return m.roster
}

// conn is the source.Handler of one connection attempt. Callbacks from a
// conn that is no longer current are ignored.
type conn struct {
	id  string
	src source.Source
	m   *Manager
}

func (c *conn) OnOpen() {
	m := c.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != c {
		return
	}
	m.setStatusLocked(domain.StatusConnected)
	m.attempts = 0
	m.state = m.reducer.AppendLog(m.state, fmt.Sprintf("System: Connected to %s engine.", c.src.Name()))
	m.publishLocked()
	m.logger.Info("Source connected", "source", c.src.Name(), "connection_id", c.id)
	m.bridge.Dispatch(render.SpawnRoster(m.rosterFor(c.src))...)
}

func (c *conn) OnMessage(raw []byte) {
	metrics.MessagesReceived.Inc()
	m := c.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != c {
		metrics.MessagesDropped.WithLabelValues(metrics.ReasonStale).Inc()
		return
	}

	msg, err := protocol.Decode(raw)
	if err != nil {
		metrics.MessagesDropped.WithLabelValues(metrics.ReasonMalformed).Inc()
		m.logger.Warn("Dropping malformed message", "connection_id", c.id, "error", err)
		m.state = m.reducer.Malformed(m.state, err)
		m.publishLocked()
		return
	}

	if _, unknown := msg.Event.(protocol.UnknownEvent); unknown {
		metrics.MessagesDropped.WithLabelValues(metrics.ReasonUnknownKind).Inc()
	} else {
		metrics.EventsProcessed.WithLabelValues(string(msg.Event.Kind())).Inc()
	}

	next, cmds := m.reducer.Reduce(m.state, msg)
	m.state = next
	m.publishLocked()
	m.bridge.Dispatch(cmds...)
}

func (c *conn) OnError(err error) {
	m := c.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != c {
		return
	}
	m.logger.Warn("Source transport error", "connection_id", c.id, "error", err)
	m.state = m.reducer.AppendLog(m.state, "System: Transport error: "+err.Error())
	m.publishLocked()
}

func (c *conn) OnClose(err error) {
	m := c.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != c {
		return
	}
	m.current = nil
	m.setStatusLocked(domain.StatusDisconnected)
	m.state = m.reducer.AppendLog(m.state, "System: Connection closed.")
	m.logger.Info("Source closed", "source", c.src.Name(), "connection_id", c.id, "error", err)
	m.scheduleReconnectLocked()
	m.publishLocked()
}
