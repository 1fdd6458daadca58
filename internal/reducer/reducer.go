// Package reducer folds decoded events into derived simulation state.
package reducer

import (
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/ashureev/simviewer/internal/domain"
	"github.com/ashureev/simviewer/internal/ledger"
	"github.com/ashureev/simviewer/internal/protocol"
	"github.com/ashureev/simviewer/internal/render"
)

// DefaultLogLimit caps the rolling log.
const DefaultLogLimit = 500

// Reducer produces the next state and render commands for one event.
// Input state is never mutated; maps that change are copied first.
// Session attribution goes through the ledger so that a speak event always
// sees the pairing written by the event before it.
type Reducer struct {
	ledger   *ledger.Ledger
	now      func() time.Time
	logLimit int
	logger   *slog.Logger
}

// Option configures a Reducer.
type Option func(*Reducer)

// WithClock sets the time source used for log timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reducer) { r.now = now }
}

// WithLogLimit caps the rolling log; non-positive means DefaultLogLimit.
func WithLogLimit(n int) Option {
	return func(r *Reducer) {
		if n > 0 {
			r.logLimit = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reducer) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a reducer bound to a session ledger.
func New(l *ledger.Ledger, opts ...Option) *Reducer {
	r := &Reducer{
		ledger:   l,
		now:      time.Now,
		logLimit: DefaultLogLimit,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reduce applies one message.
func (r *Reducer) Reduce(state domain.Snapshot, msg protocol.Message) (domain.Snapshot, []render.Command) {
	next := state
	var cmds []render.Command

	if msg.Log != "" {
		next = r.AppendLog(next, "Server: "+msg.Log)
	}

	switch ev := msg.Event.(type) {
	case protocol.SnapshotEvent:
		next, cmds = r.applyPhase(next, ev.Phase)
		next = applyDay(next, ev.Day)
		if ev.Results != nil {
			next.Results = append([]domain.FinalResult(nil), ev.Results...)
		}
		if ev.PairSessions != nil {
			r.ledger.SetSessions(ev.PairSessions)
			next.PairSessions = r.ledger.Sessions()
		}

	case protocol.TickEvent:
		next, cmds = r.applyPhase(next, ev.Phase)
		next = applyDay(next, ev.Day)

	case protocol.DecisionEvent:
		decisions := maps.Clone(next.Decisions)
		if decisions == nil {
			decisions = make(map[string]domain.AgentDecision)
		}
		decisions[ev.Decision.AgentID] = ev.Decision
		next.Decisions = decisions

	case protocol.MoveEvent:
		cmds = append(cmds, render.Move(ev.AgentID, ev.X, ev.Y, ev.ColorHint))

	case protocol.SpeakEvent:
		next = r.AppendLog(next, fmt.Sprintf("%s: %s", ev.AgentID, ev.Content))
		if _, ok := r.ledger.AppendUtterance(ev.AgentID, ev.Content); ok {
			next.Transcripts = r.ledger.Transcripts()
		}
		cmds = append(cmds, render.Speak(ev.AgentID, ev.Content))

	case protocol.UnknownEvent:
		next.Dropped++
		r.logger.Debug("Dropping event of unknown kind", "kind", ev.Name)

	default:
		next.Dropped++
		r.logger.Warn("Dropping event with no reducer arm", "type", fmt.Sprintf("%T", msg.Event))
	}

	return next, cmds
}

// Malformed records a frame that failed to decode.
func (r *Reducer) Malformed(state domain.Snapshot, err error) domain.Snapshot {
	next := state
	next.Dropped++
	return r.AppendLog(next, "System: Dropped malformed message: "+err.Error())
}

// AppendLog returns state with a timestamped line appended, oldest lines
// beyond the limit discarded.
func (r *Reducer) AppendLog(state domain.Snapshot, line string) domain.Snapshot {
	stamped := fmt.Sprintf("[%s] %s", r.now().Format("15:04:05"), line)
	keep := state.Log
	if len(keep) >= r.logLimit {
		keep = keep[len(keep)-r.logLimit+1:]
	}
	log := make([]string, 0, len(keep)+1)
	log = append(log, keep...)
	state.Log = append(log, stamped)
	return state
}

func (r *Reducer) applyPhase(state domain.Snapshot, phase *domain.Phase) (domain.Snapshot, []render.Command) {
	if phase == nil || *phase == state.Phase {
		return state, nil
	}
	if state.Phase.IsTerminal() {
		r.logger.Warn("Ignoring phase change after game over", "phase", *phase)
		return state, nil
	}
	state.Phase = *phase
	return state, []render.Command{render.PhaseChanged(*phase)}
}

func applyDay(state domain.Snapshot, day *int) domain.Snapshot {
	if day != nil {
		state.Day = *day
	}
	return state
}
