package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/simviewer/internal/domain"
)

// ErrNoRuns is reported when replay has no run to play back.
var ErrNoRuns = errors.New("no recorded runs")

// FrameReader loads recorded frames.
type FrameReader interface {
	Frames(ctx context.Context, runID string) ([]domain.Frame, error)
	ListRuns(ctx context.Context, limit int) ([]*domain.Run, error)
}

// ReplayConfig selects what to play back and how fast.
type ReplayConfig struct {
	// RunID is the run to play. Empty means the most recent run.
	RunID  string
	// Speed scales recorded gaps: 2 plays twice as fast, 0 plays without waiting.
	Speed  float64
	Logger *slog.Logger
}

// Replay is a Source that delivers previously recorded frames.
type Replay struct {
	reader FrameReader
	cfg    ReplayConfig
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64
}

// NewReplay creates a replay source over reader.
func NewReplay(reader FrameReader, cfg ReplayConfig) *Replay {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Replay{reader: reader, cfg: cfg, logger: logger}
}

// Name implements Source.
func (r *Replay) Name() string { return "replay" }

// Open implements Source.
func (r *Replay) Open(ctx context.Context, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return ErrAlreadyOpen
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.gen++
	go r.run(runCtx, r.gen, h)
	return nil
}

func (r *Replay) run(ctx context.Context, gen uint64, h Handler) {
	var closeErr error
	defer func() {
		r.mu.Lock()
		if r.gen == gen && r.cancel != nil {
			r.cancel()
			r.cancel = nil
		}
		r.mu.Unlock()
		h.OnClose(closeErr)
	}()

	runID, frames, err := r.load(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		closeErr = err
		h.OnError(err)
		return
	}
	r.logger.Info("Replaying run", "run_id", runID, "frames", len(frames), "speed", r.cfg.Speed)
	h.OnOpen()

	for i, frame := range frames {
		if i > 0 {
			if wait := r.gap(frames[i-1], frame); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
		}
		if ctx.Err() != nil {
			return
		}
		h.OnMessage(frame.Payload)
	}
}

func (r *Replay) load(ctx context.Context) (string, []domain.Frame, error) {
	runID := r.cfg.RunID
	if runID == "" {
		runs, err := r.reader.ListRuns(ctx, 1)
		if err != nil {
			return "", nil, fmt.Errorf("list runs: %w", err)
		}
		if len(runs) == 0 {
			return "", nil, ErrNoRuns
		}
		runID = runs[0].ID
	}
	frames, err := r.reader.Frames(ctx, runID)
	if err != nil {
		return "", nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	return runID, frames, nil
}

func (r *Replay) gap(prev, next domain.Frame) time.Duration {
	if r.cfg.Speed <= 0 {
		return 0
	}
	d := next.ReceivedAt.Sub(prev.ReceivedAt)
	if d <= 0 {
		return 0
	}
	return time.Duration(float64(d) / r.cfg.Speed)
}

// Send logs and discards the frame; a recording cannot be answered.
func (r *Replay) Send(_ context.Context, msg []byte) error {
	r.logger.Debug("Replay source discarding outbound frame", "bytes", len(msg))
	return nil
}

// Close implements Source.
func (r *Replay) Close() error {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}
