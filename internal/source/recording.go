package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/simviewer/internal/domain"
	"github.com/google/uuid"
)

const recordTimeout = 2 * time.Second

// FrameWriter persists inbound frames.
type FrameWriter interface {
	BeginRun(ctx context.Context, runID, source string, startedAt time.Time) error
	AppendFrame(ctx context.Context, frame domain.Frame) error
	EndRun(ctx context.Context, runID string, endedAt time.Time) error
}

// Recording wraps a Source and stores every inbound frame before forwarding it.
// Storage failures are logged and never interrupt delivery.
type Recording struct {
	inner  Source
	writer FrameWriter
	logger *slog.Logger
	now    func() time.Time
}

// NewRecording decorates inner with frame recording.
func NewRecording(inner Source, writer FrameWriter, logger *slog.Logger) *Recording {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recording{inner: inner, writer: writer, logger: logger, now: time.Now}
}

// Name implements Source.
func (r *Recording) Name() string { return r.inner.Name() }

// Roster forwards to the wrapped source when it has one.
func (r *Recording) Roster() []domain.Character {
	if rs, ok := r.inner.(Rostered); ok {
		return rs.Roster()
	}
	return nil
}

// Open starts a new run and opens the wrapped source.
func (r *Recording) Open(ctx context.Context, h Handler) error {
	rec := &recorder{
		Handler: h,
		parent:  r,
		runID:   uuid.NewString(),
	}
	beginCtx, cancel := context.WithTimeout(ctx, recordTimeout)
	err := r.writer.BeginRun(beginCtx, rec.runID, r.inner.Name(), r.now())
	cancel()
	if err != nil {
		// Deliver anyway; frames of this run are not stored.
		r.logger.Error("Failed to begin recording", "run_id", rec.runID, "error", err)
		rec.disabled = true
	} else {
		r.logger.Info("Recording run", "run_id", rec.runID, "source", r.inner.Name())
	}
	if err := r.inner.Open(ctx, rec); err != nil {
		if !rec.disabled {
			endCtx, cancel := context.WithTimeout(context.Background(), recordTimeout)
			_ = r.writer.EndRun(endCtx, rec.runID, r.now())
			cancel()
		}
		return err
	}
	return nil
}

// Send implements Source.
func (r *Recording) Send(ctx context.Context, msg []byte) error {
	return r.inner.Send(ctx, msg)
}

// Close implements Source.
func (r *Recording) Close() error {
	return r.inner.Close()
}

// recorder is only touched from the wrapped source's callback goroutine.
type recorder struct {
	Handler
	parent   *Recording
	runID    string
	seq      int64
	disabled bool
}

func (rec *recorder) OnMessage(raw []byte) {
	if !rec.disabled {
		frame := domain.Frame{
			RunID:      rec.runID,
			Seq:        rec.seq,
			ReceivedAt: rec.parent.now(),
			Payload:    append([]byte(nil), raw...),
		}
		rec.seq++
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := rec.parent.writer.AppendFrame(ctx, frame); err != nil {
			rec.parent.logger.Warn("Failed to record frame",
				"run_id", rec.runID,
				"seq", frame.Seq,
				"error", err)
		}
		cancel()
	}
	rec.Handler.OnMessage(raw)
}

func (rec *recorder) OnClose(err error) {
	if !rec.disabled {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if endErr := rec.parent.writer.EndRun(ctx, rec.runID, rec.parent.now()); endErr != nil {
			rec.parent.logger.Warn("Failed to end recording", "run_id", rec.runID, "error", endErr)
		}
		cancel()
	}
	rec.Handler.OnClose(err)
}
