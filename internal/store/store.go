// Package store records raw inbound frames so runs can be replayed offline.
// Derived state is never persisted.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/simviewer/internal/domain"
)

// ErrRunNotFound is returned when a run ID has no record.
var ErrRunNotFound = errors.New("run not found")

// Repository defines the interface for persisting recorded frames.
type Repository interface {
	// BeginRun creates a run record.
	BeginRun(ctx context.Context, runID, source string, startedAt time.Time) error

	// AppendFrame stores one frame. Seq must be unique within the run.
	AppendFrame(ctx context.Context, frame domain.Frame) error

	// EndRun stamps the end time of a run.
	EndRun(ctx context.Context, runID string, endedAt time.Time) error

	// GetRun returns one run with its frame count.
	GetRun(ctx context.Context, runID string) (*domain.Run, error)

	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, limit int) ([]*domain.Run, error)

	// Frames returns every frame of a run in sequence order.
	Frames(ctx context.Context, runID string) ([]domain.Frame, error)

	// DeleteRunsBefore removes runs started before cutoff and their frames.
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
