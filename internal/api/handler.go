// Package api provides the viewer's HTTP and websocket surface.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/simviewer/internal/backend"
	"github.com/ashureev/simviewer/internal/domain"
)

// Viewer is the connection manager as seen by HTTP handlers.
type Viewer interface {
	Start(ctx context.Context) error
	Stop() error
	State() domain.Snapshot
	Subscribe() (<-chan domain.Snapshot, func())
	Send(ctx context.Context, msg []byte) error
}

// RunStore lists recorded runs.
type RunStore interface {
	ListRuns(ctx context.Context, limit int) ([]*domain.Run, error)
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	Ping(ctx context.Context) error
}

// Simulation is the remote simulation server's control API.
type Simulation interface {
	Characters(ctx context.Context) ([]domain.Character, error)
	CreateCharacter(ctx context.Context, char domain.Character) error
	SubmitPairs(ctx context.Context, pairs []backend.Pair) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Reset(ctx context.Context) error
	NextRound(ctx context.Context) error
}

// Handler provides common handler utilities.
type Handler struct {
	// baseCtx outlives requests; sources started over HTTP are bound to it.
	baseCtx        context.Context
	viewer         Viewer
	runs           RunStore
	sim            Simulation
	originPatterns []string
	logger         *slog.Logger
}

// Deps groups the optional collaborators of a Handler.
type Deps struct {
	Viewer         Viewer
	Runs           RunStore
	Simulation     Simulation
	OriginPatterns []string
	Logger         *slog.Logger
}

// NewHandler creates a new Handler. Runs and Simulation may be nil, in which
// case their routes are not registered.
func NewHandler(ctx context.Context, deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		baseCtx:        ctx,
		viewer:         deps.Viewer,
		runs:           deps.Runs,
		sim:            deps.Simulation,
		originPatterns: deps.OriginPatterns,
		logger:         logger,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
