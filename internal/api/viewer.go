package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ashureev/simviewer/internal/connection"
	"github.com/ashureev/simviewer/internal/source"
	"github.com/ashureev/simviewer/internal/store"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

const (
	stateWriteTimeout = 5 * time.Second
	maxSendBytes      = 1 << 20
)

// GetState returns the current derived state.
func (h *Handler) GetState(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.viewer.State())
}

// Start opens the event source if it is not already open.
func (h *Handler) Start(w http.ResponseWriter, _ *http.Request) {
	if err := h.viewer.Start(h.baseCtx); err != nil {
		h.logger.Error("Failed to start viewer", "error", err)
		Error(w, http.StatusBadGateway, err.Error())
		return
	}
	JSON(w, http.StatusAccepted, map[string]string{"status": string(h.viewer.State().Status)})
}

// Stop closes the event source and discards derived state.
func (h *Handler) Stop(w http.ResponseWriter, _ *http.Request) {
	if err := h.viewer.Stop(); err != nil {
		h.logger.Warn("Source close reported an error", "error", err)
	}
	JSON(w, http.StatusOK, map[string]string{"status": string(h.viewer.State().Status)})
}

// Send forwards one raw JSON frame to the open source.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSendBytes))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !json.Valid(body) {
		Error(w, http.StatusBadRequest, "body must be a JSON message")
		return
	}
	if err := h.viewer.Send(r.Context(), body); err != nil {
		if errors.Is(err, connection.ErrNotConnected) || errors.Is(err, source.ErrNotOpen) {
			Error(w, http.StatusConflict, "viewer is not connected")
			return
		}
		h.logger.Error("Failed to send frame", "error", err)
		Error(w, http.StatusBadGateway, "failed to send message")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Status reports connection status and, when recording, database health.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	state := h.viewer.State()
	checks := map[string]string{"api": "ok", "connection": string(state.Status)}
	status := map[string]interface{}{
		"status":        "healthy",
		"connection_id": state.ConnectionID,
		"checks":        checks,
	}
	statusCode := http.StatusOK

	if h.runs != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.runs.Ping(ctx); err != nil {
			h.logger.Error("Health check failed", "error", err)
			status["status"] = "degraded"
			checks["database"] = "unreachable"
			statusCode = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	JSON(w, statusCode, status)
}

// ListRuns returns recorded runs, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list runs", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// GetRun returns one recorded run.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := h.runs.GetRun(r.Context(), runID)
	if errors.Is(err, store.ErrRunNotFound) {
		Error(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		h.logger.Error("Failed to get run", "run_id", runID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	JSON(w, http.StatusOK, run)
}

// StreamState pushes every derived state change to a websocket client.
// Slow clients skip intermediate states.
func (h *Handler) StreamState(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Error("Failed to accept state websocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			h.logger.Debug("Failed to close state websocket", "error", closeErr)
		}
	}()

	updates, cancel := h.viewer.Subscribe()
	defer cancel()

	ctx := ws.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				h.logger.Error("Failed to marshal state", "error", err)
				continue
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, stateWriteTimeout)
			err = ws.Write(writeCtx, websocket.MessageText, data)
			cancelWrite()
			if err != nil {
				h.logger.Debug("State stream write error", "error", err)
				return
			}
		}
	}
}
