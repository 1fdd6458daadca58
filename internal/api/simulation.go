package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ashureev/simviewer/internal/backend"
	"github.com/ashureev/simviewer/internal/domain"
)

// Characters proxies the simulation roster.
func (h *Handler) Characters(w http.ResponseWriter, r *http.Request) {
	chars, err := h.sim.Characters(r.Context())
	if err != nil {
		h.simError(w, "fetch characters", err)
		return
	}
	JSON(w, http.StatusOK, chars)
}

// CreateCharacter adds a character to the simulation roster.
func (h *Handler) CreateCharacter(w http.ResponseWriter, r *http.Request) {
	var char domain.Character
	if err := json.NewDecoder(r.Body).Decode(&char); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if char.Name == "" {
		Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := h.sim.CreateCharacter(r.Context(), char); err != nil {
		h.simError(w, "create character", err)
		return
	}
	JSON(w, http.StatusCreated, char)
}

// SubmitPairs forwards conversation pairings to the simulation.
func (h *Handler) SubmitPairs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pairs []backend.Pair `json:"pairs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Pairs) == 0 {
		Error(w, http.StatusBadRequest, "pairs cannot be empty")
		return
	}
	if err := h.sim.SubmitPairs(r.Context(), req.Pairs); err != nil {
		if errors.Is(err, backend.ErrEmptyPair) {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		h.simError(w, "submit pairs", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// simAction adapts a no-argument simulation control call to a handler.
func (h *Handler) simAction(name string, call func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := call(r.Context()); err != nil {
			h.simError(w, name, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) simError(w http.ResponseWriter, action string, err error) {
	h.logger.Error("Simulation request failed", "action", action, "error", err)
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		Error(w, apiErr.Status, apiErr.Error())
		return
	}
	Error(w, http.StatusBadGateway, "simulation server unavailable")
}
