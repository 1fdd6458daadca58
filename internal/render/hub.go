package render

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/simviewer/internal/domain"
	"github.com/coder/websocket"
)

const (
	hubClientBuffer = 64
	hubWriteTimeout = 5 * time.Second
)

// Hub is a Sink that fans commands out to renderer websocket clients.
// Late joiners receive the last spawn of every agent and the current phase
// before live commands.
type Hub struct {
	mu             sync.RWMutex
	clients        map[*hubClient]struct{}
	spawned        map[string]Command
	spawnOrder     []string
	phase          *Command
	originPatterns []string
	logger         *slog.Logger
}

type hubClient struct {
	send chan []byte
	id   string
}

// NewHub creates a hub accepting websocket origins matching originPatterns.
func NewHub(originPatterns []string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:        make(map[*hubClient]struct{}),
		spawned:        make(map[string]Command),
		originPatterns: originPatterns,
		logger:         logger,
	}
}

// Spawn implements Sink.
func (h *Hub) Spawn(agentID string, x, y float64, colorHint, genderHint string) {
	cmd := Spawn(agentID, x, y, colorHint, genderHint)
	h.mu.Lock()
	if _, ok := h.spawned[agentID]; !ok {
		h.spawnOrder = append(h.spawnOrder, agentID)
	}
	h.spawned[agentID] = cmd
	h.mu.Unlock()
	h.broadcast(cmd)
}

// Move implements Sink.
func (h *Hub) Move(agentID string, x, y float64, colorHint string) {
	h.broadcast(Move(agentID, x, y, colorHint))
}

// Speak implements Sink.
func (h *Hub) Speak(agentID, content string) {
	h.broadcast(Speak(agentID, content))
}

// PhaseChanged implements Sink.
func (h *Hub) PhaseChanged(phase domain.Phase) {
	cmd := PhaseChanged(phase)
	h.mu.Lock()
	h.phase = &cmd
	h.mu.Unlock()
	h.broadcast(cmd)
}

// Reset forgets spawned agents and the phase, for a new run.
func (h *Hub) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.spawned = make(map[string]Command)
	h.spawnOrder = nil
	h.phase = nil
}

// Clients returns the number of connected renderers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(cmd Command) {
	data, err := json.Marshal(cmd)
	if err != nil {
		h.logger.Error("Failed to marshal render command", "error", err, "kind", cmd.Kind)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("Renderer too slow, dropping command", "client", c.id, "kind", cmd.Kind)
		}
	}
}

// register creates a client primed with the replay backlog under the same
// lock so no live command can slip in between. The queue is sized so the
// whole backlog fits ahead of hubClientBuffer live commands.
func (h *Hub) register(id string) *hubClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	backlog := make([]Command, 0, len(h.spawnOrder)+1)
	for _, agentID := range h.spawnOrder {
		backlog = append(backlog, h.spawned[agentID])
	}
	if h.phase != nil {
		backlog = append(backlog, *h.phase)
	}
	c := &hubClient{send: make(chan []byte, len(backlog)+hubClientBuffer), id: id}
	for _, cmd := range backlog {
		data, err := json.Marshal(cmd)
		if err != nil {
			h.logger.Warn("Failed to encode backlog command", "client", id, "kind", cmd.Kind, "error", err)
			continue
		}
		c.send <- data
	}
	h.clients[c] = struct{}{}
	h.logger.Info("Renderer registered", "client", id, "backlog", len(backlog))
	return c
}

func (h *Hub) unregister(c *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		h.logger.Info("Renderer unregistered", "client", c.id)
	}
}

// ServeHTTP upgrades the request and streams commands until the renderer leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Error("Failed to accept renderer websocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "renderer detached"); closeErr != nil {
			h.logger.Debug("Failed to close renderer websocket", "error", closeErr)
		}
	}()

	c := h.register(r.RemoteAddr)
	defer h.unregister(c)

	// Renderers never send; CloseRead handles control frames and reports close.
	ctx := ws.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, hubWriteTimeout)
			err := ws.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.logger.Debug("Renderer write error", "error", err, "client", c.id)
				return
			}
		}
	}
}
