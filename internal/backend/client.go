// Package backend is a client for the simulation server's REST control API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/simviewer/internal/domain"
)

// ErrEmptyPair is returned when a pair misses one of its members.
var ErrEmptyPair = errors.New("pair must name two characters")

// APIError is a non-2xx response from the server.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Detail)
}

// Pair is one requested conversation pairing.
type Pair struct {
	A string `json:"a"`
	B string `json:"b"`
}

// Client talks to the simulation server.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a client rooted at baseURL, e.g. http://localhost:8000.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

// Characters returns the server's current roster.
func (c *Client) Characters(ctx context.Context) ([]domain.Character, error) {
	var chars []domain.Character
	if err := c.do(ctx, http.MethodGet, "/api/characters/", nil, &chars); err != nil {
		return nil, fmt.Errorf("fetch characters: %w", err)
	}
	return chars, nil
}

// CreateCharacter adds a character to the roster.
func (c *Client) CreateCharacter(ctx context.Context, char domain.Character) error {
	if err := c.do(ctx, http.MethodPost, "/api/characters/", char, nil); err != nil {
		return fmt.Errorf("create character %s: %w", char.Name, err)
	}
	return nil
}

// SubmitPairs replaces the server's pairings.
func (c *Client) SubmitPairs(ctx context.Context, pairs []Pair) error {
	for _, p := range pairs {
		if p.A == "" || p.B == "" {
			return ErrEmptyPair
		}
	}
	body := struct {
		Pairs []Pair `json:"pairs"`
	}{Pairs: pairs}
	if err := c.do(ctx, http.MethodPost, "/api/pairs/", body, nil); err != nil {
		return fmt.Errorf("submit pairs: %w", err)
	}
	return nil
}

// Start begins the simulation.
func (c *Client) Start(ctx context.Context) error {
	return c.post(ctx, "/api/start/", "start simulation")
}

// Stop halts the simulation.
func (c *Client) Stop(ctx context.Context) error {
	return c.post(ctx, "/api/stop", "stop simulation")
}

// Reset clears every character on the server.
func (c *Client) Reset(ctx context.Context) error {
	return c.post(ctx, "/api/reset/", "reset room")
}

// NextRound advances the simulation to the next round.
func (c *Client) NextRound(ctx context.Context) error {
	return c.post(ctx, "/api/next-round", "advance round")
}

func (c *Client) post(ctx context.Context, path, action string) error {
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("Failed to close response body", "path", path, "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var detail struct {
			Detail string `json:"detail"`
			Error  string `json:"error"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&detail) == nil {
			apiErr.Detail = detail.Detail
			if apiErr.Detail == "" {
				apiErr.Detail = detail.Error
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
