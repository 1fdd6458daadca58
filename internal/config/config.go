// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Source kinds accepted by VIEWER_SOURCE.
const (
	SourceLive   = "live"
	SourceMock   = "mock"
	SourceReplay = "replay"
)

// Config holds all application configuration.
type Config struct {
	Port              string
	Source            string
	SimWSURL          string
	SimAPIURL         string
	LogLimit          int
	RenderBufferLimit int
	WSReadLimit       int64
	AllowedOrigins    []string
	AutoStart         bool
	ConsoleRender     bool
	Record            RecordConfig
	Replay            ReplayConfig
	Reconnect         ReconnectConfig
}

// RecordConfig controls raw frame recording.
type RecordConfig struct {
	Enabled   bool
	DBPath    string
	Retention time.Duration
}

// ReplayConfig selects a recorded run to play back.
type ReplayConfig struct {
	RunID string
	Speed float64
}

// ReconnectConfig controls automatic reconnection after the source closes.
type ReconnectConfig struct {
	Enabled     bool
	MaxAttempts int
	Delay       time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		Source:            strings.ToLower(getEnv("VIEWER_SOURCE", SourceMock)),
		SimWSURL:          getEnv("SIM_WS_URL", "ws://localhost:8000/ws"),
		SimAPIURL:         getEnv("SIM_API_URL", "http://localhost:8000"),
		LogLimit:          getEnvInt("VIEWER_LOG_LIMIT", 500),
		RenderBufferLimit: getEnvInt("RENDER_BUFFER_LIMIT", 256),
		WSReadLimit:       int64(getEnvInt("WS_READ_LIMIT", 1<<20)),
		AllowedOrigins:    getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		AutoStart:         getEnvBool("AUTO_START", true),
		ConsoleRender:     getEnvBool("CONSOLE_RENDER", false),
		Record: RecordConfig{
			Enabled:   getEnvBool("RECORD_ENABLED", false),
			DBPath:    getEnv("RECORD_DB_PATH", "./data/frames.db"),
			Retention: getEnvDuration("RECORD_RETENTION", 7*24*time.Hour),
		},
		Replay: ReplayConfig{
			RunID: getEnv("REPLAY_RUN_ID", ""),
			Speed: getEnvFloat("REPLAY_SPEED", 1.0),
		},
		Reconnect: ReconnectConfig{
			Enabled:     getEnvBool("RECONNECT_ENABLED", false),
			MaxAttempts: getEnvInt("RECONNECT_MAX_ATTEMPTS", 5),
			Delay:       getEnvDuration("RECONNECT_DELAY", 2*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.Source {
	case SourceLive:
		if c.SimWSURL == "" {
			return fmt.Errorf("SIM_WS_URL cannot be empty for the live source")
		}
	case SourceMock:
	case SourceReplay:
		if c.Record.Enabled {
			return fmt.Errorf("RECORD_ENABLED cannot be combined with the replay source")
		}
	default:
		return fmt.Errorf("VIEWER_SOURCE must be one of live, mock, replay (got %q)", c.Source)
	}
	if c.LogLimit <= 0 {
		return fmt.Errorf("VIEWER_LOG_LIMIT must be > 0")
	}
	if c.RenderBufferLimit <= 0 {
		return fmt.Errorf("RENDER_BUFFER_LIMIT must be > 0")
	}
	if c.WSReadLimit <= 0 {
		return fmt.Errorf("WS_READ_LIMIT must be > 0")
	}
	if c.Record.DBPath == "" && (c.Record.Enabled || c.Source == SourceReplay) {
		return fmt.Errorf("RECORD_DB_PATH cannot be empty")
	}
	if c.Replay.Speed < 0 {
		return fmt.Errorf("REPLAY_SPEED must be >= 0")
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("RECONNECT_MAX_ATTEMPTS must be >= 0")
	}
	if c.Reconnect.Enabled && c.Reconnect.Delay <= 0 {
		return fmt.Errorf("RECONNECT_DELAY must be > 0 when reconnect is enabled")
	}
	return nil
}

// IsDevelopment returns true if the viewer is driven by the synthetic source
// or talks to a simulation server on the local machine.
func (c *Config) IsDevelopment() bool {
	return c.Source == SourceMock ||
		strings.Contains(c.SimWSURL, "localhost") ||
		strings.Contains(c.SimWSURL, "127.0.0.1")
}

// NeedsStore reports whether the frame database must be opened.
func (c *Config) NeedsStore() bool {
	return c.Record.Enabled || c.Source == SourceReplay
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

// getEnvList splits a comma-separated value, dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
