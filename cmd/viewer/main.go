// simviewer - live multi-agent simulation viewer runtime
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ashureev/simviewer/internal/api"
	"github.com/ashureev/simviewer/internal/backend"
	"github.com/ashureev/simviewer/internal/config"
	"github.com/ashureev/simviewer/internal/connection"
	"github.com/ashureev/simviewer/internal/domain"
	"github.com/ashureev/simviewer/internal/render"
	"github.com/ashureev/simviewer/internal/store"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	// .env may set LOG_LEVEL, so it is loaded before the logger exists.
	envErr := godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	if envErr != nil {
		slog.Info("No .env file found, using environment variables")
	}

	if err := run(logger); err != nil {
		slog.Error("Viewer failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Viewer stopped successfully")
}

func logLevel(raw string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	slog.Info("Starting viewer", "port", cfg.Port, "source", cfg.Source, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Frame database, only when recording or replaying.
	var repo store.Repository
	if cfg.NeedsStore() {
		repo, err = store.NewSQLite(cfg.Record.DBPath)
		if err != nil {
			return fmt.Errorf("initialize database: %w", err)
		}
		defer func() {
			if closeErr := repo.Close(); closeErr != nil {
				slog.Error("Failed to close repository", "error", closeErr)
			}
		}()
		if err := repo.Ping(ctx); err != nil {
			return fmt.Errorf("database health check: %w", err)
		}
		slog.Info("Database connected", "path", cfg.Record.DBPath)

		if cfg.Record.Enabled {
			store.StartRetentionWorker(ctx, repo, cfg.Record.Retention)
		}
	}

	// Simulation control API and roster, only against a live server.
	var sim *backend.Client
	var roster []domain.Character
	if cfg.Source == config.SourceLive {
		sim = backend.NewClient(cfg.SimAPIURL, nil, logger)
		rosterCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		roster, err = sim.Characters(rosterCtx)
		cancel()
		if err != nil {
			slog.Warn("Failed to fetch roster, sprites will appear on first move", "error", err)
		} else {
			slog.Info("Roster loaded", "characters", len(roster))
		}
	}

	// Render path: websocket hub for browser renderers, optional console.
	hub := render.NewHub(cfg.AllowedOrigins, logger)
	sinks := render.MultiSink{hub}
	if cfg.ConsoleRender {
		sinks = append(sinks, render.NewConsole(os.Stderr))
	}
	bridge := render.NewBridge(cfg.RenderBufferLimit, logger)
	bridge.Attach(sinks)

	opts := []connection.Option{
		connection.WithLogger(logger),
		connection.WithLogLimit(cfg.LogLimit),
		connection.WithRoster(roster),
	}
	if cfg.Reconnect.Enabled {
		opts = append(opts, connection.WithReconnect(connection.ReconnectPolicy{
			Enabled:     true,
			MaxAttempts: cfg.Reconnect.MaxAttempts,
			Delay:       cfg.Reconnect.Delay,
		}))
	}
	mgr := connection.New(newSourceFactory(cfg, repo, logger), bridge, opts...)

	deps := api.Deps{
		Viewer:         mgr,
		OriginPatterns: cfg.AllowedOrigins,
		Logger:         logger,
	}
	if repo != nil {
		deps.Runs = repo
	}
	if sim != nil {
		deps.Simulation = sim
	}
	router := api.NewRouter(api.NewHandler(ctx, deps), hub)

	// Websocket streams are long-lived, so no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		if err := mgr.Stop(); err != nil {
			slog.Warn("Source close reported an error", "error", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if cfg.AutoStart {
		if err := mgr.Start(ctx); err != nil {
			slog.Warn("Auto start failed, use POST /api/start to retry", "error", err)
		}
	}

	return g.Wait()
}
