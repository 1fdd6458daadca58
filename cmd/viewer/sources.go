package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/simviewer/internal/config"
	"github.com/ashureev/simviewer/internal/connection"
	"github.com/ashureev/simviewer/internal/source"
	"github.com/ashureev/simviewer/internal/store"
)

var errReplayWithoutStore = errors.New("replay source needs the frame database")

// newSourceFactory builds a fresh source per connection attempt, wrapped in a
// recorder when recording is on.
func newSourceFactory(cfg *config.Config, repo store.Repository, logger *slog.Logger) connection.Factory {
	return func() (source.Source, error) {
		var src source.Source
		switch cfg.Source {
		case config.SourceLive:
			src = source.NewLive(source.LiveConfig{
				URL:       cfg.SimWSURL,
				ReadLimit: cfg.WSReadLimit,
				Logger:    logger,
			})
		case config.SourceMock:
			mockCfg := source.DefaultMockConfig()
			mockCfg.Logger = logger
			src = source.NewMock(mockCfg)
		case config.SourceReplay:
			if repo == nil {
				return nil, errReplayWithoutStore
			}
			src = source.NewReplay(repo, source.ReplayConfig{
				RunID:  cfg.Replay.RunID,
				Speed:  cfg.Replay.Speed,
				Logger: logger,
			})
		default:
			return nil, fmt.Errorf("unknown source %q", cfg.Source)
		}

		if cfg.Record.Enabled && repo != nil {
			src = source.NewRecording(src, repo, logger)
		}
		return src, nil
	}
}
