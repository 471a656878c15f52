package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Dosada05/results-engine/client"
	"github.com/Dosada05/results-engine/config"
	"github.com/Dosada05/results-engine/engine"
	"github.com/Dosada05/results-engine/models"
	"github.com/Dosada05/results-engine/storage"
	"github.com/Dosada05/results-engine/syncer"
)

// session bundles the engine, syncer and store for one game.
type session struct {
	engine *engine.Engine
	syncer *syncer.Syncer
	store  *storage.LocalStore
}

func (s *session) Close() error {
	return s.store.Close()
}

// openSession builds the full local-first stack for a game. A sync conflict
// left by a previous run is reported, not fatal: the caller decides how to
// resolve it.
func openSession(ctx context.Context, gameID string) (*session, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	store, err := storage.Open(cfg.StorePath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	api := client.New(cfg.ServerURL, cfg.AuthToken)

	eng := engine.New(&models.Game{ID: gameID}, cfg.UserID, store, logger)
	sync := syncer.New(eng, store, api, logger)

	if err := sync.Initialize(ctx); err != nil {
		if errors.Is(err, syncer.ErrNeedsResolution) {
			fmt.Fprintln(os.Stderr, "Warning: unresolved sync conflict, run 'resultsctl resolve' to fix it")
		} else if errors.Is(err, syncer.ErrConflict) {
			fmt.Fprintln(os.Stderr, "Warning: server rejected queued edits, run 'resultsctl resolve' to fix it")
		} else {
			store.Close()
			return nil, err
		}
	}

	return &session{engine: eng, syncer: sync, store: store}, nil
}
