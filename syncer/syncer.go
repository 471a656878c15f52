// Package syncer drains the local outbox to the authority and drives the
// conflict resolution contract. It owns the observable sync status; all
// local editing stays in the engine package.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/Dosada05/results-engine/engine"
	"github.com/Dosada05/results-engine/models"
	"github.com/Dosada05/results-engine/permissions"
	"github.com/Dosada05/results-engine/storage"
)

var (
	// ErrConflict signals the server rejected queued operations and the
	// user has to pick a resolution path.
	ErrConflict = errors.New("server rejected local operations")

	// ErrNeedsResolution is returned by Initialize when a previous session
	// left an unresolved divergence behind.
	ErrNeedsResolution = errors.New("unresolved sync conflict from a previous session")

	// ErrSyncFailed wraps transport failures. The local queue is kept.
	ErrSyncFailed = errors.New("sync attempt failed")
)

// API is the slice of the remote authority the syncer needs.
type API interface {
	GetGame(ctx context.Context, gameID string) (*models.Game, error)
	GetGameResults(ctx context.Context, gameID string) (*models.ResultsTree, int64, error)
	BatchOps(ctx context.Context, gameID, idempotencyKey string, ops []models.Op) (*models.BatchResult, error)
	SetResultsStatus(ctx context.Context, gameID string, status models.ResultsStatus) (*models.Game, error)
	RecalculateOutcomes(ctx context.Context, gameID string) error
}

// Syncer pairs one engine with the remote authority.
type Syncer struct {
	engine *engine.Engine
	store  *storage.LocalStore
	api    API
	logger *slog.Logger

	sf singleflight.Group

	mu         sync.Mutex
	status     models.SyncStatus
	onStatus   func(models.SyncStatus)
	retryCount int
	nextTry    time.Time
}

// New wires a syncer to its engine. The engine's mutation hook is taken
// over so local edits flip the status to PENDING immediately.
func New(eng *engine.Engine, store *storage.LocalStore, api API, logger *slog.Logger) *Syncer {
	s := &Syncer{
		engine: eng,
		store:  store,
		api:    api,
		logger: logger,
		status: models.SyncSynced,
	}
	eng.SetOnMutate(s.markPending)
	return s
}

// Status returns the current observable sync status.
func (s *Syncer) Status() models.SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetOnStatus registers an observer for status transitions.
func (s *Syncer) SetOnStatus(fn func(models.SyncStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStatus = fn
}

func (s *Syncer) setStatus(status models.SyncStatus) {
	s.mu.Lock()
	changed := s.status != status
	s.status = status
	fn := s.onStatus
	s.mu.Unlock()
	if changed && fn != nil {
		fn(status)
	}
}

func (s *Syncer) markPending() {
	s.mu.Lock()
	if s.status == models.SyncSyncing {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.setStatus(models.SyncPending)
}

// ServerProblem reports whether a persisted divergence flag is set.
func (s *Syncer) ServerProblem(ctx context.Context) (bool, error) {
	return s.store.ServerProblem(ctx, s.engine.GameID())
}

// Initialize brings the session up: refreshes game metadata, restores local
// state, and either resumes a pending queue or bootstraps from the server.
// A divergence left by a previous session is surfaced as ErrNeedsResolution
// before any editing happens.
func (s *Syncer) Initialize(ctx context.Context) error {
	gameID := s.engine.GameID()

	game, err := s.api.GetGame(ctx, gameID)
	if err == nil {
		s.engine.UpdateGame(game)
		if err := s.store.SaveGame(ctx, game); err != nil {
			return err
		}
	} else {
		cached, cacheErr := s.store.GetGame(ctx, gameID)
		if cacheErr == nil {
			s.engine.UpdateGame(cached)
		}
		s.logger.Warn("starting offline, game metadata not refreshed",
			slog.String("game_id", gameID), slog.Any("error", err))
	}

	flagged, err := s.store.ServerProblem(ctx, gameID)
	if err != nil {
		return err
	}
	queue, err := s.store.GetOutbox(ctx, gameID)
	if err != nil {
		return err
	}

	if flagged || hasConflicts(queue) {
		if err := s.engine.Load(ctx); err != nil {
			return err
		}
		s.setStatus(models.SyncError)
		return ErrNeedsResolution
	}

	if len(queue) > 0 {
		if err := s.engine.Load(ctx); err != nil {
			return err
		}
		s.setStatus(models.SyncPending)
		if err := s.Flush(ctx); err != nil {
			if errors.Is(err, ErrConflict) {
				return err
			}
			// Offline resume is fine, the queue stays.
			s.logger.Warn("startup flush failed",
				slog.String("game_id", gameID), slog.Any("error", err))
		}
		return nil
	}

	tree, version, err := s.api.GetGameResults(ctx, gameID)
	if err != nil {
		// No network and no queue: fall back to whatever snapshot exists.
		if loadErr := s.engine.Load(ctx); loadErr != nil {
			return loadErr
		}
		s.setStatus(models.SyncError)
		s.logger.Warn("starting from local snapshot",
			slog.String("game_id", gameID), slog.Any("error", err))
		return nil
	}
	if err := s.engine.Bootstrap(ctx, tree, version); err != nil {
		return err
	}
	s.setStatus(models.SyncSynced)
	return nil
}

// Flush pushes the queued operations to the authority in one batch.
// Concurrent callers share a single in-flight attempt.
func (s *Syncer) Flush(ctx context.Context) error {
	_, err, _ := s.sf.Do("flush", func() (interface{}, error) {
		return nil, s.flush(ctx)
	})
	return err
}

// ForceSync resets the backoff schedule and flushes immediately.
func (s *Syncer) ForceSync(ctx context.Context) error {
	s.mu.Lock()
	s.retryCount = 0
	s.nextTry = time.Time{}
	s.mu.Unlock()
	return s.Flush(ctx)
}

func (s *Syncer) flush(ctx context.Context) error {
	gameID := s.engine.GameID()

	queue, err := s.store.GetOutbox(ctx, gameID)
	if err != nil {
		return err
	}
	var ops []models.Op
	for _, pending := range queue {
		if pending.Status == models.PendingConflict {
			continue
		}
		ops = append(ops, pending.Op)
	}
	if len(ops) == 0 {
		if !hasConflicts(queue) {
			s.setStatus(models.SyncSynced)
		}
		return nil
	}

	s.setStatus(models.SyncSyncing)
	for _, op := range ops {
		if err := s.store.UpdateOutboxStatus(ctx, gameID, op.ID, models.PendingSending, 0, ""); err != nil {
			return err
		}
	}

	result, err := s.api.BatchOps(ctx, gameID, uuid.NewString(), ops)
	if err != nil {
		// Transport failure: everything stays queued, no divergence flag.
		s.mu.Lock()
		s.retryCount++
		s.nextTry = time.Now().Add(backoffDelay(s.retryCount))
		retry := s.retryCount
		s.mu.Unlock()
		for _, op := range ops {
			if uerr := s.store.UpdateOutboxStatus(ctx, gameID, op.ID, models.PendingFailed, retry, err.Error()); uerr != nil {
				return uerr
			}
		}
		s.setStatus(models.SyncError)
		return fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}

	s.mu.Lock()
	s.retryCount = 0
	s.nextTry = time.Time{}
	s.mu.Unlock()

	if len(result.Applied) > 0 {
		if err := s.store.RemoveOutboxOps(ctx, gameID, result.Applied); err != nil {
			return err
		}
	}
	if err := s.engine.AdvanceVersion(ctx, result.HeadVersion); err != nil {
		return err
	}

	if len(result.Conflicts) > 0 {
		for _, c := range result.Conflicts {
			if err := s.store.UpdateOutboxStatus(ctx, gameID, c.OpID, models.PendingConflict, 0, c.Reason); err != nil {
				return err
			}
		}
		if err := s.store.SetServerProblem(ctx, gameID, true); err != nil {
			return err
		}
		s.setStatus(models.SyncError)
		s.logger.Warn("batch rejected",
			slog.String("game_id", gameID),
			slog.Int("conflicts", len(result.Conflicts)),
			slog.Int64("head_version", result.HeadVersion))
		return ErrConflict
	}

	s.setStatus(models.SyncSynced)
	s.logger.Info("batch applied",
		slog.String("game_id", gameID),
		slog.Int("ops", len(result.Applied)),
		slog.Int64("head_version", result.HeadVersion))
	return nil
}

// SyncLocalToServer resolves a divergence by forcing the local tree onto
// the server as a single replace against the current head version.
func (s *Syncer) SyncLocalToServer(ctx context.Context) error {
	gameID := s.engine.GameID()

	_, version, err := s.api.GetGameResults(ctx, gameID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	local := s.engine.Tree()
	value, err := json.Marshal(local.Rounds)
	if err != nil {
		return err
	}
	op := models.Op{
		ID:          uuid.NewString(),
		BaseVersion: version,
		Type:        models.OpReplace,
		Path:        "/rounds",
		Value:       value,
		Actor:       models.Actor{UserID: s.engine.UserID()},
	}

	result, err := s.api.BatchOps(ctx, gameID, uuid.NewString(), []models.Op{op})
	if err != nil {
		s.setStatus(models.SyncError)
		return fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	if len(result.Conflicts) > 0 {
		s.setStatus(models.SyncError)
		return ErrConflict
	}

	if err := s.store.ClearOutbox(ctx, gameID); err != nil {
		return err
	}
	if err := s.store.SetServerProblem(ctx, gameID, false); err != nil {
		return err
	}
	if err := s.engine.AdvanceVersion(ctx, result.HeadVersion); err != nil {
		return err
	}
	s.setStatus(models.SyncSynced)
	s.logger.Info("divergence resolved, local state pushed",
		slog.String("game_id", gameID), slog.Int64("head_version", result.HeadVersion))
	return nil
}

// EraseAndLoadFromServer resolves a divergence by dropping all local state
// and re-bootstrapping from the authority.
func (s *Syncer) EraseAndLoadFromServer(ctx context.Context) error {
	gameID := s.engine.GameID()

	tree, version, err := s.api.GetGameResults(ctx, gameID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	if err := s.store.EraseGame(ctx, gameID); err != nil {
		return err
	}
	if err := s.engine.Bootstrap(ctx, tree, version); err != nil {
		return err
	}
	s.setStatus(models.SyncSynced)
	s.logger.Info("divergence resolved, server state adopted",
		slog.String("game_id", gameID), slog.Int64("head_version", version))
	return nil
}

// Finish flushes the queue and finalizes the results. Outcome rollups run
// exactly once, on the transition into FINAL.
func (s *Syncer) Finish(ctx context.Context) error {
	game := s.engine.Game()
	if game.ResultsStatus == models.ResultsFinal {
		return nil
	}
	if err := s.Flush(ctx); err != nil {
		return err
	}
	updated, err := s.api.SetResultsStatus(ctx, game.ID, models.ResultsFinal)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	s.engine.UpdateGame(updated)
	if err := s.api.RecalculateOutcomes(ctx, game.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	return nil
}

// Edit reopens finalized results for correction.
func (s *Syncer) Edit(ctx context.Context) error {
	game := s.engine.Game()
	if game.ResultsStatus != models.ResultsFinal {
		return nil
	}
	if !permissions.CanReopenResults(game, s.engine.UserID()) {
		return permissions.ErrEditNotAllowed
	}
	updated, err := s.api.SetResultsStatus(ctx, game.ID, models.ResultsInProgress)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	s.engine.UpdateGame(updated)
	return nil
}

// Reset wipes the results locally and on the server, reverting the game's
// results status to NONE.
func (s *Syncer) Reset(ctx context.Context) error {
	if err := s.engine.ResetGame(ctx); err != nil {
		return err
	}
	if err := s.Flush(ctx); err != nil {
		return err
	}
	updated, err := s.api.SetResultsStatus(ctx, s.engine.GameID(), models.ResultsNone)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}
	s.engine.UpdateGame(updated)
	return nil
}

// Run retries pending flushes on a fixed tick, honoring the backoff window
// set by failed attempts. It returns when the context is done.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			due := s.nextTry.IsZero() || time.Now().After(s.nextTry)
			status := s.status
			s.mu.Unlock()
			if !due {
				continue
			}
			if status != models.SyncPending && status != models.SyncError {
				continue
			}
			if flagged, err := s.store.ServerProblem(ctx, s.engine.GameID()); err != nil || flagged {
				continue
			}
			if err := s.Flush(ctx); err != nil && !errors.Is(err, ErrConflict) {
				s.logger.Debug("background flush failed", slog.Any("error", err))
			}
		}
	}
}

func hasConflicts(queue []models.PendingOperation) bool {
	for _, pending := range queue {
		if pending.Status == models.PendingConflict {
			return true
		}
	}
	return false
}

// backoffDelay grows exponentially with a small jitter, capped at a minute.
func backoffDelay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	if retry > 6 {
		retry = 6
	}
	base := time.Second << uint(retry-1)
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	delay := base + jitter
	if delay > time.Minute {
		delay = time.Minute
	}
	return delay
}
