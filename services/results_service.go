package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/results-engine/engine"
	"github.com/Dosada05/results-engine/models"
	"github.com/Dosada05/results-engine/permissions"
	"github.com/Dosada05/results-engine/repositories"
	"github.com/Dosada05/results-engine/rounds"
	"github.com/Dosada05/results-engine/validation"
)

const conflictStaleBase = "stale base version"

// ResultsService is the authority side of the sync contract: it applies op
// batches against the stored tree under a version compare-and-swap, dedupes
// retried batches by idempotency key, and notifies watchers.
type ResultsService interface {
	GetGame(ctx context.Context, gameID string) (*models.Game, error)
	GetResults(ctx context.Context, gameID string) (*models.ResultsTree, int64, error)
	ApplyBatch(ctx context.Context, gameID, idempotencyKey, actorID string, ops []models.Op) (*models.BatchResult, error)
	SetResultsStatus(ctx context.Context, gameID, userID string, status models.ResultsStatus) (*models.Game, error)
	RecalculateOutcomes(ctx context.Context, gameID string) ([]models.PlayerOutcome, error)
	DeleteResults(ctx context.Context, gameID, userID string) error
}

type resultsService struct {
	db       *sql.DB
	games    repositories.GameRepository
	results  repositories.ResultsRepository
	idem     repositories.IdempotencyRepository
	outcomes repositories.OutcomeRepository
	hub      *rounds.Hub
	logger   *slog.Logger
}

func NewResultsService(
	db *sql.DB,
	games repositories.GameRepository,
	results repositories.ResultsRepository,
	idem repositories.IdempotencyRepository,
	outcomes repositories.OutcomeRepository,
	hub *rounds.Hub,
	logger *slog.Logger,
) ResultsService {
	return &resultsService{
		db:       db,
		games:    games,
		results:  results,
		idem:     idem,
		outcomes: outcomes,
		hub:      hub,
		logger:   logger,
	}
}

func (s *resultsService) GetGame(ctx context.Context, gameID string) (*models.Game, error) {
	return s.getGame(ctx, gameID)
}

func (s *resultsService) GetResults(ctx context.Context, gameID string) (*models.ResultsTree, int64, error) {
	tree, version, err := s.results.Get(ctx, gameID)
	if errors.Is(err, repositories.ErrResultsNotFound) {
		// A game without entered results reads as an empty tree at version 0.
		if _, gerr := s.getGame(ctx, gameID); gerr != nil {
			return nil, 0, gerr
		}
		return &models.ResultsTree{}, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return tree, version, nil
}

func (s *resultsService) ApplyBatch(ctx context.Context, gameID, idempotencyKey, actorID string, ops []models.Op) (*models.BatchResult, error) {
	if len(ops) == 0 {
		return nil, ErrBatchEmpty
	}

	if idempotencyKey != "" {
		cached, err := s.idem.Get(ctx, idempotencyKey)
		if err == nil {
			s.logger.Info("batch replayed from idempotency cache",
				slog.String("game_id", gameID), slog.String("key", idempotencyKey))
			return cached, nil
		}
		if !errors.Is(err, repositories.ErrIdempotencyKeyNotFound) {
			return nil, err
		}
	}

	game, err := s.getGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if !permissions.CanEdit(game, actorID) {
		return nil, ErrForbiddenOperation
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin batch transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.results.EnsureExists(ctx, tx, gameID); err != nil {
		return nil, err
	}
	tree, version, err := s.results.Get(ctx, gameID)
	if errors.Is(err, repositories.ErrResultsNotFound) {
		tree, version = &models.ResultsTree{}, 0
	} else if err != nil {
		return nil, err
	}

	result := &models.BatchResult{ServerTime: time.Now().UTC()}
	current := tree
	for _, op := range ops {
		if op.BaseVersion != version {
			result.Conflicts = append(result.Conflicts, models.OpConflict{
				OpID:   op.ID,
				Reason: conflictStaleBase,
			})
			continue
		}
		next, applyErr := engine.Apply(current, op)
		if applyErr != nil {
			result.Conflicts = append(result.Conflicts, models.OpConflict{
				OpID:   op.ID,
				Reason: applyErr.Error(),
			})
			continue
		}
		current = next
		result.Applied = append(result.Applied, op.ID)
	}

	result.HeadVersion = version
	if len(result.Applied) > 0 {
		newVersion, err := s.results.UpdateWithVersion(ctx, tx, gameID, current, version)
		if errors.Is(err, repositories.ErrVersionConflict) {
			// Lost the race to another writer: the whole batch is stale.
			return s.rejectWholeBatch(ctx, gameID, ops, result.ServerTime)
		}
		if err != nil {
			return nil, err
		}
		result.HeadVersion = newVersion

		if game.ResultsStatus == models.ResultsNone {
			if err := s.games.UpdateResultsStatus(ctx, tx, gameID, models.ResultsInProgress); err != nil {
				return nil, err
			}
		}
	}

	if idempotencyKey != "" {
		if err := s.idem.Save(ctx, tx, idempotencyKey, gameID, result); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit batch for game %s: %w", gameID, err)
	}

	if len(result.Applied) > 0 {
		s.hub.BroadcastToGame(gameID, rounds.ResultsEvent{
			Type:        rounds.EventResultsUpdated,
			GameID:      gameID,
			HeadVersion: result.HeadVersion,
		})
	}
	s.logger.Info("batch processed",
		slog.String("game_id", gameID),
		slog.Int("applied", len(result.Applied)),
		slog.Int("conflicts", len(result.Conflicts)),
		slog.Int64("head_version", result.HeadVersion))
	return result, nil
}

func (s *resultsService) rejectWholeBatch(ctx context.Context, gameID string, ops []models.Op, serverTime time.Time) (*models.BatchResult, error) {
	_, head, err := s.results.Get(ctx, gameID)
	if err != nil && !errors.Is(err, repositories.ErrResultsNotFound) {
		return nil, err
	}
	result := &models.BatchResult{HeadVersion: head, ServerTime: serverTime}
	for _, op := range ops {
		result.Conflicts = append(result.Conflicts, models.OpConflict{
			OpID:   op.ID,
			Reason: conflictStaleBase,
		})
	}
	return result, nil
}

func (s *resultsService) SetResultsStatus(ctx context.Context, gameID, userID string, status models.ResultsStatus) (*models.Game, error) {
	game, err := s.getGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeTransition(game, userID, status); err != nil {
		return nil, err
	}
	if !isValidResultsTransition(game.ResultsStatus, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, game.ResultsStatus, status)
	}

	if status == models.ResultsNone {
		// Reverting to NONE drops the tree entirely.
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to begin reset transaction: %w", err)
		}
		defer tx.Rollback()
		if err := s.results.Delete(ctx, tx, gameID); err != nil && !errors.Is(err, repositories.ErrResultsNotFound) {
			return nil, err
		}
		if err := s.games.UpdateResultsStatus(ctx, tx, gameID, status); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit reset for game %s: %w", gameID, err)
		}
		s.hub.BroadcastToGame(gameID, rounds.ResultsEvent{
			Type:   rounds.EventResultsReset,
			GameID: gameID,
		})
	} else {
		if err := s.games.UpdateResultsStatus(ctx, nil, gameID, status); err != nil {
			return nil, err
		}
		if status == models.ResultsFinal {
			_, version, _ := s.results.Get(ctx, gameID)
			s.hub.BroadcastToGame(gameID, rounds.ResultsEvent{
				Type:        rounds.EventResultsFinal,
				GameID:      gameID,
				HeadVersion: version,
			})
		}
	}

	s.logger.Info("results status changed",
		slog.String("game_id", gameID),
		slog.String("from", string(game.ResultsStatus)),
		slog.String("to", string(status)))
	return s.getGame(ctx, gameID)
}

func (s *resultsService) authorizeTransition(game *models.Game, userID string, status models.ResultsStatus) error {
	switch status {
	case models.ResultsFinal, models.ResultsInProgress:
		if game.ResultsStatus == models.ResultsFinal {
			// Reopening finalized results is stricter than entering them.
			if !permissions.CanReopenResults(game, userID) {
				return ErrForbiddenOperation
			}
			return nil
		}
		if !permissions.CanEdit(game, userID) {
			return ErrForbiddenOperation
		}
		return nil
	case models.ResultsNone:
		if !validation.IsUserGameAdminOrOwner(game, userID) {
			return ErrForbiddenOperation
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown status %q", ErrValidationFailed, status)
	}
}

// isValidResultsTransition encodes the lifecycle: NONE -> IN_PROGRESS ->
// FINAL -> IN_PROGRESS, and any state may revert to NONE.
func isValidResultsTransition(current, next models.ResultsStatus) bool {
	if current == next {
		return true
	}
	if next == models.ResultsNone {
		return true
	}
	allowed := map[models.ResultsStatus][]models.ResultsStatus{
		models.ResultsNone:       {models.ResultsInProgress},
		models.ResultsInProgress: {models.ResultsFinal},
		models.ResultsFinal:      {models.ResultsInProgress},
	}
	for _, a := range allowed[current] {
		if next == a {
			return true
		}
	}
	return false
}

func (s *resultsService) RecalculateOutcomes(ctx context.Context, gameID string) ([]models.PlayerOutcome, error) {
	game, err := s.getGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	tree, _, err := s.GetResults(ctx, gameID)
	if err != nil {
		return nil, err
	}

	standings := rounds.Standings(game, tree.Rounds)
	outcomes := make([]models.PlayerOutcome, 0, len(standings))
	for i, st := range standings {
		outcomes = append(outcomes, models.PlayerOutcome{
			GameID:     gameID,
			UserID:     st.UserID,
			Place:      i + 1,
			Wins:       st.Wins,
			Ties:       st.Ties,
			Losses:     st.Losses,
			ScoresMade: st.ScoresMade,
			ScoresLost: st.ScoresLost,
		})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin outcomes transaction: %w", err)
	}
	defer tx.Rollback()
	if err := s.outcomes.ReplaceForGame(ctx, tx, gameID, outcomes); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit outcomes for game %s: %w", gameID, err)
	}

	s.logger.Info("outcomes recalculated",
		slog.String("game_id", gameID), slog.Int("players", len(outcomes)))
	return outcomes, nil
}

func (s *resultsService) DeleteResults(ctx context.Context, gameID, userID string) error {
	_, err := s.SetResultsStatus(ctx, gameID, userID, models.ResultsNone)
	return err
}

func (s *resultsService) getGame(ctx context.Context, gameID string) (*models.Game, error) {
	game, err := s.games.GetByID(ctx, gameID)
	if errors.Is(err, repositories.ErrGameNotFound) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	return game, nil
}
