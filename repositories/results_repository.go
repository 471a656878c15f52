package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Dosada05/results-engine/models"
)

var (
	ErrResultsNotFound = errors.New("game results not found")
	ErrVersionConflict = errors.New("results version conflict")
)

// ResultsRepository holds the authoritative results tree per game. Every
// write is a compare-and-swap against the stored version; a stale writer
// gets ErrVersionConflict and never overwrites newer state.
type ResultsRepository interface {
	Get(ctx context.Context, gameID string) (*models.ResultsTree, int64, error)
	EnsureExists(ctx context.Context, exec SQLExecutor, gameID string) error
	UpdateWithVersion(ctx context.Context, exec SQLExecutor, gameID string, tree *models.ResultsTree, expectedVersion int64) (int64, error)
	Delete(ctx context.Context, exec SQLExecutor, gameID string) error
}

type postgresResultsRepository struct {
	db *sql.DB
}

func NewPostgresResultsRepository(db *sql.DB) ResultsRepository {
	return &postgresResultsRepository{db: db}
}

func (r *postgresResultsRepository) Get(ctx context.Context, gameID string) (*models.ResultsTree, int64, error) {
	var (
		raw     []byte
		version int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT tree, version FROM game_results WHERE game_id = $1`, gameID).
		Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrResultsNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get results for game %s: %w", gameID, err)
	}

	var tree models.ResultsTree
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, 0, fmt.Errorf("failed to decode results tree for game %s: %w", gameID, err)
	}
	return &tree, version, nil
}

func (r *postgresResultsRepository) EnsureExists(ctx context.Context, exec SQLExecutor, gameID string) error {
	if exec == nil {
		exec = r.db
	}
	_, err := exec.ExecContext(ctx, `
		INSERT INTO game_results (game_id, tree, version)
		VALUES ($1, '{"rounds":[]}', 0)
		ON CONFLICT (game_id) DO NOTHING`, gameID)
	if err != nil {
		return fmt.Errorf("failed to ensure results row for game %s: %w", gameID, err)
	}
	return nil
}

func (r *postgresResultsRepository) UpdateWithVersion(ctx context.Context, exec SQLExecutor, gameID string, tree *models.ResultsTree, expectedVersion int64) (int64, error) {
	if exec == nil {
		exec = r.db
	}
	raw, err := json.Marshal(tree)
	if err != nil {
		return 0, fmt.Errorf("failed to encode results tree for game %s: %w", gameID, err)
	}

	var newVersion int64
	err = exec.QueryRowContext(ctx, `
		UPDATE game_results
		SET tree = $1, version = version + 1, updated_at = now()
		WHERE game_id = $2 AND version = $3
		RETURNING version`,
		raw, gameID, expectedVersion).Scan(&newVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrVersionConflict
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update results for game %s: %w", gameID, err)
	}
	return newVersion, nil
}

func (r *postgresResultsRepository) Delete(ctx context.Context, exec SQLExecutor, gameID string) error {
	if exec == nil {
		exec = r.db
	}
	result, err := exec.ExecContext(ctx,
		`DELETE FROM game_results WHERE game_id = $1`, gameID)
	if err != nil {
		return fmt.Errorf("failed to delete results for game %s: %w", gameID, err)
	}
	return checkAffectedRows(result, ErrResultsNotFound)
}
