package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Dosada05/results-engine/models"
)

// IdempotencyRepository remembers batch results by their idempotency key so
// a retried batch returns the original outcome instead of applying twice.
type IdempotencyRepository interface {
	Get(ctx context.Context, key string) (*models.BatchResult, error)
	Save(ctx context.Context, exec SQLExecutor, key, gameID string, result *models.BatchResult) error
}

var ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")

type postgresIdempotencyRepository struct {
	db *sql.DB
}

func NewPostgresIdempotencyRepository(db *sql.DB) IdempotencyRepository {
	return &postgresIdempotencyRepository{db: db}
}

func (r *postgresIdempotencyRepository) Get(ctx context.Context, key string) (*models.BatchResult, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT result FROM batch_idempotency WHERE key = $1`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}

	var result models.BatchResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode stored batch result: %w", err)
	}
	return &result, nil
}

func (r *postgresIdempotencyRepository) Save(ctx context.Context, exec SQLExecutor, key, gameID string, result *models.BatchResult) error {
	if exec == nil {
		exec = r.db
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode batch result: %w", err)
	}
	_, err = exec.ExecContext(ctx, `
		INSERT INTO batch_idempotency (key, game_id, result, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (key) DO NOTHING`, key, gameID, raw)
	if err != nil {
		return fmt.Errorf("failed to save idempotency record: %w", err)
	}
	return nil
}
