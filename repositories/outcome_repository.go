package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dosada05/results-engine/models"
)

// OutcomeRepository persists the per-player rollups produced when a game's
// results are finalized.
type OutcomeRepository interface {
	ReplaceForGame(ctx context.Context, exec SQLExecutor, gameID string, outcomes []models.PlayerOutcome) error
	ListByGame(ctx context.Context, gameID string) ([]models.PlayerOutcome, error)
}

type postgresOutcomeRepository struct {
	db *sql.DB
}

func NewPostgresOutcomeRepository(db *sql.DB) OutcomeRepository {
	return &postgresOutcomeRepository{db: db}
}

func (r *postgresOutcomeRepository) ReplaceForGame(ctx context.Context, exec SQLExecutor, gameID string, outcomes []models.PlayerOutcome) error {
	if exec == nil {
		exec = r.db
	}
	if _, err := exec.ExecContext(ctx,
		`DELETE FROM game_outcomes WHERE game_id = $1`, gameID); err != nil {
		return fmt.Errorf("failed to clear outcomes for game %s: %w", gameID, err)
	}
	for _, o := range outcomes {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO game_outcomes (game_id, user_id, place, wins, ties, losses, scores_made, scores_lost)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			gameID, o.UserID, o.Place, o.Wins, o.Ties, o.Losses, o.ScoresMade, o.ScoresLost)
		if err != nil {
			return fmt.Errorf("failed to insert outcome for user %s: %w", o.UserID, err)
		}
	}
	return nil
}

func (r *postgresOutcomeRepository) ListByGame(ctx context.Context, gameID string) ([]models.PlayerOutcome, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, place, wins, ties, losses, scores_made, scores_lost
		FROM game_outcomes WHERE game_id = $1 ORDER BY place`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes for game %s: %w", gameID, err)
	}
	defer rows.Close()

	var outcomes []models.PlayerOutcome
	for rows.Next() {
		o := models.PlayerOutcome{GameID: gameID}
		if err := rows.Scan(&o.UserID, &o.Place, &o.Wins, &o.Ties, &o.Losses, &o.ScoresMade, &o.ScoresLost); err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}
