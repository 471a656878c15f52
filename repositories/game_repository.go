package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Dosada05/results-engine/models"
)

var ErrGameNotFound = errors.New("game not found")

// GameRepository reads and updates the game metadata the results engine
// gates on. Full game CRUD lives in another service; only the fields that
// matter for result entry are surfaced here.
type GameRepository interface {
	GetByID(ctx context.Context, id string) (*models.Game, error)
	UpdateResultsStatus(ctx context.Context, exec SQLExecutor, id string, status models.ResultsStatus) error
}

type postgresGameRepository struct {
	db *sql.DB
}

func NewPostgresGameRepository(db *sql.DB) GameRepository {
	return &postgresGameRepository{db: db}
}

func (r *postgresGameRepository) GetByID(ctx context.Context, id string) (*models.Game, error) {
	query := `
		SELECT id, entity_type, status, results_status,
		       COALESCE(gr.version, 0),
		       fixed_number_of_sets, max_total_points_per_set, max_points_per_team,
		       balls_in_games, results_by_anyone, prohibit_matches_editing,
		       match_generation_type, has_fixed_teams,
		       fixed_teams, game_courts, participants, parent, start_time
		FROM games g
		LEFT JOIN game_results gr ON gr.game_id = g.id
		WHERE g.id = $1`

	var (
		game         models.Game
		fixedTeams   []byte
		gameCourts   []byte
		participants []byte
		parent       []byte
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&game.ID, &game.EntityType, &game.Status, &game.ResultsStatus,
		&game.ResultsVersion,
		&game.FixedNumberOfSets, &game.MaxTotalPointsPerSet, &game.MaxPointsPerTeam,
		&game.BallsInGames, &game.ResultsByAnyone, &game.ProhibitMatchesEditing,
		&game.MatchGenerationType, &game.HasFixedTeams,
		&fixedTeams, &gameCourts, &participants, &parent, &game.StartTime,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game %s: %w", id, err)
	}

	for _, col := range []struct {
		raw  []byte
		dest interface{}
	}{
		{fixedTeams, &game.FixedTeams},
		{gameCourts, &game.GameCourts},
		{participants, &game.Participants},
		{parent, &game.Parent},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dest); err != nil {
			return nil, fmt.Errorf("failed to decode game %s column: %w", id, err)
		}
	}
	return &game, nil
}

func (r *postgresGameRepository) UpdateResultsStatus(ctx context.Context, exec SQLExecutor, id string, status models.ResultsStatus) error {
	if exec == nil {
		exec = r.db
	}
	result, err := exec.ExecContext(ctx,
		`UPDATE games SET results_status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update results status for game %s: %w", id, err)
	}
	return checkAffectedRows(result, ErrGameNotFound)
}
