// Package storage is the durable client-side persistence adapter: one
// snapshot, one ordered outbox, and one server-problem flag per game,
// surviving process restarts. All snapshot writes are transactional.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Dosada05/results-engine/models"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrShadowNotFound   = errors.New("shadow snapshot not found")
	ErrSnapshotCorrupt  = errors.New("shadow snapshot is corrupt")
	ErrOperationMissing = errors.New("outbox operation not found")
	ErrGameNotCached    = errors.New("game metadata not cached")
)

// LocalStore is the SQLite-backed persistence adapter shared by all engine
// instances in the process. Rows are scoped per game id.
type LocalStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS shadows (
	game_id        TEXT PRIMARY KEY,
	tree           TEXT NOT NULL,
	version        INTEGER NOT NULL,
	last_synced_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS outbox (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	game_id     TEXT NOT NULL,
	op_id       TEXT NOT NULL UNIQUE,
	payload     TEXT NOT NULL,
	status      TEXT NOT NULL,
	applied     INTEGER NOT NULL DEFAULT 1,
	retry_count INTEGER NOT NULL DEFAULT 0,
	last_error  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_outbox_game ON outbox(game_id, seq);
CREATE TABLE IF NOT EXISTS server_problems (
	game_id TEXT PRIMARY KEY,
	flagged INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS cached_games (
	game_id TEXT PRIMARY KEY,
	payload TEXT NOT NULL
);`

// Open creates or opens the local database at path and ensures the schema.
// Use ":memory:" for throwaway stores in tests.
func Open(path string) (*LocalStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local results store: %w", err)
	}
	// A single writer keeps outbox sequencing strictly FIFO.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure local store schema: %w", err)
	}
	return &LocalStore{db: db}, nil
}

func (s *LocalStore) Close() error {
	return s.db.Close()
}

// GetShadow loads the persisted snapshot for a game. A missing row returns
// ErrShadowNotFound; undecodable rows return ErrSnapshotCorrupt, which only
// EraseGame can clear.
func (s *LocalStore) GetShadow(ctx context.Context, gameID string) (*models.Shadow, error) {
	var (
		treeJSON string
		shadow   = models.Shadow{GameID: gameID}
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT tree, version, last_synced_at FROM shadows WHERE game_id = ?`, gameID,
	).Scan(&treeJSON, &shadow.Version, &shadow.LastSyncedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShadowNotFound
		}
		return nil, fmt.Errorf("failed to load shadow for game %s: %w", gameID, err)
	}

	tree := &models.ResultsTree{}
	if err := json.Unmarshal([]byte(treeJSON), tree); err != nil {
		return nil, fmt.Errorf("%w: game %s: %v", ErrSnapshotCorrupt, gameID, err)
	}
	shadow.Tree = tree
	return &shadow, nil
}

// SaveShadow upserts the snapshot in one statement; SQLite guarantees the
// row either fully replaces the old one or stays untouched.
func (s *LocalStore) SaveShadow(ctx context.Context, shadow *models.Shadow) error {
	return s.saveShadow(ctx, s.db, shadow)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *LocalStore) saveShadow(ctx context.Context, exec execer, shadow *models.Shadow) error {
	treeJSON, err := json.Marshal(shadow.Tree)
	if err != nil {
		return fmt.Errorf("failed to encode shadow tree: %w", err)
	}
	_, err = exec.ExecContext(ctx, `
		INSERT INTO shadows (game_id, tree, version, last_synced_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(game_id) DO UPDATE SET
			tree = excluded.tree,
			version = excluded.version,
			last_synced_at = excluded.last_synced_at`,
		shadow.GameID, string(treeJSON), shadow.Version, shadow.LastSyncedAt)
	if err != nil {
		return fmt.Errorf("failed to save shadow for game %s: %w", shadow.GameID, err)
	}
	return nil
}

// ApplyOptimistic persists one optimistic mutation atomically: the new
// snapshot and the outbox append commit together or not at all.
func (s *LocalStore) ApplyOptimistic(ctx context.Context, shadow *models.Shadow, op models.PendingOperation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin optimistic write: %w", err)
	}
	defer tx.Rollback()

	if err := s.saveShadow(ctx, tx, shadow); err != nil {
		return err
	}
	if err := appendOutbox(ctx, tx, shadow.GameID, op); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit optimistic write for game %s: %w", shadow.GameID, err)
	}
	return nil
}

func appendOutbox(ctx context.Context, exec execer, gameID string, op models.PendingOperation) error {
	payload, err := json.Marshal(op.Op)
	if err != nil {
		return fmt.Errorf("failed to encode outbox op: %w", err)
	}
	_, err = exec.ExecContext(ctx, `
		INSERT INTO outbox (game_id, op_id, payload, status, applied, retry_count, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		gameID, op.ID, string(payload), op.Status, op.AppliedLocally, op.RetryCount, op.LastError, op.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append outbox op %s: %w", op.ID, err)
	}
	return nil
}

// GetOutbox returns the game's pending operations in enqueue order.
func (s *LocalStore) GetOutbox(ctx context.Context, gameID string) ([]models.PendingOperation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload, status, applied, retry_count, last_error, created_at
		FROM outbox WHERE game_id = ? ORDER BY seq`, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox for game %s: %w", gameID, err)
	}
	defer rows.Close()

	var ops []models.PendingOperation
	for rows.Next() {
		var (
			payload string
			pending models.PendingOperation
		)
		if err := rows.Scan(&payload, &pending.Status, &pending.AppliedLocally, &pending.RetryCount, &pending.LastError, &pending.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &pending.Op); err != nil {
			return nil, fmt.Errorf("%w: outbox op for game %s: %v", ErrSnapshotCorrupt, gameID, err)
		}
		ops = append(ops, pending)
	}
	return ops, rows.Err()
}

// UpdateOutboxStatus moves one op through its delivery lifecycle without
// touching the immutable payload.
func (s *LocalStore) UpdateOutboxStatus(ctx context.Context, gameID, opID string, status models.PendingStatus, retryCount int, lastError string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET status = ?, retry_count = ?, last_error = ?
		WHERE game_id = ? AND op_id = ?`,
		status, retryCount, lastError, gameID, opID)
	if err != nil {
		return fmt.Errorf("failed to update outbox op %s: %w", opID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return ErrOperationMissing
	}
	return nil
}

// RemoveOutboxOps deletes confirmed ops after a successful flush.
func (s *LocalStore) RemoveOutboxOps(ctx context.Context, gameID string, opIDs []string) error {
	if len(opIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin outbox removal: %w", err)
	}
	defer tx.Rollback()

	for _, id := range opIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM outbox WHERE game_id = ? AND op_id = ?`, gameID, id); err != nil {
			return fmt.Errorf("failed to remove outbox op %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// ClearOutbox drops every queued op for the game.
func (s *LocalStore) ClearOutbox(ctx context.Context, gameID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM outbox WHERE game_id = ?`, gameID); err != nil {
		return fmt.Errorf("failed to clear outbox for game %s: %w", gameID, err)
	}
	return nil
}

// SaveGame caches the game metadata so offline sessions can still gate
// edits on permissions and game settings.
func (s *LocalStore) SaveGame(ctx context.Context, game *models.Game) error {
	payload, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("failed to encode game %s: %w", game.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cached_games (game_id, payload) VALUES (?, ?)
		ON CONFLICT(game_id) DO UPDATE SET payload = excluded.payload`,
		game.ID, string(payload))
	if err != nil {
		return fmt.Errorf("failed to cache game %s: %w", game.ID, err)
	}
	return nil
}

// GetGame returns the cached game metadata.
func (s *LocalStore) GetGame(ctx context.Context, gameID string) (*models.Game, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM cached_games WHERE game_id = ?`, gameID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGameNotCached
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached game %s: %w", gameID, err)
	}
	var game models.Game
	if err := json.Unmarshal([]byte(payload), &game); err != nil {
		return nil, fmt.Errorf("%w: cached game %s: %v", ErrSnapshotCorrupt, gameID, err)
	}
	return &game, nil
}

// ServerProblem reports the persisted sync-divergence flag.
func (s *LocalStore) ServerProblem(ctx context.Context, gameID string) (bool, error) {
	var flagged int
	err := s.db.QueryRowContext(ctx,
		`SELECT flagged FROM server_problems WHERE game_id = ?`, gameID).Scan(&flagged)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read server problem flag for game %s: %w", gameID, err)
	}
	return flagged != 0, nil
}

// SetServerProblem persists the sync-divergence flag.
func (s *LocalStore) SetServerProblem(ctx context.Context, gameID string, flagged bool) error {
	v := 0
	if flagged {
		v = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO server_problems (game_id, flagged) VALUES (?, ?)
		ON CONFLICT(game_id) DO UPDATE SET flagged = excluded.flagged`, gameID, v)
	if err != nil {
		return fmt.Errorf("failed to set server problem flag for game %s: %w", gameID, err)
	}
	return nil
}

// EraseGame removes every trace of the game from local storage: snapshot,
// outbox and flag, in one transaction. This is the fatal-error escape hatch
// behind "erase and load from server".
func (s *LocalStore) EraseGame(ctx context.Context, gameID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin erase for game %s: %w", gameID, err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM shadows WHERE game_id = ?`,
		`DELETE FROM outbox WHERE game_id = ?`,
		`DELETE FROM server_problems WHERE game_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, gameID); err != nil {
			return fmt.Errorf("failed to erase game %s: %w", gameID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit erase for game %s: %w", gameID, err)
	}
	return nil
}
