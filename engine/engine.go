// Package engine holds the per-game optimistic state machine: every edit is
// validated, applied to the in-memory tree, and persisted together with its
// outbox entry before the call returns. Nothing here talks to the network.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Dosada05/results-engine/models"
	"github.com/Dosada05/results-engine/permissions"
	"github.com/Dosada05/results-engine/rounds"
	"github.com/Dosada05/results-engine/storage"
	"github.com/Dosada05/results-engine/validation"
)

var (
	ErrRoundNotFound   = errors.New("round not found")
	ErrMatchNotFound   = errors.New("match not found")
	ErrSetNotFound     = errors.New("set not found")
	ErrPlayerAssigned  = errors.New("player already assigned to this match")
	ErrStructureLocked = errors.New("match structure cannot be edited manually")
	ErrResultsFinal    = errors.New("results are finalized, reopen them to edit")
	ErrMatchNotReady   = errors.New("both teams need players before scores can be entered")
	ErrAdminOnly       = errors.New("only a game admin or owner may do this")
	ErrAlreadySeeded   = errors.New("game already has rounds")
)

// Engine is one user's editing session for one game. Instances are created
// per (game, user) pair and are safe for concurrent use; there is no shared
// global state beyond the store.
type Engine struct {
	store  *storage.LocalStore
	logger *slog.Logger
	userID string

	mu       sync.Mutex
	game     *models.Game
	tree     *models.ResultsTree
	version  int64
	onMutate func()
}

// New builds an engine for the given game and user. Call Load or Bootstrap
// before mutating.
func New(game *models.Game, userID string, store *storage.LocalStore, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: logger,
		userID: userID,
		game:   game,
		tree:   &models.ResultsTree{},
	}
}

// SetOnMutate registers a hook fired after every committed local mutation.
// The sync engine uses it to flip its status to PENDING.
func (e *Engine) SetOnMutate(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onMutate = fn
}

// Load restores the engine from local storage: the persisted snapshot plus
// any queued operations not yet folded into it. A cold start with no local
// data leaves an empty tree at the game's last known version.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	shadow, err := e.store.GetShadow(ctx, e.game.ID)
	if errors.Is(err, storage.ErrShadowNotFound) {
		e.tree = &models.ResultsTree{}
		e.version = e.game.ResultsVersion
		return nil
	}
	if err != nil {
		return err
	}

	queue, err := e.store.GetOutbox(ctx, e.game.ID)
	if err != nil {
		return err
	}
	tree, err := Replay(shadow.Tree, queue)
	if err != nil {
		return err
	}
	e.tree = tree
	e.version = shadow.Version
	return nil
}

// Bootstrap seeds the engine from an authoritative server state and persists
// it as the new snapshot.
func (e *Engine) Bootstrap(ctx context.Context, tree *models.ResultsTree, version int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if tree == nil {
		tree = &models.ResultsTree{}
	}
	shadow := &models.Shadow{
		GameID:       e.game.ID,
		Tree:         tree,
		Version:      version,
		LastSyncedAt: time.Now().UTC(),
	}
	if err := e.store.SaveShadow(ctx, shadow); err != nil {
		return err
	}
	e.tree = tree.Clone()
	e.version = version
	return nil
}

// AdvanceVersion records the new head version after a successful sync.
func (e *Engine) AdvanceVersion(ctx context.Context, version int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.version = version
	return e.store.SaveShadow(ctx, &models.Shadow{
		GameID:       e.game.ID,
		Tree:         e.tree,
		Version:      version,
		LastSyncedAt: time.Now().UTC(),
	})
}

// UpdateGame swaps in fresh game metadata, typically after a server refetch.
func (e *Engine) UpdateGame(game *models.Game) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.game = game
}

// Game returns the current game metadata.
func (e *Engine) Game() *models.Game {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.game
}

// GameID returns the id of the game this engine edits.
func (e *Engine) GameID() string {
	return e.game.ID
}

// UserID returns the acting user.
func (e *Engine) UserID() string {
	return e.userID
}

// Version returns the shadow version the engine believes the server holds.
func (e *Engine) Version() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// Tree returns a deep copy of the current local state.
func (e *Engine) Tree() *models.ResultsTree {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tree.Clone()
}

// Rounds returns a deep copy of the current round list.
func (e *Engine) Rounds() []models.Round {
	return e.Tree().Rounds
}

// PendingOps returns the queued outbox in enqueue order.
func (e *Engine) PendingOps(ctx context.Context) ([]models.PendingOperation, error) {
	return e.store.GetOutbox(ctx, e.game.ID)
}

// guardEdit is the permission gate every mutation passes first.
func (e *Engine) guardEdit() error {
	if e.game.ResultsStatus == models.ResultsFinal {
		return ErrResultsFinal
	}
	if !permissions.CanEdit(e.game, e.userID) {
		return permissions.ErrEditNotAllowed
	}
	return nil
}

// guardStructure additionally gates edits that change the match layout
// itself. Generated layouts are only extended through their generator.
func (e *Engine) guardStructure() error {
	if err := e.guardEdit(); err != nil {
		return err
	}
	if !e.game.MatchGenerationType.AllowsManualEditing() {
		return ErrStructureLocked
	}
	if e.game.ProhibitMatchesEditing && !validation.IsUserGameAdminOrOwner(e.game, e.userID) {
		return ErrStructureLocked
	}
	return nil
}

// commit finalizes one optimistic mutation: the tree swap, the outbox
// append and the snapshot write land in a single transaction.
func (e *Engine) commit(ctx context.Context, next *models.ResultsTree, typ models.OpType, path string, value any) error {
	raw, err := marshalValue(value)
	if err != nil {
		return err
	}
	op := models.Op{
		ID:          uuid.NewString(),
		BaseVersion: e.version,
		Type:        typ,
		Path:        path,
		Value:       raw,
		Actor:       models.Actor{UserID: e.userID},
	}
	pending := models.PendingOperation{
		Op:             op,
		Status:         models.PendingQueued,
		AppliedLocally: true,
		CreatedAt:      time.Now().UTC(),
	}
	shadow := &models.Shadow{
		GameID:  e.game.ID,
		Tree:    next,
		Version: e.version,
	}
	if err := e.store.ApplyOptimistic(ctx, shadow, pending); err != nil {
		return err
	}
	e.tree = next
	e.logger.Debug("local op committed",
		slog.String("game_id", e.game.ID),
		slog.String("op_id", op.ID),
		slog.String("op", string(typ)),
		slog.String("path", path))
	if e.onMutate != nil {
		e.onMutate()
	}
	return nil
}

// AddRound generates and appends the next round using the game's
// configured strategy.
func (e *Engine) AddRound(ctx context.Context) (*models.Round, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addRoundLocked(ctx)
}

func (e *Engine) addRoundLocked(ctx context.Context) (*models.Round, error) {
	if err := e.guardEdit(); err != nil {
		return nil, err
	}
	gen, err := rounds.ForType(e.game.MatchGenerationType)
	if err != nil {
		return nil, err
	}
	number := len(e.tree.Rounds) + 1
	round, err := gen.GenerateNextRound(rounds.GenerateRoundParams{
		Game:        e.game,
		History:     e.tree.Rounds,
		RoundNumber: number,
		RoundName:   fmt.Sprintf("Round %d", number),
	})
	if err != nil {
		return nil, err
	}

	next := e.tree.Clone()
	next.Rounds = append(next.Rounds, *round)
	if err := e.commit(ctx, next, models.OpAdd, "/rounds", round); err != nil {
		return nil, err
	}
	return round, nil
}

// RemoveRound deletes a round and everything in it.
func (e *Engine) RemoveRound(ctx context.Context, roundID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.guardStructure(); err != nil {
		return err
	}
	round, idx := e.tree.Round(roundID)
	if round == nil {
		return fmt.Errorf("%w: %s", ErrRoundNotFound, roundID)
	}
	next := e.tree.Clone()
	next.Rounds = append(next.Rounds[:idx], next.Rounds[idx+1:]...)
	return e.commit(ctx, next, models.OpRemove, "/rounds/"+roundID, nil)
}

// AddMatch appends an empty match to a round.
func (e *Engine) AddMatch(ctx context.Context, roundID string) (*models.Match, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.guardStructure(); err != nil {
		return nil, err
	}
	round, idx := e.tree.Round(roundID)
	if round == nil {
		return nil, fmt.Errorf("%w: %s", ErrRoundNotFound, roundID)
	}
	match := models.Match{
		ID:   rounds.MatchID(e.tree.TotalMatches(), 0),
		Sets: rounds.InitialSets(e.game.FixedNumberOfSets),
	}
	next := e.tree.Clone()
	next.Rounds[idx].Matches = append(next.Rounds[idx].Matches, match)
	path := fmt.Sprintf("/rounds/%s/matches", roundID)
	if err := e.commit(ctx, next, models.OpAdd, path, match); err != nil {
		return nil, err
	}
	return &match, nil
}

// RemoveMatch deletes one match from a round.
func (e *Engine) RemoveMatch(ctx context.Context, roundID, matchID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.guardStructure(); err != nil {
		return err
	}
	if match, _ := e.tree.Match(roundID, matchID); match == nil {
		return fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	next := e.tree.Clone()
	round, idx := next.Round(roundID)
	kept := round.Matches[:0]
	for _, m := range round.Matches {
		if m.ID != matchID {
			kept = append(kept, m)
		}
	}
	next.Rounds[idx].Matches = kept
	path := fmt.Sprintf("/rounds/%s/matches/%s", roundID, matchID)
	return e.commit(ctx, next, models.OpRemove, path, nil)
}

// UpdateMatchParams carries a full team and court reassignment.
type UpdateMatchParams struct {
	TeamA   []string
	TeamB   []string
	CourtID string
}

// UpdateMatch replaces a match's teams and court in one operation. Sets are
// preserved.
func (e *Engine) UpdateMatch(ctx context.Context, roundID, matchID string, params UpdateMatchParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.guardStructure(); err != nil {
		return err
	}
	match, _ := e.tree.Match(roundID, matchID)
	if match == nil {
		return fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	seen := make(map[string]struct{}, len(params.TeamA)+len(params.TeamB))
	for _, id := range append(append([]string(nil), params.TeamA...), params.TeamB...) {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s", ErrPlayerAssigned, id)
		}
		seen[id] = struct{}{}
	}

	updated := models.Match{
		ID:      matchID,
		TeamA:   append([]string(nil), params.TeamA...),
		TeamB:   append([]string(nil), params.TeamB...),
		Sets:    append([]models.Set(nil), match.Sets...),
		CourtID: params.CourtID,
	}
	next := e.tree.Clone()
	target, _ := next.Match(roundID, matchID)
	*target = updated
	path := fmt.Sprintf("/rounds/%s/matches/%s", roundID, matchID)
	return e.commit(ctx, next, models.OpReplace, path, updated)
}

// AddPlayerToTeam puts a player on one side of a match. A player can appear
// on at most one team per match.
func (e *Engine) AddPlayerToTeam(ctx context.Context, roundID, matchID string, team Team, playerID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.guardStructure(); err != nil {
		return err
	}
	if !team.Valid() {
		return fmt.Errorf("%w: team %q", ErrOpPath, team)
	}
	match, _ := e.tree.Match(roundID, matchID)
	if match == nil {
		return fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	if match.HasPlayer(playerID) {
		return fmt.Errorf("%w: %s", ErrPlayerAssigned, playerID)
	}
	next := e.tree.Clone()
	target, _ := next.Match(roundID, matchID)
	if team == TeamA {
		target.TeamA = append(target.TeamA, playerID)
	} else {
		target.TeamB = append(target.TeamB, playerID)
	}
	path := fmt.Sprintf("/rounds/%s/matches/%s/%s", roundID, matchID, team)
	return e.commit(ctx, next, models.OpAdd, path, playerID)
}

// RemovePlayerFromTeam takes a player off one side of a match.
func (e *Engine) RemovePlayerFromTeam(ctx context.Context, roundID, matchID string, team Team, playerID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.guardStructure(); err != nil {
		return err
	}
	if !team.Valid() {
		return fmt.Errorf("%w: team %q", ErrOpPath, team)
	}
	match, _ := e.tree.Match(roundID, matchID)
	if match == nil {
		return fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	next := e.tree.Clone()
	target, _ := next.Match(roundID, matchID)
	filter := func(ids []string) []string {
		kept := ids[:0]
		for _, id := range ids {
			if id != playerID {
				kept = append(kept, id)
			}
		}
		return kept
	}
	if team == TeamA {
		target.TeamA = filter(target.TeamA)
	} else {
		target.TeamB = filter(target.TeamB)
	}
	path := fmt.Sprintf("/rounds/%s/matches/%s/%s/%s", roundID, matchID, team, playerID)
	return e.commit(ctx, next, models.OpRemove, path, nil)
}

// SetMatchCourt reassigns the court for one match.
func (e *Engine) SetMatchCourt(ctx context.Context, roundID, matchID, courtID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.guardEdit(); err != nil {
		return err
	}
	match, _ := e.tree.Match(roundID, matchID)
	if match == nil {
		return fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	next := e.tree.Clone()
	target, _ := next.Match(roundID, matchID)
	target.CourtID = courtID
	path := fmt.Sprintf("/rounds/%s/matches/%s/courtId", roundID, matchID)
	return e.commit(ctx, next, models.OpReplace, path, courtID)
}

// UpdateSetResult records one set's score. The index may point past the
// current list; intermediate sets are padded as open placeholders. Fixed-set
// games keep exactly fixedNumberOfSets entries, unbounded games keep an open
// trailing set after the last scored one.
func (e *Engine) UpdateSetResult(ctx context.Context, roundID, matchID string, index, teamAScore, teamBScore int, isTieBreak bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.guardEdit(); err != nil {
		return err
	}
	match, _ := e.tree.Match(roundID, matchID)
	if match == nil {
		return fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	if !validation.CanEnterResults(match) {
		return ErrMatchNotReady
	}
	if err := validation.ValidateSetIndex(index); err != nil {
		return err
	}
	fixed := e.game.FixedNumberOfSets
	if fixed > 0 {
		if err := validation.ValidateSetIndexAgainstFixed(index, fixed); err != nil {
			return err
		}
	}
	if err := validation.ValidateSetScores(teamAScore, teamBScore, e.game); err != nil {
		return err
	}
	candidate := models.Set{TeamA: teamAScore, TeamB: teamBScore, IsTieBreak: isTieBreak}
	if err := validation.ValidateTieBreak(index, match.Sets, fixed, isTieBreak, e.game.BallsInGames, candidate); err != nil {
		return err
	}

	sets := normalizeSets(match.Sets, index, candidate, fixed)
	next := e.tree.Clone()
	target, _ := next.Match(roundID, matchID)
	target.Sets = sets
	path := fmt.Sprintf("/rounds/%s/matches/%s/sets", roundID, matchID)
	return e.commit(ctx, next, models.OpReplace, path, sets)
}

// RemoveSet deletes one set. Fixed-set games zero the slot instead of
// shrinking the list; unbounded games keep an open trailing set unless the
// match already ends on a tie-break.
func (e *Engine) RemoveSet(ctx context.Context, roundID, matchID string, index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.guardEdit(); err != nil {
		return err
	}
	match, _ := e.tree.Match(roundID, matchID)
	if match == nil {
		return fmt.Errorf("%w: %s", ErrMatchNotFound, matchID)
	}
	if index < 0 || index >= len(match.Sets) {
		return fmt.Errorf("%w: index %d", ErrSetNotFound, index)
	}

	sets := append([]models.Set(nil), match.Sets...)
	if e.game.FixedNumberOfSets > 0 {
		sets[index] = models.Set{}
	} else {
		sets = append(sets[:index], sets[index+1:]...)
		if len(sets) == 0 {
			sets = append(sets, models.Set{})
		} else if last := sets[len(sets)-1]; !last.IsTieBreak && !last.IsOpen() {
			sets = append(sets, models.Set{})
		}
	}
	next := e.tree.Clone()
	target, _ := next.Match(roundID, matchID)
	target.Sets = sets
	path := fmt.Sprintf("/rounds/%s/matches/%s/sets", roundID, matchID)
	return e.commit(ctx, next, models.OpReplace, path, sets)
}

// ResetGame wipes every round. Admin or owner only.
func (e *Engine) ResetGame(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !validation.IsUserGameAdminOrOwner(e.game, e.userID) {
		return ErrAdminOnly
	}
	next := e.tree.Clone()
	next.Rounds = nil
	return e.commit(ctx, next, models.OpReplace, "/rounds", []models.Round{})
}

// InitializePresetMatches seeds the first round for tiny rosters: two
// players get a single head-to-head, four players get the three possible
// pair rotations. Rosters of any other size are left for the generators.
func (e *Engine) InitializePresetMatches(ctx context.Context) (*models.Round, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.guardEdit(); err != nil {
		return nil, err
	}
	if len(e.tree.Rounds) > 0 {
		return nil, ErrAlreadySeeded
	}
	playing := e.game.PlayingParticipants()
	if len(playing) != 2 && len(playing) != 4 {
		return nil, nil
	}

	ids := make([]string, len(playing))
	for i, p := range playing {
		ids[i] = p.UserID
	}
	court := ""
	if len(e.game.GameCourts) > 0 {
		court = e.game.GameCourts[0].CourtID
	}
	fixed := e.game.FixedNumberOfSets

	var matches []models.Match
	if len(ids) == 2 {
		matches = []models.Match{presetMatch(1, []string{ids[0]}, []string{ids[1]}, court, fixed)}
	} else {
		matches = []models.Match{
			presetMatch(1, []string{ids[0], ids[1]}, []string{ids[2], ids[3]}, court, fixed),
			presetMatch(2, []string{ids[0], ids[2]}, []string{ids[1], ids[3]}, court, fixed),
			presetMatch(3, []string{ids[0], ids[3]}, []string{ids[1], ids[2]}, court, fixed),
		}
	}
	round := models.Round{
		ID:      rounds.RoundID(1),
		Name:    "Round 1",
		Matches: matches,
	}
	next := e.tree.Clone()
	next.Rounds = append(next.Rounds, round)
	if err := e.commit(ctx, next, models.OpAdd, "/rounds", round); err != nil {
		return nil, err
	}
	return &round, nil
}

// InitializeDefaultRound seeds the first round through the configured
// generator when the game has none yet.
func (e *Engine) InitializeDefaultRound(ctx context.Context) (*models.Round, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.tree.Rounds) > 0 {
		return nil, ErrAlreadySeeded
	}
	return e.addRoundLocked(ctx)
}

func presetMatch(n int, teamA, teamB []string, courtID string, fixed int) models.Match {
	return models.Match{
		ID:      rounds.MatchID(0, n-1),
		TeamA:   teamA,
		TeamB:   teamB,
		Sets:    rounds.InitialSets(fixed),
		CourtID: courtID,
	}
}

// normalizeSets places candidate at index and restores the list shape
// invariants for the game's set mode.
func normalizeSets(current []models.Set, index int, candidate models.Set, fixed int) []models.Set {
	sets := append([]models.Set(nil), current...)
	for len(sets) <= index {
		sets = append(sets, models.Set{})
	}
	sets[index] = candidate

	if fixed > 0 {
		for len(sets) < fixed {
			sets = append(sets, models.Set{})
		}
		return sets[:fixed]
	}
	// Unbounded: a tie-break closes the match, anything else keeps an open
	// set available at the tail.
	last := sets[len(sets)-1]
	if !last.IsTieBreak && !last.IsOpen() {
		sets = append(sets, models.Set{})
	}
	return sets
}
