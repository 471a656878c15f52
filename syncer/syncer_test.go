package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/results-engine/engine"
	"github.com/Dosada05/results-engine/models"
	"github.com/Dosada05/results-engine/permissions"
	"github.com/Dosada05/results-engine/storage"
)

var errNetwork = errors.New("connection refused")

// fakeAPI scripts the authority's answers per call.
type fakeAPI struct {
	game    *models.Game
	tree    *models.ResultsTree
	version int64

	offline bool

	batchResult *models.BatchResult
	batchErr    error
	batchCalls  int
	lastOps     []models.Op

	statusCalls []models.ResultsStatus
	recalcCalls int
}

func (f *fakeAPI) GetGame(ctx context.Context, gameID string) (*models.Game, error) {
	if f.offline {
		return nil, errNetwork
	}
	return f.game, nil
}

func (f *fakeAPI) GetGameResults(ctx context.Context, gameID string) (*models.ResultsTree, int64, error) {
	if f.offline {
		return nil, 0, errNetwork
	}
	tree := f.tree
	if tree == nil {
		tree = &models.ResultsTree{}
	}
	return tree, f.version, nil
}

func (f *fakeAPI) BatchOps(ctx context.Context, gameID, idempotencyKey string, ops []models.Op) (*models.BatchResult, error) {
	f.batchCalls++
	f.lastOps = ops
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	if f.batchResult != nil {
		return f.batchResult, nil
	}
	// Default: accept everything.
	applied := make([]string, len(ops))
	for i, op := range ops {
		applied[i] = op.ID
	}
	f.version++
	return &models.BatchResult{Applied: applied, HeadVersion: f.version, ServerTime: time.Now()}, nil
}

func (f *fakeAPI) SetResultsStatus(ctx context.Context, gameID string, status models.ResultsStatus) (*models.Game, error) {
	if f.offline {
		return nil, errNetwork
	}
	f.statusCalls = append(f.statusCalls, status)
	updated := *f.game
	updated.ResultsStatus = status
	f.game = &updated
	return &updated, nil
}

func (f *fakeAPI) RecalculateOutcomes(ctx context.Context, gameID string) error {
	if f.offline {
		return errNetwork
	}
	f.recalcCalls++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func activeGame() *models.Game {
	return &models.Game{
		ID:     "g1",
		Status: models.GameActive,
		Participants: []models.Participant{
			{UserID: "owner", Role: models.RoleOwner, IsPlaying: true},
			{UserID: "p1", Role: models.RoleMember, IsPlaying: true},
			{UserID: "p2", Role: models.RoleMember, IsPlaying: true},
			{UserID: "p3", Role: models.RoleMember, IsPlaying: true},
		},
	}
}

type fixture struct {
	engine *engine.Engine
	syncer *Syncer
	store  *storage.LocalStore
	api    *fakeAPI
}

func newFixture(t *testing.T, game *models.Game) *fixture {
	t.Helper()
	store, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	eng := engine.New(game, "owner", store, testLogger())
	api := &fakeAPI{game: game}
	return &fixture{
		engine: eng,
		syncer: New(eng, store, api, testLogger()),
		store:  store,
		api:    api,
	}
}

// queueEdits initializes online and enqueues edits while the API is scripted
// to hold them, leaving a populated outbox behind.
func queueEdits(t *testing.T, f *fixture) []models.PendingOperation {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.syncer.Initialize(ctx))

	round, err := f.engine.AddRound(ctx)
	require.NoError(t, err)
	require.NoError(t, f.engine.AddPlayerToTeam(ctx, round.ID, round.Matches[0].ID, engine.TeamA, "p1"))
	require.NoError(t, f.engine.AddPlayerToTeam(ctx, round.ID, round.Matches[0].ID, engine.TeamB, "p2"))

	ops, err := f.store.GetOutbox(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, models.SyncPending, f.syncer.Status())
	return ops
}

func TestInitializeBootstrapsFromServer(t *testing.T) {
	f := newFixture(t, activeGame())
	f.api.tree = &models.ResultsTree{Rounds: []models.Round{{ID: "round-1"}}}
	f.api.version = 4

	require.NoError(t, f.syncer.Initialize(context.Background()))
	assert.Equal(t, models.SyncSynced, f.syncer.Status())
	assert.Equal(t, int64(4), f.engine.Version())
	require.Len(t, f.engine.Rounds(), 1)
}

func TestInitializeOfflineFallsBackToSnapshot(t *testing.T) {
	f := newFixture(t, activeGame())
	ctx := context.Background()
	require.NoError(t, f.syncer.Initialize(ctx))

	f.api.offline = true
	require.NoError(t, f.syncer.Initialize(ctx))
	assert.Equal(t, models.SyncError, f.syncer.Status())
}

func TestInitializeOfflineUsesCachedGameMetadata(t *testing.T) {
	f := newFixture(t, activeGame())
	ctx := context.Background()
	require.NoError(t, f.syncer.Initialize(ctx))

	// New session against the same store with the network gone and only a
	// bare game id; edits still pass the permission gates via the cache.
	eng := engine.New(&models.Game{ID: "g1"}, "owner", f.store, testLogger())
	api := &fakeAPI{offline: true}
	sync := New(eng, f.store, api, testLogger())
	require.NoError(t, sync.Initialize(ctx))

	_, err := eng.AddRound(ctx)
	assert.NoError(t, err)
}

func TestFlushSuccess(t *testing.T) {
	f := newFixture(t, activeGame())
	ctx := context.Background()
	queueEdits(t, f)

	require.NoError(t, f.syncer.Flush(ctx))
	assert.Equal(t, models.SyncSynced, f.syncer.Status())

	ops, err := f.store.GetOutbox(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, ops)
	assert.Equal(t, f.api.version, f.engine.Version())

	t.Run("flushing an empty queue is a clean no-op", func(t *testing.T) {
		calls := f.api.batchCalls
		require.NoError(t, f.syncer.Flush(ctx))
		assert.Equal(t, calls, f.api.batchCalls)
	})
}

func TestFlushTransportFailureKeepsQueue(t *testing.T) {
	f := newFixture(t, activeGame())
	ctx := context.Background()
	queueEdits(t, f)

	f.api.batchErr = errNetwork
	err := f.syncer.Flush(ctx)
	assert.ErrorIs(t, err, ErrSyncFailed)
	assert.Equal(t, models.SyncError, f.syncer.Status())

	ops, err2 := f.store.GetOutbox(ctx, "g1")
	require.NoError(t, err2)
	require.Len(t, ops, 3)
	for _, op := range ops {
		assert.Equal(t, models.PendingFailed, op.Status)
		assert.Equal(t, 1, op.RetryCount)
		assert.Contains(t, op.LastError, "connection refused")
	}

	// A transport failure is not a divergence.
	flagged, err3 := f.syncer.ServerProblem(ctx)
	require.NoError(t, err3)
	assert.False(t, flagged)

	t.Run("recovery drains the queue", func(t *testing.T) {
		f.api.batchErr = nil
		require.NoError(t, f.syncer.ForceSync(ctx))
		assert.Equal(t, models.SyncSynced, f.syncer.Status())
		ops, err := f.store.GetOutbox(ctx, "g1")
		require.NoError(t, err)
		assert.Empty(t, ops)
	})
}

func TestFlushConflictFlagsDivergence(t *testing.T) {
	f := newFixture(t, activeGame())
	ctx := context.Background()
	queued := queueEdits(t, f)

	f.api.batchResult = &models.BatchResult{
		HeadVersion: 9,
		Conflicts: []models.OpConflict{
			{OpID: queued[0].ID, Reason: "stale base version"},
			{OpID: queued[1].ID, Reason: "stale base version"},
			{OpID: queued[2].ID, Reason: "stale base version"},
		},
	}

	err := f.syncer.Flush(ctx)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, models.SyncError, f.syncer.Status())

	flagged, err2 := f.syncer.ServerProblem(ctx)
	require.NoError(t, err2)
	assert.True(t, flagged)

	ops, err3 := f.store.GetOutbox(ctx, "g1")
	require.NoError(t, err3)
	require.Len(t, ops, 3)
	for _, op := range ops {
		assert.Equal(t, models.PendingConflict, op.Status)
		assert.Equal(t, "stale base version", op.LastError)
	}

	t.Run("conflicted ops are never re-sent", func(t *testing.T) {
		f.api.batchResult = nil
		calls := f.api.batchCalls
		require.NoError(t, f.syncer.Flush(ctx))
		assert.Equal(t, calls, f.api.batchCalls)
	})
}

func TestInitializeSurfacesPreviousDivergence(t *testing.T) {
	f := newFixture(t, activeGame())
	ctx := context.Background()
	queued := queueEdits(t, f)

	f.api.batchResult = &models.BatchResult{
		HeadVersion: 9,
		Conflicts:   []models.OpConflict{{OpID: queued[0].ID, Reason: "stale base version"}},
	}
	assert.ErrorIs(t, f.syncer.Flush(ctx), ErrConflict)

	// Next session over the same store.
	eng := engine.New(activeGame(), "owner", f.store, testLogger())
	sync := New(eng, f.store, &fakeAPI{game: activeGame()}, testLogger())
	err := sync.Initialize(ctx)
	assert.ErrorIs(t, err, ErrNeedsResolution)
	assert.Equal(t, models.SyncError, sync.Status())
	// Local state is still editable while the user decides.
	assert.NotEmpty(t, eng.Rounds())
}

func TestSyncLocalToServer(t *testing.T) {
	f := newFixture(t, activeGame())
	ctx := context.Background()
	queued := queueEdits(t, f)

	f.api.batchResult = &models.BatchResult{
		HeadVersion: 9,
		Conflicts:   []models.OpConflict{{OpID: queued[0].ID, Reason: "stale base version"}},
	}
	assert.ErrorIs(t, f.syncer.Flush(ctx), ErrConflict)

	f.api.batchResult = nil
	f.api.version = 9
	localRounds := f.engine.Rounds()

	require.NoError(t, f.syncer.SyncLocalToServer(ctx))
	assert.Equal(t, models.SyncSynced, f.syncer.Status())

	// One replace op against the fetched head carries the whole local tree.
	require.Len(t, f.api.lastOps, 1)
	assert.Equal(t, models.OpReplace, f.api.lastOps[0].Type)
	assert.Equal(t, "/rounds", f.api.lastOps[0].Path)
	assert.Equal(t, int64(9), f.api.lastOps[0].BaseVersion)

	ops, err := f.store.GetOutbox(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, ops)
	flagged, err := f.syncer.ServerProblem(ctx)
	require.NoError(t, err)
	assert.False(t, flagged)
	assert.Equal(t, localRounds, f.engine.Rounds())
}

func TestEraseAndLoadFromServer(t *testing.T) {
	f := newFixture(t, activeGame())
	ctx := context.Background()
	queued := queueEdits(t, f)

	f.api.batchResult = &models.BatchResult{
		HeadVersion: 9,
		Conflicts:   []models.OpConflict{{OpID: queued[0].ID, Reason: "stale base version"}},
	}
	assert.ErrorIs(t, f.syncer.Flush(ctx), ErrConflict)

	f.api.tree = &models.ResultsTree{Rounds: []models.Round{{ID: "round-7"}}}
	f.api.version = 11

	require.NoError(t, f.syncer.EraseAndLoadFromServer(ctx))
	assert.Equal(t, models.SyncSynced, f.syncer.Status())
	require.Len(t, f.engine.Rounds(), 1)
	assert.Equal(t, "round-7", f.engine.Rounds()[0].ID)
	assert.Equal(t, int64(11), f.engine.Version())

	ops, err := f.store.GetOutbox(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, ops)
	flagged, err := f.syncer.ServerProblem(ctx)
	require.NoError(t, err)
	assert.False(t, flagged)
}

func TestFinish(t *testing.T) {
	f := newFixture(t, activeGame())
	ctx := context.Background()
	queueEdits(t, f)

	require.NoError(t, f.syncer.Finish(ctx))
	require.Len(t, f.api.statusCalls, 1)
	assert.Equal(t, models.ResultsFinal, f.api.statusCalls[0])
	assert.Equal(t, 1, f.api.recalcCalls)
	// Queue was drained before finalizing.
	ops, err := f.store.GetOutbox(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, ops)
	assert.Equal(t, models.ResultsFinal, f.engine.Game().ResultsStatus)

	t.Run("already final is a no-op", func(t *testing.T) {
		require.NoError(t, f.syncer.Finish(ctx))
		assert.Len(t, f.api.statusCalls, 1)
		assert.Equal(t, 1, f.api.recalcCalls)
	})
}

func TestEdit(t *testing.T) {
	ctx := context.Background()

	t.Run("reopens finalized results", func(t *testing.T) {
		game := activeGame()
		game.ResultsStatus = models.ResultsFinal
		f := newFixture(t, game)
		require.NoError(t, f.syncer.Initialize(ctx))

		require.NoError(t, f.syncer.Edit(ctx))
		assert.Equal(t, models.ResultsInProgress, f.engine.Game().ResultsStatus)
	})

	t.Run("not final is a no-op", func(t *testing.T) {
		f := newFixture(t, activeGame())
		require.NoError(t, f.syncer.Initialize(ctx))
		require.NoError(t, f.syncer.Edit(ctx))
		assert.Empty(t, f.api.statusCalls)
	})

	t.Run("reopen is permission gated", func(t *testing.T) {
		game := activeGame()
		game.ResultsStatus = models.ResultsFinal
		game.ResultsByAnyone = true
		game.ProhibitMatchesEditing = true
		game.MatchGenerationType = models.GenerationRoundRobin

		store, err := storage.Open(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		eng := engine.New(game, "p1", store, testLogger())
		sync := New(eng, store, &fakeAPI{game: game}, testLogger())
		require.NoError(t, sync.Initialize(ctx))

		assert.ErrorIs(t, sync.Edit(ctx), permissions.ErrEditNotAllowed)
	})
}

func TestReset(t *testing.T) {
	f := newFixture(t, activeGame())
	ctx := context.Background()
	queueEdits(t, f)

	require.NoError(t, f.syncer.Reset(ctx))
	assert.Empty(t, f.engine.Rounds())
	require.NotEmpty(t, f.api.statusCalls)
	assert.Equal(t, models.ResultsNone, f.api.statusCalls[len(f.api.statusCalls)-1])

	ops, err := f.store.GetOutbox(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestStatusObserver(t *testing.T) {
	f := newFixture(t, activeGame())
	ctx := context.Background()

	var seen []models.SyncStatus
	f.syncer.SetOnStatus(func(s models.SyncStatus) { seen = append(seen, s) })

	queueEdits(t, f)
	require.NoError(t, f.syncer.Flush(ctx))

	assert.Contains(t, seen, models.SyncPending)
	assert.Contains(t, seen, models.SyncSyncing)
	assert.Equal(t, models.SyncSynced, seen[len(seen)-1])
}

func TestBackoffDelay(t *testing.T) {
	for retry := 1; retry <= 10; retry++ {
		d := backoffDelay(retry)
		assert.GreaterOrEqual(t, d, time.Second, "retry %d", retry)
		assert.LessOrEqual(t, d, time.Minute, "retry %d", retry)
	}
	// Growth is monotonic in the base term.
	assert.GreaterOrEqual(t, backoffDelay(6), 32*time.Second)
}
