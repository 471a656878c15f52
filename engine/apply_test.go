package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/results-engine/models"
)

func mustValue(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func baseTree() *models.ResultsTree {
	return &models.ResultsTree{Rounds: []models.Round{{
		ID:   "round-1",
		Name: "Round 1",
		Matches: []models.Match{{
			ID:    "match-1",
			TeamA: []string{"u1"},
			TeamB: []string{"u2"},
			Sets:  []models.Set{{}},
		}},
	}}}
}

func TestApplyAddRound(t *testing.T) {
	tree := baseTree()
	round := models.Round{ID: "round-2", Name: "Round 2"}
	op := models.Op{Type: models.OpAdd, Path: "/rounds", Value: mustValue(t, round)}

	next, err := Apply(tree, op)
	require.NoError(t, err)
	require.Len(t, next.Rounds, 2)
	assert.Equal(t, "round-2", next.Rounds[1].ID)
	// Input tree untouched.
	assert.Len(t, tree.Rounds, 1)

	t.Run("re-adding the same round is a no-op", func(t *testing.T) {
		again, err := Apply(next, op)
		require.NoError(t, err)
		assert.Len(t, again.Rounds, 2)
	})
}

func TestApplyReplaceRounds(t *testing.T) {
	tree := baseTree()
	op := models.Op{Type: models.OpReplace, Path: "/rounds", Value: mustValue(t, []models.Round{})}

	next, err := Apply(tree, op)
	require.NoError(t, err)
	assert.Empty(t, next.Rounds)
	assert.Len(t, tree.Rounds, 1)
}

func TestApplyRemoveRound(t *testing.T) {
	tree := baseTree()
	op := models.Op{Type: models.OpRemove, Path: "/rounds/round-1"}

	next, err := Apply(tree, op)
	require.NoError(t, err)
	assert.Empty(t, next.Rounds)

	t.Run("removing a missing round resolves cleanly", func(t *testing.T) {
		again, err := Apply(next, op)
		require.NoError(t, err)
		assert.Empty(t, again.Rounds)
	})
}

func TestApplyAddMatch(t *testing.T) {
	tree := baseTree()
	match := models.Match{ID: "match-2", Sets: []models.Set{{}}}
	op := models.Op{Type: models.OpAdd, Path: "/rounds/round-1/matches", Value: mustValue(t, match)}

	next, err := Apply(tree, op)
	require.NoError(t, err)
	require.Len(t, next.Rounds[0].Matches, 2)

	t.Run("duplicate match id is a no-op", func(t *testing.T) {
		again, err := Apply(next, op)
		require.NoError(t, err)
		assert.Len(t, again.Rounds[0].Matches, 2)
	})

	t.Run("unknown round fails", func(t *testing.T) {
		bad := op
		bad.Path = "/rounds/round-9/matches"
		_, err := Apply(tree, bad)
		assert.ErrorIs(t, err, ErrOpPath)
	})
}

func TestApplyReplaceMatchKeepsID(t *testing.T) {
	tree := baseTree()
	replacement := models.Match{ID: "spoofed", TeamA: []string{"u3"}, TeamB: []string{"u4"}}
	op := models.Op{Type: models.OpReplace, Path: "/rounds/round-1/matches/match-1",
		Value: mustValue(t, replacement)}

	next, err := Apply(tree, op)
	require.NoError(t, err)
	m := next.Rounds[0].Matches[0]
	assert.Equal(t, "match-1", m.ID)
	assert.Equal(t, []string{"u3"}, m.TeamA)
}

func TestApplyRemoveMatch(t *testing.T) {
	tree := baseTree()
	op := models.Op{Type: models.OpRemove, Path: "/rounds/round-1/matches/match-1"}

	next, err := Apply(tree, op)
	require.NoError(t, err)
	assert.Empty(t, next.Rounds[0].Matches)

	again, err := Apply(next, op)
	require.NoError(t, err)
	assert.Empty(t, again.Rounds[0].Matches)
}

func TestApplyReplaceSets(t *testing.T) {
	tree := baseTree()
	sets := []models.Set{{TeamA: 6, TeamB: 4}, {}}
	op := models.Op{Type: models.OpReplace, Path: "/rounds/round-1/matches/match-1/sets",
		Value: mustValue(t, sets)}

	next, err := Apply(tree, op)
	require.NoError(t, err)
	assert.Equal(t, sets, next.Rounds[0].Matches[0].Sets)
}

func TestApplyReplaceCourt(t *testing.T) {
	tree := baseTree()
	op := models.Op{Type: models.OpReplace, Path: "/rounds/round-1/matches/match-1/courtId",
		Value: mustValue(t, "court-3")}

	next, err := Apply(tree, op)
	require.NoError(t, err)
	assert.Equal(t, "court-3", next.Rounds[0].Matches[0].CourtID)
}

func TestApplyTeamMembership(t *testing.T) {
	tree := baseTree()

	add := models.Op{Type: models.OpAdd, Path: "/rounds/round-1/matches/match-1/teamB",
		Value: mustValue(t, "u3")}
	next, err := Apply(tree, add)
	require.NoError(t, err)
	assert.Equal(t, []string{"u2", "u3"}, next.Rounds[0].Matches[0].TeamB)

	t.Run("adding a player already in the match is a no-op", func(t *testing.T) {
		dup := add
		dup.Path = "/rounds/round-1/matches/match-1/teamA"
		again, err := Apply(next, dup)
		require.NoError(t, err)
		assert.Equal(t, []string{"u1"}, again.Rounds[0].Matches[0].TeamA)
		assert.Equal(t, []string{"u2", "u3"}, again.Rounds[0].Matches[0].TeamB)
	})

	t.Run("remove by path segment", func(t *testing.T) {
		remove := models.Op{Type: models.OpRemove, Path: "/rounds/round-1/matches/match-1/teamB/u3"}
		out, err := Apply(next, remove)
		require.NoError(t, err)
		assert.Equal(t, []string{"u2"}, out.Rounds[0].Matches[0].TeamB)

		again, err := Apply(out, remove)
		require.NoError(t, err)
		assert.Equal(t, []string{"u2"}, again.Rounds[0].Matches[0].TeamB)
	})
}

func TestApplyRejectsBadOps(t *testing.T) {
	tree := baseTree()
	tests := []struct {
		name    string
		op      models.Op
		wantErr error
	}{
		{"empty path", models.Op{Type: models.OpAdd, Path: ""}, ErrOpPath},
		{"not rounds", models.Op{Type: models.OpAdd, Path: "/games/1"}, ErrOpPath},
		{"remove on rounds collection", models.Op{Type: models.OpRemove, Path: "/rounds"}, ErrOpUnsupported},
		{"add on single round", models.Op{Type: models.OpAdd, Path: "/rounds/round-1"}, ErrOpUnsupported},
		{"replace on matches collection", models.Op{Type: models.OpReplace, Path: "/rounds/round-1/matches"}, ErrOpUnsupported},
		{"unknown field", models.Op{Type: models.OpReplace, Path: "/rounds/round-1/matches/match-1/score"}, ErrOpPath},
		{"bad team name", models.Op{Type: models.OpRemove, Path: "/rounds/round-1/matches/match-1/teamC/u1"}, ErrOpUnsupported},
		{"garbage value", models.Op{Type: models.OpReplace, Path: "/rounds/round-1/matches/match-1/sets",
			Value: json.RawMessage(`{"not":"a list"}`)}, ErrOpValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply(tree, tt.op)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReplay(t *testing.T) {
	queue := []models.PendingOperation{
		{Op: models.Op{ID: "op-1", Type: models.OpAdd, Path: "/rounds",
			Value: mustValue(t, models.Round{ID: "round-2"})}},
		{Op: models.Op{ID: "op-2", Type: models.OpReplace, Path: "/rounds/round-1/matches/match-1/sets",
			Value: mustValue(t, []models.Set{{TeamA: 6, TeamB: 2}})}},
	}

	t.Run("folds the queue in order", func(t *testing.T) {
		out, err := Replay(baseTree(), queue)
		require.NoError(t, err)
		assert.Len(t, out.Rounds, 2)
		assert.Equal(t, 6, out.Rounds[0].Matches[0].Sets[0].TeamA)
	})

	t.Run("is reproducible", func(t *testing.T) {
		first, err := Replay(baseTree(), queue)
		require.NoError(t, err)
		second, err := Replay(baseTree(), queue)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("skips ops already folded into the snapshot", func(t *testing.T) {
		applied := []models.PendingOperation{
			{Op: queue[0].Op, AppliedLocally: true},
			{Op: queue[1].Op},
		}
		out, err := Replay(baseTree(), applied)
		require.NoError(t, err)
		assert.Len(t, out.Rounds, 1)
		assert.Equal(t, 6, out.Rounds[0].Matches[0].Sets[0].TeamA)
	})

	t.Run("surfaces the failing op id", func(t *testing.T) {
		bad := []models.PendingOperation{
			{Op: models.Op{ID: "op-bad", Type: models.OpRemove, Path: "/rounds"}},
		}
		_, err := Replay(baseTree(), bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "op-bad")
	})
}

func TestTeamHelpers(t *testing.T) {
	assert.True(t, TeamA.Valid())
	assert.True(t, TeamB.Valid())
	assert.False(t, Team("teamC").Valid())
	assert.Equal(t, TeamB, TeamA.Other())
	assert.Equal(t, TeamA, TeamB.Other())
}
