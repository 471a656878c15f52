package rounds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/results-engine/models"
)

func playingRoster(ids ...string) []models.Participant {
	out := make([]models.Participant, len(ids))
	for i, id := range ids {
		out[i] = models.Participant{UserID: id, Role: models.RoleMember, IsPlaying: true}
	}
	return out
}

func courts(ids ...string) []models.GameCourt {
	out := make([]models.GameCourt, len(ids))
	for i, id := range ids {
		out[i] = models.GameCourt{CourtID: id, Order: i + 1}
	}
	return out
}

// roundPlayers collects every player seated in the round and fails on
// duplicates, since no player may appear on two courts at once.
func roundPlayers(t *testing.T, round *models.Round) map[string]bool {
	t.Helper()
	seen := make(map[string]bool)
	for _, m := range round.Matches {
		for _, id := range append(append([]string(nil), m.TeamA...), m.TeamB...) {
			require.False(t, seen[id], "player %s seated twice", id)
			seen[id] = true
		}
	}
	return seen
}

func TestForType(t *testing.T) {
	types := []models.MatchGenerationType{
		models.GenerationHandmade,
		models.GenerationFixed,
		models.GenerationRandom,
		models.GenerationRoundRobin,
		models.GenerationEscalera,
		models.GenerationRating,
		models.GenerationWinnersCourt,
	}
	for _, typ := range types {
		t.Run(string(typ), func(t *testing.T) {
			gen, err := ForType(typ)
			require.NoError(t, err)
			assert.Equal(t, typ, gen.Name())
		})
	}

	t.Run("empty type falls back to handmade", func(t *testing.T) {
		gen, err := ForType("")
		require.NoError(t, err)
		assert.Equal(t, models.GenerationHandmade, gen.Name())
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := ForType("BRACKET")
		assert.ErrorIs(t, err, ErrUnknownGeneration)
	})
}

func TestPositionIdentifiers(t *testing.T) {
	assert.Equal(t, "round-1", RoundID(1))
	assert.Equal(t, "round-3", RoundID(3))
	assert.Equal(t, "match-1", MatchID(0, 0))
	assert.Equal(t, "match-5", MatchID(3, 1))
}

func TestInitialSets(t *testing.T) {
	t.Run("fixed count seeds all sets", func(t *testing.T) {
		sets := InitialSets(3)
		require.Len(t, sets, 3)
		for _, s := range sets {
			assert.True(t, s.IsOpen())
		}
	})

	t.Run("unbounded starts with one open set", func(t *testing.T) {
		sets := InitialSets(0)
		require.Len(t, sets, 1)
		assert.True(t, sets[0].IsOpen())
	})
}

func TestHandmadeGenerator(t *testing.T) {
	game := &models.Game{FixedNumberOfSets: 2}
	gen := NewHandmadeGenerator()

	round, err := gen.GenerateNextRound(GenerateRoundParams{
		Game: game, RoundNumber: 1, RoundName: "Round 1",
	})
	require.NoError(t, err)
	assert.Equal(t, "round-1", round.ID)
	assert.Equal(t, "Round 1", round.Name)
	require.Len(t, round.Matches, 1)
	assert.Equal(t, "match-1", round.Matches[0].ID)
	assert.Empty(t, round.Matches[0].TeamA)
	assert.Empty(t, round.Matches[0].TeamB)
	assert.Len(t, round.Matches[0].Sets, 2)

	history := []models.Round{*round}
	second, err := gen.GenerateNextRound(GenerateRoundParams{
		Game: game, History: history, RoundNumber: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "round-2", second.ID)
	assert.Equal(t, "match-2", second.Matches[0].ID)
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator()
	game := &models.Game{FixedNumberOfSets: 0}

	t.Run("first round is a single empty match", func(t *testing.T) {
		round, err := gen.GenerateNextRound(GenerateRoundParams{Game: game, RoundNumber: 1})
		require.NoError(t, err)
		require.Len(t, round.Matches, 1)
		assert.Empty(t, round.Matches[0].TeamA)
	})

	t.Run("carries teams and first-round courts forward", func(t *testing.T) {
		history := []models.Round{{
			ID: "round-1",
			Matches: []models.Match{
				{ID: "match-1", TeamA: []string{"a", "b"}, TeamB: []string{"c", "d"}, CourtID: "court-1"},
				{ID: "match-2", TeamA: []string{"e", "f"}, TeamB: []string{"g", "h"}, CourtID: "court-2"},
			},
		}}
		round, err := gen.GenerateNextRound(GenerateRoundParams{
			Game: game, History: history, RoundNumber: 2,
		})
		require.NoError(t, err)
		require.Len(t, round.Matches, 2)
		assert.Equal(t, []string{"a", "b"}, round.Matches[0].TeamA)
		assert.Equal(t, []string{"c", "d"}, round.Matches[0].TeamB)
		assert.Equal(t, "court-1", round.Matches[0].CourtID)
		assert.Equal(t, "court-2", round.Matches[1].CourtID)
		assert.Equal(t, "match-3", round.Matches[0].ID)
		assert.Equal(t, "match-4", round.Matches[1].ID)
	})
}

func TestRandomGenerator(t *testing.T) {
	gen := NewRandomGenerator()

	t.Run("rejects short rosters", func(t *testing.T) {
		game := &models.Game{Participants: playingRoster("a", "b", "c")}
		_, err := gen.GenerateNextRound(GenerateRoundParams{Game: game, RoundNumber: 1})
		assert.ErrorIs(t, err, ErrNotEnoughPlayers)
	})

	t.Run("seats everyone once with a full roster", func(t *testing.T) {
		game := &models.Game{
			Participants: playingRoster("a", "b", "c", "d", "e", "f", "g", "h"),
			GameCourts:   courts("court-1", "court-2"),
		}
		round, err := gen.GenerateNextRound(GenerateRoundParams{Game: game, RoundNumber: 1})
		require.NoError(t, err)
		require.Len(t, round.Matches, 2)
		seen := roundPlayers(t, round)
		assert.Len(t, seen, 8)
		assert.Equal(t, "court-1", round.Matches[0].CourtID)
		assert.Equal(t, "court-2", round.Matches[1].CourtID)
	})

	t.Run("avoids repeating partners when possible", func(t *testing.T) {
		game := &models.Game{
			Participants: playingRoster("a", "b", "c", "d"),
			GameCourts:   courts("court-1"),
		}
		history := []models.Round{{
			ID: "round-1",
			Matches: []models.Match{
				{ID: "match-1", TeamA: []string{"a", "b"}, TeamB: []string{"c", "d"}},
			},
		}}
		round, err := gen.GenerateNextRound(GenerateRoundParams{
			Game: game, History: history, RoundNumber: 2,
		})
		require.NoError(t, err)
		require.Len(t, round.Matches, 1)
		m := round.Matches[0]
		assert.NotEqual(t, pairKey("a", "b"), pairKey(m.TeamA[0], m.TeamA[1]))
		assert.NotEqual(t, pairKey("c", "d"), pairKey(m.TeamA[0], m.TeamA[1]))
	})

	t.Run("fixed teams stay intact", func(t *testing.T) {
		game := &models.Game{
			Participants:  playingRoster("a", "b", "c", "d", "e", "f", "g", "h"),
			HasFixedTeams: true,
			FixedTeams: []models.FixedTeam{
				{ID: "t1", PlayerIDs: []string{"a", "b"}},
				{ID: "t2", PlayerIDs: []string{"c", "d"}},
				{ID: "t3", PlayerIDs: []string{"e", "f"}},
				{ID: "t4", PlayerIDs: []string{"g", "h"}},
			},
			GameCourts: courts("court-1", "court-2"),
		}
		round, err := gen.GenerateNextRound(GenerateRoundParams{Game: game, RoundNumber: 1})
		require.NoError(t, err)
		require.Len(t, round.Matches, 2)
		wantTeams := map[string]bool{
			pairKey("a", "b"): true, pairKey("c", "d"): true,
			pairKey("e", "f"): true, pairKey("g", "h"): true,
		}
		for _, m := range round.Matches {
			assert.True(t, wantTeams[pairKey(m.TeamA[0], m.TeamA[1])])
			assert.True(t, wantTeams[pairKey(m.TeamB[0], m.TeamB[1])])
		}
	})
}

func TestRoundRobinGenerator(t *testing.T) {
	gen := NewRoundRobinGenerator()

	t.Run("singles schedule covers every pairing exactly once", func(t *testing.T) {
		game := &models.Game{
			Participants: playingRoster("a", "b", "c", "d"),
			GameCourts:   courts("court-1", "court-2"),
		}
		var history []models.Round
		met := make(map[string]int)
		for i := 1; i <= 3; i++ {
			round, err := gen.GenerateNextRound(GenerateRoundParams{
				Game: game, History: history, RoundNumber: i,
			})
			require.NoError(t, err)
			require.Len(t, round.Matches, 2)
			roundPlayers(t, round)
			for _, m := range round.Matches {
				met[pairKey(m.TeamA[0], m.TeamB[0])]++
			}
			history = append(history, *round)
		}
		assert.Len(t, met, 6)
		for pair, n := range met {
			assert.Equal(t, 1, n, "pair %s", pair)
		}
	})

	t.Run("odd side count sits one out per round", func(t *testing.T) {
		game := &models.Game{Participants: playingRoster("a", "b", "c")}
		round, err := gen.GenerateNextRound(GenerateRoundParams{Game: game, RoundNumber: 1})
		require.NoError(t, err)
		assert.Len(t, round.Matches, 1)
	})

	t.Run("schedule wraps after completion", func(t *testing.T) {
		game := &models.Game{Participants: playingRoster("a", "b")}
		first, err := gen.GenerateNextRound(GenerateRoundParams{Game: game, RoundNumber: 1})
		require.NoError(t, err)
		history := []models.Round{*first}
		second, err := gen.GenerateNextRound(GenerateRoundParams{
			Game: game, History: history, RoundNumber: 2,
		})
		require.NoError(t, err)
		assert.Equal(t, first.Matches[0].TeamA, second.Matches[0].TeamA)
		assert.Equal(t, first.Matches[0].TeamB, second.Matches[0].TeamB)
	})

	t.Run("fixed teams pair as sides", func(t *testing.T) {
		game := &models.Game{
			HasFixedTeams: true,
			FixedTeams: []models.FixedTeam{
				{ID: "t1", PlayerIDs: []string{"a", "b"}},
				{ID: "t2", PlayerIDs: []string{"c", "d"}},
			},
			GameCourts: courts("court-1"),
		}
		round, err := gen.GenerateNextRound(GenerateRoundParams{Game: game, RoundNumber: 1})
		require.NoError(t, err)
		require.Len(t, round.Matches, 1)
		assert.Equal(t, []string{"a", "b"}, round.Matches[0].TeamA)
		assert.Equal(t, []string{"c", "d"}, round.Matches[0].TeamB)
	})
}

func TestEscaleraGenerator(t *testing.T) {
	gen := NewEscaleraGenerator()

	t.Run("first round seats four per court", func(t *testing.T) {
		game := &models.Game{
			Participants: playingRoster("a", "b", "c", "d", "e", "f", "g", "h"),
			GameCourts:   courts("court-1", "court-2"),
		}
		round, err := gen.GenerateNextRound(GenerateRoundParams{Game: game, RoundNumber: 1})
		require.NoError(t, err)
		require.Len(t, round.Matches, 2)
		seen := roundPlayers(t, round)
		assert.Len(t, seen, 8)
		for _, m := range round.Matches {
			assert.Len(t, m.TeamA, 2)
			assert.Len(t, m.TeamB, 2)
		}
	})

	t.Run("rotation keeps a winner on top and sends a loser down", func(t *testing.T) {
		game := &models.Game{
			Participants: playingRoster("a", "b", "c", "d", "e", "f", "g", "h"),
			GameCourts:   courts("court-1", "court-2"),
		}
		history := []models.Round{{
			ID: "round-1",
			Matches: []models.Match{
				{ID: "match-1", TeamA: []string{"a", "b"}, TeamB: []string{"c", "d"},
					Sets: []models.Set{{TeamA: 6, TeamB: 2}}, CourtID: "court-1"},
				{ID: "match-2", TeamA: []string{"e", "f"}, TeamB: []string{"g", "h"},
					Sets: []models.Set{{TeamA: 6, TeamB: 3}}, CourtID: "court-2"},
			},
		}}
		round, err := gen.GenerateNextRound(GenerateRoundParams{
			Game: game, History: history, RoundNumber: 2,
		})
		require.NoError(t, err)
		require.Len(t, round.Matches, 2)
		seen := roundPlayers(t, round)
		assert.Len(t, seen, 8)

		topPlayers := append(append([]string(nil), round.Matches[0].TeamA...), round.Matches[0].TeamB...)
		topSet := make(map[string]bool)
		for _, id := range topPlayers {
			topSet[id] = true
		}
		// Court 1 keeps both of its winners (a and b) plus one winner
		// promoted from court 2 (e or f) and one of its own losers.
		assert.True(t, topSet["a"])
		assert.True(t, topSet["b"])
		assert.True(t, topSet["e"] || topSet["f"])
		assert.True(t, topSet["c"] || topSet["d"])

		bottomPlayers := append(append([]string(nil), round.Matches[1].TeamA...), round.Matches[1].TeamB...)
		bottomSet := make(map[string]bool)
		for _, id := range bottomPlayers {
			bottomSet[id] = true
		}
		// Court 2 keeps both of its losers (g and h).
		assert.True(t, bottomSet["g"])
		assert.True(t, bottomSet["h"])
	})

	t.Run("rejects short rosters", func(t *testing.T) {
		game := &models.Game{Participants: playingRoster("a", "b", "c")}
		_, err := gen.GenerateNextRound(GenerateRoundParams{Game: game, RoundNumber: 1})
		assert.ErrorIs(t, err, ErrNotEnoughPlayers)
	})
}

func TestRatingGenerator(t *testing.T) {
	gen := NewRatingGenerator()

	t.Run("later rounds seat by standings 1&3 vs 2&4", func(t *testing.T) {
		game := &models.Game{
			Participants: playingRoster("a", "b", "c", "d"),
			GameCourts:   courts("court-1"),
		}
		// a and b won big, c and d lost. Standings order: a, b, c, d
		// (a and b split by score delta via team totals being equal,
		// roster order keeps the sort stable).
		history := []models.Round{{
			ID: "round-1",
			Matches: []models.Match{
				{ID: "match-1", TeamA: []string{"a", "b"}, TeamB: []string{"c", "d"},
					Sets: []models.Set{{TeamA: 6, TeamB: 1}}},
			},
		}}
		round, err := gen.GenerateNextRound(GenerateRoundParams{
			Game: game, History: history, RoundNumber: 2,
		})
		require.NoError(t, err)
		require.Len(t, round.Matches, 1)
		m := round.Matches[0]
		assert.Equal(t, []string{"a", "c"}, m.TeamA)
		assert.Equal(t, []string{"b", "d"}, m.TeamB)
	})

	t.Run("first round shuffles but seats everyone", func(t *testing.T) {
		game := &models.Game{
			Participants: playingRoster("a", "b", "c", "d", "e", "f", "g", "h"),
			GameCourts:   courts("court-1", "court-2"),
		}
		round, err := gen.GenerateNextRound(GenerateRoundParams{Game: game, RoundNumber: 1})
		require.NoError(t, err)
		require.Len(t, round.Matches, 2)
		assert.Len(t, roundPlayers(t, round), 8)
	})
}

func TestWinnersCourtGenerator(t *testing.T) {
	gen := NewWinnersCourtGenerator()

	t.Run("first round seeds by level", func(t *testing.T) {
		participants := playingRoster("a", "b", "c", "d", "e", "f", "g", "h")
		for i := range participants {
			participants[i].Level = float64(len(participants) - i)
		}
		game := &models.Game{
			Participants: participants,
			GameCourts:   courts("court-1", "court-2"),
		}
		round, err := gen.GenerateNextRound(GenerateRoundParams{Game: game, RoundNumber: 1})
		require.NoError(t, err)
		require.Len(t, round.Matches, 2)
		// Strongest four land on court 1: a&c vs b&d.
		assert.Equal(t, []string{"a", "c"}, round.Matches[0].TeamA)
		assert.Equal(t, []string{"b", "d"}, round.Matches[0].TeamB)
		assert.Equal(t, "court-1", round.Matches[0].CourtID)
		assert.Equal(t, []string{"e", "g"}, round.Matches[1].TeamA)
	})

	t.Run("winners from court 2 promote to court 1", func(t *testing.T) {
		game := &models.Game{
			Participants: playingRoster("a", "b", "c", "d", "e", "f", "g", "h"),
			GameCourts:   courts("court-1", "court-2"),
		}
		history := []models.Round{{
			ID: "round-1",
			Matches: []models.Match{
				{ID: "match-1", TeamA: []string{"a", "b"}, TeamB: []string{"c", "d"},
					Sets: []models.Set{{TeamA: 6, TeamB: 2}}, CourtID: "court-1"},
				{ID: "match-2", TeamA: []string{"e", "f"}, TeamB: []string{"g", "h"},
					Sets: []models.Set{{TeamA: 6, TeamB: 4}}, CourtID: "court-2"},
			},
		}}
		round, err := gen.GenerateNextRound(GenerateRoundParams{
			Game: game, History: history, RoundNumber: 2,
		})
		require.NoError(t, err)
		require.Len(t, round.Matches, 2)
		// Court 1: its winners split and mix with court 2's winners.
		assert.Equal(t, []string{"a", "e"}, round.Matches[0].TeamA)
		assert.Equal(t, []string{"b", "f"}, round.Matches[0].TeamB)
		assert.Equal(t, "court-1", round.Matches[0].CourtID)
		// Bottom court: its losers split and mix with the demoted losers.
		assert.Equal(t, []string{"g", "c"}, round.Matches[1].TeamA)
		assert.Equal(t, []string{"h", "d"}, round.Matches[1].TeamB)
		roundPlayers(t, round)
	})
}

func TestStandings(t *testing.T) {
	game := &models.Game{Participants: playingRoster("a", "b", "c", "d")}
	history := []models.Round{
		{
			ID: "round-1",
			Matches: []models.Match{
				{ID: "match-1", TeamA: []string{"a", "b"}, TeamB: []string{"c", "d"},
					Sets: []models.Set{{TeamA: 6, TeamB: 3}}},
			},
		},
		{
			ID: "round-2",
			Matches: []models.Match{
				{ID: "match-2", TeamA: []string{"a", "c"}, TeamB: []string{"b", "d"},
					Sets: []models.Set{{TeamA: 6, TeamB: 4}}},
			},
		},
	}

	standings := Standings(game, history)
	require.Len(t, standings, 4)

	// a won both matches.
	assert.Equal(t, "a", standings[0].UserID)
	assert.Equal(t, 2, standings[0].Wins)
	assert.Equal(t, 12, standings[0].ScoresMade)
	assert.Equal(t, 7, standings[0].ScoresLost)

	// b and c each have one win; b's delta is +1, c's is -1.
	assert.Equal(t, "b", standings[1].UserID)
	assert.Equal(t, "c", standings[2].UserID)

	// d lost both.
	assert.Equal(t, "d", standings[3].UserID)
	assert.Equal(t, 2, standings[3].Losses)
}

func TestStandingsIgnoresUnscoredMatches(t *testing.T) {
	game := &models.Game{Participants: playingRoster("a", "b", "c", "d")}
	history := []models.Round{{
		ID: "round-1",
		Matches: []models.Match{
			{ID: "match-1", TeamA: []string{"a", "b"}, TeamB: []string{"c", "d"},
				Sets: []models.Set{{}}},
		},
	}}
	for _, s := range Standings(game, history) {
		assert.Zero(t, s.Wins)
		assert.Zero(t, s.Losses)
		assert.Zero(t, s.Ties)
	}
}
