package rounds

import (
	"math/rand"

	"github.com/Dosada05/results-engine/models"
)

// RandomGenerator builds doubles pairings that minimise how often the same
// two players share a team across the game. With fixed teams it picks the
// least-recently-matched team pairs instead of forming new ones.
type RandomGenerator struct {
	rng *rand.Rand
}

func NewRandomGenerator() Generator {
	return &RandomGenerator{rng: newRNG()}
}

func (g *RandomGenerator) Name() models.MatchGenerationType {
	return models.GenerationRandom
}

func (g *RandomGenerator) GenerateNextRound(params GenerateRoundParams) (*models.Round, error) {
	game := params.Game
	round := &models.Round{ID: RoundID(params.RoundNumber), Name: params.RoundName}

	roster := eligibleParticipants(game)
	if len(roster) < 4 {
		return nil, ErrNotEnoughPlayers
	}

	numMatches := numMatchesFor(game, roster)
	courts := sortedCourts(game)

	var pairs [][]string
	if game.HasFixedTeams && len(game.FixedTeams) > 0 {
		pairs = g.pickFixedTeamPairs(game, params.History, numMatches)
	} else {
		pairs = g.buildFreshPairs(roster, params.History, numMatches)
	}

	totalMatches := 0
	for _, r := range params.History {
		totalMatches += len(r.Matches)
	}

	actualMatches := len(pairs) / 2
	for i := 0; i < actualMatches; i++ {
		m := buildMatch(MatchID(totalMatches, i), pairs[i*2], pairs[i*2+1],
			courtIDAt(courts, i), game.FixedNumberOfSets)
		round.Matches = append(round.Matches, m)
	}
	return round, nil
}

// buildFreshPairs greedily selects the pair with the lowest usage count
// among the players still unseated this round.
func (g *RandomGenerator) buildFreshPairs(roster []models.Participant, history []models.Round, numMatches int) [][]string {
	players := make([]string, len(roster))
	for i, p := range roster {
		players[i] = p.UserID
	}
	players = shuffle(g.rng, players)

	usage := pairUsageHistory(history)
	seated := make(map[string]bool)
	neededPairs := numMatches * 2
	var pairs [][]string

	for len(pairs) < neededPairs {
		var available []string
		for _, p := range players {
			if !seated[p] {
				available = append(available, p)
			}
		}
		if len(available) < 2 {
			break
		}

		var best []string
		minUsage := int(^uint(0) >> 1)
		for i := 0; i < len(available)-1; i++ {
			for j := i + 1; j < len(available); j++ {
				if n := usage[pairKey(available[i], available[j])]; n < minUsage {
					minUsage = n
					best = []string{available[i], available[j]}
				}
			}
		}
		if best == nil {
			break
		}
		pairs = append(pairs, best)
		seated[best[0]] = true
		seated[best[1]] = true
		usage[pairKey(best[0], best[1])]++
	}
	return pairs
}

// pickFixedTeamPairs selects which pre-assigned teams sit this round,
// favouring teams that have played the least together so far.
func (g *RandomGenerator) pickFixedTeamPairs(game *models.Game, history []models.Round, numMatches int) [][]string {
	usage := pairUsageHistory(history)

	teams := make([][]string, 0, len(game.FixedTeams))
	for _, t := range game.FixedTeams {
		if len(t.PlayerIDs) >= 2 {
			teams = append(teams, append([]string(nil), t.PlayerIDs...))
		}
	}
	teams = shuffle(g.rng, teams)

	used := make(map[int]bool)
	var selected [][]string
	limit := numMatches * 2
	if limit > len(teams) {
		limit = len(teams)
	}
	for len(selected) < limit {
		bestIdx := -1
		minUsage := int(^uint(0) >> 1)
		for i, team := range teams {
			if used[i] {
				continue
			}
			if n := usage[pairKey(team[0], team[1])]; n < minUsage {
				minUsage = n
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			break
		}
		selected = append(selected, teams[bestIdx])
		used[bestIdx] = true
	}
	return selected
}
