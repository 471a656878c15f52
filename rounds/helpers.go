package rounds

import (
	"math/rand"
	"sort"

	"github.com/Dosada05/results-engine/models"
)

func shuffle[T any](rng *rand.Rand, items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// eligibleParticipants returns the playing roster, ordered as declared on
// the game.
func eligibleParticipants(game *models.Game) []models.Participant {
	return game.PlayingParticipants()
}

// numMatchesFor caps the round size by available courts and by roster size
// (four players per doubles match).
func numMatchesFor(game *models.Game, roster []models.Participant) int {
	numCourts := len(game.GameCourts)
	if numCourts == 0 {
		numCourts = 1
	}
	byRoster := len(roster) / 4
	if byRoster < numCourts {
		return byRoster
	}
	return numCourts
}

// sortedCourts returns the game's courts in display order.
func sortedCourts(game *models.Game) []models.GameCourt {
	courts := append([]models.GameCourt(nil), game.GameCourts...)
	sort.Slice(courts, func(i, j int) bool { return courts[i].Order < courts[j].Order })
	return courts
}

func pairKey(p1, p2 string) string {
	if p1 < p2 {
		return p1 + "|" + p2
	}
	return p2 + "|" + p1
}

// pairUsageHistory counts how many rounds each player pair has already
// shared a team, so random seeding can minimise repeats.
func pairUsageHistory(history []models.Round) map[string]int {
	counts := make(map[string]int)
	bump := func(team []string) {
		if len(team) >= 2 {
			counts[pairKey(team[0], team[1])]++
		}
	}
	for _, round := range history {
		for _, match := range round.Matches {
			bump(match.TeamA)
			bump(match.TeamB)
		}
	}
	return counts
}

// courtResult holds the winning and losing side of one completed match,
// ordered by court position.
type courtResult struct {
	winners []string
	losers  []string
}

// courtResults derives winners and losers per court from the last round.
// Ties fall to team A, matching how the entry UI breaks them.
func courtResults(previous *models.Round) []courtResult {
	results := make([]courtResult, 0, len(previous.Matches))
	for i := range previous.Matches {
		match := &previous.Matches[i]
		if !match.HasPlayers() {
			continue
		}
		scoreA, scoreB := match.TotalPoints()
		cr := courtResult{}
		if scoreB > scoreA {
			cr.winners = append([]string(nil), match.TeamB...)
			cr.losers = append([]string(nil), match.TeamA...)
		} else {
			cr.winners = append([]string(nil), match.TeamA...)
			cr.losers = append([]string(nil), match.TeamB...)
		}
		results = append(results, cr)
	}
	return results
}

// buildMatch assembles a seeded match with its court and initial sets.
func buildMatch(id string, teamA, teamB []string, courtID string, fixedNumberOfSets int) models.Match {
	return models.Match{
		ID:      id,
		TeamA:   append([]string(nil), teamA...),
		TeamB:   append([]string(nil), teamB...),
		Sets:    InitialSets(fixedNumberOfSets),
		CourtID: courtID,
	}
}

func courtIDAt(courts []models.GameCourt, i int) string {
	if i >= 0 && i < len(courts) {
		return courts[i].CourtID
	}
	return ""
}
