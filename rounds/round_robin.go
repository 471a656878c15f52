package rounds

import (
	"github.com/Dosada05/results-engine/models"
)

// RoundRobinGenerator schedules every side against every other side exactly
// once using the circle method. Sides are the game's fixed teams when
// present, individual players otherwise (singles play). The round number
// selects the slice of the precomputed schedule, so the full schedule stays
// stable as rounds are added.
type RoundRobinGenerator struct{}

func NewRoundRobinGenerator() Generator {
	return &RoundRobinGenerator{}
}

func (g *RoundRobinGenerator) Name() models.MatchGenerationType {
	return models.GenerationRoundRobin
}

func (g *RoundRobinGenerator) GenerateNextRound(params GenerateRoundParams) (*models.Round, error) {
	game := params.Game
	sides := robinSides(game)
	if len(sides) < 2 {
		return nil, ErrNotEnoughPlayers
	}

	schedule := circleSchedule(len(sides))
	roundIdx := len(params.History) % len(schedule)
	courts := sortedCourts(game)

	totalMatches := 0
	for _, r := range params.History {
		totalMatches += len(r.Matches)
	}

	round := &models.Round{ID: RoundID(params.RoundNumber), Name: params.RoundName}
	for i, pairing := range schedule[roundIdx] {
		m := buildMatch(MatchID(totalMatches, i), sides[pairing[0]], sides[pairing[1]],
			courtIDAt(courts, i), game.FixedNumberOfSets)
		round.Matches = append(round.Matches, m)
	}
	return round, nil
}

func robinSides(game *models.Game) [][]string {
	if game.HasFixedTeams && len(game.FixedTeams) > 0 {
		sides := make([][]string, 0, len(game.FixedTeams))
		for _, t := range game.FixedTeams {
			if len(t.PlayerIDs) > 0 {
				sides = append(sides, append([]string(nil), t.PlayerIDs...))
			}
		}
		return sides
	}
	roster := eligibleParticipants(game)
	sides := make([][]string, 0, len(roster))
	for _, p := range roster {
		sides = append(sides, []string{p.UserID})
	}
	return sides
}

// circleSchedule returns, per schedule round, the index pairings of a
// single round robin over n sides. With an odd n one side sits out each
// round (the pairing against the phantom index is skipped).
func circleSchedule(n int) [][][2]int {
	size := n
	if size%2 == 1 {
		size++
	}
	idx := make([]int, size)
	for i := range idx {
		idx[i] = i
	}

	var schedule [][][2]int
	for r := 0; r < size-1; r++ {
		var pairings [][2]int
		for i := 0; i < size/2; i++ {
			a, b := idx[i], idx[size-1-i]
			if a < n && b < n {
				pairings = append(pairings, [2]int{a, b})
			}
		}
		schedule = append(schedule, pairings)

		// Rotate all but the first element.
		last := idx[size-1]
		copy(idx[2:], idx[1:size-1])
		idx[1] = last
	}
	return schedule
}
