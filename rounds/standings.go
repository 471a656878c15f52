package rounds

import (
	"sort"

	"github.com/Dosada05/results-engine/models"
)

// PlayerStanding is one row of the in-progress leaderboard derived from the
// round history. Rating-based seeding consumes the ordering.
type PlayerStanding struct {
	UserID      string
	Wins        int
	Ties        int
	Losses      int
	ScoresMade  int
	ScoresLost  int
	ScoresDelta int
}

// Standings computes the leaderboard over all completed matches: wins
// first, then score delta, then scores made. Matches without any scored set
// are ignored.
func Standings(game *models.Game, history []models.Round) []PlayerStanding {
	stats := make(map[string]*PlayerStanding)
	order := make([]string, 0, len(game.Participants))
	for _, p := range game.PlayingParticipants() {
		stats[p.UserID] = &PlayerStanding{UserID: p.UserID}
		order = append(order, p.UserID)
	}

	for _, round := range history {
		for i := range round.Matches {
			match := &round.Matches[i]
			if !match.HasPlayers() {
				continue
			}
			scoreA, scoreB := match.TotalPoints()
			if scoreA == 0 && scoreB == 0 {
				continue
			}
			record(stats, match.TeamA, scoreA, scoreB)
			record(stats, match.TeamB, scoreB, scoreA)
		}
	}

	out := make([]PlayerStanding, 0, len(order))
	for _, id := range order {
		out = append(out, *stats[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Wins != out[j].Wins {
			return out[i].Wins > out[j].Wins
		}
		if out[i].ScoresDelta != out[j].ScoresDelta {
			return out[i].ScoresDelta > out[j].ScoresDelta
		}
		return out[i].ScoresMade > out[j].ScoresMade
	})
	return out
}

func record(stats map[string]*PlayerStanding, team []string, made, lost int) {
	for _, id := range team {
		s, ok := stats[id]
		if !ok {
			continue
		}
		s.ScoresMade += made
		s.ScoresLost += lost
		s.ScoresDelta += made - lost
		switch {
		case made > lost:
			s.Wins++
		case made < lost:
			s.Losses++
		default:
			s.Ties++
		}
	}
}
