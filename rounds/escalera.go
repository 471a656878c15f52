package rounds

import (
	"math/rand"

	"github.com/Dosada05/results-engine/models"
)

// EscaleraGenerator implements the ladder rotation: after each round one
// winner per court moves up and one loser moves down, with the top court
// keeping both winners and the bottom court keeping both losers. The four
// players on each court then form cross-teams by arrival order.
type EscaleraGenerator struct {
	rng *rand.Rand
}

func NewEscaleraGenerator() Generator {
	return &EscaleraGenerator{rng: newRNG()}
}

func (g *EscaleraGenerator) Name() models.MatchGenerationType {
	return models.GenerationEscalera
}

func (g *EscaleraGenerator) GenerateNextRound(params GenerateRoundParams) (*models.Round, error) {
	game := params.Game
	roster := eligibleParticipants(game)
	if len(roster) < 4 {
		return nil, ErrNotEnoughPlayers
	}

	numMatches := numMatchesFor(game, roster)
	if numMatches == 0 {
		return nil, ErrNotEnoughPlayers
	}
	courts := sortedCourts(game)

	totalMatches := 0
	for _, r := range params.History {
		totalMatches += len(r.Matches)
	}

	round := &models.Round{ID: RoundID(params.RoundNumber), Name: params.RoundName}

	var courtSeats [][]string
	if prev := lastRoundWithResults(params.History); prev != nil {
		courtSeats = g.rotate(courtResults(prev))
	} else {
		playerIDs := make([]string, len(roster))
		for i, p := range roster {
			playerIDs[i] = p.UserID
		}
		playerIDs = shuffle(g.rng, playerIDs)
		for i := 0; i < numMatches; i++ {
			base := i * 4
			if base+3 >= len(playerIDs) {
				break
			}
			courtSeats = append(courtSeats, playerIDs[base:base+4])
		}
	}

	if len(courtSeats) > numMatches {
		courtSeats = courtSeats[:numMatches]
	}
	for i, seats := range courtSeats {
		if len(seats) < 4 {
			continue
		}
		// Cross-teams by arrival order: 1&4 vs 2&3.
		m := buildMatch(MatchID(totalMatches, i),
			[]string{seats[0], seats[3]}, []string{seats[1], seats[2]},
			courtIDAt(courts, i), game.FixedNumberOfSets)
		round.Matches = append(round.Matches, m)
	}
	if len(round.Matches) == 0 {
		return nil, ErrNotEnoughPlayers
	}
	return round, nil
}

// rotate moves one winner up and one loser down per court. Which player of
// each pair moves is random; arrival order on the new court is
// stayer-winner, arriving-winner, stayer-loser, arriving-loser.
func (g *EscaleraGenerator) rotate(results []courtResult) [][]string {
	numCourts := len(results)
	if numCourts == 0 {
		return nil
	}
	if numCourts == 1 {
		cr := results[0]
		if len(cr.winners) < 2 || len(cr.losers) < 2 {
			return nil
		}
		return [][]string{{cr.winners[0], cr.losers[0], cr.winners[1], cr.losers[1]}}
	}

	stayWinner := make([]string, numCourts)
	moveUpWinner := make([]string, numCourts)
	stayLoser := make([]string, numCourts)
	moveDownLoser := make([]string, numCourts)

	for i, cr := range results {
		if len(cr.winners) < 2 || len(cr.losers) < 2 {
			return nil
		}
		winners := shuffle(g.rng, cr.winners)
		losers := shuffle(g.rng, cr.losers)
		stayWinner[i], moveUpWinner[i] = winners[0], winners[1]
		stayLoser[i], moveDownLoser[i] = losers[0], losers[1]
	}

	seats := make([][]string, numCourts)
	for i := 0; i < numCourts; i++ {
		var arrivals []string
		switch {
		case i == 0:
			// Top court keeps both winners; a winner arrives from below.
			arrivals = []string{stayWinner[i], moveUpWinner[i], moveUpWinner[i+1], stayLoser[i]}
		case i == numCourts-1:
			// Bottom court keeps both losers; a loser arrives from above.
			arrivals = []string{stayWinner[i], moveDownLoser[i-1], stayLoser[i], moveDownLoser[i]}
		default:
			arrivals = []string{stayWinner[i], moveUpWinner[i+1], stayLoser[i], moveDownLoser[i-1]}
		}
		seats[i] = arrivals
	}
	return seats
}

func lastRoundWithResults(history []models.Round) *models.Round {
	for i := len(history) - 1; i >= 0; i-- {
		for j := range history[i].Matches {
			m := &history[i].Matches[j]
			if !m.HasPlayers() {
				continue
			}
			if a, b := m.TotalPoints(); a > 0 || b > 0 {
				return &history[i]
			}
		}
	}
	return nil
}
