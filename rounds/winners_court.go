package rounds

import (
	"sort"

	"github.com/Dosada05/results-engine/models"
)

// WinnersCourtGenerator promotes winners toward court 1. The first round is
// seeded by player level; afterwards each court's winners split up and mix
// with the winners arriving from the next court down, while losers drop.
type WinnersCourtGenerator struct{}

func NewWinnersCourtGenerator() Generator {
	return &WinnersCourtGenerator{}
}

func (g *WinnersCourtGenerator) Name() models.MatchGenerationType {
	return models.GenerationWinnersCourt
}

func (g *WinnersCourtGenerator) GenerateNextRound(params GenerateRoundParams) (*models.Round, error) {
	game := params.Game
	roster := eligibleParticipants(game)
	if len(roster) < 4 {
		return nil, ErrNotEnoughPlayers
	}

	numMatches := numMatchesFor(game, roster)
	courts := sortedCourts(game)

	totalMatches := 0
	for _, r := range params.History {
		totalMatches += len(r.Matches)
	}

	round := &models.Round{ID: RoundID(params.RoundNumber), Name: params.RoundName}

	prev := lastRoundWithResults(params.History)
	if prev == nil {
		// Seed by level, strongest players on court 1.
		sorted := append([]models.Participant(nil), roster...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Level > sorted[j].Level })
		for i := 0; i < numMatches; i++ {
			base := i * 4
			if base+3 >= len(sorted) {
				break
			}
			m := buildMatch(MatchID(totalMatches, i),
				[]string{sorted[base].UserID, sorted[base+2].UserID},
				[]string{sorted[base+1].UserID, sorted[base+3].UserID},
				courtIDAt(courts, i), game.FixedNumberOfSets)
			round.Matches = append(round.Matches, m)
		}
		if len(round.Matches) == 0 {
			return nil, ErrNotEnoughPlayers
		}
		return round, nil
	}

	results := courtResults(prev)
	if len(results) == 0 {
		return nil, ErrNotEnoughPlayers
	}

	// Each court reseats exactly four players: winners climb one court,
	// losers drop one, the edges keep their own.
	limit := len(results)
	if limit > numMatches {
		limit = numMatches
	}
	for i := 0; i < limit; i++ {
		current := results[i]
		var teamA, teamB []string
		switch {
		case len(results) == 1:
			// Single court: winners split across the teams.
			if len(current.winners) >= 2 && len(current.losers) >= 2 {
				teamA = []string{current.winners[0], current.losers[0]}
				teamB = []string{current.winners[1], current.losers[1]}
			}
		case i == 0:
			// Winners of court 1 split and mix with winners from court 2.
			up := results[1].winners
			if len(current.winners) >= 2 && len(up) >= 2 {
				teamA = []string{current.winners[0], up[0]}
				teamB = []string{current.winners[1], up[1]}
			}
		case i == len(results)-1:
			// Bottom court: its losers stay, split, and mix with the
			// losers demoted from the court above.
			down := results[i-1].losers
			if len(current.losers) >= 2 && len(down) >= 2 {
				teamA = []string{current.losers[0], down[0]}
				teamB = []string{current.losers[1], down[1]}
			}
		default:
			// Losers demoted from above meet winners promoted from below.
			down := results[i-1].losers
			up := results[i+1].winners
			if len(down) >= 2 && len(up) >= 2 {
				teamA = []string{down[0], up[0]}
				teamB = []string{down[1], up[1]}
			}
		}
		if teamA == nil {
			continue
		}
		m := buildMatch(MatchID(totalMatches, len(round.Matches)), teamA, teamB,
			courtIDAt(courts, i), game.FixedNumberOfSets)
		round.Matches = append(round.Matches, m)
	}
	if len(round.Matches) == 0 {
		return nil, ErrNotEnoughPlayers
	}
	return round, nil
}
