package rounds

import (
	"math/rand"

	"github.com/Dosada05/results-engine/models"
)

// RatingGenerator seats players by the current game standings: the first
// round is shuffled, every later round groups the standings four at a time
// with places 1&3 against 2&4, so close ratings meet on the same court.
type RatingGenerator struct {
	rng *rand.Rand
}

func NewRatingGenerator() Generator {
	return &RatingGenerator{rng: newRNG()}
}

func (g *RatingGenerator) Name() models.MatchGenerationType {
	return models.GenerationRating
}

func (g *RatingGenerator) GenerateNextRound(params GenerateRoundParams) (*models.Round, error) {
	game := params.Game
	roster := eligibleParticipants(game)
	if len(roster) < 4 {
		return nil, ErrNotEnoughPlayers
	}

	numMatches := numMatchesFor(game, roster)
	courts := sortedCourts(game)

	var playerIDs []string
	if len(params.History) == 0 {
		ids := make([]string, len(roster))
		for i, p := range roster {
			ids[i] = p.UserID
		}
		playerIDs = shuffle(g.rng, ids)
	} else {
		for _, s := range Standings(game, params.History) {
			playerIDs = append(playerIDs, s.UserID)
		}
	}

	totalMatches := 0
	for _, r := range params.History {
		totalMatches += len(r.Matches)
	}

	actualMatches := len(playerIDs) / 4
	if actualMatches > numMatches {
		actualMatches = numMatches
	}

	round := &models.Round{ID: RoundID(params.RoundNumber), Name: params.RoundName}
	for i := 0; i < actualMatches; i++ {
		base := i * 4
		m := buildMatch(MatchID(totalMatches, i),
			[]string{playerIDs[base], playerIDs[base+2]},
			[]string{playerIDs[base+1], playerIDs[base+3]},
			courtIDAt(courts, i), game.FixedNumberOfSets)
		round.Matches = append(round.Matches, m)
	}
	if len(round.Matches) == 0 {
		return nil, ErrNotEnoughPlayers
	}
	return round, nil
}
