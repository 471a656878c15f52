package rounds

import "github.com/Dosada05/results-engine/models"

// HandmadeGenerator seeds an empty round with one empty match and leaves the
// rest to manual editing. It never auto-populates teams.
type HandmadeGenerator struct{}

func NewHandmadeGenerator() Generator {
	return &HandmadeGenerator{}
}

func (g *HandmadeGenerator) Name() models.MatchGenerationType {
	return models.GenerationHandmade
}

func (g *HandmadeGenerator) GenerateNextRound(params GenerateRoundParams) (*models.Round, error) {
	totalMatches := 0
	for _, r := range params.History {
		totalMatches += len(r.Matches)
	}
	round := &models.Round{
		ID:   RoundID(params.RoundNumber),
		Name: params.RoundName,
		Matches: []models.Match{
			buildMatch(MatchID(totalMatches, 0), nil, nil, "", params.Game.FixedNumberOfSets),
		},
	}
	return round, nil
}
