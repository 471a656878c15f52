package rounds

import "github.com/Dosada05/results-engine/models"

// FixedGenerator carries the previous round's team assignments into the new
// round unchanged. Team membership is pre-assigned and does not rotate;
// courts are kept from the first round's layout.
type FixedGenerator struct{}

func NewFixedGenerator() Generator {
	return &FixedGenerator{}
}

func (g *FixedGenerator) Name() models.MatchGenerationType {
	return models.GenerationFixed
}

func (g *FixedGenerator) GenerateNextRound(params GenerateRoundParams) (*models.Round, error) {
	totalMatches := 0
	for _, r := range params.History {
		totalMatches += len(r.Matches)
	}

	round := &models.Round{ID: RoundID(params.RoundNumber), Name: params.RoundName}
	fixed := params.Game.FixedNumberOfSets

	if len(params.History) == 0 {
		round.Matches = []models.Match{buildMatch(MatchID(0, 0), nil, nil, "", fixed)}
		return round, nil
	}

	previous := params.History[len(params.History)-1]
	first := params.History[0]

	if len(previous.Matches) == 0 {
		round.Matches = []models.Match{buildMatch(MatchID(totalMatches, 0), nil, nil, "", fixed)}
		return round, nil
	}

	for i, prev := range previous.Matches {
		courtID := ""
		if i < len(first.Matches) {
			courtID = first.Matches[i].CourtID
		}
		round.Matches = append(round.Matches,
			buildMatch(MatchID(totalMatches, i), prev.TeamA, prev.TeamB, courtID, fixed))
	}
	return round, nil
}
