// Package rounds contains the pluggable match generation strategies that
// seed each round of a game from its roster and round history, plus the
// WebSocket hub that streams applied result updates to watching clients.
package rounds

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/Dosada05/results-engine/models"
)

var (
	ErrNotEnoughPlayers  = errors.New("not enough playing participants to generate a round")
	ErrUnknownGeneration = errors.New("unknown match generation type")
)

// GenerateRoundParams carries everything a strategy may consult: the game
// settings, the full round history, and the position of the round to build.
type GenerateRoundParams struct {
	Game        *models.Game
	History     []models.Round
	RoundNumber int
	RoundName   string
}

// Generator produces the next round's match assignments for one strategy.
type Generator interface {
	GenerateNextRound(params GenerateRoundParams) (*models.Round, error)

	Name() models.MatchGenerationType
}

// ForType selects the generator for a game's match generation type. The
// switch is exhaustive over the declared types; an empty type falls back to
// handmade seeding.
func ForType(t models.MatchGenerationType) (Generator, error) {
	switch t {
	case models.GenerationHandmade, "":
		return NewHandmadeGenerator(), nil
	case models.GenerationFixed:
		return NewFixedGenerator(), nil
	case models.GenerationRandom:
		return NewRandomGenerator(), nil
	case models.GenerationRoundRobin:
		return NewRoundRobinGenerator(), nil
	case models.GenerationEscalera:
		return NewEscaleraGenerator(), nil
	case models.GenerationRating:
		return NewRatingGenerator(), nil
	case models.GenerationWinnersCourt:
		return NewWinnersCourtGenerator(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownGeneration, t)
	}
}

func newRNG() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// RoundID and MatchID produce the deterministic position-based identifiers
// the server adopts verbatim, so no id reconciliation pass is needed after
// a sync.
func RoundID(roundNumber int) string {
	return fmt.Sprintf("round-%d", roundNumber)
}

func MatchID(totalExisting, indexInRound int) string {
	return fmt.Sprintf("match-%d", totalExisting+indexInRound+1)
}

// InitialSets seeds a new match's set list: a fixed-set match gets all of
// its sets upfront, an unbounded match starts with one open placeholder.
func InitialSets(fixedNumberOfSets int) []models.Set {
	if fixedNumberOfSets > 0 {
		return make([]models.Set, fixedNumberOfSets)
	}
	return []models.Set{{}}
}
