// Package validation holds the pure score-entry rules. Nothing here touches
// storage or the network; callers reject a mutation before it is enqueued.
package validation

import (
	"errors"
	"fmt"

	"github.com/Dosada05/results-engine/models"
)

// maxReasonableSetIndex guards against runaway indices from corrupted input.
const maxReasonableSetIndex = 100

var (
	ErrInvalidIndex       = errors.New("invalid set index")
	ErrScoreExceedsMax    = errors.New("score exceeds maximum points per team")
	ErrTotalExceedsMax    = errors.New("total score exceeds maximum points per set")
	ErrNegativeScore      = errors.New("scores must not be negative")
	ErrIndexExceedsFixed  = errors.New("set index exceeds fixed number of sets")
	ErrTieBreakNotLast    = errors.New("tie-break is only allowed on the last set")
	ErrTieBreakEqualScore = errors.New("tie-break set must not have equal scores")
)

// ValidateSetIndex rejects negative or absurdly large set indices.
func ValidateSetIndex(index int) error {
	if index < 0 {
		return fmt.Errorf("%w: %d is negative", ErrInvalidIndex, index)
	}
	if index > maxReasonableSetIndex {
		return fmt.Errorf("%w: %d is too large", ErrInvalidIndex, index)
	}
	return nil
}

// ValidateSetScores checks a candidate set score pair against the game's
// per-team and per-set caps. A cap of zero means the limit is not set.
func ValidateSetScores(teamAScore, teamBScore int, game *models.Game) error {
	if teamAScore < 0 || teamBScore < 0 {
		return ErrNegativeScore
	}
	if game == nil {
		return nil
	}
	if max := game.MaxPointsPerTeam; max > 0 {
		if teamAScore > max || teamBScore > max {
			return fmt.Errorf("%w: limit %d", ErrScoreExceedsMax, max)
		}
	}
	if max := game.MaxTotalPointsPerSet; max > 0 {
		if teamAScore+teamBScore > max {
			return fmt.Errorf("%w: limit %d", ErrTotalExceedsMax, max)
		}
	}
	return nil
}

// ValidateSetIndexAgainstFixed rejects indices beyond a fixed set count.
// fixedNumberOfSets of zero means the match is unbounded.
func ValidateSetIndexAgainstFixed(index, fixedNumberOfSets int) error {
	if fixedNumberOfSets > 0 && index >= fixedNumberOfSets {
		return fmt.Errorf("%w: index %d, fixed %d", ErrIndexExceedsFixed, index, fixedNumberOfSets)
	}
	return nil
}

// IsLastSet reports whether, after placing candidate at index, that index is
// the final set of the match under the fixed/unbounded policy.
func IsLastSet(index int, sets []models.Set, fixedNumberOfSets int, candidate models.Set) bool {
	if fixedNumberOfSets > 0 {
		return index == fixedNumberOfSets-1
	}
	length := len(sets)
	if index >= length {
		length = index + 1
	}
	return index == length-1
}

// ValidateTieBreak enforces the tie-break placement and scoring rules.
// A tie-break must land on the last set unless the game counts balls in
// games, and its scores may never be equal when either side has scored.
// The same placement rule works in reverse: an ordinary set may not be
// written past an existing tie-break, which would strand it mid-list.
func ValidateTieBreak(index int, sets []models.Set, fixedNumberOfSets int, isTieBreak, ballsInGames bool, candidate models.Set) error {
	if !isTieBreak {
		if ballsInGames {
			return nil
		}
		for i := 0; i < len(sets) && i < index; i++ {
			if sets[i].IsTieBreak {
				return fmt.Errorf("%w: set %d is the deciding tie-break", ErrTieBreakNotLast, i)
			}
		}
		return nil
	}
	if candidate.TeamA == candidate.TeamB && (candidate.TeamA > 0 || candidate.TeamB > 0) {
		return ErrTieBreakEqualScore
	}
	if !ballsInGames && !IsLastSet(index, sets, fixedNumberOfSets, candidate) {
		return ErrTieBreakNotLast
	}
	return nil
}

// CanEnterResults reports whether scores may be entered for the match.
func CanEnterResults(match *models.Match) bool {
	return match != nil && match.HasPlayers()
}

// IsUserGameAdminOrOwner checks the user's role on the game and, for games
// spawned from a parent (league rounds), on the parent game as well.
func IsUserGameAdminOrOwner(game *models.Game, userID string) bool {
	if game == nil {
		return false
	}
	if hasAdminRole(game.Participants, userID) {
		return true
	}
	if game.Parent != nil {
		return hasAdminRole(game.Parent.Participants, userID)
	}
	return false
}

func hasAdminRole(participants []models.Participant, userID string) bool {
	for _, p := range participants {
		if p.UserID == userID && (p.Role == models.RoleOwner || p.Role == models.RoleAdmin) {
			return true
		}
	}
	return false
}
