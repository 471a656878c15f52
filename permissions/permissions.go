// Package permissions decides whether an actor may mutate game results.
// The checks are cheap and must be re-evaluated on every game update; the
// outcome is never valid across game object identity changes.
package permissions

import (
	"errors"

	"github.com/Dosada05/results-engine/models"
	"github.com/Dosada05/results-engine/validation"
)

var ErrEditNotAllowed = errors.New("user is not allowed to edit results")

// CanEdit reports whether userID may mutate the results of game.
// Owners and admins always may; other playing participants only when the
// game allows results entry by anyone. Archived games are read-only.
func CanEdit(game *models.Game, userID string) bool {
	if game == nil || userID == "" {
		return false
	}
	if game.Status == models.GameArchived {
		return false
	}
	if validation.IsUserGameAdminOrOwner(game, userID) {
		return true
	}
	if game.ResultsByAnyone {
		p := game.Participant(userID)
		return p != nil && p.IsPlaying
	}
	return false
}

// CanReopenResults reports whether a FINAL game may be moved back to
// IN_PROGRESS by userID. Games that prohibit match editing require an
// admin or owner.
func CanReopenResults(game *models.Game, userID string) bool {
	if !CanEdit(game, userID) {
		return false
	}
	if game.ProhibitMatchesEditing && !game.MatchGenerationType.AllowsManualEditing() {
		return validation.IsUserGameAdminOrOwner(game, userID)
	}
	return true
}
