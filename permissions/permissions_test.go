package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Dosada05/results-engine/models"
)

func gameWith(participants ...models.Participant) *models.Game {
	return &models.Game{Status: models.GameActive, Participants: participants}
}

func TestCanEdit(t *testing.T) {
	owner := models.Participant{UserID: "owner", Role: models.RoleOwner}
	admin := models.Participant{UserID: "admin", Role: models.RoleAdmin}
	player := models.Participant{UserID: "player", Role: models.RoleMember, IsPlaying: true}
	bench := models.Participant{UserID: "bench", Role: models.RoleMember, IsPlaying: false}

	tests := []struct {
		name   string
		game   *models.Game
		userID string
		want   bool
	}{
		{"nil game", nil, "owner", false},
		{"empty user", gameWith(owner), "", false},
		{"owner", gameWith(owner), "owner", true},
		{"admin", gameWith(admin), "admin", true},
		{"member without open entry", gameWith(player), "player", false},
		{"stranger", gameWith(owner), "stranger", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanEdit(tt.game, tt.userID))
		})
	}

	t.Run("results by anyone lets playing members edit", func(t *testing.T) {
		game := gameWith(player, bench)
		game.ResultsByAnyone = true
		assert.True(t, CanEdit(game, "player"))
		assert.False(t, CanEdit(game, "bench"))
		assert.False(t, CanEdit(game, "stranger"))
	})

	t.Run("archived games are read-only for everyone", func(t *testing.T) {
		game := gameWith(owner, player)
		game.Status = models.GameArchived
		game.ResultsByAnyone = true
		assert.False(t, CanEdit(game, "owner"))
		assert.False(t, CanEdit(game, "player"))
	})

	t.Run("parent game admin can edit child results", func(t *testing.T) {
		child := gameWith(player)
		child.Parent = gameWith(admin)
		assert.True(t, CanEdit(child, "admin"))
	})
}

func TestCanReopenResults(t *testing.T) {
	admin := models.Participant{UserID: "admin", Role: models.RoleAdmin}
	player := models.Participant{UserID: "player", Role: models.RoleMember, IsPlaying: true}

	t.Run("requires edit rights", func(t *testing.T) {
		assert.False(t, CanReopenResults(gameWith(player), "player"))
	})

	t.Run("open entry allows reopen by players", func(t *testing.T) {
		game := gameWith(player)
		game.ResultsByAnyone = true
		assert.True(t, CanReopenResults(game, "player"))
	})

	t.Run("prohibited match editing restricts reopen to admins", func(t *testing.T) {
		game := gameWith(admin, player)
		game.ResultsByAnyone = true
		game.ProhibitMatchesEditing = true
		game.MatchGenerationType = models.GenerationRoundRobin
		assert.True(t, CanReopenResults(game, "admin"))
		assert.False(t, CanReopenResults(game, "player"))
	})

	t.Run("handmade games ignore the prohibition", func(t *testing.T) {
		game := gameWith(player)
		game.ResultsByAnyone = true
		game.ProhibitMatchesEditing = true
		game.MatchGenerationType = models.GenerationHandmade
		assert.True(t, CanReopenResults(game, "player"))
	})
}
