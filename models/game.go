package models

import "time"

// ResultsStatus tracks the lifecycle of a game's result tree.
type ResultsStatus string

const (
	ResultsNone       ResultsStatus = "NONE"
	ResultsInProgress ResultsStatus = "IN_PROGRESS"
	ResultsFinal      ResultsStatus = "FINAL"
)

// MatchGenerationType selects the strategy used to seed each new round.
type MatchGenerationType string

const (
	GenerationHandmade     MatchGenerationType = "HANDMADE"
	GenerationFixed        MatchGenerationType = "FIXED"
	GenerationRandom       MatchGenerationType = "RANDOM"
	GenerationRoundRobin   MatchGenerationType = "ROUND_ROBIN"
	GenerationEscalera     MatchGenerationType = "ESCALERA"
	GenerationRating       MatchGenerationType = "RATING"
	GenerationWinnersCourt MatchGenerationType = "WINNERS_COURT"
)

// AllowsManualEditing reports whether matches produced by this strategy may
// be freely rearranged by hand. HANDMADE and FIXED games always allow it,
// regardless of the game's ProhibitMatchesEditing setting.
func (t MatchGenerationType) AllowsManualEditing() bool {
	return t == GenerationHandmade || t == GenerationFixed || t == ""
}

type ParticipantRole string

const (
	RoleOwner  ParticipantRole = "OWNER"
	RoleAdmin  ParticipantRole = "ADMIN"
	RoleMember ParticipantRole = "MEMBER"
)

// Participant is a user attached to a game. Only playing participants are
// eligible for generated rounds.
type Participant struct {
	UserID    string          `json:"user_id"`
	Role      ParticipantRole `json:"role"`
	IsPlaying bool            `json:"is_playing"`
	Level     float64         `json:"level"`
	Gender    string          `json:"gender,omitempty"`
}

type GameStatus string

const (
	GameAnnounced GameStatus = "ANNOUNCED"
	GameActive    GameStatus = "ACTIVE"
	GameArchived  GameStatus = "ARCHIVED"
)

// GameCourt binds a court to a game with a display order. Generated rounds
// assign matches to courts in this order.
type GameCourt struct {
	CourtID string `json:"court_id"`
	Order   int    `json:"order"`
}

// FixedTeam is a pre-assigned pair that does not rotate between rounds.
type FixedTeam struct {
	ID        string   `json:"id"`
	PlayerIDs []string `json:"player_ids"`
}

// Game is the external game entity referenced by the results engine. Metadata
// CRUD lives elsewhere; the engine reads the fields that gate result entry.
type Game struct {
	ID                     string              `json:"id"`
	EntityType             string              `json:"entity_type"`
	Status                 GameStatus          `json:"status"`
	ResultsStatus          ResultsStatus       `json:"results_status"`
	ResultsVersion         int64               `json:"results_version"`
	FixedNumberOfSets      int                 `json:"fixed_number_of_sets"`
	MaxTotalPointsPerSet   int                 `json:"max_total_points_per_set"`
	MaxPointsPerTeam       int                 `json:"max_points_per_team"`
	BallsInGames           bool                `json:"balls_in_games"`
	ResultsByAnyone        bool                `json:"results_by_anyone"`
	ProhibitMatchesEditing bool                `json:"prohibit_matches_editing"`
	MatchGenerationType    MatchGenerationType `json:"match_generation_type"`
	HasFixedTeams          bool                `json:"has_fixed_teams"`
	FixedTeams             []FixedTeam         `json:"fixed_teams,omitempty"`
	GameCourts             []GameCourt         `json:"game_courts,omitempty"`
	Participants           []Participant       `json:"participants,omitempty"`
	Parent                 *Game               `json:"parent,omitempty"`
	StartTime              time.Time           `json:"start_time"`
}

// PlayingParticipants returns the participants currently marked as playing.
func (g *Game) PlayingParticipants() []Participant {
	out := make([]Participant, 0, len(g.Participants))
	for _, p := range g.Participants {
		if p.IsPlaying {
			out = append(out, p)
		}
	}
	return out
}

// Participant returns the participant entry for userID, if any.
func (g *Game) Participant(userID string) *Participant {
	for i := range g.Participants {
		if g.Participants[i].UserID == userID {
			return &g.Participants[i]
		}
	}
	return nil
}
