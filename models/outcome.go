package models

// PlayerOutcome is the per-player rollup computed when results are
// finalized. Place is 1-based in standings order.
type PlayerOutcome struct {
	GameID     string `json:"game_id"`
	UserID     string `json:"user_id"`
	Place      int    `json:"place"`
	Wins       int    `json:"wins"`
	Ties       int    `json:"ties"`
	Losses     int    `json:"losses"`
	ScoresMade int    `json:"scores_made"`
	ScoresLost int    `json:"scores_lost"`
}
