package models

// Set is one scored segment of a match. At most one set per match may be a
// tie-break, and it must be the last element of the slice.
type Set struct {
	TeamA      int  `json:"teamA"`
	TeamB      int  `json:"teamB"`
	IsTieBreak bool `json:"isTieBreak"`
}

// IsOpen reports whether the set is the unscored trailing placeholder.
func (s Set) IsOpen() bool {
	return s.TeamA == 0 && s.TeamB == 0 && !s.IsTieBreak
}

// Match is a single contest between two ordered player lists.
type Match struct {
	ID      string   `json:"id"`
	TeamA   []string `json:"teamA"`
	TeamB   []string `json:"teamB"`
	Sets    []Set    `json:"sets"`
	CourtID string   `json:"courtId,omitempty"`
}

// HasPlayers reports whether both teams have at least one player, which is
// the precondition for entering scores.
func (m *Match) HasPlayers() bool {
	return len(m.TeamA) > 0 && len(m.TeamB) > 0
}

// HasPlayer reports whether the player occupies either team of the match.
func (m *Match) HasPlayer(playerID string) bool {
	for _, id := range m.TeamA {
		if id == playerID {
			return true
		}
	}
	for _, id := range m.TeamB {
		if id == playerID {
			return true
		}
	}
	return false
}

// TotalPoints sums the scored sets of the match per team. Open placeholder
// sets do not contribute.
func (m *Match) TotalPoints() (teamA, teamB int) {
	for _, s := range m.Sets {
		if s.TeamA > 0 || s.TeamB > 0 {
			teamA += s.TeamA
			teamB += s.TeamB
		}
	}
	return teamA, teamB
}

// Round is an ordered group of matches played concurrently.
type Round struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Matches []Match `json:"matches"`
}

// ResultsTree is the full round/match/set state of one game.
type ResultsTree struct {
	Rounds []Round `json:"rounds"`
}

// Clone returns a deep copy of the tree. Mutating operations work on a copy
// so a failed validation leaves the original untouched.
func (t *ResultsTree) Clone() *ResultsTree {
	out := &ResultsTree{Rounds: make([]Round, len(t.Rounds))}
	for i, r := range t.Rounds {
		nr := Round{ID: r.ID, Name: r.Name, Matches: make([]Match, len(r.Matches))}
		for j, m := range r.Matches {
			nm := Match{ID: m.ID, CourtID: m.CourtID}
			nm.TeamA = append([]string(nil), m.TeamA...)
			nm.TeamB = append([]string(nil), m.TeamB...)
			nm.Sets = append([]Set(nil), m.Sets...)
			nr.Matches[j] = nm
		}
		out.Rounds[i] = nr
	}
	return out
}

// Round returns the round with the given id and its index, or nil.
func (t *ResultsTree) Round(roundID string) (*Round, int) {
	for i := range t.Rounds {
		if t.Rounds[i].ID == roundID {
			return &t.Rounds[i], i
		}
	}
	return nil, -1
}

// Match returns the match with the given id inside roundID and its index.
func (t *ResultsTree) Match(roundID, matchID string) (*Match, int) {
	round, _ := t.Round(roundID)
	if round == nil {
		return nil, -1
	}
	for i := range round.Matches {
		if round.Matches[i].ID == matchID {
			return &round.Matches[i], i
		}
	}
	return nil, -1
}

// TotalMatches counts matches across all rounds. Used for sequential match
// id assignment.
func (t *ResultsTree) TotalMatches() int {
	n := 0
	for _, r := range t.Rounds {
		n += len(r.Matches)
	}
	return n
}
