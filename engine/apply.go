package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Dosada05/results-engine/models"
)

var (
	ErrOpPath        = errors.New("operation path does not resolve")
	ErrOpValue       = errors.New("operation value cannot be decoded")
	ErrOpUnsupported = errors.New("unsupported operation")
)

// Team addresses one side of a match inside an op path.
type Team string

const (
	TeamA Team = "teamA"
	TeamB Team = "teamB"
)

// Valid reports whether the string names a real team.
func (t Team) Valid() bool {
	return t == TeamA || t == TeamB
}

// Other returns the opposing team.
func (t Team) Other() Team {
	if t == TeamA {
		return TeamB
	}
	return TeamA
}

// Apply executes one wire operation against a copy of the tree and returns
// the result. The input tree is never mutated, so a failing op leaves the
// caller's state intact. Application is idempotent: re-adding an existing
// round, match or player is a no-op, and removing a missing one resolves to
// the same tree rather than an error.
//
// Both the client engine (optimistic apply, crash replay) and the authority
// (batch apply) run the exact same interpreter, which is what makes queue
// replay reproduce identical state on either side.
func Apply(tree *models.ResultsTree, op models.Op) (*models.ResultsTree, error) {
	parts := splitPath(op.Path)
	if len(parts) == 0 || parts[0] != "rounds" {
		return nil, fmt.Errorf("%w: %q", ErrOpPath, op.Path)
	}
	next := tree.Clone()

	switch {
	// /rounds
	case len(parts) == 1:
		return applyRounds(next, op)

	// /rounds/{roundID}
	case len(parts) == 2:
		return applyRound(next, op, parts[1])

	// /rounds/{roundID}/matches
	case len(parts) == 3 && parts[2] == "matches":
		return applyMatches(next, op, parts[1])

	// /rounds/{roundID}/matches/{matchID}
	case len(parts) == 4 && parts[2] == "matches":
		return applyMatch(next, op, parts[1], parts[3])

	// /rounds/{roundID}/matches/{matchID}/{field}
	case len(parts) == 5 && parts[2] == "matches":
		return applyMatchField(next, op, parts[1], parts[3], parts[4])

	// /rounds/{roundID}/matches/{matchID}/{team}/{playerID}
	case len(parts) == 6 && parts[2] == "matches":
		return applyTeamMember(next, op, parts[1], parts[3], parts[4], parts[5])
	}
	return nil, fmt.Errorf("%w: %q", ErrOpPath, op.Path)
}

// Replay folds a queue of pending operations over a base tree in FIFO
// order, skipping ops already folded into the snapshot. Running it twice
// over the same inputs yields identical trees.
func Replay(base *models.ResultsTree, queue []models.PendingOperation) (*models.ResultsTree, error) {
	tree := base.Clone()
	for _, pending := range queue {
		if pending.AppliedLocally {
			continue
		}
		next, err := Apply(tree, pending.Op)
		if err != nil {
			return nil, fmt.Errorf("replay of op %s failed: %w", pending.ID, err)
		}
		tree = next
	}
	return tree, nil
}

func marshalValue(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpValue, err)
	}
	return raw, nil
}

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func applyRounds(tree *models.ResultsTree, op models.Op) (*models.ResultsTree, error) {
	switch op.Type {
	case models.OpAdd:
		var round models.Round
		if err := json.Unmarshal(op.Value, &round); err != nil {
			return nil, fmt.Errorf("%w: round: %v", ErrOpValue, err)
		}
		if existing, _ := tree.Round(round.ID); existing != nil {
			return tree, nil
		}
		tree.Rounds = append(tree.Rounds, round)
		return tree, nil
	case models.OpReplace:
		var rounds []models.Round
		if err := json.Unmarshal(op.Value, &rounds); err != nil {
			return nil, fmt.Errorf("%w: rounds: %v", ErrOpValue, err)
		}
		tree.Rounds = rounds
		return tree, nil
	}
	return nil, fmt.Errorf("%w: %s on /rounds", ErrOpUnsupported, op.Type)
}

func applyRound(tree *models.ResultsTree, op models.Op, roundID string) (*models.ResultsTree, error) {
	if op.Type != models.OpRemove {
		return nil, fmt.Errorf("%w: %s on round", ErrOpUnsupported, op.Type)
	}
	// Removal filters by id; identifiers are never reused or nulled.
	kept := tree.Rounds[:0]
	for _, r := range tree.Rounds {
		if r.ID != roundID {
			kept = append(kept, r)
		}
	}
	tree.Rounds = kept
	return tree, nil
}

func applyMatches(tree *models.ResultsTree, op models.Op, roundID string) (*models.ResultsTree, error) {
	if op.Type != models.OpAdd {
		return nil, fmt.Errorf("%w: %s on matches", ErrOpUnsupported, op.Type)
	}
	round, _ := tree.Round(roundID)
	if round == nil {
		return nil, fmt.Errorf("%w: round %s", ErrOpPath, roundID)
	}
	var match models.Match
	if err := json.Unmarshal(op.Value, &match); err != nil {
		return nil, fmt.Errorf("%w: match: %v", ErrOpValue, err)
	}
	for i := range round.Matches {
		if round.Matches[i].ID == match.ID {
			return tree, nil
		}
	}
	round.Matches = append(round.Matches, match)
	return tree, nil
}

func applyMatch(tree *models.ResultsTree, op models.Op, roundID, matchID string) (*models.ResultsTree, error) {
	round, _ := tree.Round(roundID)
	if round == nil {
		return nil, fmt.Errorf("%w: round %s", ErrOpPath, roundID)
	}
	switch op.Type {
	case models.OpRemove:
		kept := round.Matches[:0]
		for _, m := range round.Matches {
			if m.ID != matchID {
				kept = append(kept, m)
			}
		}
		round.Matches = kept
		return tree, nil
	case models.OpReplace:
		match, _ := tree.Match(roundID, matchID)
		if match == nil {
			return nil, fmt.Errorf("%w: match %s", ErrOpPath, matchID)
		}
		var next models.Match
		if err := json.Unmarshal(op.Value, &next); err != nil {
			return nil, fmt.Errorf("%w: match: %v", ErrOpValue, err)
		}
		next.ID = match.ID
		*match = next
		return tree, nil
	}
	return nil, fmt.Errorf("%w: %s on match", ErrOpUnsupported, op.Type)
}

func applyMatchField(tree *models.ResultsTree, op models.Op, roundID, matchID, field string) (*models.ResultsTree, error) {
	match, _ := tree.Match(roundID, matchID)
	if match == nil {
		return nil, fmt.Errorf("%w: match %s in round %s", ErrOpPath, matchID, roundID)
	}

	switch field {
	case "sets":
		if op.Type != models.OpReplace {
			return nil, fmt.Errorf("%w: %s on sets", ErrOpUnsupported, op.Type)
		}
		var sets []models.Set
		if err := json.Unmarshal(op.Value, &sets); err != nil {
			return nil, fmt.Errorf("%w: sets: %v", ErrOpValue, err)
		}
		match.Sets = sets
		return tree, nil

	case "courtId":
		if op.Type != models.OpReplace {
			return nil, fmt.Errorf("%w: %s on courtId", ErrOpUnsupported, op.Type)
		}
		var courtID string
		if err := json.Unmarshal(op.Value, &courtID); err != nil {
			return nil, fmt.Errorf("%w: courtId: %v", ErrOpValue, err)
		}
		match.CourtID = courtID
		return tree, nil

	case string(TeamA), string(TeamB):
		if op.Type != models.OpAdd {
			return nil, fmt.Errorf("%w: %s on team", ErrOpUnsupported, op.Type)
		}
		var playerID string
		if err := json.Unmarshal(op.Value, &playerID); err != nil {
			return nil, fmt.Errorf("%w: player id: %v", ErrOpValue, err)
		}
		if match.HasPlayer(playerID) {
			return tree, nil
		}
		if Team(field) == TeamA {
			match.TeamA = append(match.TeamA, playerID)
		} else {
			match.TeamB = append(match.TeamB, playerID)
		}
		return tree, nil
	}
	return nil, fmt.Errorf("%w: field %q", ErrOpPath, field)
}

func applyTeamMember(tree *models.ResultsTree, op models.Op, roundID, matchID, teamName, playerID string) (*models.ResultsTree, error) {
	if op.Type != models.OpRemove || !Team(teamName).Valid() {
		return nil, fmt.Errorf("%w: %s on team member", ErrOpUnsupported, op.Type)
	}
	match, _ := tree.Match(roundID, matchID)
	if match == nil {
		return nil, fmt.Errorf("%w: match %s in round %s", ErrOpPath, matchID, roundID)
	}
	filter := func(team []string) []string {
		kept := team[:0]
		for _, id := range team {
			if id != playerID {
				kept = append(kept, id)
			}
		}
		return kept
	}
	if Team(teamName) == TeamA {
		match.TeamA = filter(match.TeamA)
	} else {
		match.TeamB = filter(match.TeamB)
	}
	return tree, nil
}
