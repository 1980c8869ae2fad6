package service

import (
	"errors"
	"fmt"

	"github.com/soyellupi/futsal-friends/internal/domain"
)

var (
	// ErrMatchWithoutResult rejects a rating calculation for a match whose
	// result has not been recorded yet.
	ErrMatchWithoutResult = errors.New("match has no recorded result")

	// ErrTeamsIncomplete rejects a rating calculation when the match does
	// not have exactly two teams.
	ErrTeamsIncomplete = errors.New("match does not have exactly two teams")

	// ErrNotEnoughPlayers rejects team balancing with fewer than 2 players.
	ErrNotEnoughPlayers = errors.New("need at least 2 players to create teams")

	ErrPlayerNotFound = errors.New("player not found")
)

// AmbiguousPlayerError reports a partial-name lookup that matched more than
// one player. The candidates are carried so the operator can pick one.
type AmbiguousPlayerError struct {
	Query      string
	Candidates []domain.Player
}

func (e *AmbiguousPlayerError) Error() string {
	return fmt.Sprintf("player name %q matches %d players", e.Query, len(e.Candidates))
}
