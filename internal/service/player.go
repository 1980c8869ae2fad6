package service

import (
	"context"

	"github.com/soyellupi/futsal-friends/internal/constants"
	"github.com/soyellupi/futsal-friends/internal/domain"
	"github.com/soyellupi/futsal-friends/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type PlayerService struct {
	repo   *repository.PlayerRepository
	logger zerolog.Logger
}

func NewPlayerService(repo *repository.PlayerRepository, logger zerolog.Logger) *PlayerService {
	return &PlayerService{repo: repo, logger: logger}
}

func (s *PlayerService) CreatePlayer(ctx context.Context, name string, playerType domain.PlayerType) (*domain.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	if playerType == "" {
		playerType = domain.PlayerTypeRegular
	}

	player := &domain.Player{
		Name:       name,
		PlayerType: playerType,
		IsActive:   true,
	}
	if err := s.repo.Create(ctx, player); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("player_id", player.ID.String()).
		Str("name", player.Name).
		Str("player_type", string(player.PlayerType)).
		Msg("player created")
	return player, nil
}

func (s *PlayerService) SearchPlayers(ctx context.Context, query string) ([]domain.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	return s.repo.FindByName(ctx, query, constants.PlayerSearchLimit)
}

// ResolvePlayer finds a single player by partial name. Multiple matches are
// never silently narrowed down; the caller gets the candidates back and has
// to disambiguate.
func (s *PlayerService) ResolvePlayer(ctx context.Context, name string) (*domain.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	matches, err := s.repo.FindByName(ctx, name, constants.PlayerSearchLimit)
	if err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, ErrPlayerNotFound
	case 1:
		return &matches[0], nil
	default:
		s.logger.Warn().Str("query", name).Int("matches", len(matches)).Msg("ambiguous player name")
		return nil, &AmbiguousPlayerError{Query: name, Candidates: matches}
	}
}

// SetPlayerType reclassifies a player between regular and invited.
func (s *PlayerService) SetPlayerType(ctx context.Context, id uuid.UUID, playerType domain.PlayerType) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	return s.repo.SetPlayerType(ctx, id, playerType)
}

// DeactivatePlayer retires a player from active rosters. History and past
// ratings are kept.
func (s *PlayerService) DeactivatePlayer(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	return s.repo.SetActive(ctx, id, false)
}

// ReactivatePlayer brings a retired player back into the active pool.
func (s *PlayerService) ReactivatePlayer(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	return s.repo.SetActive(ctx, id, true)
}
