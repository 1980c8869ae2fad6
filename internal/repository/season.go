package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soyellupi/futsal-friends/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type SeasonRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSeasonRepository(sqlDB *sql.DB, logger zerolog.Logger) *SeasonRepository {
	return &SeasonRepository{db: sqlDB, logger: logger}
}

func (r *SeasonRepository) Create(ctx context.Context, season *domain.Season) error {
	now := time.Now().UTC()
	if season.ID == uuid.Nil {
		season.ID = uuid.New()
	}
	season.CreatedAt = now
	season.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO seasons (id, name, start_date, end_date, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		season.ID.String(), season.Name, season.StartDate, season.EndDate, season.IsActive, season.CreatedAt, season.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("name", season.Name).Msg("failed to create season")
		return fmt.Errorf("failed to create season: %w", err)
	}
	return nil
}

func (r *SeasonRepository) GetActive(ctx context.Context) (*domain.Season, error) {
	var s domain.Season
	var id string
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, start_date, end_date, is_active, created_at, updated_at FROM seasons WHERE is_active = 1",
	).Scan(&id, &s.Name, &s.StartDate, &s.EndDate, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get active season: %w", err)
	}
	s.ID, err = parseID(id)
	if err != nil {
		return nil, fmt.Errorf("invalid season id %q: %w", id, err)
	}
	return &s, nil
}

// DeactivateActive closes out the current season, if any. The partial
// unique index on is_active only admits one active season at a time, so
// this runs before activating a new one.
func (r *SeasonRepository) DeactivateActive(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE seasons SET is_active = 0, updated_at = ? WHERE is_active = 1",
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to deactivate season: %w", err)
	}
	return nil
}

const seasonRatingColumns ="id, player_id, season_id, current_rating, matches_completed, matches_attended, rating_locked, last_calculated_at, created_at, updated_at"

func scanSeasonRating(row interface{ Scan(...any) error }) (*domain.PlayerSeasonRating, error) {
	var sr domain.PlayerSeasonRating
	var id, playerID, seasonID string
	var lastCalc sql.NullTime
	if err := row.Scan(&id, &playerID, &seasonID, &sr.CurrentRating, &sr.MatchesCompleted,
		&sr.MatchesAttended, &sr.RatingLocked, &lastCalc, &sr.CreatedAt, &sr.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if sr.ID, err = parseID(id); err != nil {
		return nil, err
	}
	if sr.PlayerID, err = parseID(playerID); err != nil {
		return nil, err
	}
	if sr.SeasonID, err = parseID(seasonID); err != nil {
		return nil, err
	}
	sr.LastCalculatedAt = timePtr(lastCalc)
	return &sr, nil
}

// GetPlayerSeasonRating returns (nil, nil) when the player has no rating row
// for the season yet; the caller bootstraps one.
func (r *SeasonRepository) GetPlayerSeasonRating(ctx context.Context, playerID, seasonID uuid.UUID) (*domain.PlayerSeasonRating, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+seasonRatingColumns+" FROM player_season_ratings WHERE player_id = ? AND season_id = ?",
		playerID.String(), seasonID.String())
	sr, err := scanSeasonRating(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get season rating: %w", err)
	}
	return sr, nil
}

func (r *SeasonRepository) CreatePlayerSeasonRating(ctx context.Context, sr *domain.PlayerSeasonRating) error {
	now := time.Now().UTC()
	if sr.ID == uuid.Nil {
		sr.ID = uuid.New()
	}
	sr.CreatedAt = now
	sr.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO player_season_ratings
		 (id, player_id, season_id, current_rating, matches_completed, matches_attended, rating_locked, last_calculated_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sr.ID.String(), sr.PlayerID.String(), sr.SeasonID.String(), sr.CurrentRating,
		sr.MatchesCompleted, sr.MatchesAttended, sr.RatingLocked, nullTime(sr.LastCalculatedAt),
		sr.CreatedAt, sr.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().Err(err).
			Str("player_id", sr.PlayerID.String()).
			Str("season_id", sr.SeasonID.String()).
			Msg("failed to create season rating")
		return fmt.Errorf("failed to create season rating: %w", err)
	}

	r.logger.Debug().
		Str("player_id", sr.PlayerID.String()).
		Str("season_id", sr.SeasonID.String()).
		Float64("rating", sr.CurrentRating).
		Msg("season rating bootstrapped")
	return nil
}

func (r *SeasonRepository) UpdatePlayerSeasonRating(ctx context.Context, sr *domain.PlayerSeasonRating) error {
	sr.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`UPDATE player_season_ratings
		 SET current_rating = ?, matches_completed = ?, matches_attended = ?, rating_locked = ?, last_calculated_at = ?, updated_at = ?
		 WHERE id = ?`,
		sr.CurrentRating, sr.MatchesCompleted, sr.MatchesAttended, sr.RatingLocked,
		nullTime(sr.LastCalculatedAt), sr.UpdatedAt, sr.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update season rating: %w", err)
	}
	return nil
}

func (r *SeasonRepository) GetSeasonRatings(ctx context.Context, seasonID uuid.UUID) ([]domain.PlayerSeasonRating, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+seasonRatingColumns+" FROM player_season_ratings WHERE season_id = ? ORDER BY current_rating DESC",
		seasonID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list season ratings: %w", err)
	}
	defer rows.Close()

	var ratings []domain.PlayerSeasonRating
	for rows.Next() {
		sr, err := scanSeasonRating(rows)
		if err != nil {
			return nil, err
		}
		ratings = append(ratings, *sr)
	}
	return ratings, rows.Err()
}

// GetSeasonPlayers returns every player that has a season rating row, i.e.
// everyone the rating engine has seen for the season.
func (r *SeasonRepository) GetSeasonPlayers(ctx context.Context, seasonID uuid.UUID) ([]domain.Player, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.id, p.name, p.player_type, p.is_active, p.created_at, p.updated_at
		 FROM players p
		 JOIN player_season_ratings sr ON sr.player_id = p.id
		 WHERE sr.season_id = ?
		 ORDER BY p.name`,
		seasonID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list season players: %w", err)
	}
	defer rows.Close()

	var players []domain.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, *p)
	}
	return players, rows.Err()
}
