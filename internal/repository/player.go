package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/soyellupi/futsal-friends/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type PlayerRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewPlayerRepository(sqlDB *sql.DB, logger zerolog.Logger) *PlayerRepository {
	return &PlayerRepository{db: sqlDB, logger: logger}
}

const playerColumns = "id, name, player_type, is_active, created_at, updated_at"

func scanPlayer(row interface{ Scan(...any) error }) (*domain.Player, error) {
	var p domain.Player
	var id string
	if err := row.Scan(&id, &p.Name, &p.PlayerType, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := parseID(id)
	if err != nil {
		return nil, fmt.Errorf("invalid player id %q: %w", id, err)
	}
	p.ID = parsed
	return &p, nil
}

func (r *PlayerRepository) Create(ctx context.Context, player *domain.Player) error {
	now := time.Now().UTC()
	if player.ID == uuid.Nil {
		player.ID = uuid.New()
	}
	player.CreatedAt = now
	player.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO players (id, name, player_type, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		player.ID.String(), player.Name, string(player.PlayerType), player.IsActive, player.CreatedAt, player.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("name", player.Name).Msg("failed to create player")
		return fmt.Errorf("failed to create player: %w", err)
	}
	return nil
}

func (r *PlayerRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Player, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+playerColumns+" FROM players WHERE id = ?", id.String())
	player, err := scanPlayer(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get player %s: %w", id, err)
	}
	return player, nil
}

// FindByName matches players whose name contains the query, case-insensitive.
func (r *PlayerRepository) FindByName(ctx context.Context, query string, limit int) ([]domain.Player, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+playerColumns+" FROM players WHERE name LIKE ? ORDER BY name LIMIT ?",
		"%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search players: %w", err)
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

func (r *PlayerRepository) ListActiveRegular(ctx context.Context) ([]domain.Player, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+playerColumns+" FROM players WHERE player_type = ? AND is_active = 1 ORDER BY name",
		string(domain.PlayerTypeRegular))
	if err != nil {
		return nil, fmt.Errorf("failed to list active regular players: %w", err)
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

// SetPlayerType is the admin path for reclassifying a player between
// regular and invited.
func (r *PlayerRepository) SetPlayerType(ctx context.Context, id uuid.UUID, playerType domain.PlayerType) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE players SET player_type = ?, updated_at = ? WHERE id = ?",
		string(playerType), time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("failed to update player type: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	r.logger.Info().Str("player_id", id.String()).Str("player_type", string(playerType)).Msg("player type updated")
	return nil
}

// SetActive flips a player in or out of the active pool. Deactivated
// players keep their history but drop off rosters and the leaderboard.
func (r *PlayerRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE players SET is_active = ?, updated_at = ? WHERE id = ?",
		active, time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("failed to update player active flag: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	r.logger.Info().Str("player_id", id.String()).Bool("is_active", active).Msg("player active flag updated")
	return nil
}
