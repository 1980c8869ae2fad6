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

type TeamRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewTeamRepository(sqlDB *sql.DB, logger zerolog.Logger) *TeamRepository {
	return &TeamRepository{db: sqlDB, logger: logger}
}

// CreatePair persists both teams of a match together with their rosters in
// one transaction, so a match never ends up with a single team.
func (r *TeamRepository) CreatePair(ctx context.Context, teamA, teamB *domain.Team, rosterA, rosterB []domain.TeamPlayer) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, team := range []*domain.Team{teamA, teamB} {
		if team.ID == uuid.Nil {
			team.ID = uuid.New()
		}
		team.CreatedAt = now
		team.UpdatedAt = now

		_, err := tx.ExecContext(ctx,
			"INSERT INTO teams (id, match_id, name, average_skill_rating, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
			team.ID.String(), team.MatchID.String(), string(team.Name), team.AverageSkillRating,
			team.CreatedAt, team.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create team %s: %w", team.Name, err)
		}
	}

	insertRoster := func(teamID uuid.UUID, roster []domain.TeamPlayer) error {
		for _, tp := range roster {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO team_players (team_id, player_id, position) VALUES (?, ?, ?)",
				teamID.String(), tp.PlayerID.String(), tp.Position)
			if err != nil {
				return fmt.Errorf("failed to add player %s to team: %w", tp.PlayerID, err)
			}
		}
		return nil
	}
	if err := insertRoster(teamA.ID, rosterA); err != nil {
		return err
	}
	if err := insertRoster(teamB.ID, rosterB); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit team pair: %w", err)
	}

	r.logger.Info().
		Str("match_id", teamA.MatchID.String()).
		Int("team_a_size", len(rosterA)).
		Int("team_b_size", len(rosterB)).
		Msg("teams created")
	return nil
}

// GetMatchTeams returns a match's teams ordered black (team A) then pink.
func (r *TeamRepository) GetMatchTeams(ctx context.Context, matchID uuid.UUID) ([]domain.Team, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, match_id, name, average_skill_rating, created_at, updated_at FROM teams WHERE match_id = ? ORDER BY name",
		matchID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get match teams: %w", err)
	}
	defer rows.Close()

	var teams []domain.Team
	for rows.Next() {
		var t domain.Team
		var id, mID string
		if err := rows.Scan(&id, &mID, &t.Name, &t.AverageSkillRating, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if t.ID, err = parseID(id); err != nil {
			return nil, err
		}
		if t.MatchID, err = parseID(mID); err != nil {
			return nil, err
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

func (r *TeamRepository) GetTeamPlayers(ctx context.Context, teamID uuid.UUID) ([]domain.TeamPlayer, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT team_id, player_id, position FROM team_players WHERE team_id = ?",
		teamID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get team players: %w", err)
	}
	defer rows.Close()

	var roster []domain.TeamPlayer
	for rows.Next() {
		var tp domain.TeamPlayer
		var tID, pID string
		if err := rows.Scan(&tID, &pID, &tp.Position); err != nil {
			return nil, err
		}
		if tp.TeamID, err = parseID(tID); err != nil {
			return nil, err
		}
		if tp.PlayerID, err = parseID(pID); err != nil {
			return nil, err
		}
		roster = append(roster, tp)
	}
	return roster, rows.Err()
}
