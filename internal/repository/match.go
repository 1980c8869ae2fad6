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

type MatchRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewMatchRepository(sqlDB *sql.DB, logger zerolog.Logger) *MatchRepository {
	return &MatchRepository{db: sqlDB, logger: logger}
}

const matchColumns = "id, season_id, match_week, match_date, status, location, notes, created_at, updated_at"

func scanMatch(row interface{ Scan(...any) error }) (*domain.Match, error) {
	var m domain.Match
	var id, seasonID string
	if err := row.Scan(&id, &seasonID, &m.MatchWeek, &m.MatchDate, &m.Status,
		&m.Location, &m.Notes, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if m.ID, err = parseID(id); err != nil {
		return nil, err
	}
	if m.SeasonID, err = parseID(seasonID); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MatchRepository) Create(ctx context.Context, match *domain.Match) error {
	now := time.Now().UTC()
	if match.ID == uuid.Nil {
		match.ID = uuid.New()
	}
	if match.Status == "" {
		match.Status = domain.MatchScheduled
	}
	match.CreatedAt = now
	match.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO matches (id, season_id, match_week, match_date, status, location, notes, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		match.ID.String(), match.SeasonID.String(), match.MatchWeek, match.MatchDate,
		string(match.Status), match.Location, match.Notes, match.CreatedAt, match.UpdatedAt,
	)
	if err != nil {
		r.logger.Error().Err(err).Int("match_week", match.MatchWeek).Msg("failed to create match")
		return fmt.Errorf("failed to create match: %w", err)
	}
	return nil
}

func (r *MatchRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Match, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+matchColumns+" FROM matches WHERE id = ?", id.String())
	m, err := scanMatch(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get match %s: %w", id, err)
	}
	return m, nil
}

func (r *MatchRepository) GetByWeek(ctx context.Context, seasonID uuid.UUID, week int) (*domain.Match, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+matchColumns+" FROM matches WHERE season_id = ? AND match_week = ?",
		seasonID.String(), week)
	m, err := scanMatch(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get match for week %d: %w", week, err)
	}
	return m, nil
}

func (r *MatchRepository) SetStatus(ctx context.Context, id uuid.UUID, status domain.MatchStatus) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE matches SET status = ?, updated_at = ? WHERE id = ?",
		string(status), time.Now().UTC(), id.String())
	if err != nil {
		return fmt.Errorf("failed to update match status: %w", err)
	}
	return nil
}

// GetResult returns (nil, nil) when no result has been recorded.
func (r *MatchRepository) GetResult(ctx context.Context, matchID uuid.UUID) (*domain.MatchResult, error) {
	var res domain.MatchResult
	var id, mID string
	var winning sql.NullString
	err := r.db.QueryRowContext(ctx,
		"SELECT id, match_id, team_a_score, team_b_score, result_type, winning_team_id, created_at FROM match_results WHERE match_id = ?",
		matchID.String(),
	).Scan(&id, &mID, &res.TeamAScore, &res.TeamBScore, &res.ResultType, &winning, &res.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match result: %w", err)
	}
	if res.ID, err = parseID(id); err != nil {
		return nil, err
	}
	if res.MatchID, err = parseID(mID); err != nil {
		return nil, err
	}
	if winning.Valid {
		wid, err := parseID(winning.String)
		if err != nil {
			return nil, err
		}
		res.WinningTeamID = &wid
	}
	return &res, nil
}

// CreateResult records the final score for a match. An existing result is
// overwritten, which is an explicit admin correction.
func (r *MatchRepository) CreateResult(ctx context.Context, result *domain.MatchResult) error {
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	result.CreatedAt = time.Now().UTC()

	var winning any
	if result.WinningTeamID != nil {
		winning = result.WinningTeamID.String()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO match_results (id, match_id, team_a_score, team_b_score, result_type, winning_team_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (match_id) DO UPDATE SET
		   team_a_score = excluded.team_a_score,
		   team_b_score = excluded.team_b_score,
		   result_type = excluded.result_type,
		   winning_team_id = excluded.winning_team_id`,
		result.ID.String(), result.MatchID.String(), result.TeamAScore, result.TeamBScore,
		string(result.ResultType), winning, result.CreatedAt,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("match_id", result.MatchID.String()).Msg("failed to record match result")
		return fmt.Errorf("failed to record match result: %w", err)
	}

	r.logger.Info().
		Str("match_id", result.MatchID.String()).
		Int("team_a_score", result.TeamAScore).
		Int("team_b_score", result.TeamBScore).
		Str("result_type", string(result.ResultType)).
		Msg("match result recorded")
	return nil
}

func (r *MatchRepository) RecordThirdTime(ctx context.Context, tta domain.ThirdTimeAttendance) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO third_time_attendances (match_id, player_id, attended) VALUES (?, ?, ?)
		 ON CONFLICT (match_id, player_id) DO UPDATE SET attended = excluded.attended`,
		tta.MatchID.String(), tta.PlayerID.String(), tta.Attended,
	)
	if err != nil {
		return fmt.Errorf("failed to record third time attendance: %w", err)
	}
	return nil
}

func (r *MatchRepository) GetThirdTimeRoster(ctx context.Context, matchID uuid.UUID) ([]domain.ThirdTimeAttendance, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT match_id, player_id, attended FROM third_time_attendances WHERE match_id = ?",
		matchID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get third time roster: %w", err)
	}
	defer rows.Close()

	var roster []domain.ThirdTimeAttendance
	for rows.Next() {
		var tta domain.ThirdTimeAttendance
		var mID, pID string
		if err := rows.Scan(&mID, &pID, &tta.Attended); err != nil {
			return nil, err
		}
		if tta.MatchID, err = parseID(mID); err != nil {
			return nil, err
		}
		if tta.PlayerID, err = parseID(pID); err != nil {
			return nil, err
		}
		roster = append(roster, tta)
	}
	return roster, rows.Err()
}
