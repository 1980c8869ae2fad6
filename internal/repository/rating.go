package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/soyellupi/futsal-friends/internal/domain"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type RatingRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewRatingRepository(sqlDB *sql.DB, logger zerolog.Logger) *RatingRepository {
	return &RatingRepository{db: sqlDB, logger: logger}
}

const matchRatingColumns = `id, player_id, match_id, season_id, match_number, match_date,
	attended_match, attended_third_time, match_result, team_average_rating, opponent_average_rating,
	rating_before, rating_after, rating_change, elo_k_factor, attendance_bonus, third_time_bonus,
	non_attendance_penalty, calculated_at, created_at`

func scanMatchRating(row interface{ Scan(...any) error }) (*domain.PlayerMatchRating, error) {
	var mr domain.PlayerMatchRating
	var playerID, matchID, seasonID string
	var teamAvg, oppAvg sql.NullFloat64
	if err := row.Scan(&mr.ID, &playerID, &matchID, &seasonID, &mr.MatchNumber, &mr.MatchDate,
		&mr.AttendedMatch, &mr.AttendedThirdTime, &mr.MatchResult, &teamAvg, &oppAvg,
		&mr.RatingBefore, &mr.RatingAfter, &mr.RatingChange, &mr.EloKFactor, &mr.AttendanceBonus,
		&mr.ThirdTimeBonus, &mr.NonAttendancePenalty, &mr.CalculatedAt, &mr.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if mr.PlayerID, err = parseID(playerID); err != nil {
		return nil, err
	}
	if mr.MatchID, err = parseID(matchID); err != nil {
		return nil, err
	}
	if mr.SeasonID, err = parseID(seasonID); err != nil {
		return nil, err
	}
	mr.TeamAverageRating = floatPtr(teamAvg)
	mr.OpponentAverageRating = floatPtr(oppAvg)
	return &mr, nil
}

// GetLastNRatings returns the player's most recent rating records strictly
// before the given match date, newest first. This is the window the engine
// re-bases from.
func (r *RatingRepository) GetLastNRatings(ctx context.Context, playerID, seasonID uuid.UUID, n int, before time.Time) ([]domain.PlayerMatchRating, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+matchRatingColumns+` FROM player_match_ratings
		 WHERE player_id = ? AND season_id = ? AND match_date < ?
		 ORDER BY match_date DESC LIMIT ?`,
		playerID.String(), seasonID.String(), before, n)
	if err != nil {
		return nil, fmt.Errorf("failed to get last ratings: %w", err)
	}
	defer rows.Close()
	return collectMatchRatings(rows)
}

// GetPriorRatings returns every rating record with a match number below the
// given one, newest first. Used to rebuild season state for recalculation.
// Rows of the excluded match never qualify as prior: a player whose
// personal match count lags the week number (mid-season joiners, weeks
// without ratings) has rows on the target match itself with a lower
// match number, and those are the rows being recalculated.
func (r *RatingRepository) GetPriorRatings(ctx context.Context, playerID, seasonID uuid.UUID, beforeMatchNumber int, excludeMatchID uuid.UUID) ([]domain.PlayerMatchRating, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+matchRatingColumns+` FROM player_match_ratings
		 WHERE player_id = ? AND season_id = ? AND match_number < ? AND match_id != ?
		 ORDER BY match_number DESC`,
		playerID.String(), seasonID.String(), beforeMatchNumber, excludeMatchID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get prior ratings: %w", err)
	}
	defer rows.Close()
	return collectMatchRatings(rows)
}

func (r *RatingRepository) GetPlayerSeasonHistory(ctx context.Context, playerID, seasonID uuid.UUID) ([]domain.PlayerMatchRating, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+matchRatingColumns+` FROM player_match_ratings
		 WHERE player_id = ? AND season_id = ?
		 ORDER BY match_date`,
		playerID.String(), seasonID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get player season history: %w", err)
	}
	defer rows.Close()
	return collectMatchRatings(rows)
}

func collectMatchRatings(rows *sql.Rows) ([]domain.PlayerMatchRating, error) {
	var ratings []domain.PlayerMatchRating
	for rows.Next() {
		mr, err := scanMatchRating(rows)
		if err != nil {
			return nil, err
		}
		ratings = append(ratings, *mr)
	}
	return ratings, rows.Err()
}

// ApplyMatchCalculation commits one match's full rating pass: every
// per-player rating row, every season-aggregate update, and both team
// average snapshots. All writes share one transaction so a failure leaves
// nothing applied.
func (r *RatingRepository) ApplyMatchCalculation(ctx context.Context, ratings []domain.PlayerMatchRating, seasonRatings []*domain.PlayerSeasonRating, teams []*domain.Team) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	for i := range ratings {
		mr := &ratings[i]
		if mr.ID == "" {
			id, err := gonanoid.New()
			if err != nil {
				return fmt.Errorf("failed to generate nanoid: %w", err)
			}
			mr.ID = id
		}
		mr.CreatedAt = now

		_, err := tx.ExecContext(ctx,
			`INSERT INTO player_match_ratings (`+matchRatingColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			mr.ID, mr.PlayerID.String(), mr.MatchID.String(), mr.SeasonID.String(),
			mr.MatchNumber, mr.MatchDate, mr.AttendedMatch, mr.AttendedThirdTime,
			string(mr.MatchResult), nullFloat(mr.TeamAverageRating), nullFloat(mr.OpponentAverageRating),
			mr.RatingBefore, mr.RatingAfter, mr.RatingChange, mr.EloKFactor,
			mr.AttendanceBonus, mr.ThirdTimeBonus, mr.NonAttendancePenalty,
			mr.CalculatedAt, mr.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert match rating for player %s: %w", mr.PlayerID, err)
		}
	}

	for _, sr := range seasonRatings {
		sr.UpdatedAt = now
		// A nil id marks a first appearance this season; the row is
		// created here so the bootstrap rolls back with everything else.
		if sr.ID == uuid.Nil {
			sr.ID = uuid.New()
			sr.CreatedAt = now
			_, err := tx.ExecContext(ctx,
				`INSERT INTO player_season_ratings
				 (id, player_id, season_id, current_rating, matches_completed, matches_attended, rating_locked, last_calculated_at, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				sr.ID.String(), sr.PlayerID.String(), sr.SeasonID.String(), sr.CurrentRating,
				sr.MatchesCompleted, sr.MatchesAttended, sr.RatingLocked, nullTime(sr.LastCalculatedAt),
				sr.CreatedAt, sr.UpdatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to create season rating for player %s: %w", sr.PlayerID, err)
			}
			continue
		}

		_, err := tx.ExecContext(ctx,
			`UPDATE player_season_ratings
			 SET current_rating = ?, matches_completed = ?, matches_attended = ?, rating_locked = ?, last_calculated_at = ?, updated_at = ?
			 WHERE id = ?`,
			sr.CurrentRating, sr.MatchesCompleted, sr.MatchesAttended, sr.RatingLocked,
			nullTime(sr.LastCalculatedAt), sr.UpdatedAt, sr.ID.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to update season rating for player %s: %w", sr.PlayerID, err)
		}
	}

	for _, team := range teams {
		_, err := tx.ExecContext(ctx,
			"UPDATE teams SET average_skill_rating = ?, updated_at = ? WHERE id = ?",
			team.AverageSkillRating, now, team.ID.String())
		if err != nil {
			return fmt.Errorf("failed to update team average: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rating calculation: %w", err)
	}

	r.logger.Info().
		Int("rating_rows", len(ratings)).
		Int("season_updates", len(seasonRatings)).
		Msg("match rating calculation committed")
	return nil
}

// ResetForRecalculation deletes a match's rating rows and rewinds the given
// season-rating rows in one transaction, preparing a clean recalculation.
func (r *RatingRepository) ResetForRecalculation(ctx context.Context, matchID uuid.UUID, seasonRatings []*domain.PlayerSeasonRating) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"DELETE FROM player_match_ratings WHERE match_id = ?", matchID.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete match ratings: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	for _, sr := range seasonRatings {
		sr.UpdatedAt = now
		_, err := tx.ExecContext(ctx,
			`UPDATE player_season_ratings
			 SET current_rating = ?, matches_completed = ?, matches_attended = ?, rating_locked = ?, last_calculated_at = ?, updated_at = ?
			 WHERE id = ?`,
			sr.CurrentRating, sr.MatchesCompleted, sr.MatchesAttended, sr.RatingLocked,
			nullTime(sr.LastCalculatedAt), sr.UpdatedAt, sr.ID.String(),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to rewind season rating for player %s: %w", sr.PlayerID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit recalculation reset: %w", err)
	}

	r.logger.Info().
		Str("match_id", matchID.String()).
		Int64("deleted_ratings", deleted).
		Int("season_rewinds", len(seasonRatings)).
		Msg("match state reset for recalculation")
	return deleted, nil
}

// CountUnplayableThirdTime counts social-only attendance at matches that
// never got played. Those never produce rating rows, so the leaderboard
// counts them straight off the attendance table.
func (r *RatingRepository) CountUnplayableThirdTime(ctx context.Context, playerID, seasonID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*)
		 FROM third_time_attendances tta
		 JOIN matches m ON m.id = tta.match_id
		 WHERE tta.player_id = ? AND m.season_id = ? AND m.status = ? AND tta.attended = 1`,
		playerID.String(), seasonID.String(), string(domain.MatchUnplayable),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unplayable third times: %w", err)
	}
	return count, nil
}
