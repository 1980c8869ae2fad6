package service

import (
	"context"
	"database/sql"
	"math"
	"sort"

	"github.com/soyellupi/futsal-friends/internal/config"
	"github.com/soyellupi/futsal-friends/internal/constants"
	"github.com/soyellupi/futsal-friends/internal/domain"
	"github.com/soyellupi/futsal-friends/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PlayerStats is one leaderboard row.
type PlayerStats struct {
	PlayerID          uuid.UUID `json:"player_id"`
	PlayerName        string    `json:"player_name"`
	CurrentRating     float64   `json:"current_rating"`
	MatchesCompleted  int       `json:"matches_completed"`
	MatchesAttended   int       `json:"matches_attended"`
	Wins              int       `json:"wins"`
	Draws             int       `json:"draws"`
	Losses            int       `json:"losses"`
	ThirdTimeAttended int       `json:"third_time_attended"`
	TotalPoints       int       `json:"total_points"`
	AttendanceRate    float64   `json:"attendance_rate"`
}

type LeaderboardService struct {
	points     config.PointsConfig
	seasonRepo *repository.SeasonRepository
	ratingRepo *repository.RatingRepository
	playerRepo *repository.PlayerRepository
	logger     zerolog.Logger
}

func NewLeaderboardService(
	cfg *config.Config,
	seasonRepo *repository.SeasonRepository,
	ratingRepo *repository.RatingRepository,
	playerRepo *repository.PlayerRepository,
	logger zerolog.Logger,
) *LeaderboardService {
	return &LeaderboardService{
		points:     cfg.Points,
		seasonRepo: seasonRepo,
		ratingRepo: ratingRepo,
		playerRepo: playerRepo,
		logger:     logger,
	}
}

// CalculateSeasonLeaderboard builds the season standings. Invited and
// inactive players are excluded; rows sort by points, then rating.
func (s *LeaderboardService) CalculateSeasonLeaderboard(ctx context.Context, seasonID uuid.UUID) ([]PlayerStats, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	seasonRatings, err := s.seasonRepo.GetSeasonRatings(ctx, seasonID)
	if err != nil {
		return nil, err
	}

	leaderboard := make([]PlayerStats, 0, len(seasonRatings))
	for _, sr := range seasonRatings {
		player, err := s.playerRepo.Get(ctx, sr.PlayerID)
		if err != nil {
			return nil, err
		}
		if player.PlayerType == domain.PlayerTypeInvited || !player.IsActive {
			continue
		}

		stats, err := s.playerStats(ctx, *player, sr)
		if err != nil {
			return nil, err
		}
		leaderboard = append(leaderboard, stats)
	}

	sort.SliceStable(leaderboard, func(i, j int) bool {
		if leaderboard[i].TotalPoints != leaderboard[j].TotalPoints {
			return leaderboard[i].TotalPoints > leaderboard[j].TotalPoints
		}
		return leaderboard[i].CurrentRating > leaderboard[j].CurrentRating
	})

	s.logger.Debug().
		Str("season_id", seasonID.String()).
		Int("rows", len(leaderboard)).
		Msg("season leaderboard calculated")
	return leaderboard, nil
}

// GetPlayerStats builds one player's season statistics. Unlike the
// leaderboard it serves invited players too; their third-time tally stays
// at zero since guests earn no social credit.
func (s *LeaderboardService) GetPlayerStats(ctx context.Context, playerID, seasonID uuid.UUID) (*PlayerStats, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	player, err := s.playerRepo.Get(ctx, playerID)
	if err != nil {
		return nil, err
	}

	sr, err := s.seasonRepo.GetPlayerSeasonRating(ctx, playerID, seasonID)
	if err != nil {
		return nil, err
	}
	if sr == nil {
		return nil, sql.ErrNoRows
	}

	stats, err := s.playerStats(ctx, *player, *sr)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *LeaderboardService) playerStats(ctx context.Context, player domain.Player, sr domain.PlayerSeasonRating) (PlayerStats, error) {
	history, err := s.ratingRepo.GetPlayerSeasonHistory(ctx, player.ID, sr.SeasonID)
	if err != nil {
		return PlayerStats{}, err
	}

	var wins, draws, losses, thirdTimes int
	for _, mr := range history {
		switch mr.MatchResult {
		case domain.OutcomeWin:
			wins++
		case domain.OutcomeDraw:
			draws++
		case domain.OutcomeLoss:
			losses++
		}
		if mr.AttendedThirdTime && player.EarnsSocialBonus() {
			thirdTimes++
		}
	}

	// Socials at matches that were never played produce no rating rows but
	// still count toward the third-time tally.
	if player.EarnsSocialBonus() {
		unplayable, err := s.ratingRepo.CountUnplayableThirdTime(ctx, player.ID, sr.SeasonID)
		if err != nil {
			return PlayerStats{}, err
		}
		thirdTimes += unplayable
	}

	totalPoints := sr.MatchesAttended*s.points.MatchAttendance +
		wins*s.points.Win +
		draws*s.points.Draw +
		losses*s.points.Loss +
		thirdTimes*s.points.ThirdTime

	attendanceRate := 0.0
	if sr.MatchesCompleted > 0 {
		attendanceRate = float64(sr.MatchesAttended) / float64(sr.MatchesCompleted) * 100
		attendanceRate = math.Round(attendanceRate*100) / 100
	}

	return PlayerStats{
		PlayerID:          player.ID,
		PlayerName:        player.Name,
		CurrentRating:     sr.CurrentRating,
		MatchesCompleted:  sr.MatchesCompleted,
		MatchesAttended:   sr.MatchesAttended,
		Wins:              wins,
		Draws:             draws,
		Losses:            losses,
		ThirdTimeAttended: thirdTimes,
		TotalPoints:       totalPoints,
		AttendanceRate:    attendanceRate,
	}, nil
}
