package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/soyellupi/futsal-friends/internal/config"
	"github.com/soyellupi/futsal-friends/internal/constants"
	"github.com/soyellupi/futsal-friends/internal/domain"
	"github.com/soyellupi/futsal-friends/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// RatingService computes per-match rating deltas and the resulting bounded
// ratings for every season participant, attendees and absentees alike.
type RatingService struct {
	cfg        config.RatingConfig
	ratingRepo *repository.RatingRepository
	seasonRepo *repository.SeasonRepository
	teamRepo   *repository.TeamRepository
	matchRepo  *repository.MatchRepository
	playerRepo *repository.PlayerRepository
	logger     zerolog.Logger
}

func NewRatingService(
	cfg *config.Config,
	ratingRepo *repository.RatingRepository,
	seasonRepo *repository.SeasonRepository,
	teamRepo *repository.TeamRepository,
	matchRepo *repository.MatchRepository,
	playerRepo *repository.PlayerRepository,
	logger zerolog.Logger,
) *RatingService {
	return &RatingService{
		cfg:        cfg.Rating,
		ratingRepo: ratingRepo,
		seasonRepo: seasonRepo,
		teamRepo:   teamRepo,
		matchRepo:  matchRepo,
		playerRepo: playerRepo,
		logger:     logger,
	}
}

// CalculateMatchRatings runs the rating pass for one completed match over
// every season participant. One rating record per participant is produced,
// season aggregates are advanced, and the whole write-set commits as a
// single transaction.
func (s *RatingService) CalculateMatchRatings(
	ctx context.Context,
	match *domain.Match,
	teamA, teamB *domain.Team,
	seasonPlayers []domain.Player,
) ([]domain.PlayerMatchRating, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	result, err := s.matchRepo.GetResult(ctx, match.ID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		s.logger.Warn().Str("match_id", match.ID.String()).Msg("rating calculation rejected: match has no result")
		return nil, ErrMatchWithoutResult
	}

	thirdTimeRoster, err := s.matchRepo.GetThirdTimeRoster(ctx, match.ID)
	if err != nil {
		return nil, err
	}
	attendedThirdTime := make(map[uuid.UUID]bool, len(thirdTimeRoster))
	for _, tta := range thirdTimeRoster {
		if tta.Attended {
			attendedThirdTime[tta.PlayerID] = true
		}
	}

	var rosterA, rosterB []domain.TeamPlayer
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rosterA, err = s.teamRepo.GetTeamPlayers(gCtx, teamA.ID)
		return err
	})
	g.Go(func() error {
		var err error
		rosterB, err = s.teamRepo.GetTeamPlayers(gCtx, teamB.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch team rosters: %w", err)
	}

	teamAIDs := rosterIDs(rosterA)
	teamBIDs := rosterIDs(rosterB)

	teamAAvg, err := s.teamAverageRating(ctx, match.SeasonID, teamAIDs)
	if err != nil {
		return nil, err
	}
	teamBAvg, err := s.teamAverageRating(ctx, match.SeasonID, teamBIDs)
	if err != nil {
		return nil, err
	}

	// Snapshot the strengths onto the team rows; they are the ELO inputs
	// and get persisted with the rating rows.
	teamA.AverageSkillRating = teamAAvg
	teamB.AverageSkillRating = teamBAvg

	s.logger.Info().
		Str("match_id", match.ID.String()).
		Int("match_week", match.MatchWeek).
		Int("participants", len(seasonPlayers)).
		Float64("team_a_avg", teamAAvg).
		Float64("team_b_avg", teamBAvg).
		Msg("calculating match ratings")

	now := time.Now().UTC()
	ratings := make([]domain.PlayerMatchRating, 0, len(seasonPlayers))
	seasonUpdates := make([]*domain.PlayerSeasonRating, 0, len(seasonPlayers))

	for _, player := range seasonPlayers {
		attended := teamAIDs[player.ID] || teamBIDs[player.ID]

		var outcome domain.MatchOutcome
		var teamAvg, opponentAvg *float64
		if attended {
			playerTeam, opponentTeam := teamA, teamB
			if teamBIDs[player.ID] {
				playerTeam, opponentTeam = teamB, teamA
			}
			outcome = outcomeForTeam(playerTeam, result)
			teamAvg = &playerTeam.AverageSkillRating
			opponentAvg = &opponentTeam.AverageSkillRating
		} else {
			outcome = domain.OutcomeDidNotAttend
		}

		seasonRating, err := s.seasonRepo.GetPlayerSeasonRating(ctx, player.ID, match.SeasonID)
		if err != nil {
			return nil, err
		}
		if seasonRating == nil {
			// First appearance this season. The row is inserted by
			// ApplyMatchCalculation so it lands in the same transaction
			// as the rating rows.
			seasonRating = &domain.PlayerSeasonRating{
				PlayerID:         player.ID,
				SeasonID:         match.SeasonID,
				CurrentRating:    s.cfg.InitialRating,
				MatchesCompleted: 0,
				MatchesAttended:  0,
				RatingLocked:     true,
			}
		}

		matchNumber := seasonRating.MatchesCompleted + 1
		ratingBefore := seasonRating.CurrentRating

		change, attendanceBonus, thirdTimeBonus, penalty := s.ratingChange(
			player, matchNumber, attended, attendedThirdTime[player.ID], outcome, teamAvg, opponentAvg,
		)

		var ratingAfter float64
		if matchNumber <= s.cfg.MinMatchesForRating {
			// Warm-up: rating pinned to the baseline.
			ratingAfter = s.cfg.InitialRating
		} else {
			// Windowed rebase: start over from the baseline and replay
			// only the most recent deltas. Older drift is intentionally
			// forgotten so the rating tracks recent form.
			window, err := s.ratingRepo.GetLastNRatings(
				ctx, player.ID, match.SeasonID, s.cfg.RatingWindowSize-1, match.MatchDate)
			if err != nil {
				return nil, err
			}

			ratingAfter = s.cfg.InitialRating
			for _, prev := range window {
				ratingAfter += prev.RatingChange
			}
			ratingAfter += change
			ratingAfter = clamp(ratingAfter, s.cfg.MinRating, s.cfg.MaxRating)
		}

		ratings = append(ratings, domain.PlayerMatchRating{
			PlayerID:              player.ID,
			MatchID:               match.ID,
			SeasonID:              match.SeasonID,
			MatchNumber:           matchNumber,
			MatchDate:             match.MatchDate,
			AttendedMatch:         attended,
			AttendedThirdTime:     attendedThirdTime[player.ID],
			MatchResult:           outcome,
			TeamAverageRating:     teamAvg,
			OpponentAverageRating: opponentAvg,
			RatingBefore:          ratingBefore,
			RatingAfter:           ratingAfter,
			RatingChange:          change,
			EloKFactor:            s.cfg.EloKFactor,
			AttendanceBonus:       attendanceBonus,
			ThirdTimeBonus:        thirdTimeBonus,
			NonAttendancePenalty:  penalty,
			CalculatedAt:          now,
		})

		seasonRating.CurrentRating = ratingAfter
		seasonRating.MatchesCompleted = matchNumber
		if attended {
			seasonRating.MatchesAttended++
		}
		if matchNumber >= s.cfg.MinMatchesForRating {
			seasonRating.RatingLocked = false
		}
		calcAt := now
		seasonRating.LastCalculatedAt = &calcAt
		seasonUpdates = append(seasonUpdates, seasonRating)
	}

	if err := s.ratingRepo.ApplyMatchCalculation(ctx, ratings, seasonUpdates, []*domain.Team{teamA, teamB}); err != nil {
		return nil, fmt.Errorf("failed to persist rating calculation: %w", err)
	}

	s.logger.Info().
		Str("match_id", match.ID.String()).
		Int("ratings", len(ratings)).
		Msg("match ratings calculated")
	return ratings, nil
}

// CalculateForWeek resolves the active season's match for the given week and
// runs the rating pass over it.
func (s *RatingService) CalculateForWeek(ctx context.Context, week int) ([]domain.PlayerMatchRating, error) {
	match, teamA, teamB, players, err := s.loadMatchContext(ctx, week)
	if err != nil {
		return nil, err
	}
	return s.CalculateMatchRatings(ctx, match, teamA, teamB, players)
}

// RecalculateForWeek is the recovery path: it deletes the match's rating
// rows, rewinds every participant's season aggregate to the state produced
// by the prior rating chain, and reruns the calculation. Given identical
// history it reproduces the original values exactly.
func (s *RatingService) RecalculateForWeek(ctx context.Context, week int) ([]domain.PlayerMatchRating, error) {
	match, teamA, teamB, players, err := s.loadMatchContext(ctx, week)
	if err != nil {
		return nil, err
	}

	result, err := s.matchRepo.GetResult(ctx, match.ID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrMatchWithoutResult
	}

	seasonRatings, err := s.seasonRepo.GetSeasonRatings(ctx, match.SeasonID)
	if err != nil {
		return nil, err
	}

	rewinds := make([]*domain.PlayerSeasonRating, 0, len(seasonRatings))
	for i := range seasonRatings {
		sr := &seasonRatings[i]
		prior, err := s.ratingRepo.GetPriorRatings(ctx, sr.PlayerID, match.SeasonID, week, match.ID)
		if err != nil {
			return nil, err
		}

		if len(prior) == 0 {
			sr.CurrentRating = s.cfg.InitialRating
			sr.MatchesCompleted = 0
			sr.MatchesAttended = 0
			sr.RatingLocked = true
		} else {
			last := prior[0]
			sr.CurrentRating = last.RatingAfter
			sr.MatchesCompleted = last.MatchNumber
			attended := 0
			for _, mr := range prior {
				if mr.AttendedMatch {
					attended++
				}
			}
			sr.MatchesAttended = attended
			sr.RatingLocked = sr.MatchesCompleted < s.cfg.MinMatchesForRating
		}
		rewinds = append(rewinds, sr)
	}

	deleted, err := s.ratingRepo.ResetForRecalculation(ctx, match.ID, rewinds)
	if err != nil {
		return nil, fmt.Errorf("failed to reset match for recalculation: %w", err)
	}

	s.logger.Info().
		Int("match_week", week).
		Int64("deleted_ratings", deleted).
		Msg("recalculating match ratings")

	return s.CalculateMatchRatings(ctx, match, teamA, teamB, players)
}

func (s *RatingService) loadMatchContext(ctx context.Context, week int) (*domain.Match, *domain.Team, *domain.Team, []domain.Player, error) {
	season, err := s.seasonRepo.GetActive(ctx)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	match, err := s.matchRepo.GetByWeek(ctx, season.ID, week)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	teams, err := s.teamRepo.GetMatchTeams(ctx, match.ID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if len(teams) != 2 {
		return nil, nil, nil, nil, ErrTeamsIncomplete
	}

	players, err := s.seasonRepo.GetSeasonPlayers(ctx, season.ID)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if len(players) == 0 {
		// Nobody has a season rating yet; the regular roster is the season.
		players, err = s.playerRepo.ListActiveRegular(ctx)
		if err != nil {
			return nil, nil, nil, nil, err
		}
	}

	return match, &teams[0], &teams[1], players, nil
}

// ratingChange returns (total change, attendance bonus, third-time bonus,
// penalty). Invited players are never penalized for absence and never earn
// the third-time bonus.
func (s *RatingService) ratingChange(
	player domain.Player,
	matchNumber int,
	attended, attendedThirdTime bool,
	outcome domain.MatchOutcome,
	teamAvg, opponentAvg *float64,
) (change, attendanceBonus, thirdTimeBonus, penalty float64) {
	// Warm-up matches never move the rating.
	if matchNumber <= s.cfg.MinMatchesForRating {
		return 0, 0, 0, 0
	}

	if !attended {
		if player.ExemptFromPenalty() {
			return 0, 0, 0, 0
		}
		penalty = s.cfg.NonAttendancePenalty
		return penalty, 0, 0, penalty
	}

	attendanceBonus = s.cfg.AttendanceBonus
	if attendedThirdTime && player.EarnsSocialBonus() {
		thirdTimeBonus = s.cfg.ThirdTimeBonus
	}

	var eloChange float64
	if teamAvg != nil && opponentAvg != nil {
		ratingDiff := *opponentAvg - *teamAvg
		expected := 1 / (1 + math.Pow(10, ratingDiff/s.cfg.RatingScalingFactor))

		var actual float64
		switch outcome {
		case domain.OutcomeWin:
			actual = 1.0
		case domain.OutcomeDraw:
			actual = 0.5
		default:
			actual = 0.0
		}

		eloChange = s.cfg.EloKFactor * (actual - expected)
	}

	change = eloChange + attendanceBonus + thirdTimeBonus
	return change, attendanceBonus, thirdTimeBonus, penalty
}

// teamAverageRating is the mean of the roster's current season ratings.
// Unrated players count at the baseline; an empty roster is the baseline.
func (s *RatingService) teamAverageRating(ctx context.Context, seasonID uuid.UUID, roster map[uuid.UUID]bool) (float64, error) {
	if len(roster) == 0 {
		return s.cfg.InitialRating, nil
	}

	total := 0.0
	for playerID := range roster {
		sr, err := s.seasonRepo.GetPlayerSeasonRating(ctx, playerID, seasonID)
		if err != nil {
			return 0, err
		}
		if sr != nil {
			total += sr.CurrentRating
		} else {
			total += s.cfg.InitialRating
		}
	}
	return total / float64(len(roster)), nil
}

func outcomeForTeam(playerTeam *domain.Team, result *domain.MatchResult) domain.MatchOutcome {
	if result.ResultType == domain.ResultDraw {
		return domain.OutcomeDraw
	}
	if result.WinningTeamID != nil && *result.WinningTeamID == playerTeam.ID {
		return domain.OutcomeWin
	}
	return domain.OutcomeLoss
}

func rosterIDs(roster []domain.TeamPlayer) map[uuid.UUID]bool {
	ids := make(map[uuid.UUID]bool, len(roster))
	for _, tp := range roster {
		ids[tp.PlayerID] = true
	}
	return ids
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
