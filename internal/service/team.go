package service

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/soyellupi/futsal-friends/internal/config"
	"github.com/soyellupi/futsal-friends/internal/constants"
	"github.com/soyellupi/futsal-friends/internal/domain"
	"github.com/soyellupi/futsal-friends/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PlayerRating pairs a candidate with the rating used as balancing weight.
type PlayerRating struct {
	PlayerID uuid.UUID
	Rating   float64
}

// Split is a proposed two-team partition. AverageDifference is the balance
// quality callers judge splits by.
type Split struct {
	TeamA             []uuid.UUID
	TeamB             []uuid.UUID
	TeamAAverage      float64
	TeamBAverage      float64
	AverageDifference float64
}

// BalanceGreedy partitions candidates deterministically: sorted by rating
// descending, each player joins whichever team currently carries the lower
// total rating, ties going to team A.
func BalanceGreedy(players []PlayerRating) (*Split, error) {
	if len(players) < 2 {
		return nil, ErrNotEnoughPlayers
	}

	sorted := make([]PlayerRating, len(players))
	copy(sorted, players)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Rating > sorted[j].Rating
	})

	var teamA, teamB []uuid.UUID
	var totalA, totalB float64
	for _, pr := range sorted {
		if totalA <= totalB {
			teamA = append(teamA, pr.PlayerID)
			totalA += pr.Rating
		} else {
			teamB = append(teamB, pr.PlayerID)
			totalB += pr.Rating
		}
	}

	avgA := totalA / float64(len(teamA))
	avgB := 0.0
	if len(teamB) > 0 {
		avgB = totalB / float64(len(teamB))
	}

	return &Split{
		TeamA:             teamA,
		TeamB:             teamB,
		TeamAAverage:      avgA,
		TeamBAverage:      avgB,
		AverageDifference: math.Abs(avgA - avgB),
	}, nil
}

// BalanceRandomized tries the given number of random half-and-half splits
// and keeps the one with the smallest average rating difference. The rand
// source is injected so the search is reproducible under a fixed seed.
func BalanceRandomized(players []PlayerRating, attempts int, rng *rand.Rand) (*Split, error) {
	if len(players) < 2 {
		return nil, ErrNotEnoughPlayers
	}
	if attempts < 1 {
		attempts = 1
	}

	ratings := make(map[uuid.UUID]float64, len(players))
	ids := make([]uuid.UUID, len(players))
	for i, pr := range players {
		ids[i] = pr.PlayerID
		ratings[pr.PlayerID] = pr.Rating
	}

	var best *Split
	for i := 0; i < attempts; i++ {
		shuffled := make([]uuid.UUID, len(ids))
		copy(shuffled, ids)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		mid := len(shuffled) / 2
		teamA := shuffled[:mid]
		teamB := shuffled[mid:]

		avgA := averageRating(teamA, ratings)
		avgB := averageRating(teamB, ratings)
		diff := math.Abs(avgA - avgB)

		if best == nil || diff < best.AverageDifference {
			best = &Split{
				TeamA:             append([]uuid.UUID(nil), teamA...),
				TeamB:             append([]uuid.UUID(nil), teamB...),
				TeamAAverage:      avgA,
				TeamBAverage:      avgB,
				AverageDifference: diff,
			}
		}
	}

	return best, nil
}

func averageRating(ids []uuid.UUID, ratings map[uuid.UUID]float64) float64 {
	if len(ids) == 0 {
		return 0
	}
	total := 0.0
	for _, id := range ids {
		total += ratings[id]
	}
	return total / float64(len(ids))
}

// TeamService creates and persists balanced teams for a match, weighting
// players by their current season rating.
type TeamService struct {
	cfg        config.RatingConfig
	teamRepo   *repository.TeamRepository
	seasonRepo *repository.SeasonRepository
	logger     zerolog.Logger
	rng        *rand.Rand
}

func NewTeamService(
	cfg *config.Config,
	teamRepo *repository.TeamRepository,
	seasonRepo *repository.SeasonRepository,
	logger zerolog.Logger,
) *TeamService {
	return &TeamService{
		cfg:        cfg.Rating,
		teamRepo:   teamRepo,
		seasonRepo: seasonRepo,
		logger:     logger,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithRand replaces the randomness source; tests pass a seeded one.
func (s *TeamService) WithRand(rng *rand.Rand) *TeamService {
	s.rng = rng
	return s
}

// CreateBalancedTeams runs the greedy balancer over current season ratings
// and persists the split as the match's two teams.
func (s *TeamService) CreateBalancedTeams(ctx context.Context, matchID, seasonID uuid.UUID, playerIDs []uuid.UUID) (*domain.Team, *domain.Team, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	players, err := s.playerRatings(ctx, seasonID, playerIDs)
	if err != nil {
		return nil, nil, err
	}

	split, err := BalanceGreedy(players)
	if err != nil {
		return nil, nil, err
	}

	return s.persistSplit(ctx, matchID, split)
}

// ShuffleTeams runs the randomized balancer for roster variety and persists
// the best split found.
func (s *TeamService) ShuffleTeams(ctx context.Context, matchID, seasonID uuid.UUID, playerIDs []uuid.UUID) (*domain.Team, *domain.Team, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	players, err := s.playerRatings(ctx, seasonID, playerIDs)
	if err != nil {
		return nil, nil, err
	}

	split, err := BalanceRandomized(players, constants.DefaultShuffleAttempts, s.rng)
	if err != nil {
		return nil, nil, err
	}

	return s.persistSplit(ctx, matchID, split)
}

// MatchTeams returns a match's two teams, black first.
func (s *TeamService) MatchTeams(ctx context.Context, matchID uuid.UUID) ([]domain.Team, error) {
	return s.teamRepo.GetMatchTeams(ctx, matchID)
}

func (s *TeamService) playerRatings(ctx context.Context, seasonID uuid.UUID, playerIDs []uuid.UUID) ([]PlayerRating, error) {
	players := make([]PlayerRating, 0, len(playerIDs))
	for _, id := range playerIDs {
		rating := s.cfg.InitialRating
		sr, err := s.seasonRepo.GetPlayerSeasonRating(ctx, id, seasonID)
		if err != nil {
			return nil, err
		}
		if sr != nil {
			rating = sr.CurrentRating
		}
		players = append(players, PlayerRating{PlayerID: id, Rating: rating})
	}
	return players, nil
}

func (s *TeamService) persistSplit(ctx context.Context, matchID uuid.UUID, split *Split) (*domain.Team, *domain.Team, error) {
	teamA := &domain.Team{
		MatchID:            matchID,
		Name:               domain.TeamBlack,
		AverageSkillRating: split.TeamAAverage,
	}
	teamB := &domain.Team{
		MatchID:            matchID,
		Name:               domain.TeamPink,
		AverageSkillRating: split.TeamBAverage,
	}

	rosterA := make([]domain.TeamPlayer, len(split.TeamA))
	for i, id := range split.TeamA {
		rosterA[i] = domain.TeamPlayer{PlayerID: id}
	}
	rosterB := make([]domain.TeamPlayer, len(split.TeamB))
	for i, id := range split.TeamB {
		rosterB[i] = domain.TeamPlayer{PlayerID: id}
	}

	if err := s.teamRepo.CreatePair(ctx, teamA, teamB, rosterA, rosterB); err != nil {
		return nil, nil, err
	}

	s.logger.Info().
		Str("match_id", matchID.String()).
		Float64("team_a_avg", split.TeamAAverage).
		Float64("team_b_avg", split.TeamBAverage).
		Float64("difference", split.AverageDifference).
		Msg("balanced teams persisted")
	return teamA, teamB, nil
}
