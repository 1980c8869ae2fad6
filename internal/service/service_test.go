package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/soyellupi/futsal-friends/internal/config"
	"github.com/soyellupi/futsal-friends/internal/database"
	"github.com/soyellupi/futsal-friends/internal/domain"
	"github.com/soyellupi/futsal-friends/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func testConfig() *config.Config {
	return &config.Config{
		Rating: config.RatingConfig{
			InitialRating:        3.0,
			MinRating:            1.0,
			MaxRating:            5.0,
			EloKFactor:           0.5,
			RatingScalingFactor:  2.0,
			AttendanceBonus:      0.1,
			ThirdTimeBonus:       0.05,
			NonAttendancePenalty: -0.2,
			MinMatchesForRating:  3,
			RatingWindowSize:     3,
		},
		Points: config.PointsConfig{
			MatchAttendance: 1,
			Win:             3,
			Draw:            1,
			Loss:            0,
			ThirdTime:       1,
		},
	}
}

type testEnv struct {
	db         *sql.DB
	cfg        *config.Config
	playerRepo *repository.PlayerRepository
	seasonRepo *repository.SeasonRepository
	matchRepo  *repository.MatchRepository
	teamRepo   *repository.TeamRepository
	ratingRepo *repository.RatingRepository
	ratingSvc  *RatingService
	teamSvc    *TeamService
	boardSvc   *LeaderboardService
	season     *domain.Season
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// a single connection keeps the in-memory database alive
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}

	nop := zerolog.Nop()
	if err := database.RunMigrations(db, nop); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := testConfig()
	env := &testEnv{
		db:         db,
		cfg:        cfg,
		playerRepo: repository.NewPlayerRepository(db, nop),
		seasonRepo: repository.NewSeasonRepository(db, nop),
		matchRepo:  repository.NewMatchRepository(db, nop),
		teamRepo:   repository.NewTeamRepository(db, nop),
		ratingRepo: repository.NewRatingRepository(db, nop),
	}
	env.ratingSvc = NewRatingService(cfg, env.ratingRepo, env.seasonRepo, env.teamRepo, env.matchRepo, env.playerRepo, nop)
	env.teamSvc = NewTeamService(cfg, env.teamRepo, env.seasonRepo, nop)
	env.boardSvc = NewLeaderboardService(cfg, env.seasonRepo, env.ratingRepo, env.playerRepo, nop)

	env.season = &domain.Season{
		Name:      "2026",
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		IsActive:  true,
	}
	if err := env.seasonRepo.Create(context.Background(), env.season); err != nil {
		t.Fatalf("create season: %v", err)
	}
	return env
}

func (e *testEnv) createPlayer(t *testing.T, name string, playerType domain.PlayerType) *domain.Player {
	t.Helper()
	p := &domain.Player{Name: name, PlayerType: playerType, IsActive: true}
	if err := e.playerRepo.Create(context.Background(), p); err != nil {
		t.Fatalf("create player %s: %v", name, err)
	}
	return p
}

// seedSeasonRating puts a player's season aggregate into a known state, as
// if earlier matches had already been rated.
func (e *testEnv) seedSeasonRating(t *testing.T, playerID uuid.UUID, rating float64, completed, attended int) {
	t.Helper()
	ctx := context.Background()
	sr := &domain.PlayerSeasonRating{
		PlayerID:      playerID,
		SeasonID:      e.season.ID,
		CurrentRating: e.cfg.Rating.InitialRating,
		RatingLocked:  true,
	}
	if err := e.seasonRepo.CreatePlayerSeasonRating(ctx, sr); err != nil {
		t.Fatalf("create season rating: %v", err)
	}
	sr.CurrentRating = rating
	sr.MatchesCompleted = completed
	sr.MatchesAttended = attended
	sr.RatingLocked = completed < e.cfg.Rating.MinMatchesForRating
	if err := e.seasonRepo.UpdatePlayerSeasonRating(ctx, sr); err != nil {
		t.Fatalf("update season rating: %v", err)
	}
}

func (e *testEnv) createMatch(t *testing.T, week int) *domain.Match {
	t.Helper()
	m := &domain.Match{
		SeasonID:  e.season.ID,
		MatchWeek: week,
		MatchDate: time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC).AddDate(0, 0, 7*week),
		Status:    domain.MatchConfirmed,
	}
	if err := e.matchRepo.Create(context.Background(), m); err != nil {
		t.Fatalf("create match week %d: %v", week, err)
	}
	return m
}

func (e *testEnv) createTeams(t *testing.T, match *domain.Match, rosterA, rosterB []uuid.UUID) (*domain.Team, *domain.Team) {
	t.Helper()
	teamA := &domain.Team{MatchID: match.ID, Name: domain.TeamBlack}
	teamB := &domain.Team{MatchID: match.ID, Name: domain.TeamPink}
	tpA := make([]domain.TeamPlayer, len(rosterA))
	for i, id := range rosterA {
		tpA[i] = domain.TeamPlayer{PlayerID: id}
	}
	tpB := make([]domain.TeamPlayer, len(rosterB))
	for i, id := range rosterB {
		tpB[i] = domain.TeamPlayer{PlayerID: id}
	}
	if err := e.teamRepo.CreatePair(context.Background(), teamA, teamB, tpA, tpB); err != nil {
		t.Fatalf("create teams: %v", err)
	}
	return teamA, teamB
}

func (e *testEnv) recordResult(t *testing.T, match *domain.Match, scoreA, scoreB int, winner *uuid.UUID) {
	t.Helper()
	resultType := domain.ResultDraw
	if scoreA != scoreB {
		resultType = domain.ResultWin
	}
	res := &domain.MatchResult{
		MatchID:       match.ID,
		TeamAScore:    scoreA,
		TeamBScore:    scoreB,
		ResultType:    resultType,
		WinningTeamID: winner,
	}
	if err := e.matchRepo.CreateResult(context.Background(), res); err != nil {
		t.Fatalf("record result: %v", err)
	}
}

func (e *testEnv) recordThirdTime(t *testing.T, match *domain.Match, playerID uuid.UUID) {
	t.Helper()
	err := e.matchRepo.RecordThirdTime(context.Background(), domain.ThirdTimeAttendance{
		MatchID: match.ID, PlayerID: playerID, Attended: true,
	})
	if err != nil {
		t.Fatalf("record third time: %v", err)
	}
}

func ratingFor(t *testing.T, ratings []domain.PlayerMatchRating, playerID uuid.UUID) domain.PlayerMatchRating {
	t.Helper()
	for _, r := range ratings {
		if r.PlayerID == playerID {
			return r
		}
	}
	t.Fatalf("no rating found for player %s", playerID)
	return domain.PlayerMatchRating{}
}

func almostEqual(a, b float64) bool {
	const eps = 1e-9
	diff := a - b
	return diff < eps && diff > -eps
}
