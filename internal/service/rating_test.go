package service

import (
	"context"
	"errors"
	"testing"

	"github.com/soyellupi/futsal-friends/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestCalculateMatchRatings_RequiresResult(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p1 := env.createPlayer(t, "Ana", domain.PlayerTypeRegular)
	p2 := env.createPlayer(t, "Bruno", domain.PlayerTypeRegular)
	match := env.createMatch(t, 1)
	teamA, teamB := env.createTeams(t, match, []uuid.UUID{p1.ID}, []uuid.UUID{p2.ID})

	_, err := env.ratingSvc.CalculateMatchRatings(ctx, match, teamA, teamB, []domain.Player{*p1, *p2})
	if !errors.Is(err, ErrMatchWithoutResult) {
		t.Fatalf("expected ErrMatchWithoutResult, got %v", err)
	}

	// nothing may have been written
	history, err := env.ratingRepo.GetPlayerSeasonHistory(ctx, p1.ID, env.season.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected no rating rows after rejection, got %d", len(history))
	}
}

func TestCalculateMatchRatings_WarmupHoldsBaseline(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p1 := env.createPlayer(t, "Ana", domain.PlayerTypeRegular)
	p2 := env.createPlayer(t, "Bruno", domain.PlayerTypeRegular)
	participants := []domain.Player{*p1, *p2}

	for week := 1; week <= 3; week++ {
		match := env.createMatch(t, week)
		teamA, teamB := env.createTeams(t, match, []uuid.UUID{p1.ID}, []uuid.UUID{p2.ID})
		env.recordResult(t, match, 5, 2, &teamA.ID)

		ratings, err := env.ratingSvc.CalculateMatchRatings(ctx, match, teamA, teamB, participants)
		if err != nil {
			t.Fatalf("week %d: %v", week, err)
		}

		for _, mr := range ratings {
			if mr.MatchNumber != week {
				t.Errorf("week %d: match number = %d", week, mr.MatchNumber)
			}
			if mr.RatingChange != 0 {
				t.Errorf("week %d: warm-up rating change = %v, want 0", week, mr.RatingChange)
			}
			if mr.RatingAfter != env.cfg.Rating.InitialRating {
				t.Errorf("week %d: warm-up rating after = %v, want %v", week, mr.RatingAfter, env.cfg.Rating.InitialRating)
			}
		}
	}

	sr, err := env.seasonRepo.GetPlayerSeasonRating(ctx, p1.ID, env.season.ID)
	if err != nil {
		t.Fatalf("season rating: %v", err)
	}
	if sr.RatingLocked {
		t.Error("rating should unlock once the warm-up threshold is reached")
	}
	if sr.MatchesCompleted != 3 || sr.MatchesAttended != 3 {
		t.Errorf("completed/attended = %d/%d, want 3/3", sr.MatchesCompleted, sr.MatchesAttended)
	}
}

// Evenly matched teams, a win, no third time: expected score 0.5, ELO delta
// 0.25, plus the attendance bonus of 0.1.
func TestCalculateMatchRatings_EloWin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p1 := env.createPlayer(t, "Ana", domain.PlayerTypeRegular)
	p2 := env.createPlayer(t, "Bruno", domain.PlayerTypeRegular)
	env.seedSeasonRating(t, p1.ID, 3.0, 3, 3)
	env.seedSeasonRating(t, p2.ID, 3.0, 3, 3)

	match := env.createMatch(t, 4)
	teamA, teamB := env.createTeams(t, match, []uuid.UUID{p1.ID}, []uuid.UUID{p2.ID})
	env.recordResult(t, match, 4, 3, &teamA.ID)

	ratings, err := env.ratingSvc.CalculateMatchRatings(ctx, match, teamA, teamB, []domain.Player{*p1, *p2})
	if err != nil {
		t.Fatal(err)
	}

	winner := ratingFor(t, ratings, p1.ID)
	if winner.MatchResult != domain.OutcomeWin {
		t.Errorf("outcome = %s, want win", winner.MatchResult)
	}
	if !almostEqual(winner.RatingChange, 0.35) {
		t.Errorf("rating change = %v, want 0.35", winner.RatingChange)
	}
	if !almostEqual(winner.RatingAfter, 3.35) {
		t.Errorf("rating after = %v, want 3.35", winner.RatingAfter)
	}
	if !almostEqual(winner.AttendanceBonus, 0.1) {
		t.Errorf("attendance bonus = %v, want 0.1", winner.AttendanceBonus)
	}
	if winner.ThirdTimeBonus != 0 {
		t.Errorf("third time bonus = %v, want 0", winner.ThirdTimeBonus)
	}
	if winner.TeamAverageRating == nil || !almostEqual(*winner.TeamAverageRating, 3.0) {
		t.Errorf("team average = %v, want 3.0", winner.TeamAverageRating)
	}

	loser := ratingFor(t, ratings, p2.ID)
	if loser.MatchResult != domain.OutcomeLoss {
		t.Errorf("outcome = %s, want loss", loser.MatchResult)
	}
	if !almostEqual(loser.RatingChange, -0.15) {
		t.Errorf("loser rating change = %v, want -0.15", loser.RatingChange)
	}
	if !almostEqual(loser.RatingAfter, 2.85) {
		t.Errorf("loser rating after = %v, want 2.85", loser.RatingAfter)
	}

	// the strength snapshots must land on the team rows
	teams, err := env.teamRepo.GetMatchTeams(ctx, match.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, team := range teams {
		if !almostEqual(team.AverageSkillRating, 3.0) {
			t.Errorf("persisted team average = %v, want 3.0", team.AverageSkillRating)
		}
	}
}

func TestCalculateMatchRatings_AbsentRegularPenalized(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p1 := env.createPlayer(t, "Ana", domain.PlayerTypeRegular)
	p2 := env.createPlayer(t, "Bruno", domain.PlayerTypeRegular)
	absent := env.createPlayer(t, "Carla", domain.PlayerTypeRegular)
	for _, id := range []uuid.UUID{p1.ID, p2.ID, absent.ID} {
		env.seedSeasonRating(t, id, 3.0, 3, 3)
	}

	match := env.createMatch(t, 4)
	teamA, teamB := env.createTeams(t, match, []uuid.UUID{p1.ID}, []uuid.UUID{p2.ID})
	env.recordResult(t, match, 2, 2, nil)

	ratings, err := env.ratingSvc.CalculateMatchRatings(ctx, match, teamA, teamB, []domain.Player{*p1, *p2, *absent})
	if err != nil {
		t.Fatal(err)
	}

	mr := ratingFor(t, ratings, absent.ID)
	if mr.MatchResult != domain.OutcomeDidNotAttend {
		t.Errorf("outcome = %s, want did_not_attend", mr.MatchResult)
	}
	if !almostEqual(mr.RatingChange, -0.2) {
		t.Errorf("rating change = %v, want -0.2", mr.RatingChange)
	}
	if !almostEqual(mr.NonAttendancePenalty, -0.2) {
		t.Errorf("penalty component = %v, want -0.2", mr.NonAttendancePenalty)
	}
	if !almostEqual(mr.RatingAfter, 2.8) {
		t.Errorf("rating after = %v, want 2.8", mr.RatingAfter)
	}
	if mr.TeamAverageRating != nil || mr.OpponentAverageRating != nil {
		t.Error("absent players must have no team averages")
	}

	sr, err := env.seasonRepo.GetPlayerSeasonRating(ctx, absent.ID, env.season.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sr.MatchesCompleted != 4 || sr.MatchesAttended != 3 {
		t.Errorf("completed/attended = %d/%d, want 4/3", sr.MatchesCompleted, sr.MatchesAttended)
	}
}

func TestCalculateMatchRatings_InvitedImmunity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p1 := env.createPlayer(t, "Ana", domain.PlayerTypeRegular)
	guest := env.createPlayer(t, "Gus", domain.PlayerTypeInvited)
	awayGuest := env.createPlayer(t, "Gone", domain.PlayerTypeInvited)
	for _, id := range []uuid.UUID{p1.ID, guest.ID, awayGuest.ID} {
		env.seedSeasonRating(t, id, 3.0, 5, 5)
	}

	match := env.createMatch(t, 6)
	teamA, teamB := env.createTeams(t, match, []uuid.UUID{p1.ID}, []uuid.UUID{guest.ID})
	env.recordResult(t, match, 1, 1, nil)
	// both the playing guest and the regular went to the social
	env.recordThirdTime(t, match, guest.ID)
	env.recordThirdTime(t, match, p1.ID)

	ratings, err := env.ratingSvc.CalculateMatchRatings(ctx, match, teamA, teamB, []domain.Player{*p1, *guest, *awayGuest})
	if err != nil {
		t.Fatal(err)
	}

	absent := ratingFor(t, ratings, awayGuest.ID)
	if absent.RatingChange != 0 || absent.NonAttendancePenalty != 0 {
		t.Errorf("absent invited player: change=%v penalty=%v, want 0/0", absent.RatingChange, absent.NonAttendancePenalty)
	}
	if !almostEqual(absent.RatingAfter, 3.0) {
		t.Errorf("absent invited rating after = %v, want 3.0", absent.RatingAfter)
	}

	playing := ratingFor(t, ratings, guest.ID)
	if playing.ThirdTimeBonus != 0 {
		t.Errorf("invited player earned third time bonus %v, want 0", playing.ThirdTimeBonus)
	}
	if !playing.AttendedThirdTime {
		t.Error("attendance flag should still be recorded for invited players")
	}

	regular := ratingFor(t, ratings, p1.ID)
	if !almostEqual(regular.ThirdTimeBonus, 0.05) {
		t.Errorf("regular third time bonus = %v, want 0.05", regular.ThirdTimeBonus)
	}
	// draw between even teams: elo 0, attendance 0.1, third time 0.05
	if !almostEqual(regular.RatingChange, 0.15) {
		t.Errorf("regular rating change = %v, want 0.15", regular.RatingChange)
	}
}

func TestCalculateMatchRatings_ClampsToBounds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// a league with a brutal absence penalty
	cfg := testConfig()
	cfg.Rating.NonAttendancePenalty = -3.0
	svc := NewRatingService(cfg, env.ratingRepo, env.seasonRepo, env.teamRepo, env.matchRepo, env.playerRepo, zerolog.Nop())

	p1 := env.createPlayer(t, "Ana", domain.PlayerTypeRegular)
	p2 := env.createPlayer(t, "Bruno", domain.PlayerTypeRegular)
	absent := env.createPlayer(t, "Carla", domain.PlayerTypeRegular)
	for _, id := range []uuid.UUID{p1.ID, p2.ID, absent.ID} {
		env.seedSeasonRating(t, id, 3.0, 3, 3)
	}

	match := env.createMatch(t, 4)
	teamA, teamB := env.createTeams(t, match, []uuid.UUID{p1.ID}, []uuid.UUID{p2.ID})
	env.recordResult(t, match, 3, 3, nil)

	ratings, err := svc.CalculateMatchRatings(ctx, match, teamA, teamB, []domain.Player{*p1, *p2, *absent})
	if err != nil {
		t.Fatal(err)
	}

	mr := ratingFor(t, ratings, absent.ID)
	if !almostEqual(mr.RatingAfter, cfg.Rating.MinRating) {
		t.Errorf("rating after = %v, want clamp to %v", mr.RatingAfter, cfg.Rating.MinRating)
	}

	for _, mr := range ratings {
		if mr.RatingAfter < cfg.Rating.MinRating || mr.RatingAfter > cfg.Rating.MaxRating {
			t.Errorf("rating %v outside [%v, %v]", mr.RatingAfter, cfg.Rating.MinRating, cfg.Rating.MaxRating)
		}
	}
}

// playSeason drives the real engine through consecutive weeks where team A
// (p1) always beats team B (p2).
func playSeason(t *testing.T, env *testEnv, p1, p2 *domain.Player, weeks int) {
	t.Helper()
	ctx := context.Background()
	for week := 1; week <= weeks; week++ {
		match := env.createMatch(t, week)
		teamA, teamB := env.createTeams(t, match, []uuid.UUID{p1.ID}, []uuid.UUID{p2.ID})
		env.recordResult(t, match, 3, 1, &teamA.ID)
		if _, err := env.ratingSvc.CalculateMatchRatings(ctx, match, teamA, teamB, []domain.Player{*p1, *p2}); err != nil {
			t.Fatalf("week %d: %v", week, err)
		}
	}
}

// The stored rating_after of every post-warm-up match must equal the
// baseline plus the last two prior deltas plus the match's own delta,
// clamped. The window re-bases every time instead of accumulating.
func TestCalculateMatchRatings_WindowedRebase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p1 := env.createPlayer(t, "Ana", domain.PlayerTypeRegular)
	p2 := env.createPlayer(t, "Bruno", domain.PlayerTypeRegular)
	playSeason(t, env, p1, p2, 6)

	for _, playerID := range []uuid.UUID{p1.ID, p2.ID} {
		history, err := env.ratingRepo.GetPlayerSeasonHistory(ctx, playerID, env.season.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(history) != 6 {
			t.Fatalf("history length = %d, want 6", len(history))
		}

		for i, mr := range history {
			if mr.MatchNumber <= env.cfg.Rating.MinMatchesForRating {
				continue
			}
			expected := env.cfg.Rating.InitialRating
			window := env.cfg.Rating.RatingWindowSize - 1
			for j := i - 1; j >= 0 && j >= i-window; j-- {
				expected += history[j].RatingChange
			}
			expected += mr.RatingChange
			expected = clamp(expected, env.cfg.Rating.MinRating, env.cfg.Rating.MaxRating)

			if !almostEqual(mr.RatingAfter, expected) {
				t.Errorf("match %d: rating after = %v, want rebase value %v", mr.MatchNumber, mr.RatingAfter, expected)
			}
		}
	}
}

func TestRecalculateForWeek_Reproducible(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p1 := env.createPlayer(t, "Ana", domain.PlayerTypeRegular)
	p2 := env.createPlayer(t, "Bruno", domain.PlayerTypeRegular)
	playSeason(t, env, p1, p2, 5)

	match4, err := env.matchRepo.GetByWeek(ctx, env.season.ID, 4)
	if err != nil {
		t.Fatal(err)
	}

	original := make(map[uuid.UUID]domain.PlayerMatchRating)
	for _, playerID := range []uuid.UUID{p1.ID, p2.ID} {
		history, err := env.ratingRepo.GetPlayerSeasonHistory(ctx, playerID, env.season.ID)
		if err != nil {
			t.Fatal(err)
		}
		for _, mr := range history {
			if mr.MatchID == match4.ID {
				original[playerID] = mr
			}
		}
	}
	if len(original) != 2 {
		t.Fatalf("expected original ratings for both players, got %d", len(original))
	}

	recalculated, err := env.ratingSvc.RecalculateForWeek(ctx, 4)
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}

	for playerID, want := range original {
		got := ratingFor(t, recalculated, playerID)
		if got.MatchNumber != want.MatchNumber {
			t.Errorf("match number = %d, want %d", got.MatchNumber, want.MatchNumber)
		}
		if got.RatingBefore != want.RatingBefore {
			t.Errorf("rating before = %v, want %v", got.RatingBefore, want.RatingBefore)
		}
		if got.RatingChange != want.RatingChange {
			t.Errorf("rating change = %v, want %v", got.RatingChange, want.RatingChange)
		}
		if got.RatingAfter != want.RatingAfter {
			t.Errorf("rating after = %v, want %v", got.RatingAfter, want.RatingAfter)
		}
		if got.MatchResult != want.MatchResult {
			t.Errorf("outcome = %s, want %s", got.MatchResult, want.MatchResult)
		}
	}

	// season aggregates rewound to the recalculated match
	sr, err := env.seasonRepo.GetPlayerSeasonRating(ctx, p1.ID, env.season.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sr.MatchesCompleted != 4 {
		t.Errorf("matches completed = %d, want 4", sr.MatchesCompleted)
	}
	if sr.CurrentRating != original[p1.ID].RatingAfter {
		t.Errorf("current rating = %v, want %v", sr.CurrentRating, original[p1.ID].RatingAfter)
	}
}

func TestCalculateMatchRatings_BootstrapsNewParticipants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p1 := env.createPlayer(t, "Ana", domain.PlayerTypeRegular)
	p2 := env.createPlayer(t, "Bruno", domain.PlayerTypeRegular)
	env.seedSeasonRating(t, p1.ID, 3.4, 4, 4)
	env.seedSeasonRating(t, p2.ID, 2.9, 4, 4)
	// newcomer with no season rating joins team A mid-season
	rookie := env.createPlayer(t, "Rui", domain.PlayerTypeRegular)

	match := env.createMatch(t, 5)
	teamA, teamB := env.createTeams(t, match, []uuid.UUID{p1.ID, rookie.ID}, []uuid.UUID{p2.ID})
	env.recordResult(t, match, 2, 0, &teamA.ID)

	ratings, err := env.ratingSvc.CalculateMatchRatings(ctx, match, teamA, teamB, []domain.Player{*p1, *p2, *rookie})
	if err != nil {
		t.Fatal(err)
	}

	mr := ratingFor(t, ratings, rookie.ID)
	if mr.MatchNumber != 1 {
		t.Errorf("rookie match number = %d, want 1", mr.MatchNumber)
	}
	if mr.RatingChange != 0 || mr.RatingAfter != env.cfg.Rating.InitialRating {
		t.Errorf("rookie should be in warm-up: change=%v after=%v", mr.RatingChange, mr.RatingAfter)
	}

	// the rookie weighs in at the baseline: (3.4 + 3.0) / 2
	if mr.TeamAverageRating == nil || !almostEqual(*mr.TeamAverageRating, 3.2) {
		t.Errorf("team average = %v, want 3.2", mr.TeamAverageRating)
	}

	sr, err := env.seasonRepo.GetPlayerSeasonRating(ctx, rookie.ID, env.season.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sr == nil || !sr.RatingLocked || sr.MatchesCompleted != 1 || sr.MatchesAttended != 1 {
		t.Errorf("rookie season rating bootstrapped wrong: %+v", sr)
	}
}

// A mid-season joiner's first match carries a personal match number far
// below the week number. Recalculating that very week must not treat the
// joiner's own rows as prior history, or the rerun drifts away from the
// original values.
func TestRecalculateForWeek_JoinerFirstMatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p1 := env.createPlayer(t, "Ana", domain.PlayerTypeRegular)
	p2 := env.createPlayer(t, "Bruno", domain.PlayerTypeRegular)
	playSeason(t, env, p1, p2, 4)

	rookie := env.createPlayer(t, "Rui", domain.PlayerTypeRegular)
	match := env.createMatch(t, 5)
	teamA, teamB := env.createTeams(t, match, []uuid.UUID{p1.ID, rookie.ID}, []uuid.UUID{p2.ID})
	env.recordResult(t, match, 2, 0, &teamA.ID)

	ratings, err := env.ratingSvc.CalculateMatchRatings(ctx, match, teamA, teamB, []domain.Player{*p1, *p2, *rookie})
	if err != nil {
		t.Fatal(err)
	}
	original := ratingFor(t, ratings, rookie.ID)
	if original.MatchNumber != 1 {
		t.Fatalf("rookie match number = %d, want 1", original.MatchNumber)
	}

	recalculated, err := env.ratingSvc.RecalculateForWeek(ctx, 5)
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}

	got := ratingFor(t, recalculated, rookie.ID)
	if got.MatchNumber != 1 {
		t.Errorf("rookie match number after recalculation = %d, want 1", got.MatchNumber)
	}
	if got.RatingBefore != original.RatingBefore || got.RatingAfter != original.RatingAfter || got.RatingChange != original.RatingChange {
		t.Errorf("rookie rating drifted: got %v/%v/%v, want %v/%v/%v",
			got.RatingBefore, got.RatingChange, got.RatingAfter,
			original.RatingBefore, original.RatingChange, original.RatingAfter)
	}

	sr, err := env.seasonRepo.GetPlayerSeasonRating(ctx, rookie.ID, env.season.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sr == nil || sr.MatchesCompleted != 1 || sr.MatchesAttended != 1 {
		t.Errorf("rookie season aggregate after recalculation: %+v", sr)
	}
}
