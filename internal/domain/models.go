package domain

import (
	"time"

	"github.com/google/uuid"
)

type PlayerType string

const (
	PlayerTypeRegular PlayerType = "regular"
	PlayerTypeInvited PlayerType = "invited"
)

type MatchStatus string

const (
	MatchScheduled  MatchStatus = "scheduled"
	MatchConfirmed  MatchStatus = "confirmed"
	MatchCompleted  MatchStatus = "completed"
	MatchCancelled  MatchStatus = "cancelled"
	MatchUnplayable MatchStatus = "unplayable"
)

type ResultType string

const (
	ResultWin  ResultType = "win"
	ResultDraw ResultType = "draw"
)

// MatchOutcome is the result of a match from one player's perspective.
type MatchOutcome string

const (
	OutcomeWin          MatchOutcome = "win"
	OutcomeDraw         MatchOutcome = "draw"
	OutcomeLoss         MatchOutcome = "loss"
	OutcomeDidNotAttend MatchOutcome = "did_not_attend"
)

// TeamName identifies one of the two fixed teams per match by kit color.
type TeamName string

const (
	TeamBlack TeamName = "black" // team A
	TeamPink  TeamName = "pink"  // team B
)

type Player struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	PlayerType PlayerType `json:"player_type"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ExemptFromPenalty reports whether the player is immune to the
// non-attendance penalty. Invited players are guests and never penalized.
func (p Player) ExemptFromPenalty() bool {
	return p.PlayerType == PlayerTypeInvited
}

// EarnsSocialBonus reports whether the player can earn the third-time
// bonus. Single point of truth for the invited-player exemption, shared
// by the rating engine and the leaderboard.
func (p Player) EarnsSocialBonus() bool {
	return p.PlayerType == PlayerTypeRegular
}

type Season struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Match struct {
	ID        uuid.UUID   `json:"id"`
	SeasonID  uuid.UUID   `json:"season_id"`
	MatchWeek int         `json:"match_week"`
	MatchDate time.Time   `json:"match_date"`
	Status    MatchStatus `json:"status"`
	Location  string      `json:"location"`
	Notes     string      `json:"notes"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type Team struct {
	ID                 uuid.UUID `json:"id"`
	MatchID            uuid.UUID `json:"match_id"`
	Name               TeamName  `json:"name"`
	AverageSkillRating float64   `json:"average_skill_rating"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TeamPlayer is a roster entry. Position is free-form ("goalkeeper" etc.)
// and may be empty.
type TeamPlayer struct {
	TeamID   uuid.UUID `json:"team_id"`
	PlayerID uuid.UUID `json:"player_id"`
	Position string    `json:"position"`
}

type MatchResult struct {
	ID            uuid.UUID  `json:"id"`
	MatchID       uuid.UUID  `json:"match_id"`
	TeamAScore    int        `json:"team_a_score"`
	TeamBScore    int        `json:"team_b_score"`
	ResultType    ResultType `json:"result_type"`
	WinningTeamID *uuid.UUID `json:"winning_team_id"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ThirdTimeAttendance records presence at the post-match social.
type ThirdTimeAttendance struct {
	MatchID  uuid.UUID `json:"match_id"`
	PlayerID uuid.UUID `json:"player_id"`
	Attended bool      `json:"attended"`
}

// PlayerSeasonRating is the per-season aggregate rating state, mutated
// only by the rating engine.
type PlayerSeasonRating struct {
	ID               uuid.UUID  `json:"id"`
	PlayerID         uuid.UUID  `json:"player_id"`
	SeasonID         uuid.UUID  `json:"season_id"`
	CurrentRating    float64    `json:"current_rating"`
	MatchesCompleted int        `json:"matches_completed"`
	MatchesAttended  int        `json:"matches_attended"`
	RatingLocked     bool       `json:"rating_locked"`
	LastCalculatedAt *time.Time `json:"last_calculated_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// PlayerMatchRating is the immutable per-(player, match) rating record with
// the decomposed calculation components kept for auditability.
type PlayerMatchRating struct {
	ID                    string       `json:"id"` // nanoid
	PlayerID              uuid.UUID    `json:"player_id"`
	MatchID               uuid.UUID    `json:"match_id"`
	SeasonID              uuid.UUID    `json:"season_id"`
	MatchNumber           int          `json:"match_number"`
	MatchDate             time.Time    `json:"match_date"`
	AttendedMatch         bool         `json:"attended_match"`
	AttendedThirdTime     bool         `json:"attended_third_time"`
	MatchResult           MatchOutcome `json:"match_result"`
	TeamAverageRating     *float64     `json:"team_average_rating"`
	OpponentAverageRating *float64     `json:"opponent_average_rating"`
	RatingBefore          float64      `json:"rating_before"`
	RatingAfter           float64      `json:"rating_after"`
	RatingChange          float64      `json:"rating_change"`
	EloKFactor            float64      `json:"elo_k_factor"`
	AttendanceBonus       float64      `json:"attendance_bonus"`
	ThirdTimeBonus        float64      `json:"third_time_bonus"`
	NonAttendancePenalty  float64      `json:"non_attendance_penalty"`
	CalculatedAt          time.Time    `json:"calculated_at"`
	CreatedAt             time.Time    `json:"created_at"`
}
