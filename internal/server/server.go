package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/soyellupi/futsal-friends/internal/domain"
	"github.com/soyellupi/futsal-friends/internal/repository"
	"github.com/soyellupi/futsal-friends/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LeagueServer is the JSON API over the league services. Handlers stay
// thin; everything interesting lives in the service layer.
type LeagueServer struct {
	playerSvc      *service.PlayerService
	ratingSvc      *service.RatingService
	teamSvc        *service.TeamService
	leaderboardSvc *service.LeaderboardService
	seasonRepo     *repository.SeasonRepository
	matchRepo      *repository.MatchRepository
	logger         zerolog.Logger
}

func NewLeagueServer(
	playerSvc *service.PlayerService,
	ratingSvc *service.RatingService,
	teamSvc *service.TeamService,
	leaderboardSvc *service.LeaderboardService,
	seasonRepo *repository.SeasonRepository,
	matchRepo *repository.MatchRepository,
	logger zerolog.Logger,
) *LeagueServer {
	return &LeagueServer{
		playerSvc:      playerSvc,
		ratingSvc:      ratingSvc,
		teamSvc:        teamSvc,
		leaderboardSvc: leaderboardSvc,
		seasonRepo:     seasonRepo,
		matchRepo:      matchRepo,
		logger:         logger,
	}
}

func (s *LeagueServer) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/players", s.createPlayer)
	mux.HandleFunc("GET /api/v1/players", s.searchPlayers)
	mux.HandleFunc("DELETE /api/v1/players/{id}", s.deactivatePlayer)
	mux.HandleFunc("PATCH /api/v1/players/{id}/type", s.setPlayerType)
	mux.HandleFunc("GET /api/v1/players/{id}/stats", s.getPlayerStats)
	mux.HandleFunc("POST /api/v1/seasons", s.createSeason)
	mux.HandleFunc("GET /api/v1/seasons/active", s.getActiveSeason)
	mux.HandleFunc("POST /api/v1/matches", s.createMatch)
	mux.HandleFunc("GET /api/v1/matches/{week}", s.getMatch)
	mux.HandleFunc("POST /api/v1/matches/{week}/result", s.recordResult)
	mux.HandleFunc("POST /api/v1/matches/{week}/third-time", s.recordThirdTime)
	mux.HandleFunc("POST /api/v1/matches/{week}/teams/balance", s.balanceTeams)
	mux.HandleFunc("POST /api/v1/matches/{week}/ratings", s.calculateRatings)
	mux.HandleFunc("POST /api/v1/matches/{week}/ratings/recalculate", s.recalculateRatings)
	mux.HandleFunc("GET /api/v1/leaderboard", s.getLeaderboard)
	return mux
}

type createPlayerRequest struct {
	Name       string `json:"name"`
	PlayerType string `json:"player_type"`
}

func (s *LeagueServer) createPlayer(w http.ResponseWriter, r *http.Request) {
	var req createPlayerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	player, err := s.playerSvc.CreatePlayer(r.Context(), req.Name, domain.PlayerType(req.PlayerType))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, player)
}

func (s *LeagueServer) searchPlayers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("search")
	players, err := s.playerSvc.SearchPlayers(r.Context(), query)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if players == nil {
		players = []domain.Player{}
	}
	writeJSON(w, http.StatusOK, players)
}

func (s *LeagueServer) deactivatePlayer(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid player id")
		return
	}

	if err := s.playerSvc.DeactivatePlayer(r.Context(), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setPlayerTypeRequest struct {
	PlayerType string `json:"player_type"`
}

func (s *LeagueServer) setPlayerType(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid player id")
		return
	}

	var req setPlayerTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	playerType := domain.PlayerType(req.PlayerType)
	if playerType != domain.PlayerTypeRegular && playerType != domain.PlayerTypeInvited {
		writeError(w, http.StatusBadRequest, "player_type must be regular or invited")
		return
	}

	if err := s.playerSvc.SetPlayerType(r.Context(), id, playerType); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createSeasonRequest struct {
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	IsActive  bool      `json:"is_active"`
}

func (s *LeagueServer) createSeason(w http.ResponseWriter, r *http.Request) {
	var req createSeasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if !req.EndDate.After(req.StartDate) {
		writeError(w, http.StatusBadRequest, "end_date must be after start_date")
		return
	}

	if req.IsActive {
		if err := s.seasonRepo.DeactivateActive(r.Context()); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}

	season := &domain.Season{
		Name:      req.Name,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		IsActive:  req.IsActive,
	}
	if err := s.seasonRepo.Create(r.Context(), season); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, season)
}

func (s *LeagueServer) getActiveSeason(w http.ResponseWriter, r *http.Request) {
	season, err := s.seasonRepo.GetActive(r.Context())
	if err != nil {
		writeError(w, http.StatusNotFound, "no active season")
		return
	}
	writeJSON(w, http.StatusOK, season)
}

type createMatchRequest struct {
	MatchWeek int       `json:"match_week"`
	MatchDate time.Time `json:"match_date"`
	Location  string    `json:"location"`
	Notes     string    `json:"notes"`
}

func (s *LeagueServer) createMatch(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MatchWeek < 1 {
		writeError(w, http.StatusBadRequest, "match_week must be positive")
		return
	}
	if req.MatchDate.IsZero() {
		writeError(w, http.StatusBadRequest, "match_date is required")
		return
	}

	season, err := s.seasonRepo.GetActive(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	match := &domain.Match{
		SeasonID:  season.ID,
		MatchWeek: req.MatchWeek,
		MatchDate: req.MatchDate,
		Status:    domain.MatchScheduled,
		Location:  req.Location,
		Notes:     req.Notes,
	}
	if err := s.matchRepo.Create(r.Context(), match); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, match)
}

type recordThirdTimeRequest struct {
	PlayerIDs []string `json:"player_ids"`
}

func (s *LeagueServer) recordThirdTime(w http.ResponseWriter, r *http.Request) {
	week, ok := s.weekFromPath(w, r)
	if !ok {
		return
	}

	var req recordThirdTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.PlayerIDs) == 0 {
		writeError(w, http.StatusBadRequest, "player_ids is required")
		return
	}

	season, err := s.seasonRepo.GetActive(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	match, err := s.matchRepo.GetByWeek(r.Context(), season.ID, week)
	if err != nil {
		writeError(w, http.StatusNotFound, "match not found")
		return
	}

	for _, raw := range req.PlayerIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid player id: "+raw)
			return
		}
		err = s.matchRepo.RecordThirdTime(r.Context(), domain.ThirdTimeAttendance{
			MatchID: match.ID, PlayerID: id, Attended: true,
		})
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *LeagueServer) getMatch(w http.ResponseWriter, r *http.Request) {
	week, ok := s.weekFromPath(w, r)
	if !ok {
		return
	}

	season, err := s.seasonRepo.GetActive(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	match, err := s.matchRepo.GetByWeek(r.Context(), season.ID, week)
	if err != nil {
		writeError(w, http.StatusNotFound, "match not found")
		return
	}
	writeJSON(w, http.StatusOK, match)
}

type recordResultRequest struct {
	TeamAScore int `json:"team_a_score"`
	TeamBScore int `json:"team_b_score"`
}

func (s *LeagueServer) recordResult(w http.ResponseWriter, r *http.Request) {
	week, ok := s.weekFromPath(w, r)
	if !ok {
		return
	}

	var req recordResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TeamAScore < 0 || req.TeamBScore < 0 {
		writeError(w, http.StatusBadRequest, "scores must be non-negative")
		return
	}

	season, err := s.seasonRepo.GetActive(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	match, err := s.matchRepo.GetByWeek(r.Context(), season.ID, week)
	if err != nil {
		writeError(w, http.StatusNotFound, "match not found")
		return
	}

	result := &domain.MatchResult{
		MatchID:    match.ID,
		TeamAScore: req.TeamAScore,
		TeamBScore: req.TeamBScore,
		ResultType: domain.ResultDraw,
	}
	if req.TeamAScore != req.TeamBScore {
		result.ResultType = domain.ResultWin
		teams, err := s.matchTeams(r, match.ID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		winner := teams[0].ID
		if req.TeamBScore > req.TeamAScore {
			winner = teams[1].ID
		}
		result.WinningTeamID = &winner
	}

	if err := s.matchRepo.CreateResult(r.Context(), result); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.matchRepo.SetStatus(r.Context(), match.ID, domain.MatchCompleted); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

type balanceTeamsRequest struct {
	PlayerIDs []string `json:"player_ids"`
	Shuffle   bool     `json:"shuffle"`
}

func (s *LeagueServer) balanceTeams(w http.ResponseWriter, r *http.Request) {
	week, ok := s.weekFromPath(w, r)
	if !ok {
		return
	}

	var req balanceTeamsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	playerIDs := make([]uuid.UUID, 0, len(req.PlayerIDs))
	for _, raw := range req.PlayerIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid player id: "+raw)
			return
		}
		playerIDs = append(playerIDs, id)
	}

	season, err := s.seasonRepo.GetActive(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	match, err := s.matchRepo.GetByWeek(r.Context(), season.ID, week)
	if err != nil {
		writeError(w, http.StatusNotFound, "match not found")
		return
	}

	var teamA, teamB *domain.Team
	if req.Shuffle {
		teamA, teamB, err = s.teamSvc.ShuffleTeams(r.Context(), match.ID, season.ID, playerIDs)
	} else {
		teamA, teamB, err = s.teamSvc.CreateBalancedTeams(r.Context(), match.ID, season.ID, playerIDs)
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"team_a": teamA,
		"team_b": teamB,
	})
}

func (s *LeagueServer) calculateRatings(w http.ResponseWriter, r *http.Request) {
	week, ok := s.weekFromPath(w, r)
	if !ok {
		return
	}

	ratings, err := s.ratingSvc.CalculateForWeek(r.Context(), week)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ratings)
}

func (s *LeagueServer) recalculateRatings(w http.ResponseWriter, r *http.Request) {
	week, ok := s.weekFromPath(w, r)
	if !ok {
		return
	}

	ratings, err := s.ratingSvc.RecalculateForWeek(r.Context(), week)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ratings)
}

func (s *LeagueServer) getPlayerStats(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid player id")
		return
	}

	season, err := s.seasonRepo.GetActive(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	stats, err := s.leaderboardSvc.GetPlayerStats(r.Context(), id, season.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *LeagueServer) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	season, err := s.seasonRepo.GetActive(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	leaderboard, err := s.leaderboardSvc.CalculateSeasonLeaderboard(r.Context(), season.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, leaderboard)
}

func (s *LeagueServer) matchTeams(r *http.Request, matchID uuid.UUID) ([]domain.Team, error) {
	teams, err := s.teamSvc.MatchTeams(r.Context(), matchID)
	if err != nil {
		return nil, err
	}
	if len(teams) != 2 {
		return nil, service.ErrTeamsIncomplete
	}
	return teams, nil
}

func (s *LeagueServer) weekFromPath(w http.ResponseWriter, r *http.Request) (int, bool) {
	week, err := strconv.Atoi(r.PathValue("week"))
	if err != nil || week < 1 {
		writeError(w, http.StatusBadRequest, "invalid match week")
		return 0, false
	}
	return week, true
}

func (s *LeagueServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var ambiguous *service.AmbiguousPlayerError
	switch {
	case errors.Is(err, service.ErrMatchWithoutResult),
		errors.Is(err, service.ErrTeamsIncomplete),
		errors.Is(err, service.ErrNotEnoughPlayers):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrPlayerNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, sql.ErrNoRows):
		writeError(w, http.StatusNotFound, "not found")
	case errors.As(err, &ambiguous):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      ambiguous.Error(),
			"candidates": ambiguous.Candidates,
		})
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
