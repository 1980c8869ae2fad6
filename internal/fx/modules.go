package fx

import (
	"github.com/soyellupi/futsal-friends/internal/config"
	"github.com/soyellupi/futsal-friends/internal/database"
	"github.com/soyellupi/futsal-friends/internal/logger"
	"github.com/soyellupi/futsal-friends/internal/repository"
	"github.com/soyellupi/futsal-friends/internal/server"
	"github.com/soyellupi/futsal-friends/internal/service"

	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(repository.NewPlayerRepository),
	fx.Provide(repository.NewSeasonRepository),
	fx.Provide(repository.NewMatchRepository),
	fx.Provide(repository.NewTeamRepository),
	fx.Provide(repository.NewRatingRepository),
	// svc
	fx.Provide(service.NewPlayerService),
	fx.Provide(service.NewRatingService),
	fx.Provide(service.NewTeamService),
	fx.Provide(service.NewLeaderboardService),
	// server
	fx.Provide(server.NewLeagueServer),
)
