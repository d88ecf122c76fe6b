package fx

import (
	"database/sql"
	"tigertrust/internal/api"
	"tigertrust/internal/config"
	"tigertrust/internal/database"
	"tigertrust/internal/logger"
	"tigertrust/internal/profile"
	"tigertrust/internal/repository"
	"tigertrust/internal/server"
	"tigertrust/internal/service"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideProcessor(cfg *config.Config) *profile.Processor {
	return profile.NewProcessor(
		profile.NewDeriver(cfg.ProgramID),
		profile.NewGuard(cfg.Authorities...),
		profile.Policy{EnforceTierBand: cfg.EnforceTierBand},
	)
}

func ProvideProfileService(
	store service.AccountStore,
	proc *profile.Processor,
	risk service.ScoreSource,
	clk clock.Clock,
	cfg *config.Config,
	logger zerolog.Logger,
) *service.ProfileService {
	return service.NewProfileService(store, proc, risk, clk, cfg.ScoreAuthority(), logger)
}

func ProvideStore(sqlDB *sql.DB, logger zerolog.Logger) service.AccountStore {
	return repository.NewProfileRepository(sqlDB, logger)
}

func ProvideScoreSource(cfg *config.Config) service.ScoreSource {
	return api.NewRiskEngineClient(cfg)
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	fx.Provide(clock.New),
	// repos
	fx.Provide(ProvideStore),
	// api client
	fx.Provide(ProvideScoreSource),
	// svc
	fx.Provide(ProvideProcessor),
	fx.Provide(ProvideProfileService),
	// server
	fx.Provide(server.NewProfileServer),
)
