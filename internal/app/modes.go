package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/wagerloo/internal/crypto"
	"github.com/alanyoungcy/wagerloo/internal/notify"
	"github.com/alanyoungcy/wagerloo/internal/server"
	"github.com/alanyoungcy/wagerloo/internal/server/handler"
	"github.com/alanyoungcy/wagerloo/internal/server/ws"
	"github.com/alanyoungcy/wagerloo/internal/service"
)

// Services are the application services built over Dependencies.
type Services struct {
	Accounts *service.AccountService
	Profiles *service.ProfileService
	Markets  *service.MarketService
	Votes    *service.VoteService
	Cleanup  *service.CleanupService
	Tokens   crypto.JWT
}

// NewServices builds every service from deps and the configuration.
func (a *App) NewServices(deps *Dependencies) *Services {
	cfg := a.cfg
	tokens := crypto.JWT{Secret: []byte(cfg.Auth.JWTSecret), TokenTTL: cfg.Auth.TokenTTL.Duration}

	return &Services{
		Tokens: tokens,
		Accounts: service.NewAccountService(
			deps.Users, deps.Profiles,
			notify.NewVerificationSender(deps.Mailer, cfg.Mail.BaseURL, a.logger),
			tokens,
			service.AccountConfig{
				AllowedEmailDomain: cfg.Auth.AllowedEmailDomain,
				BcryptCost:         cfg.Auth.BcryptCost,
				MinPasswordLength:  cfg.Auth.MinPasswordLength,
			},
			a.logger,
		),
		Profiles: service.NewProfileService(
			deps.Profiles, deps.Txs, deps.Blobs, deps.Audit,
			service.ProfileConfig{
				InitialLine:   cfg.Market.InitialLine,
				MaxAssetBytes: cfg.Market.MaxAssetBytes,
			},
			a.logger,
		),
		Markets: service.NewMarketService(
			deps.Markets, deps.Votes, deps.MarketCache, cfg.Market.LeaderboardSize, a.logger,
		),
		Votes: service.NewVoteService(
			deps.Users, deps.Txs, deps.MarketCache, deps.Bus, deps.Audit,
			service.VoteConfig{
				MaxAttempts:  cfg.Vote.MaxAttempts,
				RetryBackoff: cfg.Vote.RetryBackoff.Duration,
			},
			a.logger,
		),
		Cleanup: service.NewCleanupService(service.CleanupDeps{
			Users:    deps.Users,
			Profiles: deps.Profiles,
			Txs:      deps.Txs,
			Cache:    deps.MarketCache,
			Archiver: deps.Archiver,
			Blobs:    deps.Blobs,
			Locks:    deps.Locks,
			Audit:    deps.Audit,
			Alerts:   deps.Notifier,
		}, cfg.Cleanup.LockTTL.Duration, a.logger),
	}
}

// ServerMode serves the HTTP API and the live line feed until ctx is
// cancelled, then drains in-flight requests.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	svcs := a.NewServices(deps)
	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(deps.Bus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(
		server.Config{
			Port:           a.cfg.Server.Port,
			CORSOrigins:    a.cfg.Server.CORSOrigins,
			VoteRateLimit:  a.cfg.Vote.RateLimit,
			VoteRateWindow: a.cfg.Vote.RateWindow.Duration,
		},
		server.Handlers{
			Health:   handler.NewHealthHandler(deps.Health, a.logger),
			Auth:     handler.NewAuthHandler(svcs.Accounts, a.logger),
			Profiles: handler.NewProfileHandler(svcs.Profiles, a.logger),
			Markets:  handler.NewMarketHandler(svcs.Markets, a.logger),
			Votes:    handler.NewVoteHandler(svcs.Votes, a.logger),
		},
		server.Deps{
			Tokens:  svcs.Tokens,
			Limiter: deps.RateLimiter,
			Hub:     hub,
		},
		a.logger,
	)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		timeout := a.cfg.Server.ShutdownTimeout.Duration
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// CleanupMode deletes every account except cleanup.keep_email and exits.
func (a *App) CleanupMode(ctx context.Context, deps *Dependencies) error {
	svcs := a.NewServices(deps)

	start := time.Now()
	report, err := svcs.Cleanup.Run(ctx, a.cfg.Cleanup.KeepEmail)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "cleanup completed",
		slog.String("kept_user_id", report.KeptUserID),
		slog.Int("users", report.Users),
		slog.Int64("markets", report.Markets),
		slog.Int64("profiles", report.Profiles),
		slog.Int64("votes", report.Votes),
		slog.Int("archives", len(report.Archives)),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}
