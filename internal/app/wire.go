package app

import (
	"context"
	"fmt"
	"log/slog"

	blobmem "github.com/alanyoungcy/wagerloo/internal/blob/memory"
	s3blob "github.com/alanyoungcy/wagerloo/internal/blob/s3"
	"github.com/alanyoungcy/wagerloo/internal/cache/local"
	"github.com/alanyoungcy/wagerloo/internal/cache/redis"
	"github.com/alanyoungcy/wagerloo/internal/config"
	"github.com/alanyoungcy/wagerloo/internal/domain"
	"github.com/alanyoungcy/wagerloo/internal/notify"
	"github.com/alanyoungcy/wagerloo/internal/server/handler"
	"github.com/alanyoungcy/wagerloo/internal/service"
	"github.com/alanyoungcy/wagerloo/internal/store/memory"
	"github.com/alanyoungcy/wagerloo/internal/store/postgres"
)

// Dependencies bundles the concrete stores, caches and clients the modes
// run on. Built by Wire, released by its cleanup function.
type Dependencies struct {
	// Stores
	Users    domain.UserStore
	Profiles domain.ProfileStore
	Markets  domain.MarketStore
	Votes    domain.VoteStore
	Audit    domain.AuditStore
	Txs      domain.TxStore

	// Caches. MarketCache and RateLimiter are nil without Redis.
	MarketCache domain.MarketCache
	RateLimiter domain.RateLimiter
	Locks       domain.LockManager
	Bus         domain.EventBus

	// Blob storage
	Blobs    service.BlobStore
	Archiver domain.VoteArchiver

	// Notifications
	Mailer   notify.Mailer
	Notifier *notify.Notifier

	// Health lists the external dependencies /api/health pings.
	Health map[string]handler.Pinger
}

// Wire constructs every dependency named by cfg. The returned cleanup
// function closes them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Health: make(map[string]handler.Pinger)}

	// --- Relational store ---
	switch cfg.Database.Driver {
	case "memory":
		logger.WarnContext(ctx, "wire: using in-memory store; data is lost on exit")
		st := memory.New()
		deps.Users = st.Users()
		deps.Profiles = st.Profiles()
		deps.Markets = st.Markets()
		deps.Votes = st.Votes()
		deps.Audit = st.Audit()
		deps.Txs = st
	default:
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:             cfg.Database.DSN,
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			Database:        cfg.Database.Database,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			SSLMode:         cfg.Database.SSLMode,
			MaxConns:        cfg.Database.PoolMaxConns,
			MinConns:        cfg.Database.PoolMinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime.Duration,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)
		deps.Health["postgres"] = pgClient

		if cfg.Database.RunMigrations || cfg.Mode == "migrate" {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		iso, err := postgres.ParseIsolation(cfg.Database.Isolation)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: %w", err)
		}

		pool := pgClient.Pool()
		deps.Users = postgres.NewUserStore(pool)
		deps.Profiles = postgres.NewProfileStore(pool)
		deps.Markets = postgres.NewMarketStore(pool)
		deps.Votes = postgres.NewVoteStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Txs = postgres.NewTxStore(pool, iso)
	}

	// --- Redis, or in-process fallbacks ---
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			URL:        cfg.Redis.URL,
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Health["redis"] = redisClient

		deps.MarketCache = redis.NewMarketCache(redisClient, cfg.Market.CacheTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Bus = redis.NewEventBus(redisClient)
	} else {
		logger.InfoContext(ctx, "wire: redis not configured; using in-process bus and locks")
		deps.Locks = local.NewLocks()
		deps.Bus = local.NewBus()
	}

	// --- Object storage ---
	if cfg.S3.Enabled() {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Health["s3"] = s3Client
		deps.Blobs = s3blob.NewStore(s3Client)
	} else {
		logger.InfoContext(ctx, "wire: s3 not configured; keeping objects in memory")
		deps.Blobs = blobmem.New()
	}
	deps.Archiver = s3blob.NewArchiver(deps.Blobs)

	// --- Mail ---
	switch cfg.Mail.Provider {
	case "brevo":
		deps.Mailer = notify.NewBrevoMailer(notify.BrevoConfig{
			APIKey:      cfg.Mail.BrevoAPIKey,
			Endpoint:    cfg.Mail.BrevoEndpoint,
			SenderName:  cfg.Mail.SenderName,
			SenderEmail: cfg.Mail.SenderEmail,
		})
	default:
		deps.Mailer = notify.NewLogMailer(logger)
	}

	// --- Operator alerts ---
	var senders []notify.Sender
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
