package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/marketfund/internal/blob/s3"
	"github.com/alanyoungcy/marketfund/internal/cache/redis"
	"github.com/alanyoungcy/marketfund/internal/config"
	"github.com/alanyoungcy/marketfund/internal/crypto"
	"github.com/alanyoungcy/marketfund/internal/domain"
	"github.com/alanyoungcy/marketfund/internal/metrics"
	"github.com/alanyoungcy/marketfund/internal/notify"
	"github.com/alanyoungcy/marketfund/internal/platform/omen"
	"github.com/alanyoungcy/marketfund/internal/platform/simchain"
	"github.com/alanyoungcy/marketfund/internal/server/handler"
	"github.com/alanyoungcy/marketfund/internal/store/postgres"
)

// Chain is the wallet connection together with the contract services bound
// to it.
type Chain interface {
	domain.Connection
	domain.Contracts
	TokenInfo(ctx context.Context, address string) (domain.Token, error)
}

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	MarketStore        domain.MarketStore
	FundingActionStore domain.FundingActionStore
	AuditStore         domain.AuditStore

	// Caches
	MarketCache  domain.MarketCache
	BalanceCache domain.BalanceCache
	RateLimiter  domain.RateLimiter
	LockManager  domain.LockManager
	SignalBus    domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	Archiver   domain.Archiver

	Chain    Chain
	Metrics  *metrics.Metrics
	Notifier *notify.Notifier

	// HealthChecks probe the wired backends for GET /api/health.
	HealthChecks map[string]handler.HealthCheck
}

// needsChain returns true for modes that serve the panels.
func needsChain(mode string) bool {
	return mode != "archive"
}

// needsS3 returns true for modes that archive the funding ledger.
func needsS3(cfg *config.Config) bool {
	switch cfg.Mode {
	case "archive":
		return true
	case "full":
		return cfg.Archive.Enabled
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Metrics:      metrics.New(),
		HealthChecks: map[string]handler.HealthCheck{},
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.FundingActionStore = postgres.NewFundingActionStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)
	deps.HealthChecks["postgres"] = pgClient.Ping

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
		KeyPrefix:  cfg.Redis.KeyPrefix,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.MarketCache = redis.NewMarketCache(redisClient, cfg.Funding.MarketCacheTTL.Duration)
	deps.BalanceCache = redis.NewBalanceCache(redisClient, cfg.Funding.BalanceCacheTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.HealthChecks["redis"] = redisClient.Ping

	// --- S3 blob storage (only for modes that archive) ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.FundingActionStore, deps.AuditStore, cfg.Archive.BatchSize)
		deps.HealthChecks["s3"] = s3Client.Health
	}

	// --- Chain ---
	if needsChain(cfg.Mode) {
		chain, closeChain, err := wireChain(ctx, cfg, logger)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		if closeChain != nil {
			closers = append(closers, closeChain)
		}
		deps.Chain = chain
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// wireChain connects the wallet. Without a configured key the connection is
// read-only and reports no account.
func wireChain(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Chain, func(), error) {
	src := crypto.KeySource{
		PrivateKey: cfg.Wallet.PrivateKey,
		KeyFile:    cfg.Wallet.KeyFile,
		Password:   cfg.Wallet.KeyPassword,
	}
	var wallet *crypto.Wallet
	if src.Configured() {
		w, err := crypto.LoadWallet(src)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: wallet: %w", err)
		}
		wallet = w
	}

	if cfg.Chain.Simulated {
		account := ""
		if wallet != nil {
			account = wallet.Address()
		}
		logger.WarnContext(ctx, "wire: using simulated chain", slog.String("account", account))
		return simchain.New(account), nil, nil
	}

	client, closeFn, err := omen.Dial(ctx, cfg.Chain.RPCURL, int64(cfg.Chain.ChainID), wallet, omen.Options{
		GasMultiplier: cfg.Chain.GasMultiplier,
		ReceiptPoll:   cfg.Chain.ReceiptPoll.Duration,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: chain: %w", err)
	}
	return client, closeFn, nil
}
