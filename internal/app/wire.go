package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/sniperbot/internal/blob/s3"
	"github.com/alanyoungcy/sniperbot/internal/cache/redis"
	"github.com/alanyoungcy/sniperbot/internal/config"
	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/eventlog"
	"github.com/alanyoungcy/sniperbot/internal/metrics"
	"github.com/alanyoungcy/sniperbot/internal/notify"
	"github.com/alanyoungcy/sniperbot/internal/platform/solanarpc"
	"github.com/alanyoungcy/sniperbot/internal/store/postgres"
)

// Dependencies bundles the infrastructure every mode builds on. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Shared state store
	Redis     *redis.Client
	State     domain.StateStore
	Dedup     *redis.DedupSet
	Queue     *redis.DecisionQueue
	Locks     domain.LockManager
	Positions domain.PositionBook
	Snapshots domain.SnapshotCache
	Bus       domain.SignalBus
	Limiter   domain.RateLimiter

	// Durable log, nil unless postgres is enabled
	Executions domain.ExecutionStore
	Decisions  domain.DecisionLog
	Audit      domain.AuditStore

	// Cold archive, nil unless s3 is enabled
	Archiver domain.Archiver

	// Chain access
	RPC *solanarpc.Client

	Notifier *notify.Notifier
	Metrics  *metrics.Registry
	Events   *eventlog.Log
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Metrics: metrics.New(),
		Events:  eventlog.New(cfg.EventLog.Capacity),
	}

	// --- Redis ---
	redisClient, err := OpenRedis(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Redis = redisClient
	deps.Metrics.TrackPool("redis", func() (uint32, uint32) {
		st := redisClient.PoolStats()
		return st.TotalConns, st.IdleConns
	})
	deps.State = redis.NewStateStore(redisClient)
	deps.Dedup = redis.NewDedupSet(redisClient, domain.KeyProcessedTokens)
	deps.Queue = redis.NewDecisionQueue(redisClient, cfg.Pipeline.DecisionTTL.Duration)
	deps.Locks = redis.NewLockManager(redisClient)
	deps.Positions = redis.NewPositionBook(redisClient)
	deps.Snapshots = redis.NewSnapshotCache(redisClient)
	deps.Bus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
	deps.Limiter = redis.NewRateLimiter(redisClient)

	// --- PostgreSQL ---
	var (
		executions *postgres.ExecutionStore
		decisions  *postgres.DecisionLog
	)
	if cfg.Postgres.Enabled {
		pgClient, err := OpenPostgres(ctx, cfg)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, pgClient.Close)

		pool := pgClient.Pool()
		executions = postgres.NewExecutionStore(pool)
		decisions = postgres.NewDecisionLog(pool)
		deps.Executions = executions
		deps.Decisions = decisions
		deps.Audit = postgres.NewAuditStore(pool)
	}

	// --- S3 archive ---
	if cfg.S3.Enabled && executions != nil {
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
		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			executions,
			decisions,
			deps.Audit,
		)
	}

	// --- Solana RPC ---
	deps.RPC = solanarpc.New(solanarpc.Config{
		URL:               cfg.Solana.RPCURL,
		Commitment:        cfg.Solana.Commitment,
		RequestsPerSecond: cfg.Solana.RequestsPerSecond,
		Burst:             cfg.Solana.Burst,
		Timeout:           cfg.Solana.Timeout.Duration,
	}, logger)

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
	deps.Notifier = notify.NewNotifier(senders, notify.Config{
		Events:   cfg.Notify.Events,
		Cooldown: cfg.Notify.Cooldown.Duration,
	}, logger)

	return deps, cleanup, nil
}

// OpenRedis connects to the shared state store.
func OpenRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	c, err := redis.New(ctx, redis.ClientConfig{
		URL:          cfg.Redis.URL,
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout.Duration,
		ReadTimeout:  cfg.Redis.ReadTimeout.Duration,
		WriteTimeout: cfg.Redis.WriteTimeout.Duration,
		TLSEnabled:   cfg.Redis.TLSEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("wire: redis: %w", err)
	}
	return c, nil
}

// OpenPostgres connects to the configured database and applies migrations
// when enabled.
func OpenPostgres(ctx context.Context, cfg *config.Config) (*postgres.Client, error) {
	pg, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:            cfg.Postgres.DSN,
		Host:           cfg.Postgres.Host,
		Port:           cfg.Postgres.Port,
		Database:       cfg.Postgres.Database,
		User:           cfg.Postgres.User,
		Password:       cfg.Postgres.Password,
		SSLMode:        cfg.Postgres.SSLMode,
		MaxConns:       cfg.Postgres.PoolMaxConns,
		MinConns:       cfg.Postgres.PoolMinConns,
		ConnectTimeout: cfg.Postgres.ConnectTimeout.Duration,
	})
	if err != nil {
		return nil, fmt.Errorf("wire: postgres: %w", err)
	}
	if cfg.Postgres.RunMigrations {
		if err := pg.RunMigrations(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	return pg, nil
}
