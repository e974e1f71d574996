package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/cache/redis"
	"github.com/alanyoungcy/sniperbot/internal/config"
	"github.com/alanyoungcy/sniperbot/internal/domain"
	"github.com/alanyoungcy/sniperbot/internal/pipeline"
	"github.com/alanyoungcy/sniperbot/internal/platform/scanner"
	"github.com/alanyoungcy/sniperbot/internal/platform/sentiment"
	"github.com/alanyoungcy/sniperbot/internal/platform/solanarpc"
	"github.com/alanyoungcy/sniperbot/internal/store/postgres"
)

const (
	// CollaboratorRPC names the Solana node in readiness maps.
	CollaboratorRPC = "rpc"

	auditEpochReset = "epoch.reset"
)

// Probe checks the collaborators of the configured deployment without
// starting anything. The store and the validation service decide
// readiness; the scanner and the RPC node only degrade it.
func Probe(ctx context.Context, cfg *config.Config, logger *slog.Logger) pipeline.Readiness {
	rpc := solanarpc.New(solanarpc.Config{
		URL:        cfg.Solana.RPCURL,
		Commitment: cfg.Solana.Commitment,
		Timeout:    cfg.Solana.Timeout.Duration,
	}, logger)
	rpcOK := rpc.Health(ctx) == nil

	store, err := OpenRedis(ctx, cfg)
	if err != nil {
		return pipeline.Readiness{
			Degraded: true,
			Collaborators: map[string]bool{
				pipeline.CollaboratorStore: false,
				CollaboratorRPC:            rpcOK,
			},
			CheckedAt: time.Now().UTC(),
		}
	}
	defer store.Close()

	var scan pipeline.Scanner
	if cfg.Scanner.Enabled {
		scan = scanner.NewClient(cfg.Scanner.BaseURL, cfg.Scanner.Timeout.Duration, logger)
	}
	ctrl := pipeline.NewController(pipeline.Config{}, pipeline.Deps{
		State:     redis.NewStateStore(store),
		Validator: sentiment.NewClient(cfg.Sentiment.BaseURL, cfg.Sentiment.APIKey, cfg.Sentiment.Timeout.Duration, logger),
		Scanner:   scan,
		Logger:    logger,
	})

	r := ctrl.IsReady(ctx)
	r.Collaborators[CollaboratorRPC] = rpcOK
	if !rpcOK {
		r.Degraded = true
	}
	return r
}

// ResetEpoch clears the processed-token set so every address is eligible
// again. It returns how many addresses were forgotten. With Postgres enabled
// the reset is also written to the audit log.
func ResetEpoch(ctx context.Context, cfg *config.Config) (int64, error) {
	store, err := OpenRedis(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer store.Close()

	dedup := redis.NewDedupSet(store, domain.KeyProcessedTokens)
	n, err := dedup.Size(ctx)
	if err != nil {
		return 0, fmt.Errorf("app: reset epoch: %w", err)
	}
	if err := dedup.Reset(ctx); err != nil {
		return 0, fmt.Errorf("app: reset epoch: %w", err)
	}

	if cfg.Postgres.Enabled {
		pg, err := OpenPostgres(ctx, cfg)
		if err != nil {
			return n, fmt.Errorf("app: reset epoch audit: %w", err)
		}
		defer pg.Close()
		if err := postgres.NewAuditStore(pg.Pool()).Log(ctx, auditEpochReset, map[string]any{
			"cleared": n,
		}); err != nil {
			return n, fmt.Errorf("app: reset epoch audit: %w", err)
		}
	}
	return n, nil
}
