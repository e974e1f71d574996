package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "SNIPERBOT_"

// Load layers defaults, the TOML file at path (skipped when empty) and
// SNIPERBOT_* environment variables, in that order. A .env file in the
// working directory is read first but never overrides the real environment.
// An environment variable that does not parse is an error. The result is not
// validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: .env: %w", err)
	}

	e := envBinder{lookup: os.LookupEnv}
	bindEnv(&e, &cfg)
	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	cfg.derive()

	return &cfg, nil
}

// derive fills values that default relative to other settings.
func (c *Config) derive() {
	if c.Pipeline.ValidationTimeout.Duration <= 0 {
		c.Pipeline.ValidationTimeout.Duration = c.Pipeline.CycleInterval.Duration / 4
	}
	if c.Reflex.EnrichTimeout.Duration <= 0 {
		c.Reflex.EnrichTimeout.Duration = c.Reflex.ExecutionTimeout.Duration
	}
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
}

// bindEnv applies every supported override. Keys are listed without the
// SNIPERBOT_ prefix.
func bindEnv(e *envBinder, cfg *Config) {
	// Solana
	e.str(&cfg.Solana.RPCURL, "SOLANA_RPC_URL")
	e.str(&cfg.Solana.WSURL, "SOLANA_WS_URL")
	e.str(&cfg.Solana.Commitment, "SOLANA_COMMITMENT")
	e.float(&cfg.Solana.RequestsPerSecond, "SOLANA_REQUESTS_PER_SECOND")
	e.dur(&cfg.Solana.Timeout, "SOLANA_TIMEOUT")

	// Wallet
	e.str(&cfg.Wallet.PrivateKey, "WALLET_PRIVATE_KEY")
	e.str(&cfg.Wallet.KeypairPath, "WALLET_KEYPAIR_PATH")
	e.str(&cfg.Wallet.EncryptedKeyPath, "WALLET_ENCRYPTED_KEY_PATH")
	e.str(&cfg.Wallet.KeyPassword, "WALLET_KEY_PASSWORD")

	// Jito
	e.flag(&cfg.Jito.Enabled, "JITO_ENABLED")
	e.str(&cfg.Jito.BlockEngineURL, "JITO_BLOCK_ENGINE_URL")
	e.list(&cfg.Jito.TipAccounts, "JITO_TIP_ACCOUNTS")
	e.u64(&cfg.Jito.TipLamports, "JITO_TIP_LAMPORTS")
	e.u64(&cfg.Jito.MinTipLamports, "JITO_MIN_TIP_LAMPORTS")
	e.u64(&cfg.Jito.MaxTipLamports, "JITO_MAX_TIP_LAMPORTS")
	e.num(&cfg.Jito.TipBps, "JITO_TIP_BPS")

	// Jupiter
	e.str(&cfg.Jupiter.BaseURL, "JUPITER_BASE_URL")

	// Redis
	e.str(&cfg.Redis.URL, "REDIS_URL")
	e.str(&cfg.Redis.Addr, "REDIS_ADDR")
	e.str(&cfg.Redis.Password, "REDIS_PASSWORD")
	e.num(&cfg.Redis.DB, "REDIS_DB")
	e.num(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	e.num(&cfg.Redis.MaxRetries, "REDIS_MAX_RETRIES")
	e.flag(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")

	// Postgres
	e.flag(&cfg.Postgres.Enabled, "POSTGRES_ENABLED")
	e.str(&cfg.Postgres.DSN, "POSTGRES_DSN")
	e.str(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	e.str(&cfg.Postgres.Host, "POSTGRES_HOST")
	e.num(&cfg.Postgres.Port, "POSTGRES_PORT")
	e.str(&cfg.Postgres.Database, "POSTGRES_DATABASE")
	e.str(&cfg.Postgres.User, "POSTGRES_USER")
	e.str(&cfg.Postgres.Password, "POSTGRES_PASSWORD")
	e.str(&cfg.Postgres.SSLMode, "POSTGRES_SSL_MODE")
	e.num(&cfg.Postgres.PoolMaxConns, "POSTGRES_POOL_MAX_CONNS")
	e.num(&cfg.Postgres.PoolMinConns, "POSTGRES_POOL_MIN_CONNS")
	e.flag(&cfg.Postgres.RunMigrations, "POSTGRES_RUN_MIGRATIONS")

	// S3
	e.flag(&cfg.S3.Enabled, "S3_ENABLED")
	e.str(&cfg.S3.Endpoint, "S3_ENDPOINT")
	e.str(&cfg.S3.Region, "S3_REGION")
	e.str(&cfg.S3.Bucket, "S3_BUCKET")
	e.str(&cfg.S3.Prefix, "S3_PREFIX")
	e.str(&cfg.S3.AccessKey, "S3_ACCESS_KEY")
	e.str(&cfg.S3.SecretKey, "S3_SECRET_KEY")
	e.flag(&cfg.S3.UseSSL, "S3_USE_SSL")
	e.flag(&cfg.S3.ForcePathStyle, "S3_FORCE_PATH_STYLE")

	// Sentiment / scanner
	e.str(&cfg.Sentiment.BaseURL, "SENTIMENT_BASE_URL")
	e.str(&cfg.Sentiment.APIKey, "SENTIMENT_API_KEY")
	e.dur(&cfg.Sentiment.Timeout, "SENTIMENT_TIMEOUT")
	e.flag(&cfg.Scanner.Enabled, "SCANNER_ENABLED")
	e.str(&cfg.Scanner.BaseURL, "SCANNER_BASE_URL")
	e.num(&cfg.Scanner.BatchSize, "SCANNER_BATCH_SIZE")

	// Pipeline
	e.flag(&cfg.Pipeline.Enabled, "PIPELINE_ENABLED")
	e.dur(&cfg.Pipeline.CycleInterval, "PIPELINE_CYCLE_INTERVAL")
	e.dur(&cfg.Pipeline.CycleTimeout, "PIPELINE_CYCLE_TIMEOUT")
	e.num(&cfg.Pipeline.MaxOpportunitiesPerCycle, "PIPELINE_MAX_OPPORTUNITIES_PER_CYCLE")
	e.dur(&cfg.Pipeline.ValidationTimeout, "PIPELINE_VALIDATION_TIMEOUT")
	e.num(&cfg.Pipeline.ArchiveRetentionDays, "PIPELINE_ARCHIVE_RETENTION_DAYS")
	e.str(&cfg.Pipeline.ArchiveCron, "PIPELINE_ARCHIVE_CRON")

	// Decision
	e.float(&cfg.Decision.MaxPositionSOL, "DECISION_MAX_POSITION_SOL")
	e.float(&cfg.Decision.MinPositionSOL, "DECISION_MIN_POSITION_SOL")
	e.float(&cfg.Decision.RiskTolerance, "DECISION_RISK_TOLERANCE")
	e.float(&cfg.Decision.MinSentimentConfidence, "DECISION_MIN_SENTIMENT_CONFIDENCE")
	e.num(&cfg.Decision.MaxConcurrentPositions, "DECISION_MAX_CONCURRENT_POSITIONS")

	// Reflex
	e.flag(&cfg.Reflex.Enabled, "REFLEX_ENABLED")
	e.list(&cfg.Reflex.Programs, "REFLEX_PROGRAMS")
	e.float(&cfg.Reflex.MinLiquiditySOL, "REFLEX_MIN_LIQUIDITY_SOL")
	e.float(&cfg.Reflex.MinRiskScore, "REFLEX_MIN_RISK_SCORE")
	e.float(&cfg.Reflex.MaxPositionSOL, "REFLEX_MAX_POSITION_SOL")
	e.float(&cfg.Reflex.MinPositionSOL, "REFLEX_MIN_POSITION_SOL")
	e.dur(&cfg.Reflex.ExecutionTimeout, "REFLEX_EXECUTION_TIMEOUT")
	e.dur(&cfg.Reflex.StoreTimeout, "REFLEX_STORE_TIMEOUT")
	e.float(&cfg.Reflex.SOLPriceUSD, "REFLEX_SOL_PRICE_USD")

	// Execution
	e.float(&cfg.Execution.LargeOrderThreshold, "EXECUTION_LARGE_ORDER_THRESHOLD")
	e.list(&cfg.Execution.ProtectedStrategies, "EXECUTION_PROTECTED_STRATEGIES")
	e.num(&cfg.Execution.DefaultMaxSlippageBps, "EXECUTION_DEFAULT_MAX_SLIPPAGE_BPS")
	e.dur(&cfg.Execution.ConfirmTimeout, "EXECUTION_CONFIRM_TIMEOUT")
	e.flag(&cfg.Execution.ConsumerEnabled, "EXECUTION_CONSUMER_ENABLED")
	e.float(&cfg.Execution.DryRunBalanceSOL, "EXECUTION_DRY_RUN_BALANCE_SOL")

	// Server
	e.flag(&cfg.Server.Enabled, "SERVER_ENABLED")
	e.num(&cfg.Server.Port, "SERVER_PORT")
	e.list(&cfg.Server.CORSOrigins, "SERVER_CORS_ORIGINS")
	e.str(&cfg.Server.APIKey, "SERVER_API_KEY")

	// Notify
	e.str(&cfg.Notify.TelegramToken, "NOTIFY_TELEGRAM_TOKEN")
	e.str(&cfg.Notify.TelegramChatID, "NOTIFY_TELEGRAM_CHAT_ID")
	e.str(&cfg.Notify.DiscordWebhookURL, "NOTIFY_DISCORD_WEBHOOK_URL")
	e.list(&cfg.Notify.Events, "NOTIFY_EVENTS")

	// Top-level
	e.str(&cfg.Mode, "MODE")
	e.str(&cfg.LogLevel, "LOG_LEVEL")
	e.flag(&cfg.DryRun, "DRY_RUN")
}

// envBinder applies environment overrides and collects parse failures. An
// unset or empty variable leaves the target alone.
type envBinder struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envBinder) value(key string) (string, string, bool) {
	name := EnvPrefix + key
	v, ok := e.lookup(name)
	v = strings.TrimSpace(v)
	return name, v, ok && v != ""
}

func bindParsed[T any](e *envBinder, dst *T, key string, parse func(string) (T, error)) {
	name, v, ok := e.value(key)
	if !ok {
		return
	}
	parsed, err := parse(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s=%q: %w", name, v, err))
		return
	}
	*dst = parsed
}

func (e *envBinder) str(dst *string, key string) {
	bindParsed(e, dst, key, func(v string) (string, error) { return v, nil })
}

func (e *envBinder) num(dst *int, key string) {
	bindParsed(e, dst, key, strconv.Atoi)
}

func (e *envBinder) u64(dst *uint64, key string) {
	bindParsed(e, dst, key, func(v string) (uint64, error) { return strconv.ParseUint(v, 10, 64) })
}

func (e *envBinder) float(dst *float64, key string) {
	bindParsed(e, dst, key, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}

func (e *envBinder) flag(dst *bool, key string) {
	bindParsed(e, dst, key, strconv.ParseBool)
}

func (e *envBinder) dur(dst *duration, key string) {
	bindParsed(e, &dst.Duration, key, time.ParseDuration)
}

// list splits on commas and drops blank entries. A list with no entries
// left keeps the previous value.
func (e *envBinder) list(dst *[]string, key string) {
	bindParsed(e, dst, key, func(v string) ([]string, error) {
		var out []string
		for p := range strings.SplitSeq(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			return *dst, nil
		}
		return out, nil
	})
}
