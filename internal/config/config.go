// Package config defines the sniper bot's configuration and its validation
// rules.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SNIPERBOT_* environment variables.
type Config struct {
	Solana    SolanaConfig    `toml:"solana"`
	Wallet    WalletConfig    `toml:"wallet"`
	Jito      JitoConfig      `toml:"jito"`
	Jupiter   JupiterConfig   `toml:"jupiter"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	S3        S3Config        `toml:"s3"`
	Sentiment SentimentConfig `toml:"sentiment"`
	Scanner   ScannerConfig   `toml:"scanner"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Decision  DecisionConfig  `toml:"decision"`
	Reflex    ReflexConfig    `toml:"reflex"`
	Execution ExecutionConfig `toml:"execution"`
	EventLog  EventLogConfig  `toml:"event_log"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
	DryRun    bool            `toml:"dry_run"`
}

// SolanaConfig holds RPC endpoints.
type SolanaConfig struct {
	RPCURL            string   `toml:"rpc_url"`
	WSURL             string   `toml:"ws_url"`
	Commitment        string   `toml:"commitment"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
	Timeout           duration `toml:"timeout"`
}

// WalletConfig holds the trading wallet key sources.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	KeypairPath      string `toml:"keypair_path"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// JitoConfig holds block-engine bundle parameters. Tips are in lamports.
type JitoConfig struct {
	Enabled        bool     `toml:"enabled"`
	BlockEngineURL string   `toml:"block_engine_url"`
	TipAccounts    []string `toml:"tip_accounts"`
	TipLamports    uint64   `toml:"tip_lamports"`
	MinTipLamports uint64   `toml:"min_tip_lamports"`
	MaxTipLamports uint64   `toml:"max_tip_lamports"`
	TipBps         int      `toml:"tip_bps"`
	SubmitTimeout  duration `toml:"submit_timeout"`
}

// JupiterConfig holds the swap aggregator endpoint.
type JupiterConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
}

// RedisConfig holds Redis connection parameters.
// A non-empty URL (redis:// or rediss://) replaces Addr, Password, DB and
// TLSEnabled.
type RedisConfig struct {
	URL          string   `toml:"url"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MaxRetries   int      `toml:"max_retries"`
	TLSEnabled   bool     `toml:"tls_enabled"`
	DialTimeout  duration `toml:"dial_timeout"`
	ReadTimeout  duration `toml:"read_timeout"`
	WriteTimeout duration `toml:"write_timeout"`
	StreamMaxLen int64    `toml:"stream_max_len"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled        bool     `toml:"enabled"`
	DSN            string   `toml:"dsn"`
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	Database       string   `toml:"database"`
	User           string   `toml:"user"`
	Password       string   `toml:"password"`
	SSLMode        string   `toml:"ssl_mode"`
	PoolMaxConns   int      `toml:"pool_max_conns"`
	PoolMinConns   int      `toml:"pool_min_conns"`
	ConnectTimeout duration `toml:"connect_timeout"`
	RunMigrations  bool     `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// SentimentConfig points at the external validation service.
type SentimentConfig struct {
	BaseURL           string   `toml:"base_url"`
	APIKey            string   `toml:"api_key"`
	Timeout           duration `toml:"timeout"`
	RequestsPerMinute int      `toml:"requests_per_minute"`
}

// ScannerConfig points at the optional quantitative scanner.
type ScannerConfig struct {
	Enabled   bool     `toml:"enabled"`
	BaseURL   string   `toml:"base_url"`
	Timeout   duration `toml:"timeout"`
	BatchSize int      `toml:"batch_size"`
	RecordTTL duration `toml:"record_ttl"`
}

// PipelineConfig holds the slow-path cycle parameters.
type PipelineConfig struct {
	Enabled                  bool     `toml:"enabled"`
	CycleInterval            duration `toml:"cycle_interval"`
	CycleTimeout             duration `toml:"cycle_timeout"`
	MaxOpportunitiesPerCycle int      `toml:"max_opportunities_per_cycle"`
	ValidationTimeout        duration `toml:"validation_timeout"`
	ValidatedTTL             duration `toml:"validated_ttl"`
	DecisionTTL              duration `toml:"decision_ttl"`
	ArchiveRetentionDays     int      `toml:"archive_retention_days"`
	ArchiveCron              string   `toml:"archive_cron"`
}

// DecisionConfig holds the Decision Engine's thresholds and weights.
type DecisionConfig struct {
	MaxPositionSOL         float64  `toml:"max_position_sol"`
	MinPositionSOL         float64  `toml:"min_position_sol"`
	RiskTolerance          float64  `toml:"risk_tolerance"`
	MinSentimentConfidence float64  `toml:"min_sentiment_confidence"`
	MinCombinedScore       float64  `toml:"min_combined_score"`
	WatchThreshold         float64  `toml:"watch_threshold"`
	HighQualityScore       float64  `toml:"high_quality_score"`
	MaxConcurrentPositions int      `toml:"max_concurrent_positions"`
	MaxBalanceFraction     float64  `toml:"max_balance_fraction"`
	QuantWeight            float64  `toml:"quant_weight"`
	SentimentWeight        float64  `toml:"sentiment_weight"`
	ScoreScale             float64  `toml:"score_scale"`
	PriorityHalfLife       duration `toml:"priority_half_life"`
	LPMinAPR               float64  `toml:"lp_min_apr"`
	LPMinLiquidityUSD      float64  `toml:"lp_min_liquidity_usd"`
	MonitorInterval        duration `toml:"monitor_interval"`
	MonitorMaxDuration     duration `toml:"monitor_max_duration"`
	PositionHold           duration `toml:"position_hold"`
}

// ReflexConfig holds the fast-path listener and sniper parameters.
type ReflexConfig struct {
	Enabled          bool     `toml:"enabled"`
	Programs         []string `toml:"programs"`
	MinLiquiditySOL  float64  `toml:"min_liquidity_sol"`
	MinRiskScore     float64  `toml:"min_risk_score"`
	MaxPositionSOL   float64  `toml:"max_position_sol"`
	MinPositionSOL   float64  `toml:"min_position_sol"`
	ExecutionTimeout duration `toml:"execution_timeout"`
	StoreTimeout     duration `toml:"store_timeout"`
	EnrichTimeout    duration `toml:"enrich_timeout"`
	MaxInFlight      int      `toml:"max_in_flight"`
	QueueSize        int      `toml:"queue_size"`
	OpportunityTTL   duration `toml:"opportunity_ttl"`
	SOLPriceUSD      float64  `toml:"sol_price_usd"`
}

// StrategyTier is the minimum wallet balance at which a strategy may trade.
type StrategyTier struct {
	Name          string  `toml:"name"`
	MinBalanceSOL float64 `toml:"min_balance_sol"`
}

// ExecutionConfig holds order submission parameters.
type ExecutionConfig struct {
	LargeOrderThreshold   float64        `toml:"large_order_threshold"`
	ProtectedStrategies   []string       `toml:"protected_strategies"`
	DefaultMaxSlippageBps int            `toml:"default_max_slippage_bps"`
	ConfirmTimeout        duration       `toml:"confirm_timeout"`
	ConfirmPollInterval   duration       `toml:"confirm_poll_interval"`
	MaxConfirmAttempts    int            `toml:"max_confirm_attempts"`
	StrategyTiers         []StrategyTier `toml:"strategy_tiers"`
	ConsumerEnabled       bool           `toml:"consumer_enabled"`
	ConsumerInterval      duration       `toml:"consumer_interval"`
	LockTTL               duration       `toml:"lock_ttl"`
	BalanceRefresh        duration       `toml:"balance_refresh"`
	DryRunBalanceSOL      float64        `toml:"dry_run_balance_sol"`
}

// EventLogConfig sizes the in-process event ring buffer.
type EventLogConfig struct {
	Capacity int `toml:"capacity"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds the read-only status API parameters.
type ServerConfig struct {
	Enabled           bool     `toml:"enabled"`
	Port              int      `toml:"port"`
	CORSOrigins       []string `toml:"cors_origins"`
	APIKey            string   `toml:"api_key"`
	RequestsPerMinute int      `toml:"requests_per_minute"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	Cooldown          duration `toml:"cooldown"`
}

// Well-known DEX program ids watched by the reflex listener.
const (
	RaydiumAMMProgram  = domain.ProgramRaydiumAMM
	RaydiumCLMMProgram = domain.ProgramRaydiumCLMM
	PumpFunProgram     = domain.ProgramPumpFun
)

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Solana: SolanaConfig{
			RPCURL:            "https://api.mainnet-beta.solana.com",
			WSURL:             "wss://api.mainnet-beta.solana.com",
			Commitment:        "confirmed",
			RequestsPerSecond: 10,
			Burst:             5,
			Timeout:           duration{10 * time.Second},
		},
		Jito: JitoConfig{
			Enabled:        true,
			BlockEngineURL: "https://mainnet.block-engine.jito.wtf",
			TipAccounts: []string{
				"96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5",
				"HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe",
				"Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY",
				"ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49",
			},
			TipLamports:    10_000,
			MinTipLamports: 10_000,
			MaxTipLamports: 100_000,
			TipBps:         10,
			SubmitTimeout:  duration{5 * time.Second},
		},
		Jupiter: JupiterConfig{
			BaseURL: "https://quote-api.jup.ag/v6",
			Timeout: duration{5 * time.Second},
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			PoolSize:     20,
			MaxRetries:   3,
			DialTimeout:  duration{5 * time.Second},
			ReadTimeout:  duration{3 * time.Second},
			WriteTimeout: duration{3 * time.Second},
			StreamMaxLen: 10000,
		},
		Postgres: PostgresConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "sniperbot",
			User:           "postgres",
			SSLMode:        "disable",
			PoolMaxConns:   10,
			PoolMinConns:   1,
			ConnectTimeout: duration{10 * time.Second},
			RunMigrations:  true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "sniperbot-archive",
			Prefix:         "sniperbot",
			ForcePathStyle: true,
		},
		Sentiment: SentimentConfig{
			BaseURL:           "http://localhost:8001",
			Timeout:           duration{10 * time.Second},
			RequestsPerMinute: 60,
		},
		Scanner: ScannerConfig{
			BaseURL:   "http://localhost:8002",
			Timeout:   duration{10 * time.Second},
			BatchSize: 50,
			RecordTTL: duration{time.Hour},
		},
		Pipeline: PipelineConfig{
			Enabled:                  true,
			CycleInterval:            duration{60 * time.Second},
			CycleTimeout:             duration{120 * time.Second},
			MaxOpportunitiesPerCycle: 20,
			ValidatedTTL:             duration{time.Hour},
			DecisionTTL:              duration{30 * time.Minute},
			ArchiveRetentionDays:     30,
			ArchiveCron:              "0 3 1 * *",
		},
		Decision: DecisionConfig{
			MaxPositionSOL:         1.0,
			MinPositionSOL:         0.1,
			RiskTolerance:          0.6,
			MinSentimentConfidence: 0.5,
			MinCombinedScore:       5.0,
			WatchThreshold:         6.0,
			HighQualityScore:       3.0,
			MaxConcurrentPositions: 5,
			MaxBalanceFraction:     0.2,
			QuantWeight:            0.6,
			SentimentWeight:        0.4,
			ScoreScale:             4,
			PriorityHalfLife:       duration{30 * time.Minute},
			LPMinAPR:               25,
			LPMinLiquidityUSD:      100_000,
			MonitorInterval:        duration{5 * time.Minute},
			MonitorMaxDuration:     duration{24 * time.Hour},
			PositionHold:           duration{24 * time.Hour},
		},
		Reflex: ReflexConfig{
			Enabled:          true,
			Programs:         []string{RaydiumAMMProgram, RaydiumCLMMProgram, PumpFunProgram},
			MinLiquiditySOL:  1.0,
			MinRiskScore:     0.3,
			MaxPositionSOL:   0.05,
			MinPositionSOL:   0.01,
			ExecutionTimeout: duration{2 * time.Second},
			StoreTimeout:     duration{500 * time.Millisecond},
			EnrichTimeout:    duration{3 * time.Second},
			MaxInFlight:      8,
			QueueSize:        256,
			OpportunityTTL:   duration{5 * time.Minute},
			SOLPriceUSD:      150,
		},
		Execution: ExecutionConfig{
			LargeOrderThreshold:   0.5,
			ProtectedStrategies:   []string{"reflex_sniping", "liquidity_sniping", "pumpfun_sniping"},
			DefaultMaxSlippageBps: 300,
			ConfirmTimeout:        duration{30 * time.Second},
			ConfirmPollInterval:   duration{2 * time.Second},
			MaxConfirmAttempts:    15,
			StrategyTiers: []StrategyTier{
				{Name: "reflex_sniping", MinBalanceSOL: 0.1},
				{Name: "pipeline_buy", MinBalanceSOL: 0.5},
				{Name: "liquidity_provision", MinBalanceSOL: 2.0},
			},
			ConsumerEnabled:  true,
			ConsumerInterval: duration{2 * time.Second},
			LockTTL:          duration{30 * time.Second},
			BalanceRefresh:   duration{30 * time.Second},
			DryRunBalanceSOL: 10,
		},
		EventLog: EventLogConfig{Capacity: 512},
		Server: ServerConfig{
			Enabled:           true,
			Port:              8000,
			CORSOrigins:       []string{"http://localhost:3000"},
			RequestsPerMinute: 120,
		},
		Notify: NotifyConfig{
			Events:   []string{"startup", "shutdown", "snipe_executed", "order_failed", "cycle_failed"},
			Cooldown: duration{time.Minute},
		},
		Mode:     "full",
		LogLevel: "info",
		DryRun:   true,
	}
}

// Modes accepted by Config.Mode.
const (
	ModePipeline = "pipeline"
	ModeReflex   = "reflex"
	ModeFull     = "full"
	ModeServer   = "server"
)

var validModes = map[string]bool{
	ModePipeline: true,
	ModeReflex:   true,
	ModeFull:     true,
	ModeServer:   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Trades reports whether the configured mode submits orders.
func (c *Config) Trades() bool {
	m := strings.ToLower(c.Mode)
	return m == ModeReflex || m == ModeFull || (m == ModePipeline && c.Execution.ConsumerEnabled)
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: pipeline, reflex, full, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Dry-run never touches the wallet, so keys are only required live.
	if c.Trades() && !c.DryRun {
		if c.Wallet.PrivateKey == "" && c.Wallet.KeypairPath == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: one of private_key, keypair_path or encrypted_key_path must be set for live trading")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
	}

	if c.Solana.RPCURL == "" {
		errs = append(errs, "solana: rpc_url must not be empty")
	}
	if c.Solana.RequestsPerSecond <= 0 {
		errs = append(errs, "solana: requests_per_second must be > 0")
	}
	if c.Reflex.Enabled && c.Solana.WSURL == "" {
		errs = append(errs, "solana: ws_url is required when reflex is enabled")
	}

	if c.Jito.Enabled {
		if c.Jito.BlockEngineURL == "" {
			errs = append(errs, "jito: block_engine_url must not be empty when enabled")
		}
		if len(c.Jito.TipAccounts) == 0 {
			errs = append(errs, "jito: at least one tip account is required when enabled")
		}
		if c.Jito.MinTipLamports > c.Jito.MaxTipLamports {
			errs = append(errs, "jito: min_tip_lamports must not exceed max_tip_lamports")
		}
	}

	if c.Redis.Addr == "" && c.Redis.URL == "" {
		errs = append(errs, "redis: addr or url is required")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.S3.Enabled {
		if !c.Postgres.Enabled {
			errs = append(errs, "s3: archival requires postgres.enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	if c.Pipeline.Enabled {
		if c.Sentiment.BaseURL == "" {
			errs = append(errs, "sentiment: base_url is required when the pipeline is enabled")
		}
		if c.Pipeline.CycleInterval.Duration <= 0 {
			errs = append(errs, "pipeline: cycle_interval must be > 0")
		}
		if c.Pipeline.CycleTimeout.Duration <= 0 {
			errs = append(errs, "pipeline: cycle_timeout must be > 0")
		}
		if c.Pipeline.MaxOpportunitiesPerCycle < 1 {
			errs = append(errs, "pipeline: max_opportunities_per_cycle must be >= 1")
		}
	}
	if c.Scanner.Enabled && c.Scanner.BaseURL == "" {
		errs = append(errs, "scanner: base_url is required when enabled")
	}

	d := c.Decision
	if d.MinPositionSOL <= 0 || d.MaxPositionSOL < d.MinPositionSOL {
		errs = append(errs, "decision: require 0 < min_position_sol <= max_position_sol")
	}
	if d.RiskTolerance < 0 || d.RiskTolerance > 1 {
		errs = append(errs, "decision: risk_tolerance must be within [0,1]")
	}
	if d.QuantWeight < 0 || d.SentimentWeight < 0 || d.QuantWeight+d.SentimentWeight <= 0 {
		errs = append(errs, "decision: quant_weight and sentiment_weight must be non-negative and not both zero")
	}
	if d.ScoreScale <= 0 {
		errs = append(errs, "decision: score_scale must be > 0")
	}
	if d.MaxConcurrentPositions < 1 {
		errs = append(errs, "decision: max_concurrent_positions must be >= 1")
	}

	r := c.Reflex
	if r.Enabled {
		if len(r.Programs) == 0 {
			errs = append(errs, "reflex: at least one program id is required")
		}
		if r.MinPositionSOL <= 0 || r.MaxPositionSOL < r.MinPositionSOL {
			errs = append(errs, "reflex: require 0 < min_position_sol <= max_position_sol")
		}
		if r.ExecutionTimeout.Duration <= 0 {
			errs = append(errs, "reflex: execution_timeout must be > 0")
		}
		if r.StoreTimeout.Duration <= 0 {
			errs = append(errs, "reflex: store_timeout must be > 0")
		}
		if r.MaxInFlight < 1 || r.QueueSize < 1 {
			errs = append(errs, "reflex: max_in_flight and queue_size must be >= 1")
		}
	}

	e := c.Execution
	if e.LargeOrderThreshold <= 0 {
		errs = append(errs, "execution: large_order_threshold must be > 0")
	}
	if e.DefaultMaxSlippageBps < 0 || e.DefaultMaxSlippageBps > 10_000 {
		errs = append(errs, "execution: default_max_slippage_bps must be within [0,10000]")
	}
	for _, t := range e.StrategyTiers {
		if t.Name == "" || t.MinBalanceSOL < 0 {
			errs = append(errs, fmt.Sprintf("execution: invalid strategy tier %+v", t))
		}
	}

	if c.EventLog.Capacity < 1 {
		errs = append(errs, "event_log: capacity must be >= 1")
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
