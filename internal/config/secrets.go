package config

import (
	"net/url"
	"slices"
	"sort"
	"strings"
)

const redacted = "***"

// RedactedConfig returns a copy of cfg that is safe to log. Credentials are
// replaced with "***", URLs keep their host and path but lose passwords and
// query values, and slices are cloned so the copy cannot alias cfg.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	for _, s := range []*string{
		&out.Wallet.PrivateKey,
		&out.Wallet.KeyPassword,
		&out.Postgres.DSN,
		&out.Postgres.Password,
		&out.Redis.Password,
		&out.S3.AccessKey,
		&out.S3.SecretKey,
		&out.Sentiment.APIKey,
		&out.Server.APIKey,
		&out.Notify.TelegramToken,
		&out.Notify.DiscordWebhookURL,
	} {
		if *s != "" {
			*s = redacted
		}
	}

	// Providers such as Helius and QuickNode put the api key in the query.
	for _, s := range []*string{
		&out.Solana.RPCURL,
		&out.Solana.WSURL,
		&out.Jito.BlockEngineURL,
		&out.Jupiter.BaseURL,
		&out.Sentiment.BaseURL,
		&out.Scanner.BaseURL,
		&out.Redis.URL,
	} {
		*s = redactURL(*s)
	}

	out.Notify.Events = slices.Clone(cfg.Notify.Events)
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)
	out.Jito.TipAccounts = slices.Clone(cfg.Jito.TipAccounts)
	out.Reflex.Programs = slices.Clone(cfg.Reflex.Programs)
	out.Execution.ProtectedStrategies = slices.Clone(cfg.Execution.ProtectedStrategies)
	out.Execution.StrategyTiers = slices.Clone(cfg.Execution.StrategyTiers)
	return out
}

// redactURL masks the password and every query value of raw. A value that
// does not parse as a URL is masked whole.
func redactURL(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return redacted
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), redacted)
	}
	if u.RawQuery != "" {
		var keys []string
		for k := range u.Query() {
			keys = append(keys, k+"="+redacted)
		}
		sort.Strings(keys)
		u.RawQuery = strings.Join(keys, "&")
	}
	return u.String()
}
