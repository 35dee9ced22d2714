package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration.
// All env vars use the X402_ prefix for namespace isolation.
func (c *Config) applyEnvOverrides() {
	// Server config
	setIfEnv(&c.Server.Address, "X402_SERVER_ADDRESS")

	// Logging config
	setIfEnv(&c.Logging.Level, "X402_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "X402_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "X402_ENVIRONMENT")

	// Solana config
	setIfEnv(&c.Solana.Network, "X402_SOLANA_NETWORK")
	setIfEnv(&c.Solana.RPCURL, "X402_SOLANA_RPC_URL")
	setIfEnv(&c.Solana.Commitment, "X402_SOLANA_COMMITMENT")
	setIfEnv(&c.Solana.RecipientWallet, "X402_RECIPIENT_WALLET")
	setDurationIfEnv(&c.Solana.MaxPaymentAge, "X402_MAX_PAYMENT_AGE")
	setIntIfEnv(&c.Solana.MaxRetries, "X402_SOLANA_MAX_RETRIES")
	setDurationIfEnv(&c.Solana.RetryBaseDelay, "X402_SOLANA_RETRY_BASE_DELAY")
	setDurationIfEnv(&c.Solana.RequestTimeout, "X402_SOLANA_REQUEST_TIMEOUT")
	setBoolIfEnv(&c.Solana.StrictMint, "X402_STRICT_MINT")

	// Replay cache config
	setIfEnv(&c.Replay.Backend, "X402_REPLAY_BACKEND")
	setDurationIfEnv(&c.Replay.TTL, "X402_REPLAY_TTL")
	setIfEnv(&c.Replay.RedisURL, "X402_REPLAY_REDIS_URL")
	setIfEnv(&c.Replay.KeyPrefix, "X402_REPLAY_KEY_PREFIX")

	// Webhook config
	setIfEnv(&c.Webhook.QueueBackend, "X402_WEBHOOK_QUEUE_BACKEND")
	setIfEnv(&c.Webhook.PostgresURL, "X402_WEBHOOK_POSTGRES_URL")
	setIfEnv(&c.Webhook.RedisURL, "X402_WEBHOOK_REDIS_URL")
	setDurationIfEnv(&c.Webhook.ProcessInterval, "X402_WEBHOOK_PROCESS_INTERVAL")
	setIntIfEnv(&c.Webhook.Workers, "X402_WEBHOOK_WORKERS")
	setIfEnv(&c.Webhook.DeliveryLog.FilePath, "X402_WEBHOOK_LOG_FILE")
}

// setIfEnv sets a string pointer to the environment variable value if it exists.
func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

// setBoolIfEnv sets a boolean pointer from an environment variable.
// Accepts "1", "true", "TRUE", "True" as true values.
func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || strings.EqualFold(v, "true")
	}
}

// setIntIfEnv sets an int pointer from an environment variable.
func setIntIfEnv(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

// setDurationIfEnv sets a Duration pointer from an environment variable.
// Uses time.ParseDuration to parse values like "5m", "120s", "1h30m".
func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}
