package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and environment variables.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Solana         SolanaConfig         `yaml:"solana"`
	Replay         ReplayConfig         `yaml:"replay"`
	Webhook        WebhookConfig        `yaml:"webhook"`
	Resources      map[string]Resource  `yaml:"resources"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address            string   `yaml:"address"`
	ReadTimeout        Duration `yaml:"read_timeout"`
	WriteTimeout       Duration `yaml:"write_timeout"`
	IdleTimeout        Duration `yaml:"idle_timeout"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`       // debug, info, warn, error (default: info)
	Format      string `yaml:"format"`      // json, console (default: json)
	Environment string `yaml:"environment"` // production, staging, development
}

// SolanaConfig holds Solana network and verification configuration.
type SolanaConfig struct {
	Network         string   `yaml:"network"`          // mainnet, devnet, testnet, localnet
	RPCURL          string   `yaml:"rpc_url"`          // JSON-RPC endpoint
	Commitment      string   `yaml:"commitment"`       // processed, confirmed, finalized (default: confirmed)
	RecipientWallet string   `yaml:"recipient_wallet"` // base58 owner wallet receiving payments
	MaxPaymentAge   Duration `yaml:"max_payment_age"`  // reject transactions older than this (default: 5m)
	MaxRetries      int      `yaml:"max_retries"`      // RPC retry attempts (default: 3)
	RetryBaseDelay  Duration `yaml:"retry_base_delay"` // initial retry backoff (default: 100ms)
	RequestTimeout  Duration `yaml:"request_timeout"`  // per-RPC-call timeout (default: 10s)
	StrictMint      bool     `yaml:"strict_mint"`      // reject transfers whose mint differs from USDC
}

// ReplayConfig holds replay-prevention cache configuration.
type ReplayConfig struct {
	Backend       string   `yaml:"backend"`        // "memory" or "redis" (default: memory)
	TTL           Duration `yaml:"ttl"`            // how long consumed signatures stay cached (default: 10m)
	SweepInterval Duration `yaml:"sweep_interval"` // memory backend expiry sweep cadence (default: 1m)
	RedisURL      string   `yaml:"redis_url"`      // redis connection URL for the redis backend
	KeyPrefix     string   `yaml:"key_prefix"`     // redis key namespace (default: "x402:payment:")
}

// WebhookConfig holds webhook delivery engine configuration.
type WebhookConfig struct {
	Subscriptions   []SubscriptionConfig `yaml:"subscriptions"`
	QueueBackend    string               `yaml:"queue_backend"`    // "memory", "redis", or "postgres"
	PostgresURL     string               `yaml:"postgres_url"`     // postgres queue connection string
	RedisURL        string               `yaml:"redis_url"`        // redis queue connection URL
	ProcessInterval Duration             `yaml:"process_interval"` // queue poll cadence (default: 1s)
	BatchSize       int                  `yaml:"batch_size"`       // deliveries claimed per poll (default: 10)
	Workers         int                  `yaml:"workers"`          // concurrent delivery workers (default: 1)
	DeliveryLog     DeliveryLogConfig    `yaml:"delivery_log"`
}

// SubscriptionConfig defines a single webhook endpoint.
type SubscriptionConfig struct {
	URL     string            `yaml:"url"`
	Secret  string            `yaml:"secret"`
	Events  []string          `yaml:"events"`  // empty means all events
	Headers map[string]string `yaml:"headers"` // extra headers per request
	Timeout Duration          `yaml:"timeout"` // per-request timeout (default: 5s)
	Retry   RetryConfig       `yaml:"retry"`
}

// RetryConfig holds webhook retry configuration.
type RetryConfig struct {
	Enabled      bool     `yaml:"enabled"`       // enable retry with backoff (default: true)
	MaxAttempts  int      `yaml:"max_attempts"`  // total delivery attempts (default: 5)
	InitialDelay Duration `yaml:"initial_delay"` // first retry delay (default: 1s)
	MaxDelay     Duration `yaml:"max_delay"`     // backoff cap (default: 5m)
	Backoff      string   `yaml:"backoff"`       // "exponential" or "linear" (default: exponential)
}

// DeliveryLogConfig holds webhook delivery history configuration.
type DeliveryLogConfig struct {
	MaxEntries int    `yaml:"max_entries"` // ring buffer capacity (default: 1000)
	FilePath   string `yaml:"file_path"`   // optional NDJSON audit file
}

// Resource defines a single protected resource with pricing.
type Resource struct {
	PriceUSD    float64 `yaml:"price_usd"`
	Description string  `yaml:"description"`
	Timeout     int     `yaml:"timeout"` // payment validity window in seconds (default: 300)
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool     `yaml:"enabled"` // enable per-IP rate limiting
	Limit   int      `yaml:"limit"`   // requests allowed per window (default: 120)
	Window  Duration `yaml:"window"`  // time window (default: 1m)
}

// CircuitBreakerConfig holds circuit breaker configuration for external services.
type CircuitBreakerConfig struct {
	Enabled   bool                 `yaml:"enabled"`    // enable circuit breakers (default: true)
	SolanaRPC BreakerServiceConfig `yaml:"solana_rpc"` // Solana RPC circuit breaker
	Webhook   BreakerServiceConfig `yaml:"webhook"`    // webhook delivery circuit breaker
}

// BreakerServiceConfig configures a circuit breaker for a specific external service.
type BreakerServiceConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`         // max requests in half-open state (default: 3)
	Interval            Duration `yaml:"interval"`             // stats reset interval in closed state (default: 60s)
	Timeout             Duration `yaml:"timeout"`              // open state timeout before half-open (default: 30s)
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"` // consecutive failures to trip (default: 5)
	FailureRatio        float64  `yaml:"failure_ratio"`        // failure ratio to trip 0.0-1.0 (default: 0.5)
	MinRequests         uint32   `yaml:"min_requests"`         // minimum requests before checking ratio (default: 10)
}
