package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// finalize applies defaults and validates the configuration.
func (c *Config) finalize() error {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Environment == "" {
		c.Logging.Environment = "production"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Solana.Commitment == "" {
		c.Solana.Commitment = "confirmed"
	}
	if c.Replay.Backend == "" {
		c.Replay.Backend = "memory"
	}
	if c.Replay.KeyPrefix == "" {
		c.Replay.KeyPrefix = "x402:payment:"
	}
	if c.Webhook.QueueBackend == "" {
		c.Webhook.QueueBackend = "memory"
	}
	if c.Webhook.Workers <= 0 {
		c.Webhook.Workers = 1
	}
	if c.Webhook.BatchSize <= 0 {
		c.Webhook.BatchSize = 10
	}
	if c.Webhook.DeliveryLog.MaxEntries <= 0 {
		c.Webhook.DeliveryLog.MaxEntries = 1000
	}

	// Per-subscription defaults
	for i := range c.Webhook.Subscriptions {
		sub := &c.Webhook.Subscriptions[i]
		if sub.Timeout.Duration == 0 {
			sub.Timeout = Duration{Duration: 5 * time.Second}
		}
		if sub.Retry.Enabled {
			if sub.Retry.MaxAttempts <= 0 {
				sub.Retry.MaxAttempts = 5
			}
			if sub.Retry.InitialDelay.Duration == 0 {
				sub.Retry.InitialDelay = Duration{Duration: 1 * time.Second}
			}
			if sub.Retry.MaxDelay.Duration == 0 {
				sub.Retry.MaxDelay = Duration{Duration: 5 * time.Minute}
			}
			if sub.Retry.Backoff == "" {
				sub.Retry.Backoff = "exponential"
			}
		}
	}

	return c.validate()
}

// validate checks the configuration for inconsistent or unusable values.
func (c *Config) validate() error {
	var errs []error

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level))
	}

	switch c.Solana.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		errs = append(errs, fmt.Errorf("solana.commitment must be processed, confirmed, or finalized, got %q", c.Solana.Commitment))
	}

	if c.Solana.RPCURL != "" {
		if _, err := url.ParseRequestURI(c.Solana.RPCURL); err != nil {
			errs = append(errs, fmt.Errorf("solana.rpc_url is not a valid URL: %w", err))
		}
	}

	switch c.Replay.Backend {
	case "memory":
	case "redis":
		if c.Replay.RedisURL == "" {
			errs = append(errs, errors.New("replay.redis_url is required when replay.backend is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("replay.backend must be memory or redis, got %q", c.Replay.Backend))
	}

	switch c.Webhook.QueueBackend {
	case "memory":
	case "redis":
		if c.Webhook.RedisURL == "" {
			errs = append(errs, errors.New("webhook.redis_url is required when webhook.queue_backend is redis"))
		}
	case "postgres":
		if c.Webhook.PostgresURL == "" {
			errs = append(errs, errors.New("webhook.postgres_url is required when webhook.queue_backend is postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("webhook.queue_backend must be memory, redis, or postgres, got %q", c.Webhook.QueueBackend))
	}

	for i, sub := range c.Webhook.Subscriptions {
		if sub.URL == "" {
			errs = append(errs, fmt.Errorf("webhook.subscriptions[%d].url is required", i))
			continue
		}
		u, err := url.ParseRequestURI(sub.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("webhook.subscriptions[%d].url must be an http(s) URL", i))
		}
		if sub.Retry.Enabled {
			switch sub.Retry.Backoff {
			case "exponential", "linear":
			default:
				errs = append(errs, fmt.Errorf("webhook.subscriptions[%d].retry.backoff must be exponential or linear, got %q", i, sub.Retry.Backoff))
			}
		}
	}

	for id, res := range c.Resources {
		if strings.TrimSpace(id) == "" {
			errs = append(errs, errors.New("resources must not have empty keys"))
			continue
		}
		if res.PriceUSD <= 0 {
			errs = append(errs, fmt.Errorf("resources[%s].price_usd must be positive, got %v", id, res.PriceUSD))
		}
	}

	return errors.Join(errs...)
}
