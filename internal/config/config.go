package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		if err := cfg.parseFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  Duration{Duration: 15 * time.Second},
			WriteTimeout: Duration{Duration: 15 * time.Second},
			IdleTimeout:  Duration{Duration: 60 * time.Second},
		},
		Solana: SolanaConfig{
			Network:        "mainnet",
			RPCURL:         "https://api.mainnet-beta.solana.com",
			Commitment:     "confirmed",
			MaxPaymentAge:  Duration{Duration: 5 * time.Minute},
			MaxRetries:     3,
			RetryBaseDelay: Duration{Duration: 100 * time.Millisecond},
			RequestTimeout: Duration{Duration: 10 * time.Second},
			StrictMint:     true,
		},
		Replay: ReplayConfig{
			Backend:       "memory",
			TTL:           Duration{Duration: 10 * time.Minute},
			SweepInterval: Duration{Duration: 1 * time.Minute},
			KeyPrefix:     "x402:payment:",
		},
		Webhook: WebhookConfig{
			QueueBackend:    "memory",
			ProcessInterval: Duration{Duration: 1 * time.Second},
			BatchSize:       10,
			Workers:         1,
			DeliveryLog: DeliveryLogConfig{
				MaxEntries: 1000,
			},
		},
		Resources: map[string]Resource{},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Limit:   120,
			Window:  Duration{Duration: 1 * time.Minute},
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled: true,
			SolanaRPC: BreakerServiceConfig{
				MaxRequests:         3,
				Interval:            Duration{Duration: 60 * time.Second},
				Timeout:             Duration{Duration: 30 * time.Second},
				ConsecutiveFailures: 5,
				FailureRatio:        0.5,
				MinRequests:         10,
			},
			Webhook: BreakerServiceConfig{
				MaxRequests:         5,
				Interval:            Duration{Duration: 60 * time.Second},
				Timeout:             Duration{Duration: 60 * time.Second},
				ConsecutiveFailures: 10,
				FailureRatio:        0.7,
				MinRequests:         20,
			},
		},
	}
}

// parseFile reads and unmarshals a YAML configuration file.
func (c *Config) parseFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}
