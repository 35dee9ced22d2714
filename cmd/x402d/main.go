// Command x402d serves HTTP resources behind x402 payment challenges:
// unpaid requests receive a 402 with Solana USDC payment requirements,
// paid requests are verified on-chain and passed through to the resource.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/meridianpay/x402/internal/circuitbreaker"
	"github.com/meridianpay/x402/internal/config"
	"github.com/meridianpay/x402/internal/logger"
	"github.com/meridianpay/x402/internal/metrics"
	"github.com/meridianpay/x402/internal/retry"
	"github.com/meridianpay/x402/pkg/x402"
	"github.com/meridianpay/x402/pkg/x402/money"
	"github.com/meridianpay/x402/pkg/x402/replay"
	solanaverify "github.com/meridianpay/x402/pkg/x402/solana"
	"github.com/meridianpay/x402/pkg/x402/webhook"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("X402_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "x402d",
		Version:     version,
		Environment: cfg.Logging.Environment,
	})

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	network, err := money.ParseNetwork(cfg.Solana.Network)
	if err != nil {
		return fmt.Errorf("solana network: %w", err)
	}

	cache, err := newReplayCache(ctx, cfg.Replay)
	if err != nil {
		return fmt.Errorf("replay cache: %w", err)
	}
	defer cache.Close()

	var fetcher solanaverify.TransactionFetcher = rpc.New(cfg.Solana.RPCURL)
	if cfg.Solana.RequestTimeout.Duration > 0 {
		fetcher = timeoutFetcher{inner: fetcher, timeout: cfg.Solana.RequestTimeout.Duration}
	}
	breaker := circuitbreaker.New("solana-rpc", circuitbreaker.Config{
		Enabled:             cfg.CircuitBreaker.Enabled,
		MaxRequests:         cfg.CircuitBreaker.SolanaRPC.MaxRequests,
		Interval:            cfg.CircuitBreaker.SolanaRPC.Interval.Duration,
		Timeout:             cfg.CircuitBreaker.SolanaRPC.Timeout.Duration,
		ConsecutiveFailures: cfg.CircuitBreaker.SolanaRPC.ConsecutiveFailures,
		FailureRatio:        cfg.CircuitBreaker.SolanaRPC.FailureRatio,
		MinRequests:         cfg.CircuitBreaker.SolanaRPC.MinRequests,
	})

	retryPolicy := retry.DefaultPolicy()
	retryPolicy.MaxRetries = cfg.Solana.MaxRetries
	retryPolicy.BaseDelay = cfg.Solana.RetryBaseDelay.Duration

	verifier, err := solanaverify.NewVerifier(solanaverify.Config{
		Fetcher:       fetcher,
		Cache:         cache,
		Network:       network,
		Commitment:    rpc.CommitmentType(cfg.Solana.Commitment),
		MaxPaymentAge: cfg.Solana.MaxPaymentAge.Duration,
		StrictMint:    cfg.Solana.StrictMint,
		RetryPolicy:   retryPolicy,
		Breaker:       breaker,
		Metrics:       m,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("verifier: %w", err)
	}

	generator, err := x402.NewRequirementsGenerator(cfg.Solana.RecipientWallet, network)
	if err != nil {
		return fmt.Errorf("requirements: %w", err)
	}
	log.Info().
		Str("network", string(network)).
		Str("wallet", logger.TruncateSignature(cfg.Solana.RecipientWallet)).
		Str("token_account", logger.TruncateSignature(generator.TokenAccount())).
		Msg("payment recipient configured")

	queue, err := newWebhookQueue(ctx, cfg.Webhook)
	if err != nil {
		return fmt.Errorf("webhook queue: %w", err)
	}

	deliveryLog := webhook.NewDeliveryLog(cfg.Webhook.DeliveryLog.MaxEntries)
	var recorder webhook.Recorder = deliveryLog
	var fileLog *webhook.FileDeliveryLog
	if cfg.Webhook.DeliveryLog.FilePath != "" {
		fileLog = webhook.NewFileDeliveryLog(cfg.Webhook.DeliveryLog.FilePath, 5*time.Second)
		recorder = teeRecorder{deliveryLog, fileLog}
	}

	manager := webhook.NewManager(webhook.ManagerConfig{
		Queue:           queue,
		Recorder:        recorder,
		ProcessInterval: cfg.Webhook.ProcessInterval.Duration,
		BatchSize:       cfg.Webhook.BatchSize,
		Workers:         cfg.Webhook.Workers,
		Metrics:         m,
		Logger:          log,
	})
	manager.Start(ctx)
	subscriptions := buildSubscriptions(cfg.Webhook.Subscriptions)

	router := newRouter(cfg, log, registry, breaker, deliveryLog)
	mountResources(router, cfg, verifier, generator, manager, subscriptions, log)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	if err := manager.Close(); err != nil {
		log.Error().Err(err).Msg("webhook manager shutdown")
	}
	if fileLog != nil {
		if err := fileLog.Close(); err != nil {
			log.Error().Err(err).Msg("delivery log shutdown")
		}
	}
	return nil
}

// newReplayCache builds the configured replay-prevention backend.
func newReplayCache(ctx context.Context, cfg config.ReplayConfig) (replay.Cache, error) {
	switch cfg.Backend {
	case "redis":
		return replay.NewRedisCache(ctx, cfg.RedisURL, cfg.KeyPrefix, cfg.TTL.Duration)
	default:
		return replay.NewMemoryCache(cfg.TTL.Duration, cfg.SweepInterval.Duration), nil
	}
}

// newWebhookQueue builds the configured delivery queue backend.
func newWebhookQueue(ctx context.Context, cfg config.WebhookConfig) (webhook.Queue, error) {
	switch cfg.QueueBackend {
	case "redis":
		return webhook.NewRedisQueue(ctx, cfg.RedisURL)
	case "postgres":
		return webhook.NewPostgresQueue(ctx, cfg.PostgresURL)
	default:
		return webhook.NewMemoryQueue(), nil
	}
}

// buildSubscriptions converts config subscriptions to delivery targets.
func buildSubscriptions(configs []config.SubscriptionConfig) []webhook.Subscription {
	subs := make([]webhook.Subscription, 0, len(configs))
	for _, sc := range configs {
		sub := webhook.Subscription{
			URL:     sc.URL,
			Secret:  sc.Secret,
			Headers: sc.Headers,
			Timeout: sc.Timeout.Duration,
		}
		for _, e := range sc.Events {
			sub.Events = append(sub.Events, webhook.Event(e))
		}
		if sc.Retry.Enabled {
			sub.Retry = &webhook.RetryPolicy{
				MaxAttempts:  sc.Retry.MaxAttempts,
				InitialDelay: sc.Retry.InitialDelay.Duration,
				MaxDelay:     sc.Retry.MaxDelay.Duration,
				Backoff:      sc.Retry.Backoff,
			}
		}
		subs = append(subs, sub)
	}
	return subs
}

// newRouter assembles the middleware chain and operational endpoints.
func newRouter(cfg *config.Config, log zerolog.Logger, registry *prometheus.Registry, breaker *circuitbreaker.Breaker, deliveryLog *webhook.DeliveryLog) *chi.Mux {
	router := chi.NewRouter()
	router.Use(logger.Middleware(log))

	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.Server.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", x402.HeaderPayment},
			ExposedHeaders: []string{x402.HeaderPaymentResponse},
			MaxAge:         300,
		}))
	}
	if cfg.RateLimit.Enabled {
		router.Use(httprate.LimitByIP(cfg.RateLimit.Limit, cfg.RateLimit.Window.Duration))
	}

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"version":    version,
			"rpcBreaker": breaker.State(),
		})
	})

	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	router.Get("/webhooks/deliveries", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deliveryLog.Recent(100))
	})

	return router
}

// mountResources registers one paid endpoint per configured resource.
func mountResources(router *chi.Mux, cfg *config.Config, verifier x402.Verifier, generator *x402.RequirementsGenerator, manager *webhook.Manager, subs []webhook.Subscription, log zerolog.Logger) {
	for path, res := range cfg.Resources {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		protect := x402.Protect(x402.ProtectConfig{
			Verifier:    verifier,
			Generator:   generator,
			PriceUSD:    res.PriceUSD,
			Resource:    path,
			Description: res.Description,
			Timeout:     res.Timeout,
			OnPaid: func(v x402.Verdict) {
				manager.Broadcast(subs, paymentPayload(v, path))
			},
		})
		router.With(protect).Get(path, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"resource":    path,
				"description": res.Description,
			})
		})
		log.Info().Str("path", path).Float64("price_usd", res.PriceUSD).Msg("resource mounted")
	}
}

// paymentPayload converts a successful verdict into webhook form.
func paymentPayload(v x402.Verdict, resource string) webhook.Payload {
	return webhook.Payload{
		Event:     webhook.EventPaymentConfirmed,
		Timestamp: time.Now().UnixMilli(),
		Payment: webhook.PaymentInfo{
			Signature:    v.Signature,
			AmountAtomic: v.Amount,
			AmountUSD:    money.AtomicToUSD(v.Amount),
			Payer:        v.Payer,
			Recipient:    v.Recipient,
			Resource:     resource,
			BlockTime:    v.BlockTime,
			Slot:         v.Slot,
		},
	}
}

// timeoutFetcher bounds each RPC call so a stalled endpoint cannot hold a
// verification past the configured request timeout.
type timeoutFetcher struct {
	inner   solanaverify.TransactionFetcher
	timeout time.Duration
}

func (f timeoutFetcher) GetTransaction(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return f.inner.GetTransaction(ctx, sig, opts)
}

// teeRecorder fans delivery outcomes out to multiple recorders.
type teeRecorder []webhook.Recorder

func (t teeRecorder) Log(entry webhook.LogEntry) {
	for _, r := range t {
		r.Log(entry)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
