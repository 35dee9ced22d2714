package solana

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"github.com/meridianpay/x402/internal/circuitbreaker"
	"github.com/meridianpay/x402/internal/logger"
	"github.com/meridianpay/x402/internal/metrics"
	"github.com/meridianpay/x402/internal/retry"
	"github.com/meridianpay/x402/pkg/x402"
	"github.com/meridianpay/x402/pkg/x402/money"
	"github.com/meridianpay/x402/pkg/x402/replay"
)

// TransactionFetcher is the single RPC surface the verifier needs. *rpc.Client
// satisfies it; tests substitute a fake.
type TransactionFetcher interface {
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
}

// Config assembles a Verifier.
type Config struct {
	Fetcher TransactionFetcher
	Cache   replay.Cache
	Network money.Network

	Commitment       rpc.CommitmentType // default confirmed
	MaxPaymentAge    time.Duration      // default 5m
	StrictMint       bool
	AllowOverpayment bool

	RetryPolicy retry.Policy            // zero value means retry.DefaultPolicy
	Breaker     *circuitbreaker.Breaker // optional
	Metrics     *metrics.Metrics        // optional
	Logger      zerolog.Logger

	// Now is the clock used for payment age checks. Tests override it.
	Now func() time.Time
}

// Verifier runs the verification pipeline for Solana SPL payments: replay
// check, transaction fetch with retries, on-chain status and timing checks,
// transfer extraction and matching, and finally replay consumption.
type Verifier struct {
	fetcher TransactionFetcher
	cache   replay.Cache
	network money.Network

	commitment       rpc.CommitmentType
	maxPaymentAge    time.Duration
	strictMint       bool
	allowOverpayment bool

	retryPolicy retry.Policy
	breaker     *circuitbreaker.Breaker
	metrics     *metrics.Metrics
	log         zerolog.Logger
	now         func() time.Time
}

// NewVerifier creates a Verifier. Fetcher, Cache, and Network are required.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if cfg.Cache == nil {
		return nil, errors.New("replay cache is required")
	}
	if cfg.Network == "" {
		return nil, errors.New("network is required")
	}

	if cfg.Commitment == "" {
		cfg.Commitment = rpc.CommitmentConfirmed
	}
	if cfg.MaxPaymentAge <= 0 {
		cfg.MaxPaymentAge = 5 * time.Minute
	}
	if cfg.RetryPolicy.MaxRetries == 0 && cfg.RetryPolicy.BaseDelay == 0 {
		cfg.RetryPolicy = retry.DefaultPolicy()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Verifier{
		fetcher:          cfg.Fetcher,
		cache:            cfg.Cache,
		network:          cfg.Network,
		commitment:       cfg.Commitment,
		maxPaymentAge:    cfg.MaxPaymentAge,
		strictMint:       cfg.StrictMint,
		allowOverpayment: cfg.AllowOverpayment,
		retryPolicy:      cfg.RetryPolicy,
		breaker:          cfg.Breaker,
		metrics:          cfg.Metrics,
		log:              cfg.Logger,
		now:              cfg.Now,
	}, nil
}

// Expect is the low-level verification target.
type Expect struct {
	Recipient string  // destination token account
	AmountUSD float64 // required price
}

// VerifyTransaction verifies that the transaction identified by signature
// pays Expect.AmountUSD worth of USDC to Expect.Recipient.
func (v *Verifier) VerifyTransaction(ctx context.Context, signature string, expect Expect) x402.Verdict {
	atomic, err := money.USDToAtomic(expect.AmountUSD)
	if err != nil {
		return x402.Invalidf(x402.CodeVerificationError, "convert expected amount: %v", err)
	}
	return v.verify(ctx, signature, expect.Recipient, atomic, v.network.USDCMint())
}

// VerifyPayment implements x402.Verifier: it decodes an X-PAYMENT header,
// checks it against the requirement, and runs the verification pipeline.
func (v *Verifier) VerifyPayment(ctx context.Context, header string, req x402.PaymentRequirement) x402.Verdict {
	start := v.now()
	verdict := v.verifyPayment(ctx, header, req)
	v.observe(verdict, v.now().Sub(start))
	return verdict
}

func (v *Verifier) verifyPayment(ctx context.Context, header string, req x402.PaymentRequirement) x402.Verdict {
	payload, err := x402.DecodePayment(header)
	if err != nil {
		return x402.Invalidf(x402.CodeInvalidHeader, "decode header: %v", err)
	}

	network, err := money.ParseNetwork(payload.Network)
	if err != nil || network != v.network {
		return x402.Invalidf(x402.CodeInvalidHeader, "payment network %q does not match %q", payload.Network, v.network)
	}

	signature, err := x402.ExtractSignature(payload)
	if err != nil {
		return x402.Invalidf(x402.CodeInvalidHeader, "extract signature: %v", err)
	}

	required, err := strconv.ParseUint(req.MaxAmountRequired, 10, 64)
	if err != nil {
		return x402.Invalidf(x402.CodeVerificationError, "parse required amount %q: %v", req.MaxAmountRequired, err)
	}

	verdict := v.verify(ctx, signature, req.PayTo.Address, required, req.PayTo.Asset)
	return verdict
}

// BatchItem names one verification in a batch.
type BatchItem struct {
	Signature string
	Expect    Expect
}

// VerifyBatch fans out independent verifications concurrently. Results are
// returned in input order.
func (v *Verifier) VerifyBatch(ctx context.Context, items []BatchItem) []x402.Verdict {
	verdicts := make([]x402.Verdict, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item BatchItem) {
			defer wg.Done()
			verdicts[i] = v.VerifyTransaction(ctx, item.Signature, item.Expect)
		}(i, item)
	}
	wg.Wait()

	return verdicts
}

// verify is the state machine. States run in order; any state may
// short-circuit with an invalid verdict. The replay cache is written only
// after every other check passes.
func (v *Verifier) verify(ctx context.Context, signature, recipient string, requiredAtomic uint64, mint string) x402.Verdict {
	log := v.log.With().Str("signature", logger.TruncateSignature(signature)).Logger()

	if !money.IsValidSignature(signature) {
		return x402.Invalidf(x402.CodeInvalidHeader, "malformed signature")
	}
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return x402.Invalidf(x402.CodeInvalidHeader, "malformed signature: %v", err)
	}

	// CheckReplay. Read errors fail open: the consumption write below still
	// enforces single use.
	used, err := v.cache.IsUsed(ctx, signature)
	if err != nil {
		log.Warn().Err(err).Msg("replay.read_failed")
	} else if used {
		if v.metrics != nil {
			v.metrics.ObserveReplayHit()
		}
		return x402.Invalid(x402.CodeReplayAttack, "")
	}

	// FetchTx.
	res, verdict := v.fetchTransaction(ctx, sig, log)
	if verdict != nil {
		return *verdict
	}

	// CheckTxError.
	if res.Meta != nil && res.Meta.Err != nil {
		invalid := x402.Invalid(x402.CodeTxFailed, "")
		invalid.Debug = map[string]any{"onChainError": fmt.Sprintf("%v", res.Meta.Err)}
		return invalid
	}

	// CheckTiming.
	if res.BlockTime == nil {
		return x402.Invalidf(x402.CodeVerificationError, "transaction has no block time")
	}
	blockTime := res.BlockTime.Time()
	now := v.now()
	if age := now.Sub(blockTime); age > v.maxPaymentAge {
		invalid := x402.Invalid(x402.CodeExpired, "")
		invalid.Debug = map[string]any{
			"blockTime":     blockTime.Unix(),
			"now":           now.Unix(),
			"maxAgeSeconds": int64(v.maxPaymentAge.Seconds()),
		}
		return invalid
	}

	// ParseTransfers.
	transfers, err := ExtractTransfers(res)
	if err != nil {
		return x402.Invalidf(x402.CodeVerificationError, "extract transfers: %v", err)
	}

	// MatchTransfer.
	transfer, matchErr := MatchTransfer(transfers, MatchParams{
		Recipient:        recipient,
		RequiredAtomic:   requiredAtomic,
		Mint:             mint,
		StrictMint:       v.strictMint,
		AllowOverpayment: v.allowOverpayment,
	})
	if matchErr != nil {
		invalid := x402.Invalid(matchErr.Code, "")
		invalid.Signature = signature
		invalid.Debug = matchErr.Debug
		return invalid
	}

	// ConsumeReplay. First writer wins; a lost race is a replay. Other
	// write failures are logged and the payment accepted, favoring
	// availability over a double-spend window bounded by the cache TTL.
	err = v.cache.MarkUsed(ctx, signature, replay.Meta{
		Recipient:  recipient,
		Amount:     transfer.Amount,
		Payer:      transfer.Authority,
		ConsumedAt: now,
	})
	if errors.Is(err, replay.ErrAlreadyUsed) {
		if v.metrics != nil {
			v.metrics.ObserveReplayHit()
		}
		return x402.Invalid(x402.CodeReplayAttack, "")
	}
	if err != nil {
		log.Error().Err(err).Msg("replay.write_failed")
	}

	return x402.Verdict{
		Valid:     true,
		Signature: signature,
		Amount:    transfer.Amount,
		Payer:     transfer.Authority,
		Recipient: transfer.Destination,
		Mint:      transfer.Mint,
		Slot:      res.Slot,
		BlockTime: blockTime.Unix(),
	}
}

// fetchTransaction runs the RPC fetch under the retry engine and circuit
// breaker. Returns a verdict pointer when the pipeline must stop.
func (v *Verifier) fetchTransaction(ctx context.Context, sig solana.Signature, log zerolog.Logger) (*rpc.GetTransactionResult, *x402.Verdict) {
	maxVersion := uint64(0)
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     v.commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	}

	policy := v.retryPolicy
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Debug().Int("attempt", attempt).Err(err).Dur("delay", delay).Msg("rpc.retrying")
	}

	res, err := retry.Do(ctx, policy, func(ctx context.Context) (*rpc.GetTransactionResult, error) {
		start := v.now()
		out, err := v.execute(ctx, sig, opts)
		if v.metrics != nil {
			v.metrics.ObserveRPCCall("getTransaction", v.network.String(), v.now().Sub(start), err)
		}
		if errors.Is(err, rpc.ErrNotFound) || (err == nil && out == nil) {
			// Propagation lag is common right after submission. Name the
			// condition so the classifier retries it.
			return nil, fmt.Errorf("transaction not found: %w", rpc.ErrNotFound)
		}
		return out, err
	})

	if err != nil {
		if ctx.Err() != nil {
			verdict := x402.Invalidf(x402.CodeVerificationError, "verification canceled: %v", ctx.Err())
			return nil, &verdict
		}
		if errors.Is(err, rpc.ErrNotFound) {
			verdict := x402.Invalid(x402.CodeTxNotFound, "")
			return nil, &verdict
		}
		log.Error().Err(err).Msg("rpc.fetch_failed")
		verdict := x402.Invalidf(x402.CodeVerificationError, "fetch transaction: %v", err)
		return nil, &verdict
	}

	return res, nil
}

// execute issues one RPC call, through the circuit breaker when configured.
func (v *Verifier) execute(ctx context.Context, sig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	if v.breaker == nil {
		return v.fetcher.GetTransaction(ctx, sig, opts)
	}

	out, err := v.breaker.Execute(func() (interface{}, error) {
		return v.fetcher.GetTransaction(ctx, sig, opts)
	})
	if err != nil {
		return nil, err
	}
	res, _ := out.(*rpc.GetTransactionResult)
	return res, nil
}

func (v *Verifier) observe(verdict x402.Verdict, dur time.Duration) {
	if v.metrics == nil {
		return
	}
	code := "valid"
	if !verdict.Valid {
		code = string(verdict.Code)
	}
	v.metrics.ObserveVerification(code, v.network.String(), dur)
}
