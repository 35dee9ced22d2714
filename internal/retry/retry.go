package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// ErrAttemptTimeout marks a single attempt that exceeded its per-attempt
// deadline while the caller's overall budget was still open. The default
// classifier treats it as transient.
var ErrAttemptTimeout = errors.New("retry: attempt timed out")

// Policy defines retry behavior for fallible operations.
type Policy struct {
	MaxRetries  int           // retries after the first attempt
	BaseDelay   time.Duration // delay before the first retry
	MaxDelay    time.Duration // cap applied to every computed delay
	Multiplier  float64       // exponential growth factor
	JitterRatio float64       // uniform jitter as a fraction of BaseDelay

	// IsRetryable decides whether an error is worth retrying.
	// Nil means Transient.
	IsRetryable func(error) bool

	// OnRetry is invoked before each sleep, if set.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy returns the retry settings used for blockchain RPC calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:  3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
		JitterRatio: 0.1,
	}
}

// Do runs the operation, retrying transient failures with exponential backoff.
// The operation sees the caller's context; cancellation stops the loop
// immediately and is never retried.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	var result T
	var err error

	classify := p.IsRetryable
	if classify == nil {
		classify = Transient
	}

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		result, err = op(ctx)
		if err == nil {
			return result, nil
		}

		if ctx.Err() != nil {
			return result, err
		}

		if !classify(err) {
			return result, err
		}

		if attempt == p.MaxRetries {
			break
		}

		delay := p.delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		case <-timer.C:
		}
	}

	return result, err
}

// DoWithTimeout runs the operation under a per-attempt deadline on top of the
// caller's overall budget. An attempt that hits its own deadline while the
// outer context is still live is classified transient and retried.
func DoWithTimeout[T any](ctx context.Context, p Policy, perAttempt time.Duration, op func(context.Context) (T, error)) (T, error) {
	return Do(ctx, p, func(ctx context.Context) (T, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, perAttempt)
		defer cancel()

		result, err := op(attemptCtx)
		if err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = fmt.Errorf("%w: %v", ErrAttemptTimeout, err)
		}
		return result, err
	})
}

// delay computes the backoff for the given zero-based attempt number:
// min(MaxDelay, BaseDelay * Multiplier^attempt) plus uniform jitter in
// [-JitterRatio, +JitterRatio] * BaseDelay.
func (p Policy) delay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2.0
	}

	d := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= mult
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			d = float64(p.MaxDelay)
			break
		}
	}

	if p.JitterRatio > 0 {
		jitter := (rand.Float64()*2 - 1) * p.JitterRatio * float64(p.BaseDelay)
		d += jitter
	}

	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if d < 0 {
		d = 0
	}

	return time.Duration(d)
}

// Transient reports whether an error looks like a temporary network, rate
// limit, server, or RPC propagation failure worth retrying.
func Transient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrAttemptTimeout) {
		return true
	}

	msg := strings.ToLower(err.Error())

	// Network errors
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "temporary failure") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "network") {
		return true
	}

	// Rate limiting
	if strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "throttle") {
		return true
	}

	// Server errors (5xx)
	if strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "504") ||
		strings.Contains(msg, "internal server error") ||
		strings.Contains(msg, "bad gateway") ||
		strings.Contains(msg, "service unavailable") ||
		strings.Contains(msg, "gateway timeout") {
		return true
	}

	// RPC-transient conditions: the node has not caught up or the
	// transaction has not propagated yet. The caller's outer deadline caps
	// how long a genuinely missing transaction can keep us polling.
	if strings.Contains(msg, "node is behind") ||
		strings.Contains(msg, "transaction not found") ||
		strings.Contains(msg, "blockhash not found") {
		return true
	}

	return false
}
