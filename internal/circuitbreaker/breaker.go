package circuitbreaker

import (
	"time"

	"github.com/sony/gobreaker"
)

// Config configures a single circuit breaker.
type Config struct {
	// Enabled toggles the breaker; when false Execute passes through.
	Enabled bool

	// MaxRequests is the number of requests allowed through while half-open.
	MaxRequests uint32

	// Interval is the cyclic period in closed state after which the
	// internal counts reset. Zero means never.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration

	// Trip conditions: either ConsecutiveFailures in a row, or FailureRatio
	// over at least MinRequests observed requests.
	ConsecutiveFailures uint32
	FailureRatio        float64
	MinRequests         uint32
}

// Breaker wraps an external dependency with circuit breaker protection so a
// failing upstream cannot pin every request on a slow error path.
type Breaker struct {
	enabled bool
	cb      *gobreaker.CircuitBreaker
}

// New creates a breaker with the given settings. A disabled breaker is valid
// and executes everything directly.
func New(name string, cfg Config) *Breaker {
	b := &Breaker{enabled: cfg.Enabled}
	if !cfg.Enabled {
		return b
	}

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}
			if cfg.FailureRatio > 0 && cfg.MinRequests > 0 && counts.Requests >= cfg.MinRequests {
				rate := float64(counts.TotalFailures) / float64(counts.Requests)
				return rate >= cfg.FailureRatio
			}
			return false
		},
	})
	return b
}

// Execute runs fn under the breaker. When the breaker is disabled the call
// goes straight through.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	if !b.enabled || b.cb == nil {
		return fn()
	}
	return b.cb.Execute(fn)
}

// State returns the breaker state as a string, or "disabled".
func (b *Breaker) State() string {
	if !b.enabled || b.cb == nil {
		return "disabled"
	}
	return b.cb.State().String()
}

// IsOpen reports whether the breaker is currently rejecting requests.
func (b *Breaker) IsOpen() bool {
	if !b.enabled || b.cb == nil {
		return false
	}
	return b.cb.State() == gobreaker.StateOpen
}
