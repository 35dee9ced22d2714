// Package webhook delivers payment event notifications to subscriber
// endpoints: HMAC signing, single-shot sending, retry queueing across
// memory, Redis, and Postgres backings, and a delivery history log.
package webhook

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Event names a notification type.
type Event string

const (
	EventPaymentConfirmed Event = "payment.confirmed"
	EventPaymentFailed    Event = "payment.failed"
)

// Payload is the JSON body delivered to subscribers.
type Payload struct {
	Event     Event             `json:"event"`
	Timestamp int64             `json:"timestamp"` // unix millis at emission
	Payment   PaymentInfo       `json:"payment"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// PaymentInfo describes the verified payment the event refers to.
type PaymentInfo struct {
	Signature     string  `json:"signature"`
	AmountAtomic  uint64  `json:"amountSmallest"`
	AmountUSD     float64 `json:"amountUSD"`
	Payer         string  `json:"payer"`
	Recipient     string  `json:"recipient"`
	Resource      string  `json:"resource,omitempty"`
	BlockTime     int64   `json:"blockTime,omitempty"`
	Slot          uint64  `json:"slot,omitempty"`
	FailureReason string  `json:"failureReason,omitempty"`
}

// Backoff strategies for retry scheduling.
const (
	BackoffExponential = "exponential"
	BackoffLinear      = "linear"
)

// RetryPolicy controls redelivery after failed attempts.
type RetryPolicy struct {
	MaxAttempts  int           // total attempts including the first
	InitialDelay time.Duration // delay before the first retry
	MaxDelay     time.Duration // cap on any computed delay
	Backoff      string        // BackoffExponential or BackoffLinear
}

// NextDelay computes the wait before the next attempt given how many
// attempts have been made. Exponential: min(maxDelay, initial * 2^attempts).
// Linear: min(maxDelay, initial * (attempts+1)).
func (p RetryPolicy) NextDelay(attemptsMade int) time.Duration {
	if attemptsMade < 0 {
		attemptsMade = 0
	}

	var d time.Duration
	switch p.Backoff {
	case BackoffLinear:
		d = p.InitialDelay * time.Duration(attemptsMade+1)
	default:
		d = p.InitialDelay << uint(attemptsMade)
		if d <= 0 { // shift overflow
			d = p.MaxDelay
		}
	}

	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Subscription is one webhook endpoint and its delivery settings.
type Subscription struct {
	URL     string            `json:"url"`
	Secret  string            `json:"secret"`
	Events  []Event           `json:"events,omitempty"` // empty means all
	Headers map[string]string `json:"headers,omitempty"`
	Timeout time.Duration     `json:"timeout"`
	Retry   *RetryPolicy      `json:"retry,omitempty"` // nil means no retries
}

// Accepts reports whether the subscription wants the event.
func (s *Subscription) Accepts(event Event) bool {
	if len(s.Events) == 0 {
		return true
	}
	for _, e := range s.Events {
		if e == event {
			return true
		}
	}
	return false
}

// Delivery is a queued webhook awaiting (re)delivery.
type Delivery struct {
	ID            string       `json:"id"`
	Subscription  Subscription `json:"subscription"`
	Payload       Payload      `json:"payload"`
	AttemptsMade  int          `json:"attemptsMade"`
	NextAttemptAt time.Time    `json:"nextAttemptAt"`
	CreatedAt     time.Time    `json:"createdAt"`
	LastError     string       `json:"lastError,omitempty"`
}

// DeliveryResult records the outcome of a single delivery attempt.
type DeliveryResult struct {
	Success      bool          `json:"success"`
	StatusCode   int           `json:"statusCode,omitempty"`
	Err          string        `json:"error,omitempty"`
	ResponseTime time.Duration `json:"responseTime"`
	Attempts     int           `json:"attempts"`
	URL          string        `json:"url"`
	Event        Event         `json:"event"`
	DeliveredAt  time.Time     `json:"deliveredAt"`
}

// NewDeliveryID generates a unique queue item identifier.
func NewDeliveryID() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		return "wh_" + time.Now().UTC().Format("20060102150405.000000000")
	}
	return "wh_" + hex.EncodeToString(buf)
}
