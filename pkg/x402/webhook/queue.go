package webhook

import (
	"context"
	"errors"
	"time"
)

// ErrQueueNotFound is returned by Remove and Retry for unknown delivery IDs.
var ErrQueueNotFound = errors.New("webhook: delivery not found in queue")

// Queue holds deliveries awaiting their next attempt.
//
// Dequeue returns only ready items, those whose NextAttemptAt is not in the
// future, in ascending NextAttemptAt order, and removes them from the
// queue. A dequeued item the manager fails to deliver is put back through
// Retry, which reschedules it per the subscription's policy.
type Queue interface {
	Enqueue(ctx context.Context, d Delivery) error
	Dequeue(ctx context.Context, limit int) ([]Delivery, error)
	Retry(ctx context.Context, d Delivery, deliveryErr string) error
	Remove(ctx context.Context, id string) error
	Size(ctx context.Context) (int, error)
	Close() error
}

// reschedule applies the subscription's retry policy to a failed delivery:
// bump the attempt count, record the error, and push NextAttemptAt out by
// the policy delay.
func reschedule(d *Delivery, deliveryErr string, now time.Time) {
	d.AttemptsMade++
	d.LastError = deliveryErr

	var delay time.Duration
	if d.Subscription.Retry != nil {
		delay = d.Subscription.Retry.NextDelay(d.AttemptsMade - 1)
	}
	d.NextAttemptAt = now.Add(delay)
}
