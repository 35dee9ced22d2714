package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisScheduleKey = "x402:webhooks:schedule" // sorted set: id -> next attempt millis
	redisPayloadKey  = "x402:webhooks:payloads" // hash: id -> delivery json
)

// RedisQueue is a delivery queue shared across server instances: a sorted
// set scored by next-attempt time plus a hash of serialized deliveries.
type RedisQueue struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisQueue creates a Redis-backed queue, verifying the connection
// with a ping.
func NewRedisQueue(ctx context.Context, redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisQueue{client: client, now: time.Now}, nil
}

// Enqueue adds a delivery scored by its next-attempt time.
func (q *RedisQueue) Enqueue(ctx context.Context, d Delivery) error {
	if d.ID == "" {
		d.ID = NewDeliveryID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = q.now()
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, redisPayloadKey, d.ID, payload)
	pipe.ZAdd(ctx, redisScheduleKey, redis.Z{
		Score:  float64(d.NextAttemptAt.UnixMilli()),
		Member: d.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue delivery: %w", err)
	}
	return nil
}

// Dequeue claims up to limit ready deliveries. Claimed IDs are removed from
// the schedule atomically with the read, so concurrent instances do not
// double-claim.
func (q *RedisQueue) Dequeue(ctx context.Context, limit int) ([]Delivery, error) {
	if limit <= 0 {
		return nil, nil
	}

	ids, err := q.client.ZRangeByScore(ctx, redisScheduleKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", q.now().UnixMilli()),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("range schedule: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var deliveries []Delivery
	for _, id := range ids {
		// Claim: only the instance that removes the schedule entry owns
		// the delivery.
		removed, err := q.client.ZRem(ctx, redisScheduleKey, id).Result()
		if err != nil {
			return deliveries, fmt.Errorf("claim delivery: %w", err)
		}
		if removed == 0 {
			continue
		}

		payload, err := q.client.HGet(ctx, redisPayloadKey, id).Bytes()
		if err != nil {
			continue
		}
		q.client.HDel(ctx, redisPayloadKey, id)

		var d Delivery
		if err := json.Unmarshal(payload, &d); err != nil {
			continue
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, nil
}

// Retry reschedules a failed delivery per its subscription policy.
func (q *RedisQueue) Retry(ctx context.Context, d Delivery, deliveryErr string) error {
	reschedule(&d, deliveryErr, q.now())
	return q.Enqueue(ctx, d)
}

// Remove drops a delivery by ID.
func (q *RedisQueue) Remove(ctx context.Context, id string) error {
	removed, err := q.client.ZRem(ctx, redisScheduleKey, id).Result()
	if err != nil {
		return fmt.Errorf("remove from schedule: %w", err)
	}
	q.client.HDel(ctx, redisPayloadKey, id)
	if removed == 0 {
		return ErrQueueNotFound
	}
	return nil
}

// Size returns the number of scheduled deliveries.
func (q *RedisQueue) Size(ctx context.Context) (int, error) {
	n, err := q.client.ZCard(ctx, redisScheduleKey).Result()
	if err != nil {
		return 0, fmt.Errorf("schedule size: %w", err)
	}
	return int(n), nil
}

// Close releases the underlying connection pool.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
