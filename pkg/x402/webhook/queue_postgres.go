package webhook

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const postgresQueueSchema = `
CREATE TABLE IF NOT EXISTS webhook_queue (
	id              TEXT PRIMARY KEY,
	delivery        JSONB NOT NULL,
	next_attempt_at TIMESTAMPTZ NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS webhook_queue_next_attempt_idx ON webhook_queue (next_attempt_at);
`

// PostgresQueue is a durable delivery queue. Deliveries survive restarts,
// and FOR UPDATE SKIP LOCKED lets multiple instances drain the same table
// without double-claiming.
type PostgresQueue struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresQueue opens the database, verifies connectivity, and ensures
// the queue table exists.
func NewPostgresQueue(ctx context.Context, postgresURL string) (*PostgresQueue, error) {
	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, postgresQueueSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure webhook_queue schema: %w", err)
	}
	return &PostgresQueue{db: db, now: time.Now}, nil
}

// Enqueue inserts a delivery.
func (q *PostgresQueue) Enqueue(ctx context.Context, d Delivery) error {
	if d.ID == "" {
		d.ID = NewDeliveryID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = q.now().UTC()
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO webhook_queue (id, delivery, next_attempt_at, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET delivery = $2, next_attempt_at = $3
	`, d.ID, payload, d.NextAttemptAt.UTC(), d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// Dequeue claims up to limit ready deliveries, removing them from the
// table. Failed deliveries are re-inserted through Retry.
func (q *PostgresQueue) Dequeue(ctx context.Context, limit int) ([]Delivery, error) {
	if limit <= 0 {
		return nil, nil
	}

	rows, err := q.db.QueryContext(ctx, `
		DELETE FROM webhook_queue
		WHERE id IN (
			SELECT id FROM webhook_queue
			WHERE next_attempt_at <= $1
			ORDER BY next_attempt_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING delivery
	`, q.now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("claim deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []Delivery
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return deliveries, fmt.Errorf("scan delivery: %w", err)
		}
		var d Delivery
		if err := json.Unmarshal(payload, &d); err != nil {
			return deliveries, fmt.Errorf("unmarshal delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// Retry reschedules a failed delivery per its subscription policy.
func (q *PostgresQueue) Retry(ctx context.Context, d Delivery, deliveryErr string) error {
	reschedule(&d, deliveryErr, q.now())
	return q.Enqueue(ctx, d)
}

// Remove drops a delivery by ID.
func (q *PostgresQueue) Remove(ctx context.Context, id string) error {
	result, err := q.db.ExecContext(ctx, `DELETE FROM webhook_queue WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete delivery: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if affected == 0 {
		return ErrQueueNotFound
	}
	return nil
}

// Size returns the number of queued deliveries.
func (q *PostgresQueue) Size(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhook_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count deliveries: %w", err)
	}
	return n, nil
}

// Close closes the database handle.
func (q *PostgresQueue) Close() error {
	return q.db.Close()
}
