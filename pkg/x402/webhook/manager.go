package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianpay/x402/internal/metrics"
)

// errNotSubscribed is recorded when a payload's event is filtered out by
// the subscription's event list.
const errNotSubscribed = "not_subscribed"

// ManagerConfig assembles a Manager.
type ManagerConfig struct {
	Sender   *Sender
	Queue    Queue
	Recorder Recorder // delivery history, may be nil

	ProcessInterval time.Duration // queue poll cadence, default 1s
	BatchSize       int           // deliveries claimed per poll, default 10
	Workers         int           // concurrent deliveries per batch, default 1

	Metrics *metrics.Metrics
	Logger  zerolog.Logger
}

// Manager coordinates webhook delivery: immediate sends, retry queueing,
// and the background loop that drains scheduled redeliveries.
type Manager struct {
	sender   *Sender
	queue    Queue
	recorder Recorder

	interval  time.Duration
	batchSize int
	workers   int

	metrics *metrics.Metrics
	log     zerolog.Logger

	stop chan struct{}
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewManager creates a Manager. Queue is required; Sender defaults to a
// five second timeout sender.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Sender == nil {
		cfg.Sender = NewSender(5 * time.Second)
	}
	if cfg.ProcessInterval <= 0 {
		cfg.ProcessInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	return &Manager{
		sender:    cfg.Sender,
		queue:     cfg.Queue,
		recorder:  cfg.Recorder,
		interval:  cfg.ProcessInterval,
		batchSize: cfg.BatchSize,
		workers:   cfg.Workers,
		metrics:   cfg.Metrics,
		log:       cfg.Logger,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the background queue loop.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.ProcessQueue(ctx)
			}
		}
	}()
}

// Close stops the loop, waits for in-flight deliveries, and closes the
// queue.
func (m *Manager) Close() error {
	m.once.Do(func() { close(m.stop) })
	select {
	case <-m.done:
	case <-time.After(10 * time.Second):
	}
	m.wg.Wait()
	return m.queue.Close()
}

// Send performs one delivery attempt with no retries. Payloads whose event
// the subscription filters out are logged as failed with a not_subscribed
// error and not sent.
func (m *Manager) Send(ctx context.Context, sub Subscription, payload Payload) DeliveryResult {
	if !sub.Accepts(payload.Event) {
		result := DeliveryResult{
			URL:         sub.URL,
			Event:       payload.Event,
			Err:         errNotSubscribed,
			DeliveredAt: time.Now(),
		}
		m.record(NewDeliveryID(), payload, result, 1)
		return result
	}

	result := m.sender.Send(ctx, sub, payload)
	m.record(NewDeliveryID(), payload, result, 1)
	m.observe(result)
	return result
}

// SendWithRetry attempts delivery once, and on failure enqueues the payload
// for redelivery when the subscription has a retry policy. Returns the
// first-attempt result.
func (m *Manager) SendWithRetry(ctx context.Context, sub Subscription, payload Payload) DeliveryResult {
	if !sub.Accepts(payload.Event) {
		result := DeliveryResult{
			URL:         sub.URL,
			Event:       payload.Event,
			Err:         errNotSubscribed,
			DeliveredAt: time.Now(),
		}
		m.record(NewDeliveryID(), payload, result, 1)
		return result
	}

	id := NewDeliveryID()
	result := m.sender.Send(ctx, sub, payload)
	m.record(id, payload, result, 1)
	m.observe(result)

	if !result.Success && sub.Retry != nil && sub.Retry.MaxAttempts > 1 {
		delivery := Delivery{
			ID:            id,
			Subscription:  sub,
			Payload:       payload,
			AttemptsMade:  1,
			NextAttemptAt: time.Now().Add(sub.Retry.NextDelay(0)),
			LastError:     result.Err,
			CreatedAt:     time.Now(),
		}

		if err := m.queue.Enqueue(ctx, delivery); err != nil {
			m.log.Error().Err(err).Str("url", sub.URL).Msg("webhook.enqueue_failed")
		} else {
			m.updateQueueGauge(ctx)
		}
	}

	return result
}

// SendAsync fires SendWithRetry on its own goroutine.
func (m *Manager) SendAsync(sub Subscription, payload Payload) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.SendWithRetry(context.Background(), sub, payload)
	}()
}

// Broadcast sends the payload to every subscription via SendAsync.
func (m *Manager) Broadcast(subs []Subscription, payload Payload) {
	for _, sub := range subs {
		m.SendAsync(sub, payload)
	}
}

// ProcessQueue drains ready deliveries: claim a batch, deliver with bounded
// concurrency, log each outcome, and either drop (success or exhausted
// attempts) or reschedule.
func (m *Manager) ProcessQueue(ctx context.Context) {
	deliveries, err := m.queue.Dequeue(ctx, m.batchSize)
	if err != nil {
		m.log.Error().Err(err).Msg("webhook.dequeue_failed")
		return
	}
	if len(deliveries) == 0 {
		m.updateQueueGauge(ctx)
		return
	}

	sem := make(chan struct{}, m.workers)
	var wg sync.WaitGroup
	for _, d := range deliveries {
		wg.Add(1)
		sem <- struct{}{}
		go func(d Delivery) {
			defer wg.Done()
			defer func() { <-sem }()
			m.process(ctx, d)
		}(d)
	}
	wg.Wait()
	m.updateQueueGauge(ctx)
}

// process handles one claimed delivery.
func (m *Manager) process(ctx context.Context, d Delivery) {
	attempt := d.AttemptsMade + 1
	result := m.sender.Send(ctx, d.Subscription, d.Payload)
	result.Attempts = attempt
	m.record(d.ID, d.Payload, result, attempt)
	m.observe(result)

	if result.Success {
		return
	}

	terminal := d.Subscription.Retry == nil || attempt >= d.Subscription.Retry.MaxAttempts
	if terminal {
		m.log.Warn().
			Str("id", d.ID).
			Str("url", d.Subscription.URL).
			Int("attempts", attempt).
			Str("error", result.Err).
			Msg("webhook.exhausted")
		return
	}

	if err := m.queue.Retry(ctx, d, result.Err); err != nil {
		m.log.Error().Err(err).Str("id", d.ID).Msg("webhook.reschedule_failed")
	}
}

func (m *Manager) record(id string, payload Payload, result DeliveryResult, attempt int) {
	if m.recorder == nil {
		return
	}
	m.recorder.Log(LogEntry{
		ID:           id,
		URL:          result.URL,
		Event:        result.Event,
		Payload:      payload,
		Success:      result.Success,
		StatusCode:   result.StatusCode,
		Err:          result.Err,
		ResponseTime: result.ResponseTime,
		Attempt:      attempt,
		Timestamp:    result.DeliveredAt,
	})
}

func (m *Manager) observe(result DeliveryResult) {
	if m.metrics == nil {
		return
	}
	status := "failure"
	if result.Success {
		status = "success"
	}
	m.metrics.ObserveWebhook(string(result.Event), status, result.ResponseTime)
}

func (m *Manager) updateQueueGauge(ctx context.Context) {
	if m.metrics == nil {
		return
	}
	if n, err := m.queue.Size(ctx); err == nil {
		m.metrics.SetWebhookQueueSize(n)
	}
}
