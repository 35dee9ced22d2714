package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestManager(t *testing.T) (*Manager, *DeliveryLog) {
	t.Helper()
	log := NewDeliveryLog(100)
	m := NewManager(ManagerConfig{
		Sender:   NewSender(2 * time.Second),
		Queue:    NewMemoryQueue(),
		Recorder: log,
		Logger:   zerolog.Nop(),
	})
	t.Cleanup(func() { m.Close() })
	return m, log
}

func subscriptionFor(url string, retry *RetryPolicy) Subscription {
	return Subscription{
		URL:     url,
		Secret:  "test-secret",
		Timeout: 2 * time.Second,
		Retry:   retry,
	}
}

func confirmedPayload() Payload {
	return Payload{
		Event:     EventPaymentConfirmed,
		Timestamp: time.Now().UnixMilli(),
		Payment: PaymentInfo{
			Signature:    "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW",
			AmountAtomic: 1_500_000,
			AmountUSD:    1.5,
			Payer:        "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM",
		},
	}
}

func TestManagerSendSuccess(t *testing.T) {
	var gotSig, gotUA string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(HeaderSignature)
		gotUA = r.Header.Get("User-Agent")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m, log := newTestManager(t)
	result := m.Send(context.Background(), subscriptionFor(srv.URL, nil), confirmedPayload())

	if !result.Success {
		t.Fatalf("Send failed: %+v", result)
	}
	if result.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d", result.StatusCode)
	}
	if gotUA != "x402-solana-webhook/1.0" {
		t.Fatalf("User-Agent = %q", gotUA)
	}
	if !Verify("test-secret", gotBody, gotSig) {
		t.Fatal("delivered body does not verify against signature header")
	}

	entries := log.Recent(0)
	if len(entries) != 1 || !entries[0].Success {
		t.Fatalf("log entries = %+v, want one success", entries)
	}
	if entries[0].Payload.Payment.Signature != confirmedPayload().Payment.Signature {
		t.Fatalf("log entry payload = %+v, want the delivered payment", entries[0].Payload)
	}
}

func TestManagerSendFiltersUnsubscribedEvents(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	sub := subscriptionFor(srv.URL, nil)
	sub.Events = []Event{EventPaymentFailed}

	m, log := newTestManager(t)
	result := m.Send(context.Background(), sub, confirmedPayload())

	if result.Success {
		t.Fatal("filtered event reported success")
	}
	if result.Err != "not_subscribed" {
		t.Fatalf("Err = %q, want not_subscribed", result.Err)
	}
	if calls.Load() != 0 {
		t.Fatal("filtered event reached the endpoint")
	}
	entries := log.Recent(0)
	if len(entries) != 1 || entries[0].Err != "not_subscribed" {
		t.Fatalf("log entries = %+v", entries)
	}
}

func TestManagerRetryDeliversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m, log := newTestManager(t)
	sub := subscriptionFor(srv.URL, &RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Backoff:      BackoffExponential,
	})

	ctx := context.Background()
	result := m.SendWithRetry(ctx, sub, confirmedPayload())
	if result.Success {
		t.Fatal("first attempt should have failed")
	}
	if result.StatusCode != http.StatusBadGateway {
		t.Fatalf("StatusCode = %d, want 502", result.StatusCode)
	}

	time.Sleep(20 * time.Millisecond)
	m.ProcessQueue(ctx)

	if calls.Load() != 2 {
		t.Fatalf("endpoint saw %d calls, want 2", calls.Load())
	}

	entries := log.Recent(0) // newest first
	if len(entries) != 2 {
		t.Fatalf("log has %d entries, want 2", len(entries))
	}
	if entries[0].ID != entries[1].ID {
		t.Fatalf("retry changed the delivery id: %q vs %q", entries[0].ID, entries[1].ID)
	}
	if entries[1].Success || !entries[0].Success {
		t.Fatalf("wanted failure then success, got %+v", entries)
	}
	if entries[1].Attempt != 1 || entries[0].Attempt != 2 {
		t.Fatalf("attempt numbers = [%d %d], want [2 1]", entries[0].Attempt, entries[1].Attempt)
	}
	// Both attempts record the payload they carried.
	for _, e := range entries {
		if e.Payload.Event != EventPaymentConfirmed {
			t.Fatalf("log entry missing payload: %+v", e)
		}
	}

	// Delivered: nothing left to process.
	if n, _ := m.queue.Size(ctx); n != 0 {
		t.Fatalf("queue size = %d after delivery, want 0", n)
	}
}

func TestManagerDropsExhaustedDeliveries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m, log := newTestManager(t)
	sub := subscriptionFor(srv.URL, &RetryPolicy{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Backoff:      BackoffLinear,
	})

	ctx := context.Background()
	if result := m.SendWithRetry(ctx, sub, confirmedPayload()); result.Success {
		t.Fatal("delivery to failing endpoint succeeded")
	}

	time.Sleep(20 * time.Millisecond)
	m.ProcessQueue(ctx) // second and final attempt

	if calls.Load() != 2 {
		t.Fatalf("endpoint saw %d calls, want 2", calls.Load())
	}
	if n, _ := m.queue.Size(ctx); n != 0 {
		t.Fatalf("exhausted delivery still queued, size = %d", n)
	}
	for _, e := range log.Recent(0) {
		if e.Success {
			t.Fatalf("unexpected success entry: %+v", e)
		}
	}
}

func TestManagerNoRetryWithoutPolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m, _ := newTestManager(t)
	ctx := context.Background()
	if result := m.SendWithRetry(ctx, subscriptionFor(srv.URL, nil), confirmedPayload()); result.Success {
		t.Fatal("delivery reported success on 503")
	}
	if n, _ := m.queue.Size(ctx); n != 0 {
		t.Fatalf("queue size = %d for retry-less subscription, want 0", n)
	}
}

func TestManagerStartDrainsQueue(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	queue := NewMemoryQueue()
	m := NewManager(ManagerConfig{
		Queue:           queue,
		ProcessInterval: 10 * time.Millisecond,
		Logger:          zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := queue.Enqueue(ctx, Delivery{
		ID:            "wh_start",
		Subscription:  subscriptionFor(srv.URL, nil),
		Payload:       confirmedPayload(),
		NextAttemptAt: time.Now(),
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	m.Start(ctx)
	defer m.Close()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("background loop never delivered the queued webhook")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestManagerSendAsync(t *testing.T) {
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		close(done)
	}))
	defer srv.Close()

	m, _ := newTestManager(t)
	m.SendAsync(subscriptionFor(srv.URL, nil), confirmedPayload())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async delivery never arrived")
	}
}
