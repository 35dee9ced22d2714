package webhook

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/meridianpay/x402/internal/httputil"
)

// userAgent identifies deliveries in subscriber access logs.
const userAgent = "x402-solana-webhook/1.0"

// Sender performs single webhook delivery attempts. Redirects are not
// followed; a redirect response counts as a failure.
type Sender struct {
	client *http.Client
}

// NewSender creates a sender. The timeout is the default for subscriptions
// that do not set their own.
func NewSender(timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Sender{client: httputil.NewNoRedirectClient(timeout)}
}

// Send performs exactly one delivery attempt: sign, POST, classify. Success
// is any 2xx status.
func (s *Sender) Send(ctx context.Context, sub Subscription, payload Payload) DeliveryResult {
	start := time.Now()
	result := DeliveryResult{
		Attempts:    1,
		URL:         sub.URL,
		Event:       payload.Event,
		DeliveredAt: start,
	}

	body, signature, err := Sign(sub.Secret, payload)
	if err != nil {
		result.Err = err.Error()
		result.ResponseTime = time.Since(start)
		return result
	}

	if sub.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, sub.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		result.Err = err.Error()
		result.ResponseTime = time.Since(start)
		return result
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderTimestamp, fmt.Sprintf("%d", start.UnixMilli()))
	for name, value := range sub.Headers {
		req.Header.Set(name, value)
	}
	req.ContentLength = int64(len(body))

	resp, err := s.client.Do(req)
	result.ResponseTime = time.Since(start)
	if err != nil {
		result.Err = err.Error()
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.Success = true
	} else {
		result.Err = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return result
}
