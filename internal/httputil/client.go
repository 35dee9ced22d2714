package httputil

import (
	"net/http"
	"time"
)

// NewClient creates an HTTP client with the given timeout and pooled transport
// settings shared by every outbound client in the toolkit (webhook deliveries,
// health probes). Connection reuse keeps latency low for repeated requests to
// the same endpoints.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// NewNoRedirectClient creates a client that refuses to follow redirects.
// Webhook deliveries use this so a 3xx from a consumer endpoint counts as a
// delivery failure instead of silently re-posting the signed body elsewhere.
func NewNoRedirectClient(timeout time.Duration) *http.Client {
	c := NewClient(timeout)
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c
}
