package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Signature headers set on every delivery.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
)

// SignBytes computes the HMAC-SHA256 of body under secret, rendered as
// "sha256=<hex>". Receivers recompute it over the raw request body.
func SignBytes(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Sign serializes the payload and signs it, returning the body bytes and
// the signature. The same bytes must be sent on the wire; re-marshaling
// would invalidate the MAC.
func Sign(secret string, payload Payload) ([]byte, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("marshal payload: %w", err)
	}
	return body, SignBytes(secret, body), nil
}

// Verify reports whether signature matches body under secret. Comparison is
// constant time.
func Verify(secret string, body []byte, signature string) bool {
	expected := SignBytes(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
