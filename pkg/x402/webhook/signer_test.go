package webhook

import (
	"strings"
	"testing"
)

func TestSignBytes(t *testing.T) {
	sig := SignBytes("secret", []byte(`{"event":"payment.confirmed"}`))
	if !strings.HasPrefix(sig, "sha256=") {
		t.Fatalf("signature missing scheme prefix: %q", sig)
	}
	if len(sig) != len("sha256=")+64 {
		t.Fatalf("signature length = %d, want %d", len(sig), len("sha256=")+64)
	}

	again := SignBytes("secret", []byte(`{"event":"payment.confirmed"}`))
	if sig != again {
		t.Fatalf("signing is not deterministic: %q vs %q", sig, again)
	}
}

func TestSignAndVerify(t *testing.T) {
	payload := Payload{
		Event:     EventPaymentConfirmed,
		Timestamp: 1724600000000,
		Payment: PaymentInfo{
			Signature:    "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW",
			AmountAtomic: 1_000_000,
			AmountUSD:    1.0,
		},
	}

	body, sig, err := Sign("topsecret", payload)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !Verify("topsecret", body, sig) {
		t.Fatal("signature did not verify against its own body")
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	body := []byte(`{"event":"payment.confirmed","payment":{"amountSmallest":1000000}}`)
	sig := SignBytes("secret", body)

	tampered := []byte(`{"event":"payment.confirmed","payment":{"amountSmallest":9000000}}`)
	if Verify("secret", tampered, sig) {
		t.Fatal("verification accepted a modified body")
	}
	if Verify("wrong-secret", body, sig) {
		t.Fatal("verification accepted the wrong secret")
	}
	if Verify("secret", body, "sha256=deadbeef") {
		t.Fatal("verification accepted a bogus signature")
	}
}
