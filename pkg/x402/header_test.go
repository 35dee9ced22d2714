package x402

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
)

const testSig = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"

func TestDecodePaymentRoundTrip(t *testing.T) {
	header, err := EncodePayment(NewSignaturePayment("solana-devnet", testSig))
	if err != nil {
		t.Fatalf("EncodePayment: %v", err)
	}

	got, err := DecodePayment(header)
	if err != nil {
		t.Fatalf("DecodePayment: %v", err)
	}
	if got.X402Version != ProtocolVersion {
		t.Errorf("version = %d, want %d", got.X402Version, ProtocolVersion)
	}
	if got.Scheme != SchemeExact {
		t.Errorf("scheme = %q, want %q", got.Scheme, SchemeExact)
	}
	if got.Network != "solana-devnet" {
		t.Errorf("network = %q", got.Network)
	}
	if got.Payload.Signature != testSig {
		t.Errorf("signature = %q", got.Payload.Signature)
	}
}

func TestDecodePaymentAcceptsRawJSON(t *testing.T) {
	raw := `{"x402Version":1,"scheme":"exact","network":"solana-devnet","payload":{"signature":"` + testSig + `"}}`
	got, err := DecodePayment(raw)
	if err != nil {
		t.Fatalf("DecodePayment: %v", err)
	}
	if got.Payload.Signature != testSig {
		t.Errorf("signature = %q", got.Payload.Signature)
	}
}

func TestDecodePaymentAcceptsUnpaddedBase64(t *testing.T) {
	raw := `{"x402Version":1,"scheme":"exact","network":"solana-devnet","payload":{"signature":"` + testSig + `"}}`
	header := strings.TrimRight(base64.StdEncoding.EncodeToString([]byte(raw)), "=")
	if _, err := DecodePayment(header); err != nil {
		t.Fatalf("DecodePayment without padding: %v", err)
	}
}

func TestDecodePaymentRejections(t *testing.T) {
	cases := []struct {
		name string
		json string
	}{
		{
			name: "wrong version",
			json: `{"x402Version":2,"scheme":"exact","network":"solana-devnet","payload":{"signature":"` + testSig + `"}}`,
		},
		{
			name: "missing scheme",
			json: `{"x402Version":1,"network":"solana-devnet","payload":{"signature":"` + testSig + `"}}`,
		},
		{
			name: "unsupported scheme",
			json: `{"x402Version":1,"scheme":"channel","network":"solana-devnet","payload":{"signature":"` + testSig + `"}}`,
		},
		{
			name: "missing network",
			json: `{"x402Version":1,"scheme":"exact","payload":{"signature":"` + testSig + `"}}`,
		},
		{
			name: "empty payload",
			json: `{"x402Version":1,"scheme":"exact","network":"solana-devnet","payload":{}}`,
		},
		{
			name: "both proof fields",
			json: `{"x402Version":1,"scheme":"exact","network":"solana-devnet","payload":{"signature":"` + testSig + `","serializedTransaction":"AAAA"}}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodePayment(tc.json); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}

	if _, err := DecodePayment(""); err == nil {
		t.Error("empty header: expected error")
	}
	if _, err := DecodePayment("!!!not-base64!!!"); err == nil {
		t.Error("bad base64: expected error")
	}
	if _, err := DecodePayment(base64.StdEncoding.EncodeToString([]byte("not json"))); err == nil {
		t.Error("bad json: expected error")
	}
}

func TestExtractSignatureFromSignaturePayload(t *testing.T) {
	p := NewSignaturePayment("solana-devnet", testSig)
	got, err := ExtractSignature(p)
	if err != nil {
		t.Fatalf("ExtractSignature: %v", err)
	}
	if got != testSig {
		t.Errorf("signature = %q, want %q", got, testSig)
	}
}

func TestExtractSignatureFromSerializedTransaction(t *testing.T) {
	payer := solana.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	tx := &solana.Transaction{
		Signatures: []solana.Signature{solana.MustSignatureFromBase58(testSig)},
		Message: solana.Message{
			Header:          solana.MessageHeader{NumRequiredSignatures: 1},
			AccountKeys:     []solana.PublicKey{payer},
			RecentBlockhash: solana.Hash{},
		},
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal transaction: %v", err)
	}

	p := NewTransactionPayment("solana-devnet", base64.StdEncoding.EncodeToString(raw))
	got, err := ExtractSignature(p)
	if err != nil {
		t.Fatalf("ExtractSignature: %v", err)
	}
	if got != testSig {
		t.Errorf("signature = %q, want %q", got, testSig)
	}
}

func TestExtractSignatureRejectsGarbageTransaction(t *testing.T) {
	p := NewTransactionPayment("solana-devnet", base64.StdEncoding.EncodeToString([]byte("garbage")))
	if _, err := ExtractSignature(p); err == nil {
		t.Error("expected error for undecodable transaction")
	}
}

func TestReceiptRoundTrip(t *testing.T) {
	r := &Receipt{
		Signature: testSig,
		Network:   "solana-devnet",
		Amount:    1000,
		Timestamp: 1700000000000,
		Status:    "verified",
		BlockTime: 1700000000,
		Slot:      250000000,
	}
	header, err := EncodeReceipt(r)
	if err != nil {
		t.Fatalf("EncodeReceipt: %v", err)
	}
	got, err := DecodeReceipt(header)
	if err != nil {
		t.Fatalf("DecodeReceipt: %v", err)
	}
	if *got != *r {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, r)
	}
}
