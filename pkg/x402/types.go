package x402

import (
	"context"
	"fmt"
)

// Protocol constants for the x402 wire format.
const (
	// ProtocolVersion is the supported x402 protocol version.
	ProtocolVersion = 1

	// SchemeExact is the on-chain scheme: an SPL transfer of the exact
	// required amount, proven by transaction signature.
	SchemeExact = "exact"

	// HeaderPayment carries the client's payment proof.
	HeaderPayment = "X-Payment"

	// HeaderPaymentResponse carries the server's settlement receipt.
	HeaderPaymentResponse = "X-Payment-Response"
)

// PaymentRequirements is the 402 response body advertising how to pay.
type PaymentRequirements struct {
	X402Version int                  `json:"x402Version"`
	Accepts     []PaymentRequirement `json:"accepts"`
	Error       string               `json:"error"`
}

// PaymentRequirement describes a single acceptable payment method.
type PaymentRequirement struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`           // wire form, e.g. "solana-devnet"
	MaxAmountRequired string `json:"maxAmountRequired"` // decimal integer, smallest unit
	Resource          string `json:"resource,omitempty"`
	Description       string `json:"description"`
	PayTo             PayTo  `json:"payTo"`
	Timeout           int    `json:"timeout"` // seconds
}

// PayTo names the on-chain destination. Address is the recipient's token
// sub-account for the asset, never the owner wallet itself.
type PayTo struct {
	Address string `json:"address"`
	Asset   string `json:"asset"` // token mint
}

// PaymentPayload is the decoded X-PAYMENT header.
type PaymentPayload struct {
	X402Version int           `json:"x402Version"`
	Scheme      string        `json:"scheme"`
	Network     string        `json:"network"`
	Payload     SolanaPayload `json:"payload"`
}

// SolanaPayload is the scheme-specific proof. Exactly one of Signature or
// SerializedTransaction is set.
type SolanaPayload struct {
	Signature             string `json:"signature,omitempty"`             // base58
	SerializedTransaction string `json:"serializedTransaction,omitempty"` // base64
}

// Receipt is the X-PAYMENT-RESPONSE settlement acknowledgment.
type Receipt struct {
	Signature string `json:"signature"`
	Network   string `json:"network"`
	Amount    uint64 `json:"amount"` // smallest unit
	Timestamp int64  `json:"timestamp"`
	Status    string `json:"status"` // verified | pending | failed
	BlockTime int64  `json:"blockTime,omitempty"`
	Slot      uint64 `json:"slot,omitempty"`
}

// Verdict is the outcome of verifying a payment proof. Exactly one of the
// two shapes holds: Valid with settlement facts populated, or invalid with
// Code and Message set.
type Verdict struct {
	Valid bool

	// Settlement facts, populated when Valid.
	Signature string
	Amount    uint64 // smallest unit actually transferred
	Payer     string
	Recipient string // token account that received the transfer
	Mint      string
	Slot      uint64
	BlockTime int64

	// Failure classification, populated when invalid.
	Code    Code
	Message string

	// Debug carries diagnostic values (expected vs observed amounts,
	// candidate destinations) for logs. Never shown to end users.
	Debug map[string]any
}

// Invalid constructs a failed verdict for the given code.
func Invalid(code Code, msg string) Verdict {
	if msg == "" {
		msg = code.UserMessage()
	}
	return Verdict{Code: code, Message: msg}
}

// Invalidf constructs a failed verdict with a formatted internal message.
func Invalidf(code Code, format string, args ...any) Verdict {
	return Verdict{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Verifier validates a payment proof against a requirement before the
// protected handler executes.
type Verifier interface {
	VerifyPayment(ctx context.Context, header string, req PaymentRequirement) Verdict
}
