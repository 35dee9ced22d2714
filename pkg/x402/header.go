package x402

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// DecodePayment parses an X-PAYMENT header value into a PaymentPayload.
// The header is base64 of a JSON object; raw JSON is also accepted to ease
// testing. The payload must carry exactly one of signature or
// serializedTransaction.
func DecodePayment(header string) (*PaymentPayload, error) {
	raw := strings.TrimSpace(header)
	if raw == "" {
		return nil, errors.New("empty payment header")
	}

	var data []byte
	if strings.HasPrefix(raw, "{") {
		data = []byte(raw)
	} else {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			decoded, err = base64.RawStdEncoding.DecodeString(raw)
			if err != nil {
				return nil, fmt.Errorf("decode base64: %w", err)
			}
		}
		data = decoded
	}

	var payload PaymentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse payment payload: %w", err)
	}

	if payload.X402Version != ProtocolVersion {
		return nil, fmt.Errorf("unsupported x402 version %d", payload.X402Version)
	}
	if payload.Scheme == "" {
		return nil, errors.New("missing scheme")
	}
	if payload.Scheme != SchemeExact {
		return nil, fmt.Errorf("unsupported scheme %q", payload.Scheme)
	}
	if payload.Network == "" {
		return nil, errors.New("missing network")
	}

	hasSig := payload.Payload.Signature != ""
	hasTx := payload.Payload.SerializedTransaction != ""
	if hasSig == hasTx {
		return nil, errors.New("payload must contain exactly one of signature or serializedTransaction")
	}

	return &payload, nil
}

// ExtractSignature returns the transaction signature the proof refers to.
// When the proof carries a serialized transaction instead of a bare
// signature, the transaction is deserialized (versioned and legacy wire
// formats both decode) and its first signature is taken.
func ExtractSignature(p *PaymentPayload) (string, error) {
	if p.Payload.Signature != "" {
		return p.Payload.Signature, nil
	}

	tx, err := solana.TransactionFromBase64(p.Payload.SerializedTransaction)
	if err != nil {
		return "", fmt.Errorf("deserialize transaction: %w", err)
	}
	if len(tx.Signatures) == 0 {
		return "", errors.New("serialized transaction has no signatures")
	}
	return tx.Signatures[0].String(), nil
}

// NewSignaturePayment builds a signature-bearing payment proof.
func NewSignaturePayment(network, signature string) *PaymentPayload {
	return &PaymentPayload{
		X402Version: ProtocolVersion,
		Scheme:      SchemeExact,
		Network:     network,
		Payload:     SolanaPayload{Signature: signature},
	}
}

// NewTransactionPayment builds a payment proof carrying a serialized
// base64 transaction.
func NewTransactionPayment(network, serializedTx string) *PaymentPayload {
	return &PaymentPayload{
		X402Version: ProtocolVersion,
		Scheme:      SchemeExact,
		Network:     network,
		Payload:     SolanaPayload{SerializedTransaction: serializedTx},
	}
}

// EncodePayment renders a payment proof as an X-PAYMENT header value.
func EncodePayment(p *PaymentPayload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payment payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// EncodeReceipt renders a settlement receipt as an X-PAYMENT-RESPONSE
// header value.
func EncodeReceipt(r *Receipt) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal receipt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeReceipt parses an X-PAYMENT-RESPONSE header value.
func DecodeReceipt(header string) (*Receipt, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header))
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse receipt: %w", err)
	}
	return &r, nil
}
