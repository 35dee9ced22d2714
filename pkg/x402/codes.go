// Package x402 implements the server side of the x402 payment protocol for
// Solana SPL token transfers: payment requirement generation, the X-PAYMENT
// header codec, the verification verdict model, and HTTP middleware that
// gates resources behind a 402 challenge.
package x402

import "net/http"

// Code classifies a verification failure. Codes are stable wire strings
// returned to clients and recorded in metrics.
type Code string

const (
	CodeInvalidHeader      Code = "invalid_header"
	CodeReplayAttack       Code = "replay_attack"
	CodeTxNotFound         Code = "transaction_not_found"
	CodeTxFailed           Code = "transaction_failed"
	CodeNoTransfer         Code = "no_usdc_transfer"
	CodeTransferMismatch   Code = "transfer_mismatch"
	CodeInsufficientAmount Code = "insufficient_amount"
	CodeWrongToken         Code = "wrong_token"
	CodeExpired            Code = "transaction_expired"
	CodeVerificationError  Code = "verification_error"
)

// HTTPStatus maps a failure code to the response status the middleware
// sends. Client-correctable failures get 402; infrastructure failures
// get 500.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeVerificationError:
		return http.StatusInternalServerError
	case "":
		return http.StatusOK
	default:
		return http.StatusPaymentRequired
	}
}

// Retryable reports whether the client can reasonably retry the same
// payment proof later. A not-yet-visible transaction may confirm; a replay
// or wrong amount never will.
func (c Code) Retryable() bool {
	switch c {
	case CodeTxNotFound, CodeVerificationError:
		return true
	default:
		return false
	}
}

// UserMessage converts a failure code to a message safe to show end users.
// Technical detail stays in logs and the verdict's debug map.
func (c Code) UserMessage() string {
	switch c {
	case CodeInvalidHeader:
		return "Payment header is missing or malformed. Please retry with a valid X-PAYMENT header."
	case CodeReplayAttack:
		return "This payment has already been used. Each payment can only be redeemed once."
	case CodeTxNotFound:
		return "Transaction not found on the blockchain. It may not have confirmed yet. Please try again shortly."
	case CodeTxFailed:
		return "Transaction failed on the blockchain. Check your wallet for details and try again."
	case CodeNoTransfer:
		return "No token transfer was found in the transaction. Please send the payment as a USDC transfer."
	case CodeTransferMismatch:
		return "Payment was sent to the wrong address. Please check the payment destination and try again."
	case CodeInsufficientAmount:
		return "Payment amount is less than required. Please pay the exact amount shown."
	case CodeWrongToken:
		return "Wrong token used for payment. Please pay with USDC."
	case CodeExpired:
		return "Payment transaction is too old. Please submit a fresh payment."
	case CodeVerificationError:
		return "Payment verification is temporarily unavailable. Please try again later."
	default:
		return "Payment verification failed."
	}
}
