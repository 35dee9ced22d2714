package money

import (
	"regexp"

	"github.com/mr-tron/base58"
)

// base58Pattern matches the Bitcoin base58 alphabet used by Solana.
var base58Pattern = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)

// IsValidAddress reports whether s is a plausible Solana account address:
// base58 text decoding to exactly 32 bytes.
func IsValidAddress(s string) bool {
	if !base58Pattern.MatchString(s) {
		return false
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return false
	}
	return len(raw) == 32
}

// IsValidSignature reports whether s is a plausible Solana transaction
// signature: 87 or 88 base58 characters decoding to exactly 64 bytes.
func IsValidSignature(s string) bool {
	if len(s) < 87 || len(s) > 88 {
		return false
	}
	if !base58Pattern.MatchString(s) {
		return false
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return false
	}
	return len(raw) == 64
}
