// Package money converts between USD display amounts and atomic USDC units
// and knows the USDC mint for each Solana network.
//
// All on-chain comparisons happen in atomic units (uint64). Floating point
// only appears at the API boundary, where prices arrive as USD.
package money

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// USDCDecimals is the decimal count of the USDC SPL mint.
const USDCDecimals = 6

// atomicPerUSD is 10^USDCDecimals.
const atomicPerUSD = 1_000_000

var (
	// ErrNegativeAmount occurs when a negative USD amount is converted.
	ErrNegativeAmount = errors.New("money: negative amount not allowed")

	// ErrNotFinite occurs when a NaN or infinite USD amount is converted.
	ErrNotFinite = errors.New("money: amount must be finite")

	// ErrOverflow occurs when a USD amount exceeds uint64 atomic capacity.
	ErrOverflow = errors.New("money: amount overflows atomic units")
)

// USDToAtomic converts a USD amount to atomic USDC units, truncating any
// precision beyond six decimals. $0.01 becomes 10000, $1.50 becomes 1500000.
//
// The conversion goes through the shortest decimal representation of the
// float rather than multiplying by 10^6 directly. Binary multiplication can
// land one ULP below the exact product, which would truncate $0.29 to 289999
// instead of 290000.
func USDToAtomic(usd float64) (uint64, error) {
	if math.IsNaN(usd) || math.IsInf(usd, 0) {
		return 0, ErrNotFinite
	}
	if usd < 0 {
		return 0, ErrNegativeAmount
	}
	return ParseUSD(strconv.FormatFloat(usd, 'f', -1, 64))
}

// AtomicToUSD converts atomic USDC units to a USD amount.
func AtomicToUSD(atomic uint64) float64 {
	return float64(atomic) / atomicPerUSD
}

// FormatAtomic renders atomic units as a decimal USD string with trailing
// zeros trimmed, keeping at least two decimal places. 1500000 formats as
// "1.50", 10000 as "0.01".
func FormatAtomic(atomic uint64) string {
	whole := atomic / atomicPerUSD
	frac := atomic % atomicPerUSD

	s := fmt.Sprintf("%d.%06d", whole, frac)
	s = strings.TrimRight(s, "0")

	// Keep at least two fractional digits for currency display.
	dot := strings.IndexByte(s, '.')
	for len(s)-dot-1 < 2 {
		s += "0"
	}
	return s
}

// ParseUSD parses a decimal USD string into atomic units, truncating beyond
// six decimals. Rejects negative values and malformed input.
func ParseUSD(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("money: empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeAmount
	}

	parts := strings.SplitN(s, ".", 2)
	whole, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("money: invalid amount %q: %w", s, err)
	}

	var frac uint64
	if len(parts) == 2 && parts[1] != "" {
		digits := parts[1]
		if len(digits) > USDCDecimals {
			digits = digits[:USDCDecimals]
		}
		frac, err = strconv.ParseUint(digits, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("money: invalid amount %q: %w", s, err)
		}
		for i := len(digits); i < USDCDecimals; i++ {
			frac *= 10
		}
	}

	if whole > (math.MaxUint64-frac)/atomicPerUSD {
		return 0, ErrOverflow
	}
	return whole*atomicPerUSD + frac, nil
}
