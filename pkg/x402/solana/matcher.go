package solana

import (
	"fmt"

	"github.com/meridianpay/x402/pkg/x402"
)

// MatchParams constrain which transfer satisfies a payment requirement.
type MatchParams struct {
	Recipient        string // expected destination token account
	RequiredAtomic   uint64 // required amount in smallest unit
	Mint             string // expected token mint
	StrictMint       bool   // reject candidates with a different known mint
	AllowOverpayment bool   // accept amounts above the requirement
}

// MatchError explains why no transfer satisfied the requirement.
type MatchError struct {
	Code  x402.Code
	Debug map[string]any
}

func (e *MatchError) Error() string {
	return fmt.Sprintf("no matching transfer: %s", e.Code)
}

// MatchTransfer selects the first transfer, in execution order, that pays
// the expected recipient the required amount of the expected token.
//
// Failure classification:
//   - empty transfer list: no_usdc_transfer
//   - no transfer to the recipient: transfer_mismatch
//   - candidates exist but all were skipped for a foreign mint: wrong_token
//   - candidates exist but none carries the required amount: insufficient_amount
func MatchTransfer(transfers []Transfer, params MatchParams) (*Transfer, *MatchError) {
	if len(transfers) == 0 {
		return nil, &MatchError{Code: x402.CodeNoTransfer}
	}

	var candidates []Transfer
	for _, t := range transfers {
		if t.Destination == params.Recipient {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		destinations := make([]string, 0, len(transfers))
		for _, t := range transfers {
			destinations = append(destinations, t.Destination)
		}
		return nil, &MatchError{
			Code: x402.CodeTransferMismatch,
			Debug: map[string]any{
				"expectedRecipient":    params.Recipient,
				"observedDestinations": destinations,
			},
		}
	}

	skippedForMint := 0
	amounts := make([]uint64, 0, len(candidates))
	for i := range candidates {
		t := &candidates[i]

		if params.StrictMint && t.Mint != MintUnknown && t.Mint != params.Mint {
			skippedForMint++
			continue
		}

		amounts = append(amounts, t.Amount)
		if params.AllowOverpayment {
			if t.Amount >= params.RequiredAtomic {
				return t, nil
			}
		} else if t.Amount == params.RequiredAtomic {
			return t, nil
		}
	}

	if skippedForMint == len(candidates) {
		mints := make([]string, 0, len(candidates))
		for _, t := range candidates {
			mints = append(mints, t.Mint)
		}
		return nil, &MatchError{
			Code: x402.CodeWrongToken,
			Debug: map[string]any{
				"expectedMint":  params.Mint,
				"observedMints": mints,
			},
		}
	}

	return nil, &MatchError{
		Code: x402.CodeInsufficientAmount,
		Debug: map[string]any{
			"expectedAmount":  params.RequiredAtomic,
			"observedAmounts": amounts,
		},
	}
}
