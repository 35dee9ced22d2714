package solana

import (
	"testing"

	"github.com/meridianpay/x402/pkg/x402"
)

func TestMatchTransfer(t *testing.T) {
	recipient := testDest.String()
	mint := testMint.String()
	other := testSource.String()

	base := MatchParams{
		Recipient:      recipient,
		RequiredAtomic: 1000,
		Mint:           mint,
		StrictMint:     true,
	}

	cases := []struct {
		name      string
		transfers []Transfer
		params    MatchParams
		wantCode  x402.Code // empty means match expected
		wantIdx   int
	}{
		{
			name:      "empty list",
			transfers: nil,
			params:    base,
			wantCode:  x402.CodeNoTransfer,
		},
		{
			name: "no transfer to recipient",
			transfers: []Transfer{
				{Destination: other, Amount: 1000, Mint: mint},
			},
			params:   base,
			wantCode: x402.CodeTransferMismatch,
		},
		{
			name: "exact match",
			transfers: []Transfer{
				{Destination: recipient, Amount: 1000, Mint: mint},
			},
			params: base,
		},
		{
			name: "wrong amount",
			transfers: []Transfer{
				{Destination: recipient, Amount: 999, Mint: mint},
			},
			params:   base,
			wantCode: x402.CodeInsufficientAmount,
		},
		{
			name: "overpayment rejected without flag",
			transfers: []Transfer{
				{Destination: recipient, Amount: 2000, Mint: mint},
			},
			params:   base,
			wantCode: x402.CodeInsufficientAmount,
		},
		{
			name: "overpayment accepted with flag",
			transfers: []Transfer{
				{Destination: recipient, Amount: 2000, Mint: mint},
			},
			params: MatchParams{
				Recipient:        recipient,
				RequiredAtomic:   1000,
				Mint:             mint,
				StrictMint:       true,
				AllowOverpayment: true,
			},
		},
		{
			name: "all candidates wrong mint",
			transfers: []Transfer{
				{Destination: recipient, Amount: 1000, Mint: other},
			},
			params:   base,
			wantCode: x402.CodeWrongToken,
		},
		{
			name: "unknown mint passes strict check",
			transfers: []Transfer{
				{Destination: recipient, Amount: 1000, Mint: MintUnknown},
			},
			params: base,
		},
		{
			name: "wrong mint skipped in favor of later candidate",
			transfers: []Transfer{
				{Destination: recipient, Amount: 1000, Mint: other},
				{Destination: recipient, Amount: 1000, Mint: mint},
			},
			params:  base,
			wantIdx: 1,
		},
		{
			name: "lax mint accepts foreign mint",
			transfers: []Transfer{
				{Destination: recipient, Amount: 1000, Mint: other},
			},
			params: MatchParams{
				Recipient:      recipient,
				RequiredAtomic: 1000,
				Mint:           mint,
				StrictMint:     false,
			},
		},
		{
			name: "first acceptable candidate wins",
			transfers: []Transfer{
				{Destination: recipient, Amount: 999, Mint: mint},
				{Destination: recipient, Amount: 1000, Mint: mint, Authority: "first"},
				{Destination: recipient, Amount: 1000, Mint: mint, Authority: "second"},
			},
			params:  base,
			wantIdx: 1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, matchErr := MatchTransfer(tc.transfers, tc.params)

			if tc.wantCode != "" {
				if matchErr == nil {
					t.Fatalf("matched %+v, want code %s", got, tc.wantCode)
				}
				if matchErr.Code != tc.wantCode {
					t.Fatalf("code = %s, want %s", matchErr.Code, tc.wantCode)
				}
				return
			}

			if matchErr != nil {
				t.Fatalf("MatchTransfer: %v (debug %v)", matchErr, matchErr.Debug)
			}
			want := tc.transfers[tc.wantIdx]
			if got.Amount != want.Amount || got.Authority != want.Authority {
				t.Errorf("matched %+v, want %+v", got, want)
			}
		})
	}
}

func TestMatchTransferDebugPayloads(t *testing.T) {
	recipient := testDest.String()
	mint := testMint.String()

	_, matchErr := MatchTransfer(
		[]Transfer{{Destination: recipient, Amount: 500, Mint: mint}},
		MatchParams{Recipient: recipient, RequiredAtomic: 1000, Mint: mint, StrictMint: true},
	)
	if matchErr == nil || matchErr.Code != x402.CodeInsufficientAmount {
		t.Fatalf("matchErr = %v", matchErr)
	}
	if matchErr.Debug["expectedAmount"] != uint64(1000) {
		t.Errorf("expectedAmount debug = %v", matchErr.Debug["expectedAmount"])
	}
	observed, ok := matchErr.Debug["observedAmounts"].([]uint64)
	if !ok || len(observed) != 1 || observed[0] != 500 {
		t.Errorf("observedAmounts debug = %v", matchErr.Debug["observedAmounts"])
	}
}
