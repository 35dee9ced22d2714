package money

import (
	"math"
	"testing"
)

func TestUSDToAtomic(t *testing.T) {
	cases := []struct {
		name    string
		usd     float64
		want    uint64
		wantErr bool
	}{
		{name: "one cent", usd: 0.01, want: 10_000},
		{name: "dollar fifty", usd: 1.50, want: 1_500_000},
		{name: "zero", usd: 0, want: 0},
		{name: "sub-atomic precision truncates", usd: 0.0000019, want: 1},
		{name: "large", usd: 1_000_000, want: 1_000_000_000_000},
		// 0.29*1e6 is one ULP below 290000 in binary; the decimal path
		// must not truncate it to 289999.
		{name: "twenty-nine cents", usd: 0.29, want: 290_000},
		{name: "fifty-eight cents", usd: 0.58, want: 580_000},
		{name: "negative", usd: -0.01, wantErr: true},
		{name: "nan", usd: math.NaN(), wantErr: true},
		{name: "inf", usd: math.Inf(1), wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := USDToAtomic(tc.usd)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("USDToAtomic(%v) = %d, want error", tc.usd, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("USDToAtomic(%v): %v", tc.usd, err)
			}
			if got != tc.want {
				t.Errorf("USDToAtomic(%v) = %d, want %d", tc.usd, got, tc.want)
			}
		})
	}
}

func TestAtomicToUSDRoundTrip(t *testing.T) {
	// 249 and 290000 both sit one ULP low after a binary multiply by 1e6.
	values := []uint64{0, 1, 249, 10_000, 290_000, 1_500_000, 123_456_789}
	for atomic := uint64(0); atomic < 100_000; atomic++ {
		values = append(values, atomic)
	}
	for _, atomic := range values {
		usd := AtomicToUSD(atomic)
		back, err := USDToAtomic(usd)
		if err != nil {
			t.Fatalf("round trip %d: %v", atomic, err)
		}
		if back != atomic {
			t.Errorf("round trip %d -> %v -> %d", atomic, usd, back)
		}
	}
}

func TestFormatAtomic(t *testing.T) {
	cases := []struct {
		atomic uint64
		want   string
	}{
		{0, "0.00"},
		{10_000, "0.01"},
		{1_500_000, "1.50"},
		{1_234_567, "1.234567"},
		{2_000_000, "2.00"},
	}
	for _, tc := range cases {
		if got := FormatAtomic(tc.atomic); got != tc.want {
			t.Errorf("FormatAtomic(%d) = %q, want %q", tc.atomic, got, tc.want)
		}
	}
}

func TestParseUSD(t *testing.T) {
	cases := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{in: "0.01", want: 10_000},
		{in: "1.5", want: 1_500_000},
		{in: "2", want: 2_000_000},
		{in: "0.0000019", want: 1},
		{in: "-1", wantErr: true},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseUSD(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseUSD(%q) = %d, want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseUSD(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseUSD(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseNetwork(t *testing.T) {
	cases := []struct {
		in      string
		want    Network
		wantErr bool
	}{
		{in: "mainnet", want: Mainnet},
		{in: "mainnet-beta", want: Mainnet},
		{in: "Mainnet", want: Mainnet},
		{in: "solana-mainnet", want: Mainnet},
		{in: "devnet", want: Devnet},
		{in: "solana-devnet", want: Devnet},
		{in: "testnet", want: Testnet},
		{in: "localhost", want: Localnet},
		{in: "localnet", want: Localnet},
		{in: "goerli", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseNetwork(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseNetwork(%q) = %v, want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseNetwork(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseNetwork(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNetworkWire(t *testing.T) {
	if got := Devnet.Wire(); got != "solana-devnet" {
		t.Errorf("Devnet.Wire() = %q, want solana-devnet", got)
	}
}

func TestUSDCMint(t *testing.T) {
	if got := Mainnet.USDCMint(); got != MainnetUSDCMint {
		t.Errorf("mainnet mint = %q", got)
	}
	// Localnet validators have no canonical USDC, so the devnet mint is used.
	if got := Localnet.USDCMint(); got != DevnetUSDCMint {
		t.Errorf("localnet mint = %q, want devnet mint", got)
	}
}

func TestIsValidAddress(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", true},
		{MainnetUSDCMint, true},
		{"", false},
		{"not-base58-0OIl", false},
		{"abc", false},
	}
	for _, tc := range cases {
		if got := IsValidAddress(tc.in); got != tc.want {
			t.Errorf("IsValidAddress(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestIsValidSignature(t *testing.T) {
	// Real signature shape: 88 base58 chars decoding to 64 bytes.
	valid := "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"
	if !IsValidSignature(valid) {
		t.Error("known-good signature rejected")
	}

	bad := []string{
		"",
		"tooshort",
		"9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", // address-length
		valid + "aa", // too long
	}
	for _, s := range bad {
		if IsValidSignature(s) {
			t.Errorf("IsValidSignature(%q) = true, want false", s)
		}
	}
}
