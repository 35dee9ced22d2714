package money

import (
	"fmt"
	"strings"
)

// Network identifies a Solana cluster.
type Network string

const (
	Mainnet  Network = "mainnet"
	Devnet   Network = "devnet"
	Testnet  Network = "testnet"
	Localnet Network = "localnet"
)

// Canonical USDC mint addresses per cluster. Localnet validators do not have
// a canonical USDC deployment, so tooling conventionally reuses the devnet
// mint there.
const (
	MainnetUSDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	DevnetUSDCMint  = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"
	TestnetUSDCMint = "CpMah17kQEL2wqyMKt3mZBdTnZbkbfx4nqmQMFDP5vwp"
)

// ParseNetwork normalizes a cluster name. Accepts common aliases such as
// "mainnet-beta" and "localhost" and the wire form "solana-<network>".
func ParseNetwork(s string) (Network, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, "solana-")

	switch name {
	case "mainnet", "mainnet-beta":
		return Mainnet, nil
	case "devnet":
		return Devnet, nil
	case "testnet":
		return Testnet, nil
	case "localnet", "localhost":
		return Localnet, nil
	default:
		return "", fmt.Errorf("unknown solana network %q", s)
	}
}

// Wire returns the x402 wire-format network identifier, "solana-<network>".
func (n Network) Wire() string {
	return "solana-" + string(n)
}

// USDCMint returns the USDC mint address for the network.
func (n Network) USDCMint() string {
	switch n {
	case Mainnet:
		return MainnetUSDCMint
	case Devnet, Localnet:
		return DevnetUSDCMint
	case Testnet:
		return TestnetUSDCMint
	default:
		return ""
	}
}

func (n Network) String() string {
	return string(n)
}
