package x402

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"

	"github.com/meridianpay/x402/pkg/x402/money"
)

// DefaultTimeoutSeconds is how long a generated requirement invites clients
// to take before their payment is considered stale.
const DefaultTimeoutSeconds = 300

// RequirementsGenerator produces 402 payment requirements for protected
// resources. The recipient's USDC associated token account is derived once
// at construction; descriptors always advertise the token account, not the
// owner wallet.
type RequirementsGenerator struct {
	network      money.Network
	mint         string
	tokenAccount string
}

// NewRequirementsGenerator derives the recipient's associated token account
// for the network's USDC mint.
func NewRequirementsGenerator(recipientWallet string, network money.Network) (*RequirementsGenerator, error) {
	owner, err := solana.PublicKeyFromBase58(recipientWallet)
	if err != nil {
		return nil, fmt.Errorf("invalid recipient wallet: %w", err)
	}

	mintAddr := network.USDCMint()
	if mintAddr == "" {
		return nil, fmt.Errorf("no USDC mint known for network %q", network)
	}
	mint, err := solana.PublicKeyFromBase58(mintAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid mint for network %q: %w", network, err)
	}

	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, fmt.Errorf("derive associated token account: %w", err)
	}

	return &RequirementsGenerator{
		network:      network,
		mint:         mintAddr,
		tokenAccount: ata.String(),
	}, nil
}

// TokenAccount returns the derived recipient token account address.
func (g *RequirementsGenerator) TokenAccount() string {
	return g.tokenAccount
}

// Network returns the cluster the generator advertises.
func (g *RequirementsGenerator) Network() money.Network {
	return g.network
}

// GenerateOpts customizes a generated requirement.
type GenerateOpts struct {
	Resource     string // optional resource identifier
	Description  string
	Timeout      int    // seconds; zero means DefaultTimeoutSeconds
	ErrorMessage string // human error string for the 402 body
}

// Generate builds a single-descriptor requirements body for a USD price.
// Prices must be positive.
func (g *RequirementsGenerator) Generate(priceUSD float64, opts GenerateOpts) (*PaymentRequirements, error) {
	req, err := g.requirement(priceUSD, opts)
	if err != nil {
		return nil, err
	}

	errMsg := opts.ErrorMessage
	if errMsg == "" {
		errMsg = "Payment required to access this resource"
	}

	return &PaymentRequirements{
		X402Version: ProtocolVersion,
		Accepts:     []PaymentRequirement{req},
		Error:       errMsg,
	}, nil
}

// GenerateMultiple builds a requirements body offering several price points,
// one descriptor per price in the given order.
func (g *RequirementsGenerator) GenerateMultiple(pricesUSD []float64, opts GenerateOpts) (*PaymentRequirements, error) {
	if len(pricesUSD) == 0 {
		return nil, errors.New("at least one price is required")
	}

	accepts := make([]PaymentRequirement, 0, len(pricesUSD))
	for _, price := range pricesUSD {
		req, err := g.requirement(price, opts)
		if err != nil {
			return nil, err
		}
		accepts = append(accepts, req)
	}

	errMsg := opts.ErrorMessage
	if errMsg == "" {
		errMsg = "Payment required to access this resource"
	}

	return &PaymentRequirements{
		X402Version: ProtocolVersion,
		Accepts:     accepts,
		Error:       errMsg,
	}, nil
}

func (g *RequirementsGenerator) requirement(priceUSD float64, opts GenerateOpts) (PaymentRequirement, error) {
	if priceUSD <= 0 {
		return PaymentRequirement{}, fmt.Errorf("price must be positive, got %v", priceUSD)
	}
	atomic, err := money.USDToAtomic(priceUSD)
	if err != nil {
		return PaymentRequirement{}, fmt.Errorf("convert price: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeoutSeconds
	}

	return PaymentRequirement{
		Scheme:            SchemeExact,
		Network:           g.network.Wire(),
		MaxAmountRequired: strconv.FormatUint(atomic, 10),
		Resource:          opts.Resource,
		Description:       opts.Description,
		PayTo: PayTo{
			Address: g.tokenAccount,
			Asset:   g.mint,
		},
		Timeout: timeout,
	}, nil
}
