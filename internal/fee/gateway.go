package fee

import (
	"context"

	"github.com/shopspring/decimal"

	"escrowrails/internal/amount"
	"escrowrails/internal/network"
)

// validationTolerance absorbs rounding differences between two independent
// computations of the same fee: 0.0001 = 0.01%.
var validationTolerance = decimal.RequireFromString("0.0001")

// ValidationResult always carries the server's own answer so a rejected
// caller can self-correct without a second round trip.
type ValidationResult struct {
	Valid         bool
	FeePercentage decimal.Decimal
	Authoritative amount.Triple
}

// Gateway produces server-authoritative fee decompositions and checks
// client-claimed fees against them. The client's number is never trusted;
// a mismatch beyond tolerance is a validation failure.
type Gateway struct {
	resolver *Resolver
	net      network.Descriptor
}

func NewGateway(resolver *Resolver, net network.Descriptor) *Gateway {
	return &Gateway{resolver: resolver, net: net}
}

// Quote resolves the user's fee and decomposes humanAmount with it.
func (g *Gateway) Quote(ctx context.Context, userAddress, humanAmount string) (decimal.Decimal, amount.Triple, error) {
	pct, err := g.resolver.ResolveFeePercentage(ctx, userAddress)
	if err != nil {
		return decimal.Zero, amount.Triple{}, err
	}
	triple, err := amount.Decompose(humanAmount, pct, g.net)
	if err != nil {
		return decimal.Zero, amount.Triple{}, err
	}
	return pct, triple, nil
}

// Validate compares a client-supplied fee (in human units) against the
// authoritative one. Zero against zero is valid; zero against anything else
// is not, since the relative difference is undefined.
func (g *Gateway) Validate(ctx context.Context, userAddress, humanAmount string, claimedFee decimal.Decimal) (ValidationResult, error) {
	pct, triple, err := g.Quote(ctx, userAddress, humanAmount)
	if err != nil {
		return ValidationResult{}, err
	}

	result := ValidationResult{FeePercentage: pct, Authoritative: triple}

	authFee := triple.FeeHuman
	if authFee.IsZero() {
		result.Valid = claimedFee.IsZero()
		return result, nil
	}

	diff := authFee.Sub(claimedFee).Abs()
	// percentDiff = |auth - claimed| / auth, at enough precision that the
	// tolerance comparison itself cannot round a rejection into a pass.
	percentDiff := diff.DivRound(authFee, 12)
	result.Valid = percentDiff.LessThanOrEqual(validationTolerance)
	return result, nil
}
