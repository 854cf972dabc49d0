package fee

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"escrowrails/internal/ledger"
	"escrowrails/internal/network"
)

// Plan keys as stored on the subscription contract.
const (
	PlanFree = iota
	PlanPro
	PlanEnterprise
	PlanTeamPro
	PlanTeamEnterprise

	planKeyMax = PlanTeamEnterprise
)

const maxBasisPoints = 10_000

// displayFallbackBps is shown when the ledger is unreachable and the caller
// only needs a number to render. It never authorizes a payment.
const displayFallbackBps = 250

// FeeUnavailableError means no ledger path could produce an authoritative fee
// for the user. Callers must block any transaction-authorizing operation.
type FeeUnavailableError struct {
	User string
	Err  error
}

func (e *FeeUnavailableError) Error() string {
	return fmt.Sprintf("fee unavailable for %s: %v", e.User, e.Err)
}

func (e *FeeUnavailableError) Unwrap() error { return e.Err }

// Resolver derives a user's fee percentage from the ledger. The escrow-domain
// read is primary; on failure the subscription-domain read is tried. The two
// reads are sequential, never raced, so a healthy primary costs one call.
type Resolver struct {
	reader     ledger.Reader
	escrowCore string
	subMgr     string
	log        zerolog.Logger
}

func NewResolver(reader ledger.Reader, contracts network.ContractSet, log zerolog.Logger) (*Resolver, error) {
	if contracts.EscrowCore == "" || contracts.SubscriptionManager == "" {
		return nil, fmt.Errorf("fee resolver needs escrow core and subscription manager addresses")
	}
	return &Resolver{
		reader:     reader,
		escrowCore: contracts.EscrowCore,
		subMgr:     contracts.SubscriptionManager,
		log:        log.With().Str("component", "fee-resolver").Logger(),
	}, nil
}

// strategy is one entry in the ordered fallback chain. Keeping the chain as
// data makes the fallback policy testable on its own.
type strategy struct {
	name string
	read func(ctx context.Context, user common.Address) (*big.Int, error)
}

func (r *Resolver) strategies() []strategy {
	return []strategy{
		{
			name: "escrow-core",
			read: func(ctx context.Context, user common.Address) (*big.Int, error) {
				return r.reader.ReadUint(ctx, r.escrowCore, "getUserFeePercentage", user)
			},
		},
		{
			name: "subscription-manager",
			read: func(ctx context.Context, user common.Address) (*big.Int, error) {
				return r.reader.ReadUint(ctx, r.subMgr, "getUserFeeTier", user)
			},
		},
	}
}

// ResolveFeePercentage returns the user's authoritative fee percentage in
// [0,100). Both ledger paths failing yields FeeUnavailableError; a guessed
// percentage is never substituted here.
func (r *Resolver) ResolveFeePercentage(ctx context.Context, userAddress string) (decimal.Decimal, error) {
	if !common.IsHexAddress(userAddress) {
		return decimal.Zero, &FeeUnavailableError{User: userAddress, Err: fmt.Errorf("invalid address")}
	}
	user := common.HexToAddress(userAddress)

	var lastErr error
	for _, s := range r.strategies() {
		bps, err := s.read(ctx, user)
		if err != nil {
			r.log.Warn().Str("strategy", s.name).Str("user", userAddress).Err(err).Msg("fee read failed")
			lastErr = err
			continue
		}
		pct, err := bpsToPercent(bps)
		if err != nil {
			lastErr = err
			continue
		}
		return pct, nil
	}
	return decimal.Zero, &FeeUnavailableError{User: userAddress, Err: lastErr}
}

// DisplayFeePercentage is the non-authoritative variant for rendering only.
// When the ledger is unreachable it returns the advertised default rate with
// authoritative=false so callers cannot mistake it for a quote.
func (r *Resolver) DisplayFeePercentage(ctx context.Context, userAddress string) (pct decimal.Decimal, authoritative bool) {
	pct, err := r.ResolveFeePercentage(ctx, userAddress)
	if err != nil {
		fallback, _ := bpsToPercent(big.NewInt(displayFallbackBps))
		return fallback, false
	}
	return pct, true
}

// PlanFeeTiers reads the fee rate of every known plan key. A plan the ledger
// reports as nonexistent is skipped, not an error.
func (r *Resolver) PlanFeeTiers(ctx context.Context) map[int]decimal.Decimal {
	tiers := make(map[int]decimal.Decimal)
	for planKey := PlanFree; planKey <= planKeyMax; planKey++ {
		bps, err := r.reader.ReadUint(ctx, r.subMgr, "getPlanFeeTier", uint8(planKey))
		if err != nil {
			r.log.Debug().Int("plan", planKey).Err(err).Msg("plan fee tier not available")
			continue
		}
		pct, err := bpsToPercent(bps)
		if err != nil {
			r.log.Warn().Int("plan", planKey).Err(err).Msg("plan fee tier out of range")
			continue
		}
		tiers[planKey] = pct
	}
	return tiers
}

// bpsToPercent converts ledger basis points to a percentage in [0,100).
// 10000 bps would be a 100% fee, which no resolved rate may reach, so it is
// rejected here rather than surfacing later as a bad amount.
func bpsToPercent(bps *big.Int) (decimal.Decimal, error) {
	if bps == nil || bps.Sign() < 0 || bps.Cmp(big.NewInt(maxBasisPoints)) >= 0 {
		return decimal.Zero, fmt.Errorf("fee of %v basis points outside [0,%d)", bps, maxBasisPoints)
	}
	return decimal.NewFromBigInt(bps, -2), nil
}
