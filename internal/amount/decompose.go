package amount

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"escrowrails/internal/network"
)

// Triple is the decomposition of a requested payment. The exact fields are in
// the chain's smallest indivisible unit and always satisfy
// TotalExact == BaseExact + FeeExact; only the human-facing decimal forms may
// round.
type Triple struct {
	BaseExact  *big.Int
	FeeExact   *big.Int
	TotalExact *big.Int

	BaseHuman decimal.Decimal
	FeeHuman  decimal.Decimal
}

// InvalidAmountError reports a human amount that cannot authorize a payment.
type InvalidAmountError struct {
	Value  string
	Reason string
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount %q: %s", e.Value, e.Reason)
}

// Decompose converts a human-entered native amount plus a fee percentage into
// exact integer units for net. The fee is additive: the buyer pays base + fee
// and the on-chain transaction value is the sum, computed in integer space so
// no decimal rounding can drift into the total.
func Decompose(humanAmount string, feePct decimal.Decimal, net network.Descriptor) (Triple, error) {
	if net.NativeDecimals <= 0 {
		return Triple{}, &network.UnsupportedNetworkError{ChainID: net.ChainID}
	}

	base, err := decimal.NewFromString(humanAmount)
	if err != nil {
		return Triple{}, &InvalidAmountError{Value: humanAmount, Reason: "not a decimal number"}
	}
	if !base.IsPositive() {
		return Triple{}, &InvalidAmountError{Value: humanAmount, Reason: "must be positive"}
	}
	if feePct.IsNegative() || feePct.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return Triple{}, &InvalidAmountError{Value: feePct.String(), Reason: "fee percentage outside [0,100)"}
	}

	// Dividing by 100 is an exact exponent shift, so the only rounding is
	// the half-away-from-zero step at the chain's native precision;
	// Decimal.Round implements exactly that mode. Div would round the
	// quotient at its own default precision first.
	fee := base.Mul(feePct).Shift(-2).Round(int32(net.NativeDecimals))

	baseExact := toExactUnits(base, net.NativeDecimals)
	feeExact := toExactUnits(fee, net.NativeDecimals)

	return Triple{
		BaseExact:  baseExact,
		FeeExact:   feeExact,
		TotalExact: new(big.Int).Add(baseExact, feeExact),
		BaseHuman:  base,
		FeeHuman:   fee,
	}, nil
}

// toExactUnits shifts a human amount into smallest-unit integer space,
// truncating any residual fraction below one unit.
func toExactUnits(d decimal.Decimal, decimals int) *big.Int {
	return d.Shift(int32(decimals)).Truncate(0).BigInt()
}

// FromExactUnits is the inverse of toExactUnits, for display only.
func FromExactUnits(units *big.Int, decimals int) decimal.Decimal {
	return decimal.NewFromBigInt(units, -int32(decimals))
}

// FormatNative renders an exact-unit amount at the chain's display precision.
func FormatNative(units *big.Int, net network.Descriptor) string {
	return FromExactUnits(units, net.NativeDecimals).StringFixed(int32(net.DisplayDecimals()))
}
