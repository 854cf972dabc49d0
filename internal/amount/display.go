package amount

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"escrowrails/internal/network"
	"escrowrails/internal/price"
)

// FormatReference renders an exact-unit native amount as a USD string with the
// native form in parentheses, e.g. "$245.00 (0.100000000 ETH)". It requires a
// live quote; when the oracle cannot answer the error is surfaced rather than
// substituting a zero price.
func FormatReference(ctx context.Context, oracle price.Oracle, units *big.Int, net network.Descriptor) (string, error) {
	quote, err := oracle.CurrentPrice(ctx, net.PriceID)
	if err != nil {
		return "", err
	}
	native := FromExactUnits(units, net.NativeDecimals)
	usd := native.Mul(quote)
	return fmt.Sprintf("$%s (%s %s)", usd.StringFixed(2), native.StringFixed(int32(net.DisplayDecimals())), net.NativeSymbol), nil
}

// ConvertUSDToNative converts a USD amount into the chain's native currency at
// the current oracle price, formatted at display precision.
func ConvertUSDToNative(ctx context.Context, oracle price.Oracle, usdAmount string, net network.Descriptor) (string, decimal.Decimal, error) {
	usd, err := decimal.NewFromString(usdAmount)
	if err != nil {
		return "", decimal.Zero, &InvalidAmountError{Value: usdAmount, Reason: "not a decimal number"}
	}
	if !usd.IsPositive() {
		return "", decimal.Zero, &InvalidAmountError{Value: usdAmount, Reason: "must be positive"}
	}

	quote, err := oracle.CurrentPrice(ctx, net.PriceID)
	if err != nil {
		return "", decimal.Zero, err
	}

	display := int32(net.DisplayDecimals())
	native := usd.DivRound(quote, display+4).StringFixed(display)
	return native, quote, nil
}
