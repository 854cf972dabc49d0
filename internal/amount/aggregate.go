package amount

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"

	"escrowrails/internal/network"
)

// BatchItem is one escrow creation inside a batch transaction.
type BatchItem struct {
	Seller      string
	HumanAmount string
}

// BatchResult preserves input order in PerItem; TotalExact is the integer sum
// of every item's TotalExact, never a reconverted decimal sum.
type BatchResult struct {
	PerItem    []Triple
	TotalExact *big.Int
}

// BatchItemInvalidError identifies which batch member failed. The underlying
// transaction is all-or-nothing, so a partial result is never returned.
type BatchItemInvalidError struct {
	Index int
	Err   error
}

func (e *BatchItemInvalidError) Error() string {
	return fmt.Sprintf("batch item %d: %v", e.Index, e.Err)
}

func (e *BatchItemInvalidError) Unwrap() error { return e.Err }

// FeeLookup resolves the fee percentage for a seller. Batch items can carry
// different percentages because each seller's subscription tier is consulted.
type FeeLookup func(ctx context.Context, seller string) (decimal.Decimal, error)

// AggregateBatch decomposes every item independently and sums the totals.
// Items are processed concurrently; results keep input order regardless of
// completion order. The lowest-index failure wins when several items fail.
func AggregateBatch(ctx context.Context, items []BatchItem, fees FeeLookup, net network.Descriptor) (BatchResult, error) {
	if len(items) == 0 {
		return BatchResult{}, &InvalidAmountError{Value: "", Reason: "empty batch"}
	}

	triples := make([]Triple, len(items))
	errs := make([]error, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item BatchItem) {
			defer wg.Done()
			pct, err := fees(ctx, item.Seller)
			if err != nil {
				errs[i] = err
				return
			}
			triple, err := Decompose(item.HumanAmount, pct, net)
			if err != nil {
				errs[i] = err
				return
			}
			triples[i] = triple
		}(i, item)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return BatchResult{}, &BatchItemInvalidError{Index: i, Err: err}
		}
	}

	total := new(big.Int)
	for _, triple := range triples {
		total.Add(total, triple.TotalExact)
	}
	return BatchResult{PerItem: triples, TotalExact: total}, nil
}
