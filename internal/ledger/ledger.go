package ledger

import (
	"context"
	"math/big"
)

// Reader performs view calls against a deployed contract. The ledger, not
// this service, is the source of truth for everything a Reader returns.
type Reader interface {
	// ReadUint calls a view method expected to return a single unsigned
	// integer (fee basis points, tier indexes, escrow status codes).
	ReadUint(ctx context.Context, contract string, method string, args ...any) (*big.Int, error)
}

// TxRequest describes one state-changing contract call. Value is the native
// amount attached to the transaction in exact integer units; nil means zero.
type TxRequest struct {
	Contract string
	Method   string
	Args     []any
	Value    *big.Int
}

// TxHandle identifies a submitted transaction. Confirmation tracking is the
// caller's concern.
type TxHandle struct {
	Hash string
}

// Writer submits transactions. Submitted writes are never retried here; the
// caller owns idempotency.
type Writer interface {
	Submit(ctx context.Context, req TxRequest) (TxHandle, error)
}

// ReadWriter is what the escrow lifecycle needs: status reads plus
// transition submissions.
type ReadWriter interface {
	Reader
	Writer
}
