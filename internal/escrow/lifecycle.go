package escrow

import (
	"fmt"
	"sort"
)

// Operation names one lifecycle transition. Each maps to exactly one ledger
// transaction.
type Operation string

const (
	OpFund            Operation = "fund"
	OpMarkDelivered   Operation = "markDelivered"
	OpConfirmDelivery Operation = "confirmDelivery"
	OpRaiseDispute    Operation = "raiseDispute"
	OpCancel          Operation = "cancel"
	OpApprove         Operation = "approve"
)

// transitions lists, per operation, the statuses it is legal from and the
// status the ledger is expected to land in. Dispute resolution (DISPUTED to
// REFUNDED or COMPLETED) happens through arbitration, outside this engine,
// so it has no operation here. approve keeps the escrow in CREATED: it only
// unlocks funding on multi-sig escrows.
var transitions = map[Operation]map[Status]Status{
	OpFund:            {StatusCreated: StatusFunded},
	OpMarkDelivered:   {StatusFunded: StatusDelivered},
	OpConfirmDelivery: {StatusDelivered: StatusCompleted},
	OpRaiseDispute:    {StatusFunded: StatusDisputed, StatusDelivered: StatusDisputed},
	OpCancel:          {StatusCreated: StatusCancelled},
	OpApprove:         {StatusCreated: StatusCreated},
}

// IllegalTransitionError rejects an operation locally, before any ledger
// call, so a provably-invalid transaction never wastes fees.
type IllegalTransitionError struct {
	Op   Operation
	From Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("operation %s is not legal from status %s", e.Op, e.From)
}

// NextStatus returns the expected landing status of op from current, or
// IllegalTransitionError when the table has no such edge.
func NextStatus(current Status, op Operation) (Status, error) {
	edges, ok := transitions[op]
	if !ok {
		return 0, &IllegalTransitionError{Op: op, From: current}
	}
	next, ok := edges[current]
	if !ok {
		return 0, &IllegalTransitionError{Op: op, From: current}
	}
	return next, nil
}

// NextOperations lists every operation legal from current, sorted for
// deterministic output.
func NextOperations(current Status) []Operation {
	var ops []Operation
	for op, edges := range transitions {
		if _, ok := edges[current]; ok {
			ops = append(ops, op)
		}
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}
