package escrow

import "fmt"

// Status mirrors the on-chain escrow status codes. The ledger owns the real
// state; values held here are a read-through cache refreshed after each
// confirmed transition.
type Status uint8

const (
	StatusCreated Status = iota
	StatusFunded
	StatusDelivered
	StatusConfirmed
	StatusDisputed
	StatusRefunded
	StatusCancelled
	StatusCompleted
)

var statusNames = map[Status]string{
	StatusCreated:   "CREATED",
	StatusFunded:    "FUNDED",
	StatusDelivered: "DELIVERED",
	StatusConfirmed: "CONFIRMED",
	StatusDisputed:  "DISPUTED",
	StatusRefunded:  "REFUNDED",
	StatusCancelled: "CANCELLED",
	StatusCompleted: "COMPLETED",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(s))
}

func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// Terminal reports whether no further operation can move the escrow.
func (s Status) Terminal() bool {
	switch s {
	case StatusRefunded, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}
