package escrow

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"escrowrails/internal/amount"
	"escrowrails/internal/fee"
	"escrowrails/internal/ledger"
	"escrowrails/internal/network"
)

const defaultDisputeWindow = 7 * 24 * time.Hour

// Agreement is the engine's view of one escrow. The ledger assigns the ID and
// owns the record; the decomposition is fixed at creation time and reused for
// funding so the funded value always matches what creation quoted.
type Agreement struct {
	ID        int64
	Buyer     string
	Seller    string
	Amounts   amount.Triple
	Status    Status
	Approvers []string
}

// CreateParams describes a new escrow. TemplateID or Approvers being present
// selects the enhanced creation path; amount rules are identical either way.
type CreateParams struct {
	Buyer         string
	Seller        string
	HumanAmount   string
	DisputeWindow time.Duration
	Metadata      string
	TemplateID    string
	Approvers     []string
	AutoFund      bool
}

// CreateResult reports what was submitted. FeePercentage is the resolved,
// ledger-derived rate that produced Amounts.
type CreateResult struct {
	Tx            ledger.TxHandle
	Amounts       amount.Triple
	FeePercentage decimal.Decimal
}

// TransitionParams carries what a lifecycle operation needs beyond the
// agreement itself.
type TransitionParams struct {
	Caller string
	Reason string // required for raiseDispute
}

// Service drives escrow lifecycle transactions. It validates transitions
// locally against the agreement's last known status, builds the parameter set
// for the ledger call, and never assumes a transition happened before the
// ledger confirms it.
type Service struct {
	resolver   *fee.Resolver
	net        network.Descriptor
	ledger     ledger.ReadWriter
	escrowCore string
	log        zerolog.Logger
}

func NewService(resolver *fee.Resolver, net network.Descriptor, rw ledger.ReadWriter, log zerolog.Logger) (*Service, error) {
	if net.Contracts.EscrowCore == "" {
		return nil, fmt.Errorf("escrow core not deployed on chain %d", net.ChainID)
	}
	return &Service{
		resolver:   resolver,
		net:        net,
		ledger:     rw,
		escrowCore: net.Contracts.EscrowCore,
		log:        log.With().Str("component", "escrow").Int64("chain", net.ChainID).Logger(),
	}, nil
}

// Create decomposes the requested amount with the seller's resolved fee and
// submits the creation transaction. The fee always comes from the resolver;
// there is no hard-coded rate on any path that moves money.
func (s *Service) Create(ctx context.Context, p CreateParams) (CreateResult, error) {
	if !common.IsHexAddress(p.Seller) {
		return CreateResult{}, fmt.Errorf("invalid seller address %q", p.Seller)
	}

	pct, err := s.resolver.ResolveFeePercentage(ctx, p.Seller)
	if err != nil {
		return CreateResult{}, err
	}
	amounts, err := amount.Decompose(p.HumanAmount, pct, s.net)
	if err != nil {
		return CreateResult{}, err
	}

	window := p.DisputeWindow
	if window <= 0 {
		window = defaultDisputeWindow
	}

	req := ledger.TxRequest{Contract: s.escrowCore}
	if p.TemplateID != "" || len(p.Approvers) > 0 {
		approvers := make([]common.Address, 0, len(p.Approvers))
		for _, a := range p.Approvers {
			if !common.IsHexAddress(a) {
				return CreateResult{}, fmt.Errorf("invalid approver address %q", a)
			}
			approvers = append(approvers, common.HexToAddress(a))
		}
		req.Method = "createEscrowWithTemplate"
		req.Args = []any{
			common.HexToAddress(p.Seller),
			amounts.BaseExact,
			big.NewInt(int64(window.Seconds())),
			p.Metadata,
			p.TemplateID,
			approvers,
		}
	} else {
		req.Method = "createEscrow"
		req.Args = []any{
			common.HexToAddress(p.Seller),
			amounts.BaseExact,
			big.NewInt(int64(window.Seconds())),
			p.Metadata,
		}
	}
	if p.AutoFund {
		req.Value = amounts.TotalExact
	}

	tx, err := s.ledger.Submit(ctx, req)
	if err != nil {
		return CreateResult{}, err
	}

	s.log.Info().Str("seller", p.Seller).Str("method", req.Method).
		Str("total", amounts.TotalExact.String()).Str("tx", tx.Hash).Msg("escrow creation submitted")
	return CreateResult{Tx: tx, Amounts: amounts, FeePercentage: pct}, nil
}

// BatchCreateParams holds parallel slices the batch contract call expects.
// DisputeWindows and Metadatas may be shorter than Items; missing entries get
// the defaults.
type BatchCreateParams struct {
	Items          []amount.BatchItem
	DisputeWindows []time.Duration
	Metadatas      []string
}

type BatchCreateResult struct {
	Tx      ledger.TxHandle
	PerItem []amount.Triple
	Total   *big.Int
}

// CreateBatch creates several escrows in one transaction. Per-item amounts
// use each seller's own resolved fee; the attached value is the integer sum
// of every item's total.
func (s *Service) CreateBatch(ctx context.Context, p BatchCreateParams) (BatchCreateResult, error) {
	result, err := amount.AggregateBatch(ctx, p.Items, s.resolver.ResolveFeePercentage, s.net)
	if err != nil {
		return BatchCreateResult{}, err
	}

	sellers := make([]common.Address, len(p.Items))
	amounts := make([]*big.Int, len(p.Items))
	windows := make([]*big.Int, len(p.Items))
	metadatas := make([]string, len(p.Items))
	for i, item := range p.Items {
		if !common.IsHexAddress(item.Seller) {
			return BatchCreateResult{}, &amount.BatchItemInvalidError{
				Index: i, Err: fmt.Errorf("invalid seller address %q", item.Seller),
			}
		}
		sellers[i] = common.HexToAddress(item.Seller)
		amounts[i] = result.PerItem[i].BaseExact
		window := defaultDisputeWindow
		if i < len(p.DisputeWindows) && p.DisputeWindows[i] > 0 {
			window = p.DisputeWindows[i]
		}
		windows[i] = big.NewInt(int64(window.Seconds()))
		if i < len(p.Metadatas) {
			metadatas[i] = p.Metadatas[i]
		}
	}

	tx, err := s.ledger.Submit(ctx, ledger.TxRequest{
		Contract: s.escrowCore,
		Method:   "batchCreateEscrows",
		Args:     []any{sellers, amounts, windows, metadatas},
		Value:    result.TotalExact,
	})
	if err != nil {
		return BatchCreateResult{}, err
	}

	s.log.Info().Int("items", len(p.Items)).Str("total", result.TotalExact.String()).
		Str("tx", tx.Hash).Msg("batch escrow creation submitted")
	return BatchCreateResult{Tx: tx, PerItem: result.PerItem, Total: result.TotalExact}, nil
}

// Transition validates op against the agreement's last known status and the
// caller preconditions, then submits the matching ledger transaction. The
// returned handle does not mean the transition happened; refresh the status
// once the transaction confirms.
func (s *Service) Transition(ctx context.Context, ag Agreement, op Operation, p TransitionParams) (ledger.TxHandle, error) {
	if _, err := NextStatus(ag.Status, op); err != nil {
		return ledger.TxHandle{}, err
	}
	if err := checkCaller(ag, op, p); err != nil {
		return ledger.TxHandle{}, err
	}

	id := big.NewInt(ag.ID)
	req := ledger.TxRequest{Contract: s.escrowCore}
	switch op {
	case OpFund:
		req.Method = "fundEscrow"
		req.Args = []any{id}
		req.Value = ag.Amounts.TotalExact
	case OpMarkDelivered:
		req.Method = "markDelivered"
		req.Args = []any{id}
	case OpConfirmDelivery:
		req.Method = "confirmDelivery"
		req.Args = []any{id}
	case OpRaiseDispute:
		req.Method = "raiseDispute"
		req.Args = []any{id, p.Reason}
	case OpCancel:
		req.Method = "cancelEscrow"
		req.Args = []any{id}
	case OpApprove:
		req.Method = "approveEscrow"
		req.Args = []any{id}
	default:
		return ledger.TxHandle{}, &IllegalTransitionError{Op: op, From: ag.Status}
	}

	tx, err := s.ledger.Submit(ctx, req)
	if err != nil {
		return ledger.TxHandle{}, err
	}
	s.log.Info().Int64("escrow", ag.ID).Str("op", string(op)).Str("tx", tx.Hash).Msg("transition submitted")
	return tx, nil
}

// RefreshStatus reads the escrow's current status from the ledger.
func (s *Service) RefreshStatus(ctx context.Context, escrowID int64) (Status, error) {
	raw, err := s.ledger.ReadUint(ctx, s.escrowCore, "getEscrowStatus", big.NewInt(escrowID))
	if err != nil {
		return 0, fmt.Errorf("refresh escrow %d: %w", escrowID, err)
	}
	status := Status(raw.Uint64())
	if !status.Valid() {
		return 0, fmt.Errorf("escrow %d: ledger reported unknown status %s", escrowID, raw)
	}
	return status, nil
}

func checkCaller(ag Agreement, op Operation, p TransitionParams) error {
	caller := strings.ToLower(p.Caller)
	isBuyer := caller != "" && caller == strings.ToLower(ag.Buyer)
	isSeller := caller != "" && caller == strings.ToLower(ag.Seller)

	switch op {
	case OpFund, OpConfirmDelivery, OpCancel:
		if !isBuyer {
			return fmt.Errorf("operation %s: caller %s is not the buyer", op, p.Caller)
		}
	case OpMarkDelivered:
		if !isSeller {
			return fmt.Errorf("operation %s: caller %s is not the seller", op, p.Caller)
		}
	case OpRaiseDispute:
		if !isBuyer && !isSeller {
			return fmt.Errorf("operation %s: caller %s is neither buyer nor seller", op, p.Caller)
		}
		if strings.TrimSpace(p.Reason) == "" {
			return fmt.Errorf("operation %s: reason is required", op)
		}
	case OpApprove:
		for _, a := range ag.Approvers {
			if caller == strings.ToLower(a) {
				return nil
			}
		}
		return fmt.Errorf("operation %s: caller %s is not a registered approver", op, p.Caller)
	}
	return nil
}
