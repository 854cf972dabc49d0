package escrow

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"escrowrails/internal/amount"
	"escrowrails/internal/fee"
	"escrowrails/internal/ledger"
	"escrowrails/internal/network"
)

const (
	escrowCoreAddr = "0xA099937F48BEecd170EDdF20F66eb738F54d9b63"
	subMgrAddr     = "0x9C2d41Cbde1e37A0d9C7e769594cCbc84d486835"
	buyerAddr      = "0x1111111111111111111111111111111111111111"
	sellerAddr     = "0x2222222222222222222222222222222222222222"
)

var testNet = network.Descriptor{
	ChainID:        84532,
	Name:           "Base Sepolia",
	NativeSymbol:   "ETH",
	NativeDecimals: 18,
	PriceID:        "ethereum",
	Contracts: network.ContractSet{
		EscrowCore:          escrowCoreAddr,
		SubscriptionManager: subMgrAddr,
	},
}

func newService(t *testing.T, fake *ledger.FakeLedger) *Service {
	t.Helper()
	resolver, err := fee.NewResolver(fake, testNet.Contracts, zerolog.Nop())
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	svc, err := NewService(resolver, testNet, fake, zerolog.Nop())
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	return svc
}

func scriptSellerFee(fake *ledger.FakeLedger, bps int64) {
	fake.ScriptRead(escrowCoreAddr, "getUserFeePercentage", big.NewInt(bps), common.HexToAddress(sellerAddr))
}

func TestCreateUsesResolvedFee(t *testing.T) {
	fake := ledger.NewFakeLedger()
	scriptSellerFee(fake, 150) // enterprise tier, not the default rate

	result, err := newService(t, fake).Create(context.Background(), CreateParams{
		Buyer:       buyerAddr,
		Seller:      sellerAddr,
		HumanAmount: "100",
		AutoFund:    true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if result.Amounts.FeeExact.String() != "1500000000000000000" {
		t.Fatalf("fee = %s, expected the seller's 1.5%% tier", result.Amounts.FeeExact)
	}

	subs := fake.Submissions()
	if len(subs) != 1 {
		t.Fatalf("expected one submission, got %d", len(subs))
	}
	if subs[0].Method != "createEscrow" {
		t.Fatalf("method = %s", subs[0].Method)
	}
	if subs[0].Value.Cmp(result.Amounts.TotalExact) != 0 {
		t.Fatalf("attached value %s != total %s", subs[0].Value, result.Amounts.TotalExact)
	}
}

func TestCreateWithTemplateUsesEnhancedPath(t *testing.T) {
	fake := ledger.NewFakeLedger()
	scriptSellerFee(fake, 250)

	_, err := newService(t, fake).Create(context.Background(), CreateParams{
		Buyer:       buyerAddr,
		Seller:      sellerAddr,
		HumanAmount: "10",
		TemplateID:  "milestone-v2",
		Approvers:   []string{buyerAddr},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	subs := fake.Submissions()
	if subs[0].Method != "createEscrowWithTemplate" {
		t.Fatalf("method = %s, expected enhanced path", subs[0].Method)
	}
	if subs[0].Value != nil {
		t.Fatal("no value should be attached without autofund")
	}
}

func TestCreateBlockedWhenFeeUnavailable(t *testing.T) {
	fake := ledger.NewFakeLedger() // nothing scripted: both fee paths fail

	_, err := newService(t, fake).Create(context.Background(), CreateParams{
		Buyer:       buyerAddr,
		Seller:      sellerAddr,
		HumanAmount: "100",
	})
	var unavailable *fee.FeeUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected FeeUnavailableError, got %v", err)
	}
	if len(fake.Submissions()) != 0 {
		t.Fatal("no transaction may be submitted without an authoritative fee")
	}
}

func TestFundAttachesCreationTimeTotal(t *testing.T) {
	fake := ledger.NewFakeLedger()
	scriptSellerFee(fake, 250)
	svc := newService(t, fake)

	created, err := svc.Create(context.Background(), CreateParams{
		Buyer: buyerAddr, Seller: sellerAddr, HumanAmount: "100",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	ag := Agreement{
		ID: 7, Buyer: buyerAddr, Seller: sellerAddr,
		Amounts: created.Amounts, Status: StatusCreated,
	}
	_, err = svc.Transition(context.Background(), ag, OpFund, TransitionParams{Caller: buyerAddr})
	if err != nil {
		t.Fatalf("fund: %v", err)
	}

	subs := fake.Submissions()
	fund := subs[len(subs)-1]
	if fund.Method != "fundEscrow" {
		t.Fatalf("method = %s", fund.Method)
	}
	if fund.Value.Cmp(created.Amounts.TotalExact) != 0 {
		t.Fatalf("funding value %s != creation total %s", fund.Value, created.Amounts.TotalExact)
	}
}

func TestTransitionRejectedLocallyBeforeLedger(t *testing.T) {
	fake := ledger.NewFakeLedger()
	svc := newService(t, fake)

	ag := Agreement{ID: 1, Buyer: buyerAddr, Seller: sellerAddr, Status: StatusFunded}
	_, err := svc.Transition(context.Background(), ag, OpFund, TransitionParams{Caller: buyerAddr})
	var illegal *IllegalTransitionError
	if !errors.As(err, &illegal) {
		t.Fatalf("expected IllegalTransitionError, got %v", err)
	}
	if len(fake.Submissions()) != 0 {
		t.Fatal("illegal transition must never reach the ledger")
	}
}

func TestTransitionCallerPreconditions(t *testing.T) {
	fake := ledger.NewFakeLedger()
	svc := newService(t, fake)
	ctx := context.Background()

	ag := Agreement{ID: 1, Buyer: buyerAddr, Seller: sellerAddr, Status: StatusFunded}

	if _, err := svc.Transition(ctx, ag, OpMarkDelivered, TransitionParams{Caller: buyerAddr}); err == nil {
		t.Fatal("buyer must not mark delivered")
	}
	if _, err := svc.Transition(ctx, ag, OpRaiseDispute, TransitionParams{Caller: sellerAddr}); err == nil {
		t.Fatal("dispute without a reason must be rejected")
	}
	if _, err := svc.Transition(ctx, ag, OpRaiseDispute, TransitionParams{
		Caller: "0x3333333333333333333333333333333333333333", Reason: "late",
	}); err == nil {
		t.Fatal("outsider must not raise a dispute")
	}
	if _, err := svc.Transition(ctx, ag, OpRaiseDispute, TransitionParams{Caller: sellerAddr, Reason: "late"}); err != nil {
		t.Fatalf("seller dispute with reason: %v", err)
	}

	created := Agreement{ID: 2, Buyer: buyerAddr, Seller: sellerAddr, Status: StatusCreated,
		Approvers: []string{sellerAddr}, Amounts: amount.Triple{TotalExact: big.NewInt(1)}}
	if _, err := svc.Transition(ctx, created, OpApprove, TransitionParams{Caller: buyerAddr}); err == nil {
		t.Fatal("non-approver must not approve")
	}
	if _, err := svc.Transition(ctx, created, OpApprove, TransitionParams{Caller: sellerAddr}); err != nil {
		t.Fatalf("registered approver: %v", err)
	}
}

func TestCreateBatchSubmitsSummedValue(t *testing.T) {
	fake := ledger.NewFakeLedger()
	scriptSellerFee(fake, 250)
	otherSeller := "0x4444444444444444444444444444444444444444"
	fake.ScriptRead(escrowCoreAddr, "getUserFeePercentage", big.NewInt(150), common.HexToAddress(otherSeller))

	result, err := newService(t, fake).CreateBatch(context.Background(), BatchCreateParams{
		Items: []amount.BatchItem{
			{Seller: sellerAddr, HumanAmount: "100"},
			{Seller: otherSeller, HumanAmount: "50"},
		},
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}

	sum := new(big.Int).Add(result.PerItem[0].TotalExact, result.PerItem[1].TotalExact)
	if result.Total.Cmp(sum) != 0 {
		t.Fatalf("total %s != per-item sum %s", result.Total, sum)
	}

	subs := fake.Submissions()
	batch := subs[len(subs)-1]
	if batch.Method != "batchCreateEscrows" {
		t.Fatalf("method = %s", batch.Method)
	}
	if batch.Value.Cmp(sum) != 0 {
		t.Fatalf("attached value %s != sum %s", batch.Value, sum)
	}
}

func TestCreateBatchAbortsOnBadItem(t *testing.T) {
	fake := ledger.NewFakeLedger()
	scriptSellerFee(fake, 250)

	_, err := newService(t, fake).CreateBatch(context.Background(), BatchCreateParams{
		Items: []amount.BatchItem{
			{Seller: sellerAddr, HumanAmount: "100"},
			{Seller: sellerAddr, HumanAmount: "-1"},
		},
	})
	var itemErr *amount.BatchItemInvalidError
	if !errors.As(err, &itemErr) {
		t.Fatalf("expected BatchItemInvalidError, got %v", err)
	}
	if itemErr.Index != 1 {
		t.Fatalf("failing index = %d", itemErr.Index)
	}
	if len(fake.Submissions()) != 0 {
		t.Fatal("partial batch must not be submitted")
	}
}

func TestRefreshStatus(t *testing.T) {
	fake := ledger.NewFakeLedger()
	fake.ScriptRead(escrowCoreAddr, "getEscrowStatus", big.NewInt(int64(StatusFunded)), big.NewInt(9))

	status, err := newService(t, fake).RefreshStatus(context.Background(), 9)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if status != StatusFunded {
		t.Fatalf("status = %s", status)
	}

	fake.ScriptRead(escrowCoreAddr, "getEscrowStatus", big.NewInt(42), big.NewInt(10))
	if _, err := newService(t, fake).RefreshStatus(context.Background(), 10); err == nil {
		t.Fatal("unknown status code must be an error")
	}
}
