package fee

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"escrowrails/internal/ledger"
	"escrowrails/internal/network"
)

const (
	escrowCoreAddr = "0xA099937F48BEecd170EDdF20F66eb738F54d9b63"
	subMgrAddr     = "0x9C2d41Cbde1e37A0d9C7e769594cCbc84d486835"
	userAddr       = "0x1111111111111111111111111111111111111111"
)

var testContracts = network.ContractSet{
	EscrowCore:          escrowCoreAddr,
	SubscriptionManager: subMgrAddr,
}

func newResolver(t *testing.T, fake *ledger.FakeLedger) *Resolver {
	t.Helper()
	r, err := NewResolver(fake, testContracts, zerolog.Nop())
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	return r
}

func TestResolvePrimaryPath(t *testing.T) {
	fake := ledger.NewFakeLedger()
	fake.ScriptRead(escrowCoreAddr, "getUserFeePercentage", big.NewInt(250), common.HexToAddress(userAddr))

	pct, err := newResolver(t, fake).ResolveFeePercentage(context.Background(), userAddr)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !pct.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("expected 2.5%%, got %s", pct)
	}
}

func TestResolveFallsBackToSubscriptionManager(t *testing.T) {
	fake := ledger.NewFakeLedger()
	fake.ScriptReadError(escrowCoreAddr, "getUserFeePercentage", fmt.Errorf("contract not deployed"), common.HexToAddress(userAddr))
	fake.ScriptRead(subMgrAddr, "getUserFeeTier", big.NewInt(150), common.HexToAddress(userAddr))

	pct, err := newResolver(t, fake).ResolveFeePercentage(context.Background(), userAddr)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !pct.Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("expected 1.5%%, got %s", pct)
	}
}

func TestResolveBothPathsFail(t *testing.T) {
	fake := ledger.NewFakeLedger()
	fake.ScriptReadError(escrowCoreAddr, "getUserFeePercentage", fmt.Errorf("rpc timeout"), common.HexToAddress(userAddr))
	fake.ScriptReadError(subMgrAddr, "getUserFeeTier", fmt.Errorf("rpc timeout"), common.HexToAddress(userAddr))

	_, err := newResolver(t, fake).ResolveFeePercentage(context.Background(), userAddr)
	var unavailable *FeeUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected FeeUnavailableError, got %v", err)
	}
	if unavailable.User != userAddr {
		t.Fatalf("error names wrong user: %s", unavailable.User)
	}
}

func TestResolveRejectsBadAddress(t *testing.T) {
	fake := ledger.NewFakeLedger()
	_, err := newResolver(t, fake).ResolveFeePercentage(context.Background(), "not-an-address")
	var unavailable *FeeUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected FeeUnavailableError, got %v", err)
	}
}

func TestResolveRejectsBasisPointsOutOfRange(t *testing.T) {
	fake := ledger.NewFakeLedger()
	fake.ScriptRead(escrowCoreAddr, "getUserFeePercentage", big.NewInt(20000), common.HexToAddress(userAddr))
	fake.ScriptReadError(subMgrAddr, "getUserFeeTier", fmt.Errorf("down"), common.HexToAddress(userAddr))

	_, err := newResolver(t, fake).ResolveFeePercentage(context.Background(), userAddr)
	if err == nil {
		t.Fatal("expected error for out-of-range basis points")
	}
}

func TestResolveRejectsFullRateBasisPoints(t *testing.T) {
	// 10000 bps would be a 100% fee; the resolver must refuse it with an
	// error naming the fee, not pass it on for the amount math to trip over.
	fake := ledger.NewFakeLedger()
	fake.ScriptRead(escrowCoreAddr, "getUserFeePercentage", big.NewInt(10000), common.HexToAddress(userAddr))
	fake.ScriptReadError(subMgrAddr, "getUserFeeTier", fmt.Errorf("down"), common.HexToAddress(userAddr))

	_, err := newResolver(t, fake).ResolveFeePercentage(context.Background(), userAddr)
	var unavailable *FeeUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected FeeUnavailableError, got %v", err)
	}
	if !strings.Contains(err.Error(), "basis points") {
		t.Fatalf("error must name the fee rate: %v", err)
	}
}

func TestDisplayFeeFallsBackNonAuthoritative(t *testing.T) {
	fake := ledger.NewFakeLedger()
	fake.ScriptReadError(escrowCoreAddr, "getUserFeePercentage", fmt.Errorf("down"), common.HexToAddress(userAddr))
	fake.ScriptReadError(subMgrAddr, "getUserFeeTier", fmt.Errorf("down"), common.HexToAddress(userAddr))

	pct, authoritative := newResolver(t, fake).DisplayFeePercentage(context.Background(), userAddr)
	if authoritative {
		t.Fatal("fallback rate must be flagged non-authoritative")
	}
	if !pct.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("expected 2.5%% display fallback, got %s", pct)
	}
}

func TestPlanFeeTiersSkipsMissingPlans(t *testing.T) {
	fake := ledger.NewFakeLedger()
	fake.ScriptRead(subMgrAddr, "getPlanFeeTier", big.NewInt(250), uint8(0))
	fake.ScriptRead(subMgrAddr, "getPlanFeeTier", big.NewInt(200), uint8(1))
	fake.ScriptRead(subMgrAddr, "getPlanFeeTier", big.NewInt(150), uint8(2))
	// plan 3 left unscripted: the ledger has no such plan
	fake.ScriptRead(subMgrAddr, "getPlanFeeTier", big.NewInt(100), uint8(4))

	tiers := newResolver(t, fake).PlanFeeTiers(context.Background())
	if len(tiers) != 4 {
		t.Fatalf("expected 4 tiers, got %d: %v", len(tiers), tiers)
	}
	if _, ok := tiers[PlanTeamPro]; ok {
		t.Fatal("missing plan must be skipped, not defaulted")
	}
	if !tiers[PlanTeamEnterprise].Equal(decimal.RequireFromString("1")) {
		t.Fatalf("plan 4 = %s, want 1", tiers[PlanTeamEnterprise])
	}
}
