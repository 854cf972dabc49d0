package network

import (
	"errors"
	"testing"
)

func testDescriptors() []Descriptor {
	return []Descriptor{
		{ChainID: 296, Name: "Hedera Testnet", NativeSymbol: "HBAR", NativeDecimals: 18, PriceID: "hedera-hashgraph"},
		{ChainID: 84532, Name: "Base Sepolia", NativeSymbol: "ETH", NativeDecimals: 18, PriceID: "ethereum"},
		{ChainID: 31, Name: "Rootstock Testnet", NativeSymbol: "RBTC", NativeDecimals: 8, PriceID: "rootstock"},
	}
}

func TestRegistryLookup(t *testing.T) {
	reg, err := NewRegistry(testDescriptors())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	d, err := reg.ByChainID(296)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if d.NativeSymbol != "HBAR" || d.NativeDecimals != 18 {
		t.Fatalf("wrong descriptor: %+v", d)
	}
}

func TestRegistryUnknownChainIsHardError(t *testing.T) {
	reg, err := NewRegistry(testDescriptors())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	_, err = reg.ByChainID(999999)
	if err == nil {
		t.Fatal("expected error for unknown chain")
	}
	var unsupported *UnsupportedNetworkError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedNetworkError, got %v", err)
	}
	if unsupported.ChainID != 999999 {
		t.Fatalf("error carries wrong chain id: %d", unsupported.ChainID)
	}
}

func TestRegistryRejectsMissingDecimals(t *testing.T) {
	_, err := NewRegistry([]Descriptor{{ChainID: 1, Name: "bad"}})
	if err == nil {
		t.Fatal("expected error for descriptor without decimals")
	}
}

func TestDisplayDecimals(t *testing.T) {
	cases := []struct {
		native  int
		display int
	}{
		{18, 9},
		{8, 4},
		{9, 5},
	}
	for _, tc := range cases {
		d := Descriptor{NativeDecimals: tc.native}
		if got := d.DisplayDecimals(); got != tc.display {
			t.Fatalf("decimals %d: expected %d got %d", tc.native, tc.display, got)
		}
	}
}
