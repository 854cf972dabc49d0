package network

import (
	"fmt"
	"sort"
)

// Descriptor holds the per-chain facts every amount conversion depends on.
// NativeDecimals is authoritative: an unknown chain is a hard error, never
// defaulted to 18.
type Descriptor struct {
	ChainID        int64
	Name           string
	NativeSymbol   string
	NativeDecimals int
	PriceID        string // CoinGecko identifier for the native currency
	Contracts      ContractSet
}

// ContractSet lists the deployed contract addresses on a chain. Empty
// addresses mean the contract is not deployed there.
type ContractSet struct {
	EscrowCore          string
	SubscriptionManager string
}

// UnsupportedNetworkError reports a chain this service has no descriptor for.
type UnsupportedNetworkError struct {
	ChainID int64
}

func (e *UnsupportedNetworkError) Error() string {
	return fmt.Sprintf("unsupported network: chain %d", e.ChainID)
}

// Registry is a read-only lookup table of supported chains. It is built once
// at startup and injected into every component that converts amounts.
type Registry struct {
	byChainID map[int64]Descriptor
}

func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	byID := make(map[int64]Descriptor, len(descriptors))
	for _, d := range descriptors {
		if d.ChainID == 0 {
			return nil, fmt.Errorf("descriptor %q has no chain id", d.Name)
		}
		if d.NativeDecimals <= 0 {
			return nil, fmt.Errorf("chain %d (%s) has no native decimals", d.ChainID, d.Name)
		}
		if _, dup := byID[d.ChainID]; dup {
			return nil, fmt.Errorf("duplicate descriptor for chain %d", d.ChainID)
		}
		byID[d.ChainID] = d
	}
	return &Registry{byChainID: byID}, nil
}

// ByChainID returns the descriptor for chainID or UnsupportedNetworkError.
func (r *Registry) ByChainID(chainID int64) (Descriptor, error) {
	d, ok := r.byChainID[chainID]
	if !ok {
		return Descriptor{}, &UnsupportedNetworkError{ChainID: chainID}
	}
	return d, nil
}

// ChainIDs lists the supported chains in ascending order.
func (r *Registry) ChainIDs() []int64 {
	ids := make([]int64, 0, len(r.byChainID))
	for id := range r.byChainID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// DisplayDecimals is the precision used for human-facing native amounts:
// half the chain's native precision, rounded up (9 for 18-decimal chains,
// 4 for 8-decimal chains).
func (d Descriptor) DisplayDecimals() int {
	return (d.NativeDecimals + 1) / 2
}
