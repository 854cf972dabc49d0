package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
)

// FakeLedger is an in-memory scripted ledger for tests and local development.
// Reads are served from a table keyed by contract, method and rendered args;
// submissions are recorded and acknowledged with a deterministic hash.
type FakeLedger struct {
	mu       sync.Mutex
	reads    map[string]*big.Int
	readErrs map[string]error
	subs     []TxRequest
}

func NewFakeLedger() *FakeLedger {
	return &FakeLedger{
		reads:    make(map[string]*big.Int),
		readErrs: make(map[string]error),
	}
}

func readKey(contract, method string, args ...any) string {
	return fmt.Sprintf("%s|%s|%v", contract, method, args)
}

// ScriptRead installs a read result for the given call shape.
func (f *FakeLedger) ScriptRead(contract, method string, value *big.Int, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[readKey(contract, method, args...)] = value
}

// ScriptReadError makes the given call shape fail.
func (f *FakeLedger) ScriptReadError(contract, method string, err error, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErrs[readKey(contract, method, args...)] = err
}

func (f *FakeLedger) ReadUint(_ context.Context, contract string, method string, args ...any) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := readKey(contract, method, args...)
	if err, ok := f.readErrs[key]; ok {
		return nil, err
	}
	if v, ok := f.reads[key]; ok {
		return new(big.Int).Set(v), nil
	}
	return nil, fmt.Errorf("unscripted read %s.%s %v", contract, method, args)
}

func (f *FakeLedger) Submit(_ context.Context, req TxRequest) (TxHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, req)

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%v|%v", req.Contract, req.Method, req.Args, req.Value)))
	return TxHandle{Hash: "0x" + hex.EncodeToString(sum[:])}, nil
}

// Submissions returns a copy of every recorded transaction request.
func (f *FakeLedger) Submissions() []TxRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]TxRequest, len(f.subs))
	copy(out, f.subs)
	return out
}
