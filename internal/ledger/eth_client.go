package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// EthClient talks to an EVM chain over JSON-RPC. Reads work without a key;
// Submit requires one.
type EthClient struct {
	client    *ethclient.Client
	chainID   *big.Int
	bound     map[common.Address]*bind.BoundContract
	transacts *bind.TransactOpts
}

// ContractBinding pairs a deployed address with its ABI JSON.
type ContractBinding struct {
	Address string
	ABI     string
}

type EthClientConfig struct {
	RPCURL        string
	PrivateKeyHex string // optional; read-only client without it
	Contracts     []ContractBinding
}

func NewEthClient(ctx context.Context, cfg EthClientConfig) (*EthClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if len(cfg.Contracts) == 0 {
		return nil, fmt.Errorf("at least one contract binding is required")
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	bound := make(map[common.Address]*bind.BoundContract, len(cfg.Contracts))
	for _, binding := range cfg.Contracts {
		if !common.IsHexAddress(binding.Address) {
			return nil, fmt.Errorf("invalid contract address %q", binding.Address)
		}
		parsedABI, err := abi.JSON(strings.NewReader(binding.ABI))
		if err != nil {
			return nil, fmt.Errorf("parse abi for %s: %w", binding.Address, err)
		}
		addr := common.HexToAddress(binding.Address)
		bound[addr] = bind.NewBoundContract(addr, parsedABI, cli, cli, cli)
	}

	ec := &EthClient{client: cli, bound: bound}

	if cfg.PrivateKeyHex != "" {
		pk, err := parsePrivateKey(cfg.PrivateKeyHex)
		if err != nil {
			return nil, err
		}
		chainID, err := cli.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch chain id: %w", err)
		}
		txOpts, err := bind.NewKeyedTransactorWithChainID(pk, chainID)
		if err != nil {
			return nil, fmt.Errorf("transactor: %w", err)
		}
		txOpts.GasLimit = 0 // let node estimate
		ec.chainID = chainID
		ec.transacts = txOpts
	}

	return ec, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(hexKey, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func (c *EthClient) contractFor(contract string) (*bind.BoundContract, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid contract address %q", contract)
	}
	b, ok := c.bound[common.HexToAddress(contract)]
	if !ok {
		return nil, fmt.Errorf("no binding for contract %s", contract)
	}
	return b, nil
}

func (c *EthClient) ReadUint(ctx context.Context, contract string, method string, args ...any) (*big.Int, error) {
	b, err := c.contractFor(contract)
	if err != nil {
		return nil, err
	}

	var out []any
	if err := b.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("call %s.%s: %w", contract, method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("call %s.%s: empty result", contract, method)
	}

	switch v := out[0].(type) {
	case *big.Int:
		return v, nil
	case uint8:
		return big.NewInt(int64(v)), nil
	case uint16:
		return big.NewInt(int64(v)), nil
	case uint32:
		return big.NewInt(int64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("call %s.%s: unexpected result type %T", contract, method, out[0])
	}
}

func (c *EthClient) Submit(ctx context.Context, req TxRequest) (TxHandle, error) {
	if c.transacts == nil {
		return TxHandle{}, fmt.Errorf("client is read-only")
	}
	b, err := c.contractFor(req.Contract)
	if err != nil {
		return TxHandle{}, err
	}

	opts := *c.transacts
	opts.Context = ctx
	if req.Value != nil {
		opts.Value = req.Value
	}

	tx, err := b.Transact(&opts, req.Method, req.Args...)
	if err != nil {
		return TxHandle{}, fmt.Errorf("submit %s.%s: %w", req.Contract, req.Method, err)
	}
	return TxHandle{Hash: tx.Hash().Hex()}, nil
}

// Ping checks RPC liveness for health reporting.
func (c *EthClient) Ping(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("rpc client not configured")
	}
	_, err := c.client.BlockNumber(ctx)
	return err
}
