package zeth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"arbiter/chain"
	"arbiter/eth"
	"arbiter/metrics"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"
)

// Contract views the chain implementation needs: the solver allow-list on
// the authenticator, and the domain separator constant on the settlement
// contract.
var (
	authenticatorABI = mustABI(`[{
		"name": "isSolver",
		"type": "function",
		"stateMutability": "view",
		"inputs": [{"name": "prospectiveSolver", "type": "address"}],
		"outputs": [{"name": "", "type": "bool"}]
	}]`)

	settlementABI = mustABI(`[{
		"name": "domainSeparator",
		"type": "function",
		"stateMutability": "view",
		"outputs": [{"name": "", "type": "bytes32"}]
	}]`)
)

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Chain implements chain.Chain over a go-ethereum JSON-RPC client.
type Chain struct {
	chainID       *big.Int
	client        *ethclient.Client
	settlement    eth.Address
	authenticator eth.Address
	signer        types.Signer
}

var _ chain.Chain = (*Chain)(nil)

func Dial(ctx context.Context, rpcAddr string, settlement, authenticator eth.Address) (*Chain, error) {
	if rpcAddr == "" {
		return nil, fmt.Errorf("RPC address required")
	}

	client, err := ethclient.DialContext(ctx, rpcAddr)
	if err != nil {
		return nil, fmt.Errorf("dial %q: %w", rpcAddr, err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("get chain ID from %q: %w", rpcAddr, err)
	}

	return &Chain{
		chainID:       chainID,
		client:        client,
		settlement:    settlement,
		authenticator: authenticator,
		signer:        types.LatestSignerForChainID(chainID),
	}, nil
}

func (c *Chain) Close() {
	c.client.Close()
}

func (c *Chain) ID() string {
	return c.chainID.String()
}

func (c *Chain) LatestBlock(ctx context.Context) (uint64, error) {
	defer func(b time.Time) { metrics.OpWait("zeth_latest_block", time.Since(b)) }(time.Now())

	n, err := c.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("get block number: %w", err)
	}
	return n, nil
}

// Transaction fetches a mined transaction and its receipt. Pending and
// unknown transactions both report chain.ErrTxNotFound: callers only care
// about transactions that made it into a block.
func (c *Chain) Transaction(ctx context.Context, hash eth.Hash) (*chain.Transaction, error) {
	defer func(b time.Time) { metrics.OpWait("zeth_transaction", time.Since(b)) }(time.Now())

	tx, pending, err := c.client.TransactionByHash(ctx, hash)
	switch {
	case errors.Is(err, ethereum.NotFound):
		return nil, chain.ErrTxNotFound
	case err != nil:
		return nil, fmt.Errorf("get transaction %s: %w", hash, err)
	case pending:
		return nil, chain.ErrTxNotFound
	}

	receipt, err := c.client.TransactionReceipt(ctx, hash)
	switch {
	case errors.Is(err, ethereum.NotFound):
		return nil, chain.ErrTxNotFound
	case err != nil:
		return nil, fmt.Errorf("get receipt %s: %w", hash, err)
	}

	from, err := types.Sender(c.signer, tx)
	if err != nil {
		return nil, fmt.Errorf("recover sender of %s: %w", hash, err)
	}

	gasPrice, overflow := uint256.FromBig(receipt.EffectiveGasPrice)
	if overflow {
		return nil, fmt.Errorf("effective gas price of %s overflows", hash)
	}

	return &chain.Transaction{
		Hash:              hash,
		From:              from,
		Input:             tx.Data(),
		BlockNumber:       receipt.BlockNumber.Uint64(),
		Gas:               receipt.GasUsed,
		EffectiveGasPrice: gasPrice,
	}, nil
}

func (c *Chain) IsSolver(ctx context.Context, addr eth.Address) (bool, error) {
	defer func(b time.Time) { metrics.OpWait("zeth_is_solver", time.Since(b)) }(time.Now())

	data, err := authenticatorABI.Pack("isSolver", addr)
	if err != nil {
		return false, fmt.Errorf("pack isSolver call: %w", err)
	}

	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.authenticator, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("call isSolver(%s): %w", addr, err)
	}

	results, err := authenticatorABI.Unpack("isSolver", out)
	if err != nil {
		return false, fmt.Errorf("unpack isSolver result: %w", err)
	}

	ok, valid := results[0].(bool)
	if !valid {
		return false, fmt.Errorf("isSolver result is %T, not bool", results[0])
	}
	return ok, nil
}

func (c *Chain) DomainSeparator(ctx context.Context) (eth.DomainSeparator, error) {
	defer func(b time.Time) { metrics.OpWait("zeth_domain_separator", time.Since(b)) }(time.Now())

	data, err := settlementABI.Pack("domainSeparator")
	if err != nil {
		return eth.DomainSeparator{}, fmt.Errorf("pack domainSeparator call: %w", err)
	}

	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.settlement, Data: data}, nil)
	if err != nil {
		return eth.DomainSeparator{}, fmt.Errorf("call domainSeparator: %w", err)
	}

	results, err := settlementABI.Unpack("domainSeparator", out)
	if err != nil {
		return eth.DomainSeparator{}, fmt.Errorf("unpack domainSeparator result: %w", err)
	}

	sep, valid := results[0].([32]byte)
	if !valid {
		return eth.DomainSeparator{}, fmt.Errorf("domainSeparator result is %T, not bytes32", results[0])
	}
	return eth.DomainSeparator(sep), nil
}
