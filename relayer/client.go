// Package relayer implements the RelayerClient of §6: signed on-chain writes
// against a per-chain relayer contract (root submission, request
// processing) and a vault entry point (withdraw completion). Grounded on
// contracts/reward/reward.go's Session-over-bind.BoundContract wiring and
// client/bridge_client.go's per-call error propagation idiom.
package relayer

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	gethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/chainpipe/chainpipe/errs"
	"github.com/chainpipe/chainpipe/logging"
)

var logger = logging.Named("relayer")

// Client is the RelayerClient capability (§6/§4.8/§4.9): submitRoot,
// processRequest(approve/reject) and completeWithdraw.
type Client interface {
	SubmitRoot(ctx context.Context, chainID uint64, root [32]byte) error
	ProcessRequest(ctx context.Context, chainID uint64, requestID [32]byte, approved bool) (status uint8, errorData []byte, err error)
	CompleteWithdraw(ctx context.Context, chainID uint64, handler gethcommon.Address, requestID [32]byte, proof [][32]byte, additionalData []byte) error
}

// chainBinding holds the bound contracts and signer for one chain. Calls
// against a single chain are serialized by mu to avoid nonce races (§5).
type chainBinding struct {
	mu       sync.Mutex
	opts     *bind.TransactOpts
	relayer  *bind.BoundContract
	vault    *bind.BoundContract
	backend  bind.ContractBackend
}

// EVMClient is the go-ethereum-backed Client implementation. One instance
// serves every configured chain; RegisterChain wires up each chain's
// contract addresses and signer before first use.
type EVMClient struct {
	mu     sync.RWMutex
	chains map[uint64]*chainBinding
}

// New constructs an EVMClient with no chains registered yet.
func New() *EVMClient {
	return &EVMClient{chains: make(map[uint64]*chainBinding)}
}

// RegisterChain wires the relayer and vault-handler contract addresses for
// chainID against backend, signing transactions with signer.
func (c *EVMClient) RegisterChain(chainID uint64, backend bind.ContractBackend, signer *bind.TransactOpts, relayerAddr, vaultHandlerAddr gethcommon.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chains[chainID] = &chainBinding{
		opts:    signer,
		relayer: bind.NewBoundContract(relayerAddr, relayerABI, backend, backend, backend),
		vault:   bind.NewBoundContract(vaultHandlerAddr, vaultHandlerABI, backend, backend, backend),
		backend: backend,
	}
}

func (c *EVMClient) binding(chainID uint64) (*chainBinding, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.chains[chainID]
	if !ok {
		return nil, errs.Invariant("relayer: no contract binding registered for chain %d", chainID)
	}
	return b, nil
}

// SubmitRoot calls updateNFTOwnershipRoot(root) on chainID's relayer
// contract. Per §4.8 step 5, a failure here is the caller's to log; it must
// not block other chains or future updates.
func (c *EVMClient) SubmitRoot(ctx context.Context, chainID uint64, root [32]byte) error {
	b, err := c.binding(chainID)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	opts := *b.opts
	opts.Context = ctx
	tx, err := b.relayer.Transact(&opts, "updateNFTOwnershipRoot", root)
	if err != nil {
		return errs.Transient(err)
	}
	logger.Infow("submitted ownership root", "chain", chainID, "tx", tx.Hash().Hex())
	return nil
}

// ProcessRequest calls processRequest(requestId, approved). The method's
// (status, errorData) outputs are recovered with a constant call against
// the same arguments before the state-changing transaction is sent, since a
// sent transaction's return values are not directly observable off-chain.
func (c *EVMClient) ProcessRequest(ctx context.Context, chainID uint64, requestID [32]byte, approved bool) (uint8, []byte, error) {
	b, err := c.binding(chainID)
	if err != nil {
		return 0, nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []interface{}
	callOpts := &bind.CallOpts{Context: ctx, From: b.opts.From}
	if err := b.relayer.Call(callOpts, &out, "processRequest", requestID, approved); err != nil {
		return 0, nil, errs.Transient(err)
	}
	status, _ := out[0].(uint8)
	errorData, _ := out[1].([]byte)

	opts := *b.opts
	opts.Context = ctx
	tx, err := b.relayer.Transact(&opts, "processRequest", requestID, approved)
	if err != nil {
		return status, errorData, errs.Transient(err)
	}
	logger.Infow("submitted processRequest", "chain", chainID, "requestId", gethcommon.BytesToHash(requestID[:]).Hex(), "approved", approved, "tx", tx.Hash().Hex())
	return status, errorData, nil
}

// CompleteWithdraw calls completeWithdraw(handler, requestId, proof,
// additionalData) on chainID's vault entry point (§4.9).
func (c *EVMClient) CompleteWithdraw(ctx context.Context, chainID uint64, handler gethcommon.Address, requestID [32]byte, proof [][32]byte, additionalData []byte) error {
	b, err := c.binding(chainID)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	opts := *b.opts
	opts.Context = ctx
	tx, err := b.vault.Transact(&opts, "completeWithdraw", handler, requestID, proof, additionalData)
	if err != nil {
		return errs.Transient(err)
	}
	logger.Infow("submitted completeWithdraw", "chain", chainID, "requestId", gethcommon.BytesToHash(requestID[:]).Hex(), "tx", tx.Hash().Hex())
	return nil
}
