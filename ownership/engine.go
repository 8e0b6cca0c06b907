// Package ownership implements C2: OwnershipStore-backed ownership snapshots
// and the MerkleEngine of §4.8 — incremental snapshot maintenance, sorted-
// pair keccak256 tree construction, proof issuance/verification and
// multi-chain root submission.
package ownership

import (
	"context"
	"math/big"
	"sync"

	gethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/chainpipe/chainpipe/errs"
	"github.com/chainpipe/chainpipe/logging"
	"github.com/chainpipe/chainpipe/ownership/store"
	"github.com/chainpipe/chainpipe/relayer"
)

var logger = logging.Named("ownership")

// Proof is the §4.8 getProof result.
type Proof struct {
	Proof    [][32]byte
	Root     [32]byte
	Verified bool
}

// DepositLookup is the fallback ownership check (§4.8: "a fallback 'has
// prior deposit' lookup may be consulted only if Merkle verification is
// unavailable"), satisfied by ledger.Ledger in the wired binary.
type DepositLookup interface {
	HasDeposit(ctx context.Context, owner string, tokenID *big.Int) (bool, error)
}

// Engine is the MerkleEngine (C2). It keeps an in-memory ownership snapshot
// derived incrementally from the store (§9's rewrite note: the tree is
// rebuilt from this map, not from a fresh store scan, on each trigger) and
// submits new roots to every chain with a registered relayer.
type Engine struct {
	mu       sync.Mutex
	store    store.Store
	relayer  relayer.Client
	chains   []uint64
	deposits DepositLookup

	snapshot   map[string]gethcommon.Address // tokenId (decimal string) -> owner
	pendingIDs []uint64                      // transfer rows not yet marked includedInMerkle
	loaded     bool
}

// New constructs an Engine. chains lists every chain id with a configured
// relayer contract, used by the auto-submission fan-out (§4.8 step 5).
func New(st store.Store, rc relayer.Client, chains []uint64, deposits DepositLookup) *Engine {
	return &Engine{
		store:    st,
		relayer:  rc,
		chains:   chains,
		deposits: deposits,
		snapshot: make(map[string]gethcommon.Address),
	}
}

// SetDepositLookup wires the §4.8 escape-hatch fallback after construction,
// for callers (e.g. cmd/consumer) where the fallback implementation itself
// depends on this Engine as its OwnershipVerifier and so cannot be built
// before New returns.
func (e *Engine) SetDepositLookup(d DepositLookup) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deposits = d
}

// Load bootstraps the in-memory snapshot from the store, required once
// before the first OnTransfer after a process restart — the §9 incremental
// rewrite only avoids re-scanning on every transfer, not on cold start.
func (e *Engine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	transfers, err := e.store.ListOrderedByBlock(ctx)
	if err != nil {
		return err
	}
	e.snapshot = foldSnapshot(transfers)
	e.pendingIDs = e.pendingIDs[:0]
	for _, t := range transfers {
		if !t.IncludedInMerkle {
			e.pendingIDs = append(e.pendingIDs, t.ID)
		}
	}
	e.loaded = true
	return nil
}

// OnTransfer records a new NftTransfer and runs the §4.8 "auto mode"
// pipeline: fold the transfer into the in-memory snapshot (no store
// re-scan), rebuild the tree from that snapshot, mark newly-included
// transfers, and fan out root submission to every configured chain. Load
// must have been called once since process start before the first call.
func (e *Engine) OnTransfer(ctx context.Context, t store.Transfer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return errs.Invariant("ownership: engine used before Load")
	}

	saved, err := e.store.Append(ctx, t)
	if err != nil {
		return err
	}
	e.applyLocked(saved)
	e.pendingIDs = append(e.pendingIDs, saved.ID)

	leaves, _ := snapshotLeaves(e.snapshot)
	tree, err := Build(leaves)
	if err != nil {
		// No live leaves yet (e.g. the only transfer so far is a burn): not
		// an error, just nothing to commit (§4.8's failure semantics).
		logger.Debugw("merkle build skipped, no live leaves", "err", err)
		return nil
	}
	root := tree.RootHex()

	if len(e.pendingIDs) > 0 {
		if err := e.store.MarkIncluded(ctx, e.pendingIDs, root); err != nil {
			return err
		}
		e.pendingIDs = e.pendingIDs[:0]
	}

	rootHash := tree.Root()
	for _, chainID := range e.chains {
		if err := e.relayer.SubmitRoot(ctx, chainID, rootHash); err != nil {
			logger.Errorw("root submission failed, will retry on next trigger", "chain", chainID, "root", root, "err", err)
		}
	}
	return nil
}

// applyLocked folds a single new transfer into the in-memory snapshot.
func (e *Engine) applyLocked(t store.Transfer) {
	key := t.TokenID.String()
	if isZeroAddress(t.To) {
		delete(e.snapshot, key)
		return
	}
	e.snapshot[key] = gethcommon.HexToAddress(t.To)
}

// GetProof implements §4.8's getProof: reconstruct the tree as of the latest
// committed root and return a self-verifying proof for (owner, tokenId), or
// nil if owner does not currently hold tokenId.
func (e *Engine) GetProof(ctx context.Context, owner gethcommon.Address, tokenID *big.Int) (*Proof, error) {
	latest, err := e.store.LatestWithRoot(ctx)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}
	transfers, err := e.store.ListUpToBlock(ctx, latest.BlockNumber)
	if err != nil {
		return nil, err
	}
	snapshot := foldSnapshot(transfers)
	if snapshot[tokenID.String()] != owner {
		return nil, nil
	}

	leaves, ids := snapshotLeaves(snapshot)
	tree, err := Build(leaves)
	if err != nil {
		return nil, nil
	}
	index := indexOf(ids, tokenID)
	if index < 0 {
		return nil, nil
	}
	proof, err := tree.Proof(index)
	if err != nil {
		return nil, err
	}
	root := tree.Root()
	if !VerifyProof(leaves[index], proof, root) {
		return nil, errs.Invariant("merkle: reconstructed proof failed self-verification for tokenId %s", tokenID)
	}
	return &Proof{Proof: proof, Root: root, Verified: true}, nil
}

// VerifyOwnership implements §4.8: true iff GetProof would succeed, falling
// back to a prior-deposit lookup only when no root has ever been committed.
func (e *Engine) VerifyOwnership(ctx context.Context, owner gethcommon.Address, tokenID *big.Int) (bool, error) {
	latest, err := e.store.LatestWithRoot(ctx)
	if err != nil {
		return false, err
	}
	if latest == nil {
		if e.deposits == nil {
			return false, nil
		}
		return e.deposits.HasDeposit(ctx, owner.Hex(), tokenID)
	}
	proof, err := e.GetProof(ctx, owner, tokenID)
	if err != nil {
		return false, err
	}
	return proof != nil, nil
}

// foldSnapshot implements §3's OwnershipSnapshot fold: for each tokenId, the
// `to` of the transfer with the greatest blockNumber (tie-break log index,
// then insertion order) — transfers must already be ordered that way.
func foldSnapshot(transfers []store.Transfer) map[string]gethcommon.Address {
	snapshot := make(map[string]gethcommon.Address)
	for _, t := range transfers {
		key := t.TokenID.String()
		if isZeroAddress(t.To) {
			delete(snapshot, key)
			continue
		}
		snapshot[key] = gethcommon.HexToAddress(t.To)
	}
	return snapshot
}

func isZeroAddress(addr string) bool {
	return gethcommon.HexToAddress(addr) == (gethcommon.Address{})
}

// snapshotLeaves builds leaves in tokenId-ascending order, returning the
// parallel slice of token ids so callers can recover a leaf's proof index.
func snapshotLeaves(snapshot map[string]gethcommon.Address) ([][32]byte, []*big.Int) {
	ids := sortedTokenIDs(snapshot)
	leaves := make([][32]byte, len(ids))
	for i, id := range ids {
		owner := snapshot[id.String()]
		leaves[i] = leaf(owner, id)
	}
	return leaves, ids
}

func indexOf(ids []*big.Int, tokenID *big.Int) int {
	for i, id := range ids {
		if id.Cmp(tokenID) == 0 {
			return i
		}
	}
	return -1
}
