package ownership

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"testing"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainpipe/chainpipe/ownership/store"
)

// fakeStore is an in-memory store.Store used only by this package's tests.
type fakeStore struct {
	mu      sync.Mutex
	nextID  uint64
	rows    []store.Transfer
}

func newFakeStore() *fakeStore { return &fakeStore{} }

func (s *fakeStore) Append(ctx context.Context, t store.Transfer) (store.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t.ID = s.nextID
	s.rows = append(s.rows, t)
	return t, nil
}

func (s *fakeStore) ListOrderedByBlock(ctx context.Context) ([]store.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Transfer, len(s.rows))
	copy(out, s.rows)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		if out[i].LogIndex != out[j].LogIndex {
			return out[i].LogIndex < out[j].LogIndex
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *fakeStore) ListUpToBlock(ctx context.Context, maxBlock uint64) ([]store.Transfer, error) {
	all, _ := s.ListOrderedByBlock(ctx)
	var out []store.Transfer
	for _, t := range all {
		if t.BlockNumber <= maxBlock {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkIncluded(ctx context.Context, ids []uint64, root string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	for i := range s.rows {
		if _, ok := set[s.rows[i].ID]; ok {
			s.rows[i].IncludedInMerkle = true
			s.rows[i].MerkleRoot = root
		}
	}
	return nil
}

func (s *fakeStore) LatestWithRoot(ctx context.Context) (*store.Transfer, error) {
	all, _ := s.ListOrderedByBlock(ctx)
	var latest *store.Transfer
	for i := range all {
		if all[i].MerkleRoot != "" {
			t := all[i]
			latest = &t
		}
	}
	return latest, nil
}

// fakeRelayer records every submitted root per chain.
type fakeRelayer struct {
	mu    sync.Mutex
	roots map[uint64][][32]byte
	fail  bool
}

func newFakeRelayer() *fakeRelayer { return &fakeRelayer{roots: make(map[uint64][][32]byte)} }

func (r *fakeRelayer) SubmitRoot(ctx context.Context, chainID uint64, root [32]byte) error {
	if r.fail {
		return assertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roots[chainID] = append(r.roots[chainID], root)
	return nil
}

func (r *fakeRelayer) ProcessRequest(ctx context.Context, chainID uint64, requestID [32]byte, approved bool) (uint8, []byte, error) {
	return 0, nil, nil
}

func (r *fakeRelayer) CompleteWithdraw(ctx context.Context, chainID uint64, handler gethcommon.Address, requestID [32]byte, proof [][32]byte, additionalData []byte) error {
	return nil
}

var assertErr = &staticErr{"simulated relayer failure"}

type staticErr struct{ msg string }

func (e *staticErr) Error() string { return e.msg }

func transfer(block uint64, tokenID int64, from, to string) store.Transfer {
	return store.Transfer{
		ChainID:     1,
		TxHash:      "0xhash",
		BlockNumber: block,
		TokenID:     big.NewInt(tokenID),
		From:        from,
		To:          to,
	}
}

func TestMintThenProofSucceeds(t *testing.T) {
	st := newFakeStore()
	rc := newFakeRelayer()
	e := New(st, rc, []uint64{1, 2}, nil)
	require.NoError(t, e.Load(context.Background()))

	a := addr("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	b := addr("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")

	zero := "0x0000000000000000000000000000000000000000"
	require.NoError(t, e.OnTransfer(context.Background(), transfer(100, 1, zero, a.Hex())))

	proofA, err := e.GetProof(context.Background(), a, big.NewInt(1))
	require.NoError(t, err)
	require.NotNil(t, proofA)
	assert.True(t, proofA.Verified)

	proofB, err := e.GetProof(context.Background(), b, big.NewInt(1))
	require.NoError(t, err)
	assert.Nil(t, proofB)

	assert.Len(t, rc.roots[1], 1)
	assert.Len(t, rc.roots[2], 1)
}

func TestTransferReassignsOwnership(t *testing.T) {
	st := newFakeStore()
	rc := newFakeRelayer()
	e := New(st, rc, []uint64{1}, nil)
	require.NoError(t, e.Load(context.Background()))

	a := addr("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	b := addr("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	zero := "0x0000000000000000000000000000000000000000"

	require.NoError(t, e.OnTransfer(context.Background(), transfer(100, 1, zero, a.Hex())))
	require.NoError(t, e.OnTransfer(context.Background(), transfer(101, 1, a.Hex(), b.Hex())))

	proofA, err := e.GetProof(context.Background(), a, big.NewInt(1))
	require.NoError(t, err)
	assert.Nil(t, proofA)

	proofB, err := e.GetProof(context.Background(), b, big.NewInt(1))
	require.NoError(t, err)
	require.NotNil(t, proofB)
}

func TestRelayerFailureDoesNotBlockMarkIncluded(t *testing.T) {
	st := newFakeStore()
	rc := newFakeRelayer()
	rc.fail = true
	e := New(st, rc, []uint64{1}, nil)
	require.NoError(t, e.Load(context.Background()))

	a := addr("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	zero := "0x0000000000000000000000000000000000000000"
	require.NoError(t, e.OnTransfer(context.Background(), transfer(100, 1, zero, a.Hex())))

	proof, err := e.GetProof(context.Background(), a, big.NewInt(1))
	require.NoError(t, err)
	require.NotNil(t, proof)
}
