package ownership

import (
	"bytes"
	"math/big"
	"sort"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainpipe/chainpipe/errs"
)

// leaf computes keccak256(solidityPack("address","uint256", ownerLowercase,
// tokenId)) per §4.8: the non-standard (unpadded) packing of an address
// (20 bytes) followed by a left-padded 32-byte uint256.
func leaf(owner gethcommon.Address, tokenID *big.Int) [32]byte {
	packed := make([]byte, 0, 20+32)
	packed = append(packed, owner.Bytes()...)
	packed = append(packed, gethcommon.LeftPadBytes(tokenID.Bytes(), 32)...)
	return crypto.Keccak256Hash(packed)
}

// combine hashes a pair of nodes after sorting them ascending as 32-byte
// values (§4.8's sortPairs), the OpenZeppelin-style canonical combine.
func combine(a, b [32]byte) [32]byte {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(append(append([]byte{}, a[:]...), b[:]...))
}

// Tree is a standard binary Merkle tree over a fixed, ordered leaf set: odd
// counts carry the last leaf up a layer unchanged.
type Tree struct {
	layers [][][32]byte
}

// Build constructs a tree from leaves in the given order. The caller
// controls leaf order (and therefore each leaf's proof index) — this
// package orders by tokenId ascending (see snapshotLeaves). Build fails
// with errs.Invariant on an empty leaf set per §4.8's "tree construction
// failure (no leaves) is a no-op" rule.
func Build(leaves [][32]byte) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, errs.Invariant("merkle: cannot build a tree with no leaves")
	}
	layer := make([][32]byte, len(leaves))
	copy(layer, leaves)
	layers := [][][32]byte{layer}
	for len(layer) > 1 {
		next := make([][32]byte, 0, (len(layer)+1)/2)
		for i := 0; i < len(layer); i += 2 {
			if i+1 == len(layer) {
				next = append(next, layer[i])
				continue
			}
			next = append(next, combine(layer[i], layer[i+1]))
		}
		layers = append(layers, next)
		layer = next
	}
	return &Tree{layers: layers}, nil
}

// Root returns the tree's root hash.
func (t *Tree) Root() [32]byte {
	top := t.layers[len(t.layers)-1]
	return top[0]
}

// RootHex returns the root as a 0x-prefixed 32-byte hex string.
func (t *Tree) RootHex() string {
	root := t.Root()
	return gethcommon.BytesToHash(root[:]).Hex()
}

// Proof returns the sibling path from leaf index up to the root.
func (t *Tree) Proof(index int) ([][32]byte, error) {
	if index < 0 || index >= len(t.layers[0]) {
		return nil, errs.Invariant("merkle: leaf index %d out of range", index)
	}
	var proof [][32]byte
	for _, layer := range t.layers[:len(t.layers)-1] {
		if index >= len(layer) {
			break
		}
		var siblingIdx int
		if index%2 == 0 {
			siblingIdx = index + 1
		} else {
			siblingIdx = index - 1
		}
		if siblingIdx < len(layer) {
			proof = append(proof, layer[siblingIdx])
		}
		index /= 2
	}
	return proof, nil
}

// VerifyProof recomputes the root from leaf and proof and compares it
// against root, the self-verification §4.8 requires before a proof is
// returned to a caller.
func VerifyProof(leaf [32]byte, proof [][32]byte, root [32]byte) bool {
	current := leaf
	for _, sibling := range proof {
		current = combine(current, sibling)
	}
	return bytes.Equal(current[:], root[:])
}

// sortedTokenIDs returns the keys of snapshot sorted ascending, the
// deterministic leaf order this package builds trees in.
func sortedTokenIDs(snapshot map[string]gethcommon.Address) []*big.Int {
	ids := make([]*big.Int, 0, len(snapshot))
	for k := range snapshot {
		n := new(big.Int)
		n.SetString(k, 10)
		ids = append(ids, n)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Cmp(ids[j]) < 0 })
	return ids
}
