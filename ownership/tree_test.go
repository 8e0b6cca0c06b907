package ownership

import (
	"math/big"
	"testing"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addr(hex string) gethcommon.Address {
	return gethcommon.HexToAddress(hex)
}

func TestBuildRejectsEmptyLeafSet(t *testing.T) {
	_, err := Build(nil)
	assert.Error(t, err)
}

func TestProofRoundTripsForEveryLeaf(t *testing.T) {
	leaves := [][32]byte{
		leaf(addr("0x1111111111111111111111111111111111111111"), big.NewInt(1)),
		leaf(addr("0x2222222222222222222222222222222222222222"), big.NewInt(2)),
		leaf(addr("0x3333333333333333333333333333333333333333"), big.NewInt(3)),
	}
	tree, err := Build(leaves)
	require.NoError(t, err)
	root := tree.Root()

	for i, l := range leaves {
		proof, err := tree.Proof(i)
		require.NoError(t, err)
		assert.True(t, VerifyProof(l, proof, root), "leaf %d failed self-verification", i)
	}
}

func TestOddLeafCountCarriesLastLeafUp(t *testing.T) {
	leaves := [][32]byte{
		leaf(addr("0x1111111111111111111111111111111111111111"), big.NewInt(1)),
		leaf(addr("0x2222222222222222222222222222222222222222"), big.NewInt(2)),
		leaf(addr("0x3333333333333333333333333333333333333333"), big.NewInt(3)),
	}
	tree, err := Build(leaves)
	require.NoError(t, err)
	proof, err := tree.Proof(2)
	require.NoError(t, err)
	assert.True(t, VerifyProof(leaves[2], proof, tree.Root()))
}

func TestCombineIsOrderIndependent(t *testing.T) {
	a := leaf(addr("0x1111111111111111111111111111111111111111"), big.NewInt(1))
	b := leaf(addr("0x2222222222222222222222222222222222222222"), big.NewInt(2))
	assert.Equal(t, combine(a, b), combine(b, a))
}

func TestVerifyProofRejectsWrongLeaf(t *testing.T) {
	leaves := [][32]byte{
		leaf(addr("0x1111111111111111111111111111111111111111"), big.NewInt(1)),
		leaf(addr("0x2222222222222222222222222222222222222222"), big.NewInt(2)),
	}
	tree, err := Build(leaves)
	require.NoError(t, err)
	proof, err := tree.Proof(0)
	require.NoError(t, err)
	wrongLeaf := leaf(addr("0x9999999999999999999999999999999999999999"), big.NewInt(99))
	assert.False(t, VerifyProof(wrongLeaf, proof, tree.Root()))
}
