package topics

import (
	"testing"

	gethcommon "github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var transferTopic = gethcommon.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")
var otherTopic = gethcommon.HexToHash("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1")

func TestMatcherExactMatchWithoutContractConstraint(t *testing.T) {
	m := New()
	m.Add(Filter{Hash: transferTopic, Description: "Transfer"})

	require.True(t, m.MayMatch(transferTopic))
	assert.False(t, m.MayMatch(otherTopic))

	contract := gethcommon.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	log := &gethtypes.Log{Topics: []gethcommon.Hash{transferTopic}, Address: contract}
	matched, ok := m.Match(log)
	require.True(t, ok)
	assert.Equal(t, transferTopic, matched)
}

func TestMatcherContractScopedFilterRejectsOtherContract(t *testing.T) {
	m := New()
	contract := gethcommon.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	other := gethcommon.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	m.Add(Filter{Hash: transferTopic, Contract: &contract})

	assert.True(t, m.HasContractConstraint())
	assert.Equal(t, []gethcommon.Address{contract}, m.Contracts())

	matchingLog := &gethtypes.Log{Topics: []gethcommon.Hash{transferTopic}, Address: contract}
	_, ok := m.Match(matchingLog)
	assert.True(t, ok)

	nonMatchingLog := &gethtypes.Log{Topics: []gethcommon.Hash{transferTopic}, Address: other}
	_, ok = m.Match(nonMatchingLog)
	assert.False(t, ok, "a contract-scoped filter must not match a log from a different emitter")
}

func TestMatcherRemoveClearsFilter(t *testing.T) {
	m := New()
	m.Add(Filter{Hash: transferTopic})
	require.False(t, m.Empty())

	m.Remove(transferTopic)
	assert.True(t, m.Empty())
	assert.False(t, m.MayMatch(transferTopic))
}

func TestMatcherEmptyLogTopicsNeverMatch(t *testing.T) {
	m := New()
	m.Add(Filter{Hash: transferTopic})
	_, ok := m.Match(&gethtypes.Log{})
	assert.False(t, ok)
}

func TestMatcherIsCaseInsensitive(t *testing.T) {
	m := New()
	upper := gethcommon.HexToHash("0xDDF252AD1BE2C89B69C2B068FC378DAA952BA7F163C4A11628F55A4DF523B3EF")
	m.Add(Filter{Hash: upper})

	log := &gethtypes.Log{Topics: []gethcommon.Hash{transferTopic}}
	_, ok := m.Match(log)
	assert.True(t, ok, "topic0 matching must be case-insensitive per §4.3's lowercased exact set")
}
