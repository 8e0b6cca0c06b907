package pipeline

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnhancedShape(t *testing.T) {
	raw := []byte(`{
		"transaction": {
			"hash": "0xabc", "blockNumber": 100, "chainId": 1, "chainName": "mainnet",
			"from": "0xsender", "value": "1000000000000000000",
			"matchedTopics": ["0xtopic"], "logs": [], "timestamp": 1700000000,
			"blockHash": "0xblockhash"
		},
		"events": [],
		"timestamp": 1700000000,
		"metadata": {"chainId": 1, "chainName": "mainnet", "blockNumber": 100, "transactionHash": "0xabc", "timestamp": 1700000000}
	}`)

	msg, variant, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, VariantEnhanced, variant)
	assert.Equal(t, "0xabc", msg.Transaction.Hash)
	assert.Equal(t, uint64(100), msg.Metadata.BlockNumber)
}

func TestDecodeLegacyShape(t *testing.T) {
	raw := []byte(`{
		"transaction": {
			"blockHash": "0xblockhash", "blockNumber": 200, "hash": "0xlegacy",
			"from": "0xsender", "value": "500", "data": "0x", "chainId": 1,
			"chainName": "mainnet", "topics": ["0xtopicA", "0xtopicB"]
		},
		"timestamp": 1700000100,
		"topics": ["0xtopicA", "0xtopicB"]
	}`)

	msg, variant, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, VariantLegacy, variant)
	assert.Equal(t, "0xlegacy", msg.Transaction.Hash)
	assert.Equal(t, uint64(200), msg.Transaction.BlockNumber)
	assert.Len(t, msg.Transaction.Logs, 2)
	assert.Equal(t, uint64(1700000100), msg.Metadata.Timestamp)
	assert.Nil(t, msg.Transaction.Data, "legacy \"0x\" data must normalize to nil, not a literal \"0x\" pointer")
}

func TestDecodeMalformedEnvelopeErrors(t *testing.T) {
	_, _, err := Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestEncodeRoundTripsIntegersAsStrings(t *testing.T) {
	amount, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)
	val := NewBigInt(amount)
	msg := BlockchainMessage{
		Transaction: FilteredTransaction{Hash: "0xabc", Value: val},
	}
	out, err := Encode(msg)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &raw))
	tx := raw["transaction"].(map[string]interface{})
	_, isString := tx["value"].(string)
	assert.True(t, isString, "integers wider than 53 bits must serialize as decimal strings per §6")
}
