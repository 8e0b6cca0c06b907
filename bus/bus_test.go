package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chainpipe/chainpipe/config"
	"github.com/chainpipe/chainpipe/pipeline"
)

// TestSortByTimestampOrdersAscending exercises §4.7's PublishBatch ordering
// guarantee directly against the pure sort step, without a live redis
// connection.
func TestSortByTimestampOrdersAscending(t *testing.T) {
	msgs := []pipeline.BlockchainMessage{
		{Timestamp: 300, Transaction: pipeline.FilteredTransaction{Hash: "0xc"}},
		{Timestamp: 100, Transaction: pipeline.FilteredTransaction{Hash: "0xa"}},
		{Timestamp: 200, Transaction: pipeline.FilteredTransaction{Hash: "0xb"}},
	}
	sortByTimestamp(msgs)

	wantOrder := []string{"0xa", "0xb", "0xc"}
	for i, hash := range wantOrder {
		assert.Equal(t, hash, msgs[i].Transaction.Hash)
	}
}

// TestSortByTimestampIsStableForTies confirms same-timestamp messages keep
// their relative order, the property PublishBatch's doc comment relies on
// callers to have already established (block-number/log-index ordering
// within a single second).
func TestSortByTimestampIsStableForTies(t *testing.T) {
	msgs := []pipeline.BlockchainMessage{
		{Timestamp: 100, Transaction: pipeline.FilteredTransaction{Hash: "0xfirst"}},
		{Timestamp: 100, Transaction: pipeline.FilteredTransaction{Hash: "0xsecond"}},
		{Timestamp: 100, Transaction: pipeline.FilteredTransaction{Hash: "0xthird"}},
	}
	sortByTimestamp(msgs)

	assert.Equal(t, "0xfirst", msgs[0].Transaction.Hash)
	assert.Equal(t, "0xsecond", msgs[1].Transaction.Hash)
	assert.Equal(t, "0xthird", msgs[2].Transaction.Hash)
}

func TestAddrFormatsHostPort(t *testing.T) {
	cases := []struct {
		host string
		port int
		want string
	}{
		{"localhost", 6379, "localhost:6379"},
		{"10.0.0.1", 0, "10.0.0.1:0"},
	}
	for _, c := range cases {
		got := addr(config.Redis{Host: c.host, Port: c.port})
		assert.Equal(t, c.want, got)
	}
}
