// Package pipeline defines the wire contract published on the MessageBus
// (§6): FilteredTransaction, BlockchainMessage, and the Enhanced/Legacy sum
// type the consumer normalizes both shapes into. It replaces the dynamic,
// loosely-typed message object the original system used (§9's cross-cutting
// rewrite) with an explicit variant type and a single normalization step.
package pipeline

// MatchedLog is a single log that matched the active TopicMatcher, in the
// order it appeared in the transaction's receipt.
type MatchedLog struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	LogIndex    uint     `json:"logIndex"`
	MatchedHash string   `json:"matchedTopic"`
}

// FilteredTransaction is the §3 FilteredTransaction entity: a transaction
// that had at least one matched log, carrying only the logs that matched.
type FilteredTransaction struct {
	ChainID      uint64       `json:"chainId"`
	ChainName    string       `json:"chainName"`
	BlockHash    string       `json:"blockHash"`
	BlockNumber  uint64       `json:"blockNumber"`
	Hash         string       `json:"hash"`
	From         string       `json:"from"`
	To           *string      `json:"to,omitempty"`
	Value        BigInt       `json:"value"`
	Data         *string      `json:"data,omitempty"`
	Status       uint64       `json:"status"`
	GasUsed      *BigInt      `json:"gasUsed,omitempty"`
	GasPrice     *BigInt      `json:"gasPrice,omitempty"`
	MatchedTopics []string    `json:"matchedTopics"`
	Logs         []MatchedLog `json:"logs"`
	Timestamp    uint64       `json:"timestamp"`
}

// Event is a decoded-event summary attached to a message, identified by
// name/contract rather than raw topic bytes.
type Event struct {
	Name     string                 `json:"name"`
	Contract string                 `json:"contract"`
	Args     map[string]interface{} `json:"args"`
	Address  string                 `json:"address"`
}

// Metadata duplicates the routing-relevant fields of Transaction at the top
// level so consumers can filter without decoding the whole message.
type Metadata struct {
	ChainID         uint64 `json:"chainId"`
	ChainName       string `json:"chainName"`
	BlockNumber     uint64 `json:"blockNumber"`
	TransactionHash string `json:"transactionHash"`
	Timestamp       uint64 `json:"timestamp"`
}

// BlockchainMessage is the canonical, normalized form every message is
// converted into before the consumer's handlers see it (§6).
type BlockchainMessage struct {
	Transaction FilteredTransaction `json:"transaction"`
	Events      []Event             `json:"events"`
	Timestamp   uint64              `json:"timestamp"`
	Metadata    Metadata            `json:"metadata"`
}
