package pipeline

import (
	"encoding/json"
	"fmt"
)

// Variant tags which wire shape a raw message was decoded as.
type Variant int

const (
	// VariantEnhanced is the current BlockchainMessage shape (§6).
	VariantEnhanced Variant = iota
	// VariantLegacy is the flat shape the consumer must still accept from
	// a producer recovering mid-migration (§6).
	VariantLegacy
)

// legacyTransaction is the flat shape's transaction sub-object.
type legacyTransaction struct {
	BlockHash   string          `json:"blockHash"`
	BlockNumber uint64          `json:"blockNumber"`
	Hash        string          `json:"hash"`
	From        string          `json:"from"`
	To          *string         `json:"to,omitempty"`
	Value       BigInt          `json:"value"`
	Data        string          `json:"data"`
	ChainID     uint64          `json:"chainId"`
	ChainName   string          `json:"chainName"`
	Topics      []string        `json:"topics"`
	Logs        []MatchedLog    `json:"logs,omitempty"`
}

type legacyMessage struct {
	Transaction legacyTransaction `json:"transaction"`
	Timestamp   uint64            `json:"timestamp"`
	Topics      []string          `json:"topics"`
}

// envelopeProbe is decoded first to discover which variant raw is: the
// Enhanced shape always carries a populated "metadata" object, the Legacy
// shape never does.
type envelopeProbe struct {
	Metadata json.RawMessage `json:"metadata"`
}

// Decode parses raw as either the Enhanced or Legacy wire shape and
// normalizes it into the canonical BlockchainMessage, returning which
// variant was observed. This is the single normalization step described in
// §9 replacing the original's dynamically-typed message handling.
func Decode(raw []byte) (BlockchainMessage, Variant, error) {
	var probe envelopeProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return BlockchainMessage{}, 0, fmt.Errorf("pipeline: malformed message envelope: %w", err)
	}
	if len(probe.Metadata) > 0 && string(probe.Metadata) != "null" {
		var msg BlockchainMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return BlockchainMessage{}, 0, fmt.Errorf("pipeline: malformed enhanced message: %w", err)
		}
		return msg, VariantEnhanced, nil
	}
	var legacy legacyMessage
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return BlockchainMessage{}, 0, fmt.Errorf("pipeline: malformed legacy message: %w", err)
	}
	return legacy.normalize(), VariantLegacy, nil
}

func (l legacyMessage) normalize() BlockchainMessage {
	topics := l.Topics
	if len(topics) == 0 {
		topics = l.Transaction.Topics
	}
	logs := l.Transaction.Logs
	if logs == nil {
		logs = make([]MatchedLog, 0, len(topics))
		for _, t := range topics {
			logs = append(logs, MatchedLog{
				Address:     l.Transaction.To_(),
				MatchedHash: t,
			})
		}
	}
	data := l.Transaction.Data
	var dataPtr *string
	if data != "" && data != "0x" {
		dataPtr = &data
	}
	ft := FilteredTransaction{
		ChainID:       l.Transaction.ChainID,
		ChainName:     l.Transaction.ChainName,
		BlockHash:     l.Transaction.BlockHash,
		BlockNumber:   l.Transaction.BlockNumber,
		Hash:          l.Transaction.Hash,
		From:          l.Transaction.From,
		To:            l.Transaction.To,
		Value:         l.Transaction.Value,
		Data:          dataPtr,
		MatchedTopics: topics,
		Logs:          logs,
		Timestamp:     l.Timestamp,
	}
	return BlockchainMessage{
		Transaction: ft,
		Events:      nil,
		Timestamp:   l.Timestamp,
		Metadata: Metadata{
			ChainID:         l.Transaction.ChainID,
			ChainName:       l.Transaction.ChainName,
			BlockNumber:     l.Transaction.BlockNumber,
			TransactionHash: l.Transaction.Hash,
			Timestamp:       l.Timestamp,
		},
	}
}

// To_ returns the transaction's "to" address, or empty string for a
// contract-creation transaction; used only to backfill a log's address when
// the legacy shape omitted logs entirely and only carried bare topics.
func (t legacyTransaction) To_() string {
	if t.To == nil {
		return ""
	}
	return *t.To
}

// Encode serializes msg as the canonical Enhanced wire shape.
func Encode(msg BlockchainMessage) ([]byte, error) {
	return json.Marshal(msg)
}
