// Package indexer implements C1b and the core of C1a: BlockProcessor, the
// BlockLedger-driven Indexer orchestration loop, reorg handling and adaptive
// receipt-fetch concurrency, grounded on
// datasync/chaindatafetcher/chaindata_fetcher.go's handler/checkpoint
// structure.
package indexer

import (
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Status is the UnprocessedBlock lifecycle state of §3.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusReorged    Status = "REORGED"
)

// MaxRetries caps UnprocessedBlock retries (§4.5); above this a block is
// withheld from GetBlocksToProcess until externally reset.
const MaxRetries = 5

// ReorgDepth bounds how far back a divergence is re-scanned (§4.6) before
// the indexer pauses for external intervention.
const ReorgDepth = 10

// Block is the §3 Block entity: immutable once confirmed.
type Block struct {
	ChainID      uint64
	Number       uint64
	Hash         string
	ParentHash   string
	Timestamp    uint64
	Transactions []string // transaction hashes, in block order
	Raw          *gethtypes.Block
}

// UnprocessedBlock is the work-queue row of §3.
type UnprocessedBlock struct {
	ID           uint64
	ChainID      uint64
	Number       uint64
	Hash         string
	ParentHash   string
	Status       Status
	RetryCount   int
	ErrorMessage string
	BlockData    *Block
}

// ProcessedBlock is the resume progress marker of §3.
type ProcessedBlock struct {
	ChainID    uint64
	Number     uint64
	Hash       string
	ParentHash string
	IsReorged  bool
}
