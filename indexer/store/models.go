// Package store implements indexer.BlockLedger on top of jinzhu/gorm,
// mirroring the manager-over-driver idiom of storage/database/db_manager.go
// (there: a DBManager wrapping a key/value driver; here: a BlockLedger
// wrapping a relational driver) while matching the unprocessed_blocks /
// processed_blocks tables of §6 exactly.
package store

import "time"

// unprocessedBlockRow is the unprocessed_blocks table (§6).
type unprocessedBlockRow struct {
	ID           uint64 `gorm:"primary_key"`
	ChainID      uint64 `gorm:"index:idx_chain_number"`
	Number       uint64 `gorm:"index:idx_chain_number"`
	Hash         string `gorm:"index"`
	ParentHash   string
	Status       string `gorm:"index"`
	RetryCount   int
	ErrorMessage string
	BlockJSON    []byte // serialized Block payload for resume
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (unprocessedBlockRow) TableName() string { return "unprocessed_blocks" }

// processedBlockRow is the processed_blocks table (§6).
type processedBlockRow struct {
	ID         uint64 `gorm:"primary_key"`
	ChainID    uint64 `gorm:"unique_index:idx_chain_number_processed"`
	Number     uint64 `gorm:"unique_index:idx_chain_number_processed"`
	Hash       string `gorm:"unique_index:idx_chain_number_processed"`
	ParentHash string
	IsReorged  bool `gorm:"index"`
	CreatedAt  time.Time
}

func (processedBlockRow) TableName() string { return "processed_blocks" }

// processedTransactionRow backs the (chainId, txHash) uniqueness BlockLedger
// relies on to suppress duplicate publishes when addProcessed fails after a
// successful publish (§4.6).
type processedTransactionRow struct {
	ID      uint64 `gorm:"primary_key"`
	ChainID uint64 `gorm:"unique_index:idx_chain_txhash"`
	TxHash  string `gorm:"unique_index:idx_chain_txhash"`
}

func (processedTransactionRow) TableName() string { return "processed_transactions" }
