package indexer

import "context"

// Stats summarizes a chain's BlockLedger state, used by health/monitoring.
type Stats struct {
	Pending    int64
	Processing int64
	Completed  int64
	Failed     int64
	Reorged    int64
}

// BlockLedger is the §4.5 durable per-chain record of processed blocks (for
// resume) and the unprocessed-block work queue with reorg states.
//
// Implementations must serialize writes per (chainID, number) via upsert
// semantics (§5): for any (chainID, number) at most one row is not REORGED
// at any time.
type BlockLedger interface {
	// AddUnprocessed inserts block as PENDING, or — if a row already
	// exists for (chainID, number) with a different hash — marks the
	// existing row REORGED and inserts a fresh PENDING row for the new
	// hash. Returns the row that should now be processed.
	AddUnprocessed(ctx context.Context, block Block) (UnprocessedBlock, error)

	MarkProcessing(ctx context.Context, row UnprocessedBlock) error
	MarkCompleted(ctx context.Context, row UnprocessedBlock) error
	MarkFailed(ctx context.Context, row UnprocessedBlock, cause error) error
	MarkReorged(ctx context.Context, chainID uint64, numbers []uint64) error

	AddProcessed(ctx context.Context, block Block) error
	LatestProcessed(ctx context.Context, chainID uint64) (*ProcessedBlock, error)
	IsProcessed(ctx context.Context, chainID uint64, number uint64) (bool, error)

	// GetBlocksToProcess returns PENDING/FAILED (RetryCount < MaxRetries)
	// rows for chainID in the given inclusive range, in ascending number
	// order.
	GetBlocksToProcess(ctx context.Context, chainID uint64, from, to uint64) ([]UnprocessedBlock, error)

	// BlockAt returns the non-REORGED ledger row at (chainID, number), if
	// any, used by reorg detection to compare parent hashes.
	BlockAt(ctx context.Context, chainID uint64, number uint64) (*UnprocessedBlock, error)

	Stats(ctx context.Context, chainID uint64) (Stats, error)

	// ResetStuckProcessing reconciles rows left PROCESSING by an unclean
	// shutdown back to PENDING. See SPEC_FULL.md's supplemented resume
	// bootstrap.
	ResetStuckProcessing(ctx context.Context, chainID uint64) (int, error)

	// WasTransactionPublished reports whether txHash on chainID was already
	// published, guarding against a crash between PublishBatch succeeding
	// and MarkCompleted/AddProcessed committing (§4.6).
	WasTransactionPublished(ctx context.Context, chainID uint64, txHash string) (bool, error)
	// MarkTransactionsPublished records txHashes as published for chainID.
	MarkTransactionsPublished(ctx context.Context, chainID uint64, txHashes []string) error
}
