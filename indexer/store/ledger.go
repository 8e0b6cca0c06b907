package store

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"

	"github.com/chainpipe/chainpipe/errs"
	"github.com/chainpipe/chainpipe/indexer"
	"github.com/chainpipe/chainpipe/logging"
)

var logger = logging.Named("indexer.store")

// blockPayload is the JSON-serializable subset of indexer.Block persisted
// for resume (the raw go-ethereum block is not round-tripped; the pipeline
// only needs chain id/number/hash/parentHash/timestamp/tx-hash-list to
// resume a block's pipeline after a crash).
type blockPayload struct {
	ChainID      uint64   `json:"chainId"`
	Number       uint64   `json:"number"`
	Hash         string   `json:"hash"`
	ParentHash   string   `json:"parentHash"`
	Timestamp    uint64   `json:"timestamp"`
	Transactions []string `json:"transactions"`
}

func toPayload(b indexer.Block) blockPayload {
	return blockPayload{
		ChainID:      b.ChainID,
		Number:       b.Number,
		Hash:         b.Hash,
		ParentHash:   b.ParentHash,
		Timestamp:    b.Timestamp,
		Transactions: b.Transactions,
	}
}

func (p blockPayload) toBlock() indexer.Block {
	return indexer.Block{
		ChainID:      p.ChainID,
		Number:       p.Number,
		Hash:         p.Hash,
		ParentHash:   p.ParentHash,
		Timestamp:    p.Timestamp,
		Transactions: p.Transactions,
	}
}

// GormBlockLedger implements indexer.BlockLedger on top of jinzhu/gorm.
type GormBlockLedger struct {
	db *gorm.DB
}

// NewGormBlockLedger wraps an already-connected *gorm.DB. AutoMigrate is the
// caller's responsibility at process startup (mirrors db_manager.go's
// separation of connection setup from schema management).
func NewGormBlockLedger(db *gorm.DB) *GormBlockLedger {
	return &GormBlockLedger{db: db}
}

// Migrate creates/updates the tables this ledger owns.
func (l *GormBlockLedger) Migrate() error {
	return l.db.AutoMigrate(&unprocessedBlockRow{}, &processedBlockRow{}, &processedTransactionRow{}).Error
}

func rowToUnprocessed(r unprocessedBlockRow) (indexer.UnprocessedBlock, error) {
	ub := indexer.UnprocessedBlock{
		ID:           r.ID,
		ChainID:      r.ChainID,
		Number:       r.Number,
		Hash:         r.Hash,
		ParentHash:   r.ParentHash,
		Status:       indexer.Status(r.Status),
		RetryCount:   r.RetryCount,
		ErrorMessage: r.ErrorMessage,
	}
	if len(r.BlockJSON) > 0 {
		var p blockPayload
		if err := json.Unmarshal(r.BlockJSON, &p); err != nil {
			return ub, errs.Decode(err)
		}
		blk := p.toBlock()
		ub.BlockData = &blk
	}
	return ub, nil
}

// AddUnprocessed implements the §4.5 upsert semantics: a row already present
// with a different hash at the same (chainID, number) is marked REORGED and
// a fresh PENDING row is inserted for the new hash; otherwise the existing
// non-reorged row is returned unchanged.
func (l *GormBlockLedger) AddUnprocessed(ctx context.Context, block indexer.Block) (indexer.UnprocessedBlock, error) {
	var existing unprocessedBlockRow
	err := l.db.
		Where("chain_id = ? AND number = ? AND status != ?", block.ChainID, block.Number, string(indexer.StatusReorged)).
		First(&existing).Error
	switch {
	case err == nil:
		if existing.Hash == block.Hash {
			return rowToUnprocessed(existing)
		}
		// divergent hash at the same height: reorg.
		if err := l.db.Model(&unprocessedBlockRow{}).Where("id = ?", existing.ID).
			Update("status", string(indexer.StatusReorged)).Error; err != nil {
			return indexer.UnprocessedBlock{}, errs.Transient(err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		// no prior row, fall through to insert.
	default:
		return indexer.UnprocessedBlock{}, errs.Transient(err)
	}

	payload, mErr := json.Marshal(toPayload(block))
	if mErr != nil {
		return indexer.UnprocessedBlock{}, errs.Decode(mErr)
	}
	row := unprocessedBlockRow{
		ChainID:    block.ChainID,
		Number:     block.Number,
		Hash:       block.Hash,
		ParentHash: block.ParentHash,
		Status:     string(indexer.StatusPending),
		BlockJSON:  payload,
	}
	if err := l.db.Create(&row).Error; err != nil {
		return indexer.UnprocessedBlock{}, errs.Transient(err)
	}
	return rowToUnprocessed(row)
}

func (l *GormBlockLedger) setStatus(ctx context.Context, id uint64, status indexer.Status, extra map[string]interface{}) error {
	updates := map[string]interface{}{"status": string(status)}
	for k, v := range extra {
		updates[k] = v
	}
	if err := l.db.Model(&unprocessedBlockRow{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return errs.Transient(err)
	}
	return nil
}

func (l *GormBlockLedger) MarkProcessing(ctx context.Context, row indexer.UnprocessedBlock) error {
	return l.setStatus(ctx, row.ID, indexer.StatusProcessing, nil)
}

func (l *GormBlockLedger) MarkCompleted(ctx context.Context, row indexer.UnprocessedBlock) error {
	return l.setStatus(ctx, row.ID, indexer.StatusCompleted, nil)
}

func (l *GormBlockLedger) MarkFailed(ctx context.Context, row indexer.UnprocessedBlock, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return l.setStatus(ctx, row.ID, indexer.StatusFailed, map[string]interface{}{
		"retry_count":   row.RetryCount + 1,
		"error_message": msg,
	})
}

func (l *GormBlockLedger) MarkReorged(ctx context.Context, chainID uint64, numbers []uint64) error {
	if len(numbers) == 0 {
		return nil
	}
	if err := l.db.Model(&unprocessedBlockRow{}).
		Where("chain_id = ? AND number IN (?)", chainID, numbers).
		Update("status", string(indexer.StatusReorged)).Error; err != nil {
		return errs.Transient(err)
	}
	if err := l.db.Model(&processedBlockRow{}).
		Where("chain_id = ? AND number IN (?)", chainID, numbers).
		Update("is_reorged", true).Error; err != nil {
		return errs.Transient(err)
	}
	return nil
}

// AddProcessed records block as the new progress marker. It is a plain
// insert, not an upsert: a reorg'd number gets a new row while its old row's
// isReorged flag is flipped by MarkReorged.
func (l *GormBlockLedger) AddProcessed(ctx context.Context, block indexer.Block) error {
	row := processedBlockRow{
		ChainID:    block.ChainID,
		Number:     block.Number,
		Hash:       block.Hash,
		ParentHash: block.ParentHash,
	}
	if err := l.db.Create(&row).Error; err != nil {
		return errs.Transient(err)
	}
	return nil
}

func (l *GormBlockLedger) LatestProcessed(ctx context.Context, chainID uint64) (*indexer.ProcessedBlock, error) {
	var row processedBlockRow
	err := l.db.
		Where("chain_id = ? AND is_reorged = ?", chainID, false).
		Order("number DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Transient(err)
	}
	return &indexer.ProcessedBlock{
		ChainID:    row.ChainID,
		Number:     row.Number,
		Hash:       row.Hash,
		ParentHash: row.ParentHash,
		IsReorged:  row.IsReorged,
	}, nil
}

func (l *GormBlockLedger) IsProcessed(ctx context.Context, chainID uint64, number uint64) (bool, error) {
	var count int
	err := l.db.Model(&processedBlockRow{}).
		Where("chain_id = ? AND number = ? AND is_reorged = ?", chainID, number, false).
		Count(&count).Error
	if err != nil {
		return false, errs.Transient(err)
	}
	return count > 0, nil
}

func (l *GormBlockLedger) GetBlocksToProcess(ctx context.Context, chainID uint64, from, to uint64) ([]indexer.UnprocessedBlock, error) {
	var rows []unprocessedBlockRow
	err := l.db.
		Where("chain_id = ? AND number BETWEEN ? AND ? AND status IN (?) AND retry_count < ?",
			chainID, from, to, []string{string(indexer.StatusPending), string(indexer.StatusFailed)}, indexer.MaxRetries).
		Order("number ASC").
		Find(&rows).Error
	if err != nil {
		return nil, errs.Transient(err)
	}
	out := make([]indexer.UnprocessedBlock, 0, len(rows))
	for _, r := range rows {
		ub, err := rowToUnprocessed(r)
		if err != nil {
			logger.Errorw("skipping corrupt unprocessed row", "id", r.ID, "err", err)
			continue
		}
		out = append(out, ub)
	}
	return out, nil
}

func (l *GormBlockLedger) BlockAt(ctx context.Context, chainID uint64, number uint64) (*indexer.UnprocessedBlock, error) {
	var row unprocessedBlockRow
	err := l.db.
		Where("chain_id = ? AND number = ? AND status != ?", chainID, number, string(indexer.StatusReorged)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Transient(err)
	}
	ub, err := rowToUnprocessed(row)
	if err != nil {
		return nil, err
	}
	return &ub, nil
}

func (l *GormBlockLedger) Stats(ctx context.Context, chainID uint64) (indexer.Stats, error) {
	var stats indexer.Stats
	counts := []struct {
		status string
		dest   *int64
	}{
		{string(indexer.StatusPending), &stats.Pending},
		{string(indexer.StatusProcessing), &stats.Processing},
		{string(indexer.StatusCompleted), &stats.Completed},
		{string(indexer.StatusFailed), &stats.Failed},
		{string(indexer.StatusReorged), &stats.Reorged},
	}
	for _, c := range counts {
		var n int
		if err := l.db.Model(&unprocessedBlockRow{}).
			Where("chain_id = ? AND status = ?", chainID, c.status).
			Count(&n).Error; err != nil {
			return stats, errs.Transient(err)
		}
		*c.dest = int64(n)
	}
	return stats, nil
}

// ResetStuckProcessing implements the resume bootstrap SPEC_FULL.md
// supplements: rows left PROCESSING by an unclean shutdown are reset to
// PENDING so GetBlocksToProcess picks them back up.
func (l *GormBlockLedger) ResetStuckProcessing(ctx context.Context, chainID uint64) (int, error) {
	result := l.db.Model(&unprocessedBlockRow{}).
		Where("chain_id = ? AND status = ?", chainID, string(indexer.StatusProcessing)).
		Update("status", string(indexer.StatusPending))
	if result.Error != nil {
		return 0, errs.Transient(result.Error)
	}
	return int(result.RowsAffected), nil
}

// WasTransactionPublished implements indexer.BlockLedger's duplicate-publish
// guard (§4.6): a row existing for (chainID, txHash) means a prior run
// already published this transaction's matched logs.
func (l *GormBlockLedger) WasTransactionPublished(ctx context.Context, chainID uint64, txHash string) (bool, error) {
	var row processedTransactionRow
	err := l.db.Where("chain_id = ? AND tx_hash = ?", chainID, txHash).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errs.Transient(err)
	}
	return true, nil
}

// MarkTransactionsPublished records txHashes as published for chainID. A
// unique-index violation on an individual row (already marked by a
// concurrent or prior run) is not an error.
func (l *GormBlockLedger) MarkTransactionsPublished(ctx context.Context, chainID uint64, txHashes []string) error {
	for _, h := range txHashes {
		err := l.db.Create(&processedTransactionRow{ChainID: chainID, TxHash: h}).Error
		if err == nil {
			continue
		}
		if isUniqueViolation(err) {
			continue
		}
		return errs.Transient(err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
