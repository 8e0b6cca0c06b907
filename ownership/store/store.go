// Package store implements the §3 OwnershipStore: a durable, append-only
// sequence of NftTransfer records, queried by the MerkleEngine to derive
// ownership snapshots and rebuild proof trees. Grounded on
// indexer/store/ledger.go's gorm row/row-mapper shape.
package store

import (
	"context"
	"math/big"

	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"

	"github.com/chainpipe/chainpipe/errs"
)

// Transfer is the domain-level §3 NftTransfer entity.
type Transfer struct {
	ID               uint64
	ChainID          uint64
	TxHash           string
	LogIndex         uint
	BlockNumber      uint64
	BlockHash        string
	TokenAddress     string
	TokenID          *big.Int
	From             string
	To               string
	Timestamp        uint64
	IncludedInMerkle bool
	MerkleRoot        string
}

func rowToTransfer(r nftTransferRow) Transfer {
	tokenID := new(big.Int)
	tokenID.SetString(r.TokenID, 10)
	return Transfer{
		ID:               r.ID,
		ChainID:          r.ChainID,
		TxHash:           r.TxHash,
		LogIndex:         r.LogIndex,
		BlockNumber:      r.BlockNumber,
		BlockHash:        r.BlockHash,
		TokenAddress:     r.TokenAddress,
		TokenID:          tokenID,
		From:             r.From,
		To:               r.To,
		Timestamp:        r.Timestamp,
		IncludedInMerkle: r.IncludedInMerkle,
		MerkleRoot:       r.MerkleRoot,
	}
}

// Store is the OwnershipStore capability.
type Store interface {
	// Append records a new transfer. The caller is responsible for dedup —
	// txHash is unique, so a duplicate insert for the same (tx, log) fails
	// with an errs.Invariant.
	Append(ctx context.Context, t Transfer) (Transfer, error)

	// ListOrderedByBlock returns every transfer across all chains ordered
	// ascending by blockNumber (tie-break logIndex, then insertion order),
	// the order §3's OwnershipSnapshot fold requires.
	ListOrderedByBlock(ctx context.Context) ([]Transfer, error)

	// ListUpToBlock returns transfers with blockNumber <= maxBlock, in the
	// same order as ListOrderedByBlock, used to reconstruct the tree as of
	// a prior root (§4.8's getProof).
	ListUpToBlock(ctx context.Context, maxBlock uint64) ([]Transfer, error)

	// MarkIncluded sets includedInMerkle=true and merkleRoot=root on every
	// row in ids. A transfer whose merkleRoot is already set is immutable
	// (§3) — callers must only pass not-yet-included ids.
	MarkIncluded(ctx context.Context, ids []uint64, root string) error

	// LatestWithRoot returns the transfer with the greatest blockNumber
	// among those carrying a populated merkleRoot, or nil if none yet.
	LatestWithRoot(ctx context.Context) (*Transfer, error)
}

// GormStore implements Store on top of jinzhu/gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an already-connected *gorm.DB.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates/updates the nft_transfers table.
func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(&nftTransferRow{}).Error
}

func (s *GormStore) Append(ctx context.Context, t Transfer) (Transfer, error) {
	row := nftTransferRow{
		ChainID:      t.ChainID,
		TxHash:       t.TxHash,
		LogIndex:     t.LogIndex,
		BlockNumber:  t.BlockNumber,
		BlockHash:    t.BlockHash,
		TokenAddress: t.TokenAddress,
		TokenID:      t.TokenID.String(),
		From:         t.From,
		To:           t.To,
		Timestamp:    t.Timestamp,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return Transfer{}, errs.Invariant("duplicate nft transfer %s: %v", t.TxHash, err)
	}
	return rowToTransfer(row), nil
}

func (s *GormStore) ListOrderedByBlock(ctx context.Context) ([]Transfer, error) {
	var rows []nftTransferRow
	if err := s.db.Order("block_number ASC, log_index ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, errs.Transient(err)
	}
	out := make([]Transfer, len(rows))
	for i, r := range rows {
		out[i] = rowToTransfer(r)
	}
	return out, nil
}

func (s *GormStore) ListUpToBlock(ctx context.Context, maxBlock uint64) ([]Transfer, error) {
	var rows []nftTransferRow
	if err := s.db.Where("block_number <= ?", maxBlock).
		Order("block_number ASC, log_index ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, errs.Transient(err)
	}
	out := make([]Transfer, len(rows))
	for i, r := range rows {
		out[i] = rowToTransfer(r)
	}
	return out, nil
}

func (s *GormStore) MarkIncluded(ctx context.Context, ids []uint64, root string) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.Model(&nftTransferRow{}).
		Where("id IN (?) AND included_in_merkle = ?", ids, false).
		Updates(map[string]interface{}{
			"included_in_merkle": true,
			"merkle_root":        root,
		}).Error
	if err != nil {
		return errs.Transient(err)
	}
	return nil
}

func (s *GormStore) LatestWithRoot(ctx context.Context) (*Transfer, error) {
	var row nftTransferRow
	err := s.db.Where("merkle_root != ?", "").
		Order("block_number DESC, log_index DESC, id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Transient(err)
	}
	t := rowToTransfer(row)
	return &t, nil
}
