package store

// nftTransferRow is the gorm row backing the §3 NftTransfer entity. Tokens
// are addressed by (tokenAddress, tokenId) on write, but Merkle leaves use
// only tokenId, per §4.8 — the active NFT contract is externally
// configured, so tokenAddress is recorded for audit but never joined on.
type nftTransferRow struct {
	ID               uint64 `gorm:"primary_key"`
	ChainID          uint64 `gorm:"column:chain_id;index:idx_nft_transfer_chain_block"`
	TxHash           string `gorm:"column:tx_hash;unique_index"`
	LogIndex         uint   `gorm:"column:log_index"`
	BlockNumber      uint64 `gorm:"column:block_number;index:idx_nft_transfer_chain_block"`
	BlockHash        string `gorm:"column:block_hash"`
	TokenAddress     string `gorm:"column:token_address;index"`
	TokenID          string `gorm:"column:token_id;index"` // decimal string, arbitrary precision
	From             string `gorm:"column:from_address"`
	To               string `gorm:"column:to_address"`
	Timestamp        uint64 `gorm:"column:timestamp"`
	IncludedInMerkle bool   `gorm:"column:included_in_merkle;index"`
	MerkleRoot       string `gorm:"column:merkle_root"`
}

func (nftTransferRow) TableName() string { return "nft_transfers" }
