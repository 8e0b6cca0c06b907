package ownership

import (
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainpipe/chainpipe/ownership/store"
	"github.com/chainpipe/chainpipe/pipeline"
)

// TransferTopic0 is the standard ERC721/ERC20 Transfer(address,address,uint256)
// signature hash — the one event signature §6 gives in full, so this is
// matched directly rather than re-derived.
var TransferTopic0 = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// DecodeTransfer decodes one matched log into an NftTransfer if it is a
// four-topic Transfer (indexed from, to and tokenId — the ERC721 shape;
// ERC20's Transfer has only three topics, value carried in data), or
// ok=false otherwise.
func DecodeTransfer(chainID uint64, tx pipeline.FilteredTransaction, log pipeline.MatchedLog) (store.Transfer, bool, error) {
	if gethcommon.HexToHash(log.MatchedHash) != TransferTopic0 || len(log.Topics) != 4 {
		return store.Transfer{}, false, nil
	}
	return store.Transfer{
		ChainID:      chainID,
		TxHash:       tx.Hash,
		LogIndex:     log.LogIndex,
		BlockNumber:  tx.BlockNumber,
		BlockHash:    tx.BlockHash,
		TokenAddress: log.Address,
		TokenID:      gethcommon.HexToHash(log.Topics[3]).Big(),
		From:         gethcommon.HexToAddress(log.Topics[1]).Hex(),
		To:           gethcommon.HexToAddress(log.Topics[2]).Hex(),
		Timestamp:    tx.Timestamp,
	}, true, nil
}
