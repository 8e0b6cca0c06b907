package indexer

import (
	"context"
	"math/big"
	"testing"

	gethcommon "github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainpipe/chainpipe/chain"
)

// fakeLedger is an in-memory BlockLedger used only by this package's tests.
type fakeLedger struct {
	unprocessed     map[uint64]UnprocessedBlock
	processed       map[uint64]ProcessedBlock
	latestProcessed *ProcessedBlock
	nextID          uint64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		unprocessed: make(map[uint64]UnprocessedBlock),
		processed:   make(map[uint64]ProcessedBlock),
	}
}

func (l *fakeLedger) AddUnprocessed(ctx context.Context, block Block) (UnprocessedBlock, error) {
	if existing, ok := l.unprocessed[block.Number]; ok && existing.Status != StatusReorged {
		if existing.Hash == block.Hash {
			return existing, nil
		}
		existing.Status = StatusReorged
		l.unprocessed[block.Number] = existing
	}
	l.nextID++
	row := UnprocessedBlock{ID: l.nextID, ChainID: block.ChainID, Number: block.Number, Hash: block.Hash, ParentHash: block.ParentHash, Status: StatusPending}
	l.unprocessed[block.Number] = row
	return row, nil
}

func (l *fakeLedger) MarkProcessing(ctx context.Context, row UnprocessedBlock) error { return nil }
func (l *fakeLedger) MarkCompleted(ctx context.Context, row UnprocessedBlock) error  { return nil }
func (l *fakeLedger) MarkFailed(ctx context.Context, row UnprocessedBlock, cause error) error {
	return nil
}

func (l *fakeLedger) MarkReorged(ctx context.Context, chainID uint64, numbers []uint64) error {
	for _, n := range numbers {
		if row, ok := l.unprocessed[n]; ok {
			row.Status = StatusReorged
			l.unprocessed[n] = row
		}
		if row, ok := l.processed[n]; ok {
			row.IsReorged = true
			l.processed[n] = row
		}
	}
	return nil
}

func (l *fakeLedger) AddProcessed(ctx context.Context, block Block) error {
	l.processed[block.Number] = ProcessedBlock{ChainID: block.ChainID, Number: block.Number, Hash: block.Hash, ParentHash: block.ParentHash}
	return nil
}

func (l *fakeLedger) LatestProcessed(ctx context.Context, chainID uint64) (*ProcessedBlock, error) {
	return l.latestProcessed, nil
}

func (l *fakeLedger) IsProcessed(ctx context.Context, chainID uint64, number uint64) (bool, error) {
	row, ok := l.processed[number]
	return ok && !row.IsReorged, nil
}

func (l *fakeLedger) GetBlocksToProcess(ctx context.Context, chainID uint64, from, to uint64) ([]UnprocessedBlock, error) {
	return nil, nil
}

func (l *fakeLedger) BlockAt(ctx context.Context, chainID uint64, number uint64) (*UnprocessedBlock, error) {
	row, ok := l.unprocessed[number]
	if !ok || row.Status == StatusReorged {
		return nil, nil
	}
	return &row, nil
}

func (l *fakeLedger) Stats(ctx context.Context, chainID uint64) (Stats, error) { return Stats{}, nil }

func (l *fakeLedger) ResetStuckProcessing(ctx context.Context, chainID uint64) (int, error) {
	return 0, nil
}

func (l *fakeLedger) WasTransactionPublished(ctx context.Context, chainID uint64, txHash string) (bool, error) {
	return false, nil
}

func (l *fakeLedger) MarkTransactionsPublished(ctx context.Context, chainID uint64, txHashes []string) error {
	return nil
}

// fakeChainClient is a minimal chain.Client double serving BlockByNumber
// (from blocks) and LatestBlockNumber (from head), the two methods
// checkReorg/determineStart exercise.
type fakeChainClient struct {
	blocks map[uint64]*gethtypes.Block
	head   uint64
}

func (c *fakeChainClient) ChainID() uint64 { return 1 }
func (c *fakeChainClient) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.head, nil
}
func (c *fakeChainClient) BlockByNumber(ctx context.Context, number uint64) (*gethtypes.Block, error) {
	return c.blocks[number], nil
}
func (c *fakeChainClient) TransactionByHash(ctx context.Context, hash gethcommon.Hash) (*gethtypes.Transaction, bool, error) {
	return nil, false, nil
}
func (c *fakeChainClient) TransactionReceipt(ctx context.Context, hash gethcommon.Hash) (*gethtypes.Receipt, error) {
	return nil, nil
}
func (c *fakeChainClient) Healthy(ctx context.Context) bool { return true }
func (c *fakeChainClient) SubscribeNewHeads(ctx context.Context) (<-chan *gethtypes.Header, chain.Subscription, error) {
	return nil, nil, nil
}
func (c *fakeChainClient) Close() {}

func blockAt(number uint64, parentHash gethcommon.Hash) *gethtypes.Block {
	header := &gethtypes.Header{Number: new(big.Int).SetUint64(number), ParentHash: parentHash}
	return gethtypes.NewBlockWithHeader(header)
}

func TestCheckReorgNoPriorRowIsNoop(t *testing.T) {
	ledger := newFakeLedger()
	ix := &Indexer{chainID: 1, ledger: ledger}

	block := Block{ChainID: 1, Number: 10, ParentHash: "0xdeadbeef"}
	require.NoError(t, ix.checkReorg(context.Background(), block))
}

func TestCheckReorgMatchingParentIsNoop(t *testing.T) {
	ledger := newFakeLedger()
	ledger.unprocessed[9] = UnprocessedBlock{ID: 1, Number: 9, Hash: "0xparent", Status: StatusCompleted}
	ix := &Indexer{chainID: 1, ledger: ledger, latestProcessed: 9}

	block := Block{ChainID: 1, Number: 10, ParentHash: "0xparent"}
	require.NoError(t, ix.checkReorg(context.Background(), block))
	assert.Equal(t, uint64(9), ix.latestProcessed, "no divergence must leave the progress marker untouched")
}

// TestCheckReorgDivergenceRewindsLatestProcessed exercises §4.6's reorg
// path: a block whose parentHash disagrees with the ledger's row at
// number-1 must walk backward to the divergence point, mark every diverged
// number REORGED, and rewind latestProcessed so the next sweep re-indexes
// the forked range — the monotone-latestProcessed property only holds
// forward absent a reorg; a reorg is the one documented exception.
func TestCheckReorgDivergenceRewindsLatestProcessed(t *testing.T) {
	ledger := newFakeLedger()
	staleParent := gethcommon.HexToHash("0xaaaa")
	freshParent := gethcommon.HexToHash("0xbbbb")

	ledger.unprocessed[8] = UnprocessedBlock{ID: 1, Number: 8, Hash: staleParent.Hex(), Status: StatusCompleted}
	ledger.unprocessed[9] = UnprocessedBlock{ID: 2, Number: 9, Hash: "0xstale-9", Status: StatusCompleted}

	client := &fakeChainClient{blocks: map[uint64]*gethtypes.Block{
		8: blockAt(8, gethcommon.Hash{}),
		9: blockAt(9, freshParent), // chain's real block 9 has a different hash than the ledger's stale row
	}}

	ix := &Indexer{chainID: 1, ledger: ledger, client: client, latestProcessed: 9}

	block := Block{ChainID: 1, Number: 10, ParentHash: "0xsomething-not-9"}
	require.NoError(t, ix.checkReorg(context.Background(), block))

	assert.Equal(t, StatusReorged, ledger.unprocessed[9].Status, "the diverging row must be marked REORGED")
	assert.Less(t, ix.latestProcessed, uint64(9), "latestProcessed must rewind behind the diverged range")
}

func TestDetermineStartResumesFromLatestProcessedPlusOne(t *testing.T) {
	ledger := newFakeLedger()
	ledger.latestProcessed = &ProcessedBlock{ChainID: 1, Number: 41}
	ix := &Indexer{chainID: 1, ledger: ledger}

	start, err := ix.determineStart(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), start, "resuming after a restart must continue exactly where the ledger left off, never replay or skip")
}

func TestDetermineStartColdStartUsesConfirmations(t *testing.T) {
	ledger := newFakeLedger()
	client := &fakeChainClient{head: 100}
	ix := &Indexer{chainID: 1, ledger: ledger, client: client, cfg: Config{BlockConfirmations: 12}}

	start, err := ix.determineStart(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(88), start)
}
