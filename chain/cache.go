package chain

import (
	"sync"

	gethcommon "github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// TxEntry is a legitimate cache value: Receipt may be nil, meaning "this tx
// hash was previously seen and confirmed to be a non-contract call", which
// lets BlockProcessor skip re-fetching its receipt (§4.2).
type TxEntry struct {
	Transaction *gethtypes.Transaction
	Receipt     *gethtypes.Receipt // nil is a legitimate "known non-contract tx" marker
	HasReceipt  bool               // distinguishes "not fetched yet" from "fetched, nil"
}

// TxCache is a bounded mapping hash -> TxEntry with a bulk pruning policy:
// once the cache exceeds its cap, the oldest 25% (by insertion order) is
// evicted in one pass, retaining the most recently inserted 75%.
//
// This is hand-rolled rather than built on hashicorp/golang-lru (used
// elsewhere in this repository, e.g. oracle's price cache) because
// golang-lru's Add evicts a single oldest entry per insert past capacity;
// the §4.2 policy is a batch high-water-mark prune, which needs explicit
// insertion-order bookkeeping of its own. It mirrors common/cache.go's
// pattern of a thin custom wrapper over a map plus ordering metadata.
type TxCache struct {
	mu    sync.Mutex
	cap   int
	order []gethcommon.Hash
	items map[gethcommon.Hash]TxEntry
}

// NewTxCache constructs a TxCache with the given capacity. A non-positive
// capacity disables pruning (used by tests).
func NewTxCache(capacity int) *TxCache {
	return &TxCache{
		cap:   capacity,
		items: make(map[gethcommon.Hash]TxEntry),
	}
}

// Get returns the cached entry for hash, if any.
func (c *TxCache) Get(hash gethcommon.Hash) (TxEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[hash]
	return e, ok
}

// Put inserts or replaces the entry for hash and prunes if the cache has
// grown past capacity.
func (c *TxCache) Put(hash gethcommon.Hash, entry TxEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[hash]; !exists {
		c.order = append(c.order, hash)
	}
	c.items[hash] = entry
	c.pruneLocked()
}

// PutTransaction records a transaction without yet knowing its receipt.
func (c *TxCache) PutTransaction(hash gethcommon.Hash, tx *gethtypes.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.items[hash]
	e.Transaction = tx
	if _, exists := c.items[hash]; !exists {
		c.order = append(c.order, hash)
	}
	c.items[hash] = e
	c.pruneLocked()
}

// PutReceipt records a fetched receipt, which may legitimately be nil for a
// non-contract transaction.
func (c *TxCache) PutReceipt(hash gethcommon.Hash, receipt *gethtypes.Receipt) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.items[hash]
	e.Receipt = receipt
	e.HasReceipt = true
	if _, exists := c.items[hash]; !exists {
		c.order = append(c.order, hash)
	}
	c.items[hash] = e
	c.pruneLocked()
}

func (c *TxCache) pruneLocked() {
	if c.cap <= 0 || len(c.items) <= c.cap {
		return
	}
	target := (c.cap * 75) / 100
	if target < 1 {
		target = 1
	}
	drop := len(c.order) - target
	if drop <= 0 {
		return
	}
	for _, h := range c.order[:drop] {
		delete(c.items, h)
	}
	c.order = append([]gethcommon.Hash(nil), c.order[drop:]...)
}

// Len returns the current number of entries, used by tests.
func (c *TxCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
