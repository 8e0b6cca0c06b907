// Package topics implements the TopicMatcher of §4.3: an ordered set of
// TopicFilters, a small Bloom pre-filter over lowercased topic0 hashes, an
// exact set for final matching, and a contract-scoped index.
package topics

import (
	"strings"
	"sync"

	gethcommon "github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Filter is a TopicFilter entity (§3): an event signature hash, optionally
// scoped to the contract address that must have emitted it.
type Filter struct {
	Hash        gethcommon.Hash
	Contract    *gethcommon.Address // nil means "any emitting contract"
	Description string
}

func (f Filter) key() gethcommon.Hash {
	return gethcommon.HexToHash(strings.ToLower(f.Hash.Hex()))
}

// Matcher holds the active filter set for one chain's indexer and answers
// the bloom/exact match queries BlockProcessor needs per log.
type Matcher struct {
	mu         sync.RWMutex
	filters    []Filter
	bloom      *bloom
	exact      map[gethcommon.Hash]struct{}
	byHash     map[gethcommon.Hash][]Filter
}

// New constructs an empty Matcher.
func New() *Matcher {
	return &Matcher{
		bloom:  newBloom(),
		exact:  make(map[gethcommon.Hash]struct{}),
		byHash: make(map[gethcommon.Hash][]Filter),
	}
}

// Add registers f, rebuilding the bloom filter from the full filter set.
func (m *Matcher) Add(f Filter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters = append(m.filters, f)
	m.rebuildLocked()
}

// Remove drops every filter matching hash, rebuilding derived indexes.
func (m *Matcher) Remove(hash gethcommon.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.filters[:0]
	for _, f := range m.filters {
		if f.Hash != hash {
			kept = append(kept, f)
		}
	}
	m.filters = kept
	m.rebuildLocked()
}

// Filters returns a snapshot of the active filter set.
func (m *Matcher) Filters() []Filter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Filter, len(m.filters))
	copy(out, m.filters)
	return out
}

// Empty reports whether no filters are configured.
func (m *Matcher) Empty() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.filters) == 0
}

// HasContractConstraint reports whether any active filter is scoped to a
// specific contract address, used by BlockProcessor's pre-filter step
// (§4.4 step 3).
func (m *Matcher) HasContractConstraint() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, f := range m.filters {
		if f.Contract != nil {
			return true
		}
	}
	return false
}

// Contracts returns the distinct set of constrained contract addresses.
func (m *Matcher) Contracts() []gethcommon.Address {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[gethcommon.Address]struct{})
	var out []gethcommon.Address
	for _, f := range m.filters {
		if f.Contract != nil {
			if _, ok := seen[*f.Contract]; !ok {
				seen[*f.Contract] = struct{}{}
				out = append(out, *f.Contract)
			}
		}
	}
	return out
}

func (m *Matcher) rebuildLocked() {
	m.bloom.reset()
	m.exact = make(map[gethcommon.Hash]struct{})
	m.byHash = make(map[gethcommon.Hash][]Filter)
	for _, f := range m.filters {
		key := lower(f.Hash)
		m.bloom.add(key.Bytes())
		m.exact[key] = struct{}{}
		m.byHash[key] = append(m.byHash[key], f)
	}
}

// MayMatch is the bloom pre-filter: a false result proves topic0 cannot
// match any active filter; a true result requires the exact check in Match.
func (m *Matcher) MayMatch(topic0 gethcommon.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bloom.mayContain(lower(topic0).Bytes())
}

// Match tests a single log against the active filter set, returning the
// matched topic0 iff log.Topics[0] is in the exact set and either the
// matching filter has no contract constraint or log.Address equals it
// (§4.3).
func (m *Matcher) Match(log *gethtypes.Log) (gethcommon.Hash, bool) {
	if len(log.Topics) == 0 {
		return gethcommon.Hash{}, false
	}
	topic0 := log.Topics[0]
	if !m.MayMatch(topic0) {
		return gethcommon.Hash{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := lower(topic0)
	if _, ok := m.exact[key]; !ok {
		return gethcommon.Hash{}, false
	}
	for _, f := range m.byHash[key] {
		if f.Contract == nil || *f.Contract == log.Address {
			return topic0, true
		}
	}
	return gethcommon.Hash{}, false
}

func lower(h gethcommon.Hash) gethcommon.Hash {
	return gethcommon.HexToHash(strings.ToLower(h.Hex()))
}
