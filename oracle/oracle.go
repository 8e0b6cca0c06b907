// Package oracle implements the PriceOracle capability of §2/§4.9: given
// (chainId, tokenAddress, amount) it returns a USD value, cached briefly.
// The actual pricing API is an opaque external collaborator per §1's
// explicit Non-goals — this package defines the interface every caller
// programs against plus a short-TTL caching decorator, grounded on
// common/cache.go's lruCache wrapper (generalized here to a plain
// hash->value LRU, since a price quote has no sharding requirement).
package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/chainpipe/chainpipe/errs"
	"github.com/chainpipe/chainpipe/ledger/decimal"
	"github.com/chainpipe/chainpipe/logging"
)

var logger = logging.Named("oracle")

// Oracle is the §2 PriceOracle capability.
type Oracle interface {
	// USDValue converts amount (raw on-chain units) of tokenAddress on
	// chainID into a USD value.
	USDValue(ctx context.Context, chainID uint64, tokenAddress string, amount *big.Int) (decimal.USD, error)
}

// Quoter is the opaque upstream price source a concrete Oracle wraps.
// AlchemyQuoter (alchemy.go, configured by ALCHEMY_API_KEY per §6) is the
// implementation this repository provides.
type Quoter interface {
	// Quote returns the current USD price of one whole token unit (not
	// scaled by decimals) for tokenAddress on chainID.
	Quote(ctx context.Context, chainID uint64, tokenAddress string) (float64, error)
	// Decimals returns tokenAddress's ERC20 decimals on chainID.
	Decimals(ctx context.Context, chainID uint64, tokenAddress string) (int, error)
}

type cacheEntry struct {
	price     float64
	decimals  int
	expiresAt time.Time
}

// CachingOracle wraps a Quoter with a short-TTL LRU cache keyed by
// (chainId, tokenAddress), so a burst of events against the same asset
// doesn't hammer the upstream pricing API.
type CachingOracle struct {
	mu     sync.Mutex
	quoter Quoter
	ttl    time.Duration
	cache  *lru.Cache
}

// NewCachingOracle constructs a CachingOracle with the given quote TTL and
// LRU capacity (entries, not bytes).
func NewCachingOracle(quoter Quoter, ttl time.Duration, capacity int) (*CachingOracle, error) {
	cache, err := lru.New(capacity)
	if err != nil {
		return nil, err
	}
	return &CachingOracle{quoter: quoter, ttl: ttl, cache: cache}, nil
}

func cacheKey(chainID uint64, tokenAddress string) string {
	return fmt.Sprintf("%d:%s", chainID, tokenAddress)
}

func (o *CachingOracle) quote(ctx context.Context, chainID uint64, tokenAddress string) (cacheEntry, error) {
	key := cacheKey(chainID, tokenAddress)

	o.mu.Lock()
	if v, ok := o.cache.Get(key); ok {
		entry := v.(cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			o.mu.Unlock()
			return entry, nil
		}
	}
	o.mu.Unlock()

	price, err := o.quoter.Quote(ctx, chainID, tokenAddress)
	if err != nil {
		return cacheEntry{}, errs.Transient(err)
	}
	decimals, err := o.quoter.Decimals(ctx, chainID, tokenAddress)
	if err != nil {
		return cacheEntry{}, errs.Transient(err)
	}
	entry := cacheEntry{price: price, decimals: decimals, expiresAt: time.Now().Add(o.ttl)}

	o.mu.Lock()
	o.cache.Add(key, entry)
	o.mu.Unlock()
	return entry, nil
}

// USDValue implements Oracle, converting amount's raw units to a USD value
// using the cached quote and the token's decimals.
func (o *CachingOracle) USDValue(ctx context.Context, chainID uint64, tokenAddress string, amount *big.Int) (decimal.USD, error) {
	if amount == nil || amount.Sign() == 0 {
		return decimal.Zero(), nil
	}
	entry, err := o.quote(ctx, chainID, tokenAddress)
	if err != nil {
		logger.Errorw("price quote failed", "chain", chainID, "token", tokenAddress, "err", err)
		return decimal.Zero(), err
	}

	whole := new(big.Float).Quo(
		new(big.Float).SetInt(amount),
		new(big.Float).SetFloat64(pow10(entry.decimals)),
	)
	usd := new(big.Float).Mul(whole, big.NewFloat(entry.price))
	f, _ := usd.Float64()
	return decimal.FromFloat64(f), nil
}

func pow10(n int) float64 {
	v := 1.0
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}
