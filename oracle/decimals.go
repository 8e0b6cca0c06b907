package oracle

import (
	"context"
	"strings"
)

// assetKey mirrors ledger.lower's normalization without importing ledger
// (oracle must stay a leaf dependency): the lowercased address alone, since
// the override table is already keyed by chainID one level up.
func assetKey(chainID uint64, address string) string {
	return strings.ToLower(address)
}

// DecimalsOverride wraps a Quoter, answering Decimals from a configured
// per-chain asset table (config.Asset.Decimals) before falling back to the
// wrapped quoter — used when an asset's on-chain decimals differ from
// whatever the upstream price API assumes.
type DecimalsOverride struct {
	Quoter
	table map[uint64]map[string]int // chainID -> lowercased address -> decimals
}

// NewDecimalsOverride builds a DecimalsOverride from a chainID -> address ->
// decimals table.
func NewDecimalsOverride(q Quoter, table map[uint64]map[string]int) *DecimalsOverride {
	return &DecimalsOverride{Quoter: q, table: table}
}

func (d *DecimalsOverride) Decimals(ctx context.Context, chainID uint64, tokenAddress string) (int, error) {
	if byAddr, ok := d.table[chainID]; ok {
		if dec, ok := byAddr[assetKey(chainID, tokenAddress)]; ok {
			return dec, nil
		}
	}
	return d.Quoter.Decimals(ctx, chainID, tokenAddress)
}
