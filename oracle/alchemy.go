package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/chainpipe/chainpipe/errs"
)

// AlchemyQuoter implements Quoter against Alchemy's token-price API (§6's
// ALCHEMY_API_KEY), this repository's one concrete upstream price source.
// net/http is used directly rather than a third-party REST client: nothing
// in this repository's dependency corpus wraps plain JSON-over-HTTP calls
// (the corpus's HTTP usage is all JSON-RPC via go-ethereum's rpc.Client,
// which doesn't fit a price-lookup REST endpoint).
type AlchemyQuoter struct {
	apiKey string
	http   *http.Client
	base   string
}

// NewAlchemyQuoter constructs an AlchemyQuoter. base defaults to Alchemy's
// public prices endpoint when empty.
func NewAlchemyQuoter(apiKey, base string) *AlchemyQuoter {
	if base == "" {
		base = "https://api.g.alchemy.com/prices/v1"
	}
	return &AlchemyQuoter{apiKey: apiKey, http: &http.Client{Timeout: 5 * time.Second}, base: base}
}

type alchemyPriceResponse struct {
	Data []struct {
		Prices []struct {
			Value string `json:"value"`
		} `json:"prices"`
	} `json:"data"`
}

// Quote fetches tokenAddress's current USD price on chainID.
func (q *AlchemyQuoter) Quote(ctx context.Context, chainID uint64, tokenAddress string) (float64, error) {
	url := fmt.Sprintf("%s/%s/tokens/by-address?network=eip155:%d&address=%s", q.base, q.apiKey, chainID, tokenAddress)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errs.Decode(err)
	}
	resp, err := q.http.Do(req)
	if err != nil {
		return 0, errs.Transient(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, errs.Transientf("oracle: alchemy price request failed with status %d", resp.StatusCode)
	}
	var body alchemyPriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, errs.Decode(err)
	}
	if len(body.Data) == 0 || len(body.Data[0].Prices) == 0 {
		return 0, errs.Transientf("oracle: no price returned for %s on chain %d", tokenAddress, chainID)
	}
	price, err := strconv.ParseFloat(body.Data[0].Prices[0].Value, 64)
	if err != nil {
		return 0, errs.Decode(err)
	}
	return price, nil
}

// Decimals returns the fixed 18-decimal assumption used whenever a token's
// metadata isn't separately fetched. Non-18-decimal assets must be
// configured via config.Asset instead of relying on this default.
func (q *AlchemyQuoter) Decimals(ctx context.Context, chainID uint64, tokenAddress string) (int, error) {
	return 18, nil
}
