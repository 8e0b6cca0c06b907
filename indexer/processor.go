package indexer

import (
	"context"
	"sync"
	"time"

	gethcommon "github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/chainpipe/chainpipe/chain"
	"github.com/chainpipe/chainpipe/chain/topics"
	"github.com/chainpipe/chainpipe/logging"
	"github.com/chainpipe/chainpipe/pipeline"
)

var procLogger = logging.Named("indexer.processor")

// sampleSize is the pre-filter heuristic's sample size (§4.4 step 3).
const sampleSize = 5

// heuristicThreshold is the contract-call ratio below which the "has
// calldata" pre-filter pays for itself.
const heuristicThreshold = 0.2

// BlockProcessor is the C1a core: given a block and the active topic set, it
// returns the filtered set of transactions with their matched logs, in
// block order (§4.4).
type BlockProcessor struct {
	client  chain.Client
	cache   *chain.TxCache
	limiter *AdaptiveLimiter
}

// NewBlockProcessor constructs a BlockProcessor against client, using cache
// for receipt/tx memoization and limiter for adaptive receipt-fetch
// concurrency.
func NewBlockProcessor(client chain.Client, cache *chain.TxCache, limiter *AdaptiveLimiter) *BlockProcessor {
	return &BlockProcessor{client: client, cache: cache, limiter: limiter}
}

// Process runs the §4.4 algorithm. ctx is the per-block abort token: when
// cancelled (e.g. because a new block superseded this one, or the indexer is
// pausing), in-flight receipt fetches stop and must not mutate the cache
// with partial data.
func (p *BlockProcessor) Process(ctx context.Context, block Block, matcher *topics.Matcher, chainName string) ([]pipeline.FilteredTransaction, error) {
	start := time.Now()
	if matcher.Empty() || len(block.Transactions) == 0 {
		return nil, nil
	}

	candidates := p.preFilter(ctx, block, matcher)

	type result struct {
		index int
		ft     *pipeline.FilteredTransaction
	}

	results := make([]*pipeline.FilteredTransaction, len(candidates))
	sem := make(chan struct{}, p.limiter.Limit())
	var wg sync.WaitGroup
	for i, hash := range candidates {
		select {
		case <-ctx.Done():
			procLogger.Warnw("block processing cancelled", "chain", block.ChainID, "number", block.Number)
			return nil, ctx.Err()
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int, hash gethcommon.Hash) {
			defer wg.Done()
			defer func() { <-sem }()
			ft, err := p.processOne(ctx, block, hash, matcher, chainName)
			if err != nil {
				if ctx.Err() == nil {
					procLogger.Errorw("transaction fetch failed, omitted from block", "chain", block.ChainID, "number", block.Number, "tx", hash.Hex(), "err", err)
				}
				return
			}
			results[i] = ft
		}(i, hash)
	}
	wg.Wait()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var out []pipeline.FilteredTransaction
	matchedCount := 0
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
			matchedCount++
		}
	}
	p.limiter.RecordBlock(time.Since(start), matchedCount, len(block.Transactions))
	return out, nil
}

// preFilter implements §4.4 step 3: keep a tx if its `to` is a constrained
// contract or it carries calldata; when no contract is constrained, fall
// back to the "has calldata" heuristic only if a small sample shows a low
// contract-call ratio.
func (p *BlockProcessor) preFilter(ctx context.Context, block Block, matcher *topics.Matcher) []gethcommon.Hash {
	hashes := make([]gethcommon.Hash, 0, len(block.Transactions))
	for _, h := range block.Transactions {
		hashes = append(hashes, gethcommon.HexToHash(h))
	}

	if matcher.HasContractConstraint() {
		contracts := make(map[gethcommon.Address]struct{})
		for _, c := range matcher.Contracts() {
			contracts[c] = struct{}{}
		}
		var out []gethcommon.Hash
		for _, hash := range hashes {
			tx, _, err := p.fetchTransaction(ctx, hash)
			if err != nil || tx == nil {
				continue
			}
			hasCalldata := len(tx.Data()) > 0
			toMatches := false
			if to := tx.To(); to != nil {
				if _, ok := contracts[*to]; ok {
					toMatches = true
				}
			}
			if toMatches || hasCalldata {
				out = append(out, hash)
			}
		}
		return out
	}

	if p.sampleShowsLowContractRatio(ctx, hashes) {
		var out []gethcommon.Hash
		for _, hash := range hashes {
			tx, _, err := p.fetchTransaction(ctx, hash)
			if err != nil || tx == nil {
				continue
			}
			if len(tx.Data()) > 0 {
				out = append(out, hash)
			}
		}
		return out
	}
	return hashes
}

// sampleShowsLowContractRatio samples up to sampleSize transactions and
// reports whether fewer than heuristicThreshold of them carry calldata —
// the cost optimization §4.4 step 3 allows an implementation to skip.
func (p *BlockProcessor) sampleShowsLowContractRatio(ctx context.Context, hashes []gethcommon.Hash) bool {
	n := len(hashes)
	if n == 0 {
		return false
	}
	limit := sampleSize
	if limit > n {
		limit = n
	}
	calls := 0
	for i := 0; i < limit; i++ {
		tx, _, err := p.fetchTransaction(ctx, hashes[i])
		if err != nil || tx == nil {
			continue
		}
		if len(tx.Data()) > 0 {
			calls++
		}
	}
	ratio := float64(calls) / float64(limit)
	return ratio < heuristicThreshold
}

func (p *BlockProcessor) fetchTransaction(ctx context.Context, hash gethcommon.Hash) (*gethtypes.Transaction, bool, error) {
	if entry, ok := p.cache.Get(hash); ok && entry.Transaction != nil {
		return entry.Transaction, false, nil
	}
	tx, pending, err := p.client.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, false, err
	}
	if ctx.Err() == nil {
		p.cache.PutTransaction(hash, tx)
	}
	return tx, pending, nil
}

func (p *BlockProcessor) fetchReceipt(ctx context.Context, hash gethcommon.Hash) (*gethtypes.Receipt, error) {
	if entry, ok := p.cache.Get(hash); ok && entry.HasReceipt {
		return entry.Receipt, nil
	}
	receipt, err := p.client.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	if ctx.Err() == nil {
		p.cache.PutReceipt(hash, receipt)
	}
	return receipt, nil
}

func (p *BlockProcessor) processOne(ctx context.Context, block Block, hash gethcommon.Hash, matcher *topics.Matcher, chainName string) (*pipeline.FilteredTransaction, error) {
	tx, _, err := p.fetchTransaction(ctx, hash)
	if err != nil {
		return nil, err
	}
	receipt, err := p.fetchReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, nil
	}

	var matchedTopics []string
	var logs []pipeline.MatchedLog
	for _, log := range receipt.Logs {
		topic0, ok := matcher.Match(log)
		if !ok {
			continue
		}
		matchedTopics = append(matchedTopics, topic0.Hex())
		topicsHex := make([]string, len(log.Topics))
		for i, t := range log.Topics {
			topicsHex[i] = t.Hex()
		}
		logs = append(logs, pipeline.MatchedLog{
			Address:     log.Address.Hex(),
			Topics:      topicsHex,
			Data:        gethcommon.Bytes2Hex(log.Data),
			LogIndex:    log.Index,
			MatchedHash: topic0.Hex(),
		})
	}
	if len(logs) == 0 {
		return nil, nil
	}

	ft := buildFilteredTransaction(block, tx, receipt, matchedTopics, logs, chainName)
	return &ft, nil
}

func buildFilteredTransaction(block Block, tx *gethtypes.Transaction, receipt *gethtypes.Receipt, matchedTopics []string, logs []pipeline.MatchedLog, chainName string) pipeline.FilteredTransaction {
	var to *string
	if tx.To() != nil {
		s := tx.To().Hex()
		to = &s
	}
	var dataPtr *string
	if len(tx.Data()) > 0 {
		s := gethcommon.Bytes2Hex(tx.Data())
		dataPtr = &s
	}
	from, _ := gethtypes.Sender(gethtypes.NewEIP155Signer(tx.ChainId()), tx)

	gasUsed := pipeline.BigIntFromUint64(receipt.GasUsed)
	gasPrice := pipeline.NewBigInt(tx.GasPrice())

	return pipeline.FilteredTransaction{
		ChainID:       block.ChainID,
		ChainName:     chainName,
		BlockHash:     block.Hash,
		BlockNumber:   block.Number,
		Hash:          tx.Hash().Hex(),
		From:          from.Hex(),
		To:            to,
		Value:         pipeline.NewBigInt(tx.Value()),
		Data:          dataPtr,
		Status:        receipt.Status,
		GasUsed:       &gasUsed,
		GasPrice:      &gasPrice,
		MatchedTopics: matchedTopics,
		Logs:          logs,
		Timestamp:     block.Timestamp,
	}
}
