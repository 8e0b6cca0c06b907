package indexer

import (
	"context"
	"sync"
	"time"

	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/chainpipe/chainpipe/bus"
	"github.com/chainpipe/chainpipe/chain"
	"github.com/chainpipe/chainpipe/chain/topics"
	"github.com/chainpipe/chainpipe/errs"
	"github.com/chainpipe/chainpipe/logging"
	"github.com/chainpipe/chainpipe/metrics"
	"github.com/chainpipe/chainpipe/pipeline"
)

var idxLogger = logging.Named("indexer")

// Config holds the per-chain tuning options the Indexer needs (a subset of
// config.Chain, kept decoupled from the config package so indexer has no
// import-time dependency on env parsing).
type Config struct {
	ChainName                  string
	BlockConfirmations         uint64
	BatchSize                  int
	LatestBlockUpdateInterval  time.Duration
	ContinuousIndexingInterval time.Duration
	HealthCheckInterval        time.Duration
}

// Indexer is the C1b orchestrator: one instance per chain, holding
// ChainClient, MessageBus publisher, BlockLedger, BlockProcessor and the
// mutable topic filter set (§4.6), grounded on
// datasync/chaindatafetcher/chaindata_fetcher.go's Start/Stop/handler
// structure.
type Indexer struct {
	chainID   uint64
	cfg       Config
	client    chain.Client
	publisher *bus.Publisher
	ledger    BlockLedger
	processor *BlockProcessor
	matcher   *topics.Matcher

	mu              sync.Mutex
	latestSeen      uint64
	latestProcessed uint64
	running         bool
	paused          bool
	indexing        bool

	sub    chain.Subscription
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs an Indexer for one chain. matcher is shared with the
// caller so topic filters can be mutated live (§4.3's add/remove).
func New(chainID uint64, cfg Config, client chain.Client, publisher *bus.Publisher, ledger BlockLedger, processor *BlockProcessor, matcher *topics.Matcher) *Indexer {
	return &Indexer{
		chainID:   chainID,
		cfg:       cfg,
		client:    client,
		publisher: publisher,
		ledger:    ledger,
		processor: processor,
		matcher:   matcher,
	}
}

// Start determines the resume point, begins the new-head subscription and
// launches the periodic tasks described in §4.6: continuous indexing,
// latest-block refresh and health checking.
func (ix *Indexer) Start(ctx context.Context) error {
	ix.mu.Lock()
	if ix.running {
		ix.mu.Unlock()
		return errs.Invariant("indexer for chain %d already running", ix.chainID)
	}
	ix.running = true
	ix.paused = false
	ix.stopCh = make(chan struct{})
	ix.mu.Unlock()

	if n, err := ix.ledger.ResetStuckProcessing(ctx, ix.chainID); err == nil && n > 0 {
		idxLogger.Warnw("reset stuck PROCESSING rows on startup", "chain", ix.chainID, "count", n)
	} else if err != nil {
		idxLogger.Errorw("failed to reset stuck rows", "chain", ix.chainID, "err", err)
	}

	start, err := ix.determineStart(ctx)
	if err != nil {
		ix.mu.Lock()
		ix.running = false
		ix.mu.Unlock()
		return err
	}
	ix.mu.Lock()
	if start > 0 {
		ix.latestProcessed = start - 1
	}
	ix.mu.Unlock()

	headCh, sub, err := ix.client.SubscribeNewHeads(ctx)
	if err != nil {
		ix.mu.Lock()
		ix.running = false
		ix.mu.Unlock()
		return errs.Transient(err)
	}
	ix.sub = sub

	ix.wg.Add(4)
	go ix.runHeadSubscription(ctx, headCh)
	go ix.runLatestBlockRefresh(ctx)
	go ix.runContinuousIndexing(ctx)
	go ix.runHealthCheck(ctx)

	idxLogger.Infow("indexer started", "chain", ix.chainID, "startBlock", start)
	return nil
}

// Stop unsubscribes from new heads, signals every periodic task to exit and
// waits for them to drain before returning.
func (ix *Indexer) Stop() {
	ix.mu.Lock()
	if !ix.running {
		ix.mu.Unlock()
		return
	}
	ix.running = false
	stopCh := ix.stopCh
	sub := ix.sub
	ix.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	close(stopCh)
	ix.wg.Wait()
	idxLogger.Infow("indexer stopped", "chain", ix.chainID)
}

// Pause suspends the continuous indexing sweep without tearing down the
// subscription or connections (§4.6 health/ops surface).
func (ix *Indexer) Pause() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.paused = true
}

// Resume re-enables the continuous indexing sweep.
func (ix *Indexer) Resume() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.paused = false
}

// Stats exposes the current progress markers for monitoring.
func (ix *Indexer) Stats() (latestSeen, latestProcessed uint64, paused bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.latestSeen, ix.latestProcessed, ix.paused
}

// determineStart implements §4.6 step 1: resume from the ledger's progress
// marker, or fall back to head-minus-confirmations for a cold start.
func (ix *Indexer) determineStart(ctx context.Context) (uint64, error) {
	latest, err := ix.ledger.LatestProcessed(ctx, ix.chainID)
	if err != nil {
		return 0, err
	}
	if latest != nil {
		return latest.Number + 1, nil
	}
	head, err := ix.client.LatestBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	if head < ix.cfg.BlockConfirmations {
		return 0, nil
	}
	return head - ix.cfg.BlockConfirmations, nil
}

// runHeadSubscription consumes pushed (or polled) headers, advancing
// latestSeen and immediately triggering an indexing sweep — the fast path
// that keeps the indexer close to realtime even between continuous-indexing
// ticks.
func (ix *Indexer) runHeadSubscription(ctx context.Context, headCh <-chan *gethtypes.Header) {
	defer ix.wg.Done()
	for {
		select {
		case <-ix.stopCh:
			return
		case <-ctx.Done():
			return
		case hdr, ok := <-headCh:
			if !ok {
				return
			}
			n := hdr.Number.Uint64()
			ix.mu.Lock()
			if n > ix.latestSeen {
				ix.latestSeen = n
			}
			ix.mu.Unlock()
			metrics.Gauge("indexer.latest_seen").Update(int64(n))
			ix.triggerSweep(ctx)
		}
	}
}

// runLatestBlockRefresh polls LatestBlockNumber on an interval as a backstop
// against a stalled or missed subscription (§4.1's polling fallback applies
// to the subscription itself; this covers the case where heads arrive but
// infrequently on a slow chain).
func (ix *Indexer) runLatestBlockRefresh(ctx context.Context) {
	defer ix.wg.Done()
	ticker := time.NewTicker(ix.cfg.LatestBlockUpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ix.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := ix.client.LatestBlockNumber(ctx)
			if err != nil {
				idxLogger.Warnw("latest block refresh failed", "chain", ix.chainID, "err", err)
				continue
			}
			ix.mu.Lock()
			if n > ix.latestSeen {
				ix.latestSeen = n
			}
			ix.mu.Unlock()
		}
	}
}

// runContinuousIndexing periodically sweeps any backlog between
// latestProcessed and latestSeen-confirmations, per §4.6 step 3. This is the
// reliable path; runHeadSubscription's trigger is purely a latency
// optimization on top of it.
func (ix *Indexer) runContinuousIndexing(ctx context.Context) {
	defer ix.wg.Done()
	ticker := time.NewTicker(ix.cfg.ContinuousIndexingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ix.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			ix.triggerSweep(ctx)
		}
	}
}

// triggerSweep runs one indexing pass if one isn't already in flight and the
// indexer isn't paused.
func (ix *Indexer) triggerSweep(ctx context.Context) {
	ix.mu.Lock()
	if ix.paused || ix.indexing {
		ix.mu.Unlock()
		return
	}
	ix.indexing = true
	ix.mu.Unlock()

	defer func() {
		ix.mu.Lock()
		ix.indexing = false
		ix.mu.Unlock()
	}()

	ix.mu.Lock()
	from := ix.latestProcessed + 1
	seen := ix.latestSeen
	ix.mu.Unlock()

	if seen < ix.cfg.BlockConfirmations {
		return
	}
	target := seen - ix.cfg.BlockConfirmations
	if from > target {
		return
	}

	for from <= target {
		to := from + uint64(ix.cfg.BatchSize) - 1
		if to > target {
			to = target
		}
		for n := from; n <= to; n++ {
			if err := ix.processBlock(ctx, n); err != nil {
				if ctx.Err() != nil {
					return
				}
				idxLogger.Errorw("block processing failed, will retry on next sweep", "chain", ix.chainID, "number", n, "err", err)
				return
			}
			ix.mu.Lock()
			ix.latestProcessed = n
			ix.mu.Unlock()
			metrics.Gauge("indexer.latest_processed").Update(int64(n))
		}
		from = to + 1
	}
}

// processBlock runs the full per-block pipeline described in §4.6: fetch,
// reorg-check, addUnprocessed, markProcessing, BlockProcessor, publish in
// order, markCompleted and addProcessed.
func (ix *Indexer) processBlock(ctx context.Context, number uint64) error {
	raw, err := ix.client.BlockByNumber(ctx, number)
	if err != nil {
		return err
	}
	block := toIndexerBlock(ix.chainID, raw)

	if err := ix.checkReorg(ctx, block); err != nil {
		return err
	}

	row, err := ix.ledger.AddUnprocessed(ctx, block)
	if err != nil {
		return err
	}
	if err := ix.ledger.MarkProcessing(ctx, row); err != nil {
		return err
	}

	filtered, err := ix.processor.Process(ctx, block, ix.matcher, ix.cfg.ChainName)
	if err != nil {
		_ = ix.ledger.MarkFailed(ctx, row, err)
		return err
	}

	if len(filtered) > 0 {
		unpublished := filtered[:0:0]
		for _, tx := range filtered {
			published, err := ix.ledger.WasTransactionPublished(ctx, ix.chainID, tx.Hash)
			if err != nil {
				idxLogger.Errorw("publish-dedup lookup failed, publishing anyway", "chain", ix.chainID, "tx", tx.Hash, "err", err)
				unpublished = append(unpublished, tx)
				continue
			}
			if published {
				continue
			}
			unpublished = append(unpublished, tx)
		}
		if len(unpublished) > 0 {
			msgs := buildMessages(ix.chainID, ix.cfg.ChainName, block, unpublished)
			if err := ix.publisher.PublishBatch(msgs); err != nil {
				_ = ix.ledger.MarkFailed(ctx, row, err)
				return err
			}
			hashes := make([]string, len(unpublished))
			for i, tx := range unpublished {
				hashes[i] = tx.Hash
			}
			if err := ix.ledger.MarkTransactionsPublished(ctx, ix.chainID, hashes); err != nil {
				idxLogger.Errorw("failed to record published transactions", "chain", ix.chainID, "err", err)
			}
		}
	}

	if err := ix.ledger.MarkCompleted(ctx, row); err != nil {
		return err
	}
	return ix.ledger.AddProcessed(ctx, block)
}

// checkReorg implements §4.6 step 2: if the ledger's row at number-1 has a
// hash that disagrees with this block's parentHash, walk backward (bounded
// by ReorgDepth) to find the divergence point, mark every diverged number
// REORGED, and rewind latestProcessed so the sweep re-indexes the forked
// range with fresh blocks.
func (ix *Indexer) checkReorg(ctx context.Context, block Block) error {
	if block.Number == 0 {
		return nil
	}
	prior, err := ix.ledger.BlockAt(ctx, ix.chainID, block.Number-1)
	if err != nil {
		return err
	}
	if prior == nil || prior.Hash == block.ParentHash {
		return nil
	}

	idxLogger.Warnw("reorg detected", "chain", ix.chainID, "number", block.Number, "expectedParent", prior.Hash, "actualParent", block.ParentHash)

	var diverged []uint64
	converged := false
	cursor := block.Number - 1
	for depth := 0; depth < ReorgDepth && cursor > 0; depth++ {
		ledgerRow, err := ix.ledger.BlockAt(ctx, ix.chainID, cursor)
		if err != nil {
			return err
		}
		if ledgerRow == nil {
			converged = true
			break
		}
		chainBlock, err := ix.client.BlockByNumber(ctx, cursor)
		if err != nil {
			return err
		}
		if chainBlock.Hash().Hex() == ledgerRow.Hash {
			converged = true
			break
		}
		diverged = append(diverged, cursor)
		cursor--
	}

	if len(diverged) == 0 {
		return nil
	}
	if !converged {
		// §4.6: "a divergence deeper than REORG_DEPTH is logged and the
		// indexer is paused for external intervention" — the rewind below
		// still covers the bounded window that was found, but continuous
		// indexing stops until an operator resumes it.
		idxLogger.Errorw("reorg divergence exceeds bound, pausing for external intervention", "chain", ix.chainID, "depth", ReorgDepth)
		ix.Pause()
	}
	if err := ix.ledger.MarkReorged(ctx, ix.chainID, diverged); err != nil {
		return err
	}

	rewindTo := diverged[len(diverged)-1] - 1
	ix.mu.Lock()
	if ix.latestProcessed > rewindTo {
		ix.latestProcessed = rewindTo
	}
	ix.mu.Unlock()
	metrics.Counter("indexer.reorgs").Inc(1)
	return nil
}

// runHealthCheck periodically verifies the RPC connection and publisher are
// both alive (§4.1/§4.6's health surface). Per §4.6, when the indexer is
// unhealthy and not paused this drives an auto stop/start rather than just
// logging: it hands off to restart and exits, since Stop itself waits on
// this goroutine's WaitGroup entry and cannot be called from within it.
func (ix *Indexer) runHealthCheck(ctx context.Context) {
	defer ix.wg.Done()
	ticker := time.NewTicker(ix.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ix.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			healthy := ix.client.Healthy(ctx)
			connected := ix.publisher.Connected()
			if healthy && connected {
				continue
			}
			idxLogger.Warnw("indexer health degraded", "chain", ix.chainID, "rpcHealthy", healthy, "busConnected", connected)

			_, _, paused := ix.Stats()
			if paused {
				continue
			}

			go ix.restart(ctx)
			return
		}
	}
}

// restart implements §4.6's "if unhealthy and not paused, auto stop/start":
// tear down the subscription and periodic tasks, then start over from the
// ledger's resume point. Runs on its own goroutine, detached from
// runHealthCheck's, since Stop blocks on the same WaitGroup entry
// runHealthCheck must return from first.
func (ix *Indexer) restart(ctx context.Context) {
	idxLogger.Warnw("indexer unhealthy, auto-restarting", "chain", ix.chainID)
	ix.Stop()
	if err := ix.Start(ctx); err != nil {
		idxLogger.Errorw("auto-restart failed", "chain", ix.chainID, "err", err)
	}
}

func toIndexerBlock(chainID uint64, raw *gethtypes.Block) Block {
	hashes := make([]string, len(raw.Transactions()))
	for i, tx := range raw.Transactions() {
		hashes[i] = tx.Hash().Hex()
	}
	return Block{
		ChainID:      chainID,
		Number:       raw.NumberU64(),
		Hash:         raw.Hash().Hex(),
		ParentHash:   raw.ParentHash().Hex(),
		Timestamp:    raw.Time(),
		Transactions: hashes,
		Raw:          raw,
	}
}

func buildMessages(chainID uint64, chainName string, block Block, filtered []pipeline.FilteredTransaction) []pipeline.BlockchainMessage {
	msgs := make([]pipeline.BlockchainMessage, 0, len(filtered))
	for _, ft := range filtered {
		var events []pipeline.Event
		for _, log := range ft.Logs {
			events = append(events, pipeline.Event{
				Name:     log.MatchedHash,
				Contract: log.Address,
				Address:  log.Address,
				Args:     nil,
			})
		}
		msgs = append(msgs, pipeline.BlockchainMessage{
			Transaction: ft,
			Events:      events,
			Timestamp:   block.Timestamp,
			Metadata: pipeline.Metadata{
				ChainID:         chainID,
				ChainName:       chainName,
				BlockNumber:     block.Number,
				TransactionHash: ft.Hash,
				Timestamp:       block.Timestamp,
			},
		})
	}
	return msgs
}
