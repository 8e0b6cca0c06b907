// Package chain implements the ChainClient and TxCache components of §4.1
// and §4.2: an abstract EVM RPC capability plus a bounded receipt/tx cache.
//
// The client wraps go-ethereum's ethclient.Client and rpc.Client the same
// way client/bridge_client.go wraps ethclient ("This file is derived from
// ethclient/ethclient.go", per that file's own header) — CallContext-based
// read methods plus a thin subscription layer.
package chain

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	gethcommon "github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/chainpipe/chainpipe/errs"
	"github.com/chainpipe/chainpipe/logging"
)

var logger = logging.Named("chain")

// Subscription mirrors event.Subscription's Unsubscribe/Err contract without
// depending on go-ethereum's internal event package, so a poll-backed
// subscription can implement it too.
type Subscription interface {
	Unsubscribe()
	Err() <-chan error
}

// Client is the ChainClient capability described in §4.1: latest block
// number, block/tx/receipt lookups, chain identity, a health probe and a
// new-heads subscription that transparently falls back to polling.
type Client interface {
	ChainID() uint64
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number uint64) (*gethtypes.Block, error)
	TransactionByHash(ctx context.Context, hash gethcommon.Hash) (*gethtypes.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash gethcommon.Hash) (*gethtypes.Receipt, error)
	Healthy(ctx context.Context) bool
	SubscribeNewHeads(ctx context.Context) (<-chan *gethtypes.Header, Subscription, error)
	Close()
}

// Client wraps an ethclient.Client/rpc.Client pair for one chain.
type client struct {
	chainID uint64
	rpcURL  string
	wsURL   string

	mu  sync.Mutex
	eth *ethclient.Client
	rc  *rpc.Client

	pushAvailable bool
}

// Dial connects to rpcURL (HTTP/HTTPS) and optionally wsURL (push
// subscriptions); if wsURL is empty, SubscribeNewHeads falls back to 1s
// polling per §4.1.
func Dial(ctx context.Context, chainID uint64, rpcURL, wsURL string) (Client, error) {
	rc, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errs.Transient(err)
	}
	eth := ethclient.NewClient(rc)
	c := &client{
		chainID: chainID,
		rpcURL:  rpcURL,
		wsURL:   wsURL,
		eth:     eth,
		rc:      rc,
	}
	if wsURL != "" {
		c.pushAvailable = true
	}
	return c, nil
}

func (c *client) ChainID() uint64 { return c.chainID }

func (c *client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, errs.Transient(err)
	}
	return n, nil
}

func (c *client) BlockByNumber(ctx context.Context, number uint64) (*gethtypes.Block, error) {
	blk, err := c.eth.BlockByNumber(ctx, newBigInt(number))
	if err != nil {
		return nil, errs.Transient(err)
	}
	return blk, nil
}

func (c *client) TransactionByHash(ctx context.Context, hash gethcommon.Hash) (*gethtypes.Transaction, bool, error) {
	tx, isPending, err := c.eth.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, false, errs.Transient(err)
	}
	return tx, isPending, nil
}

func (c *client) TransactionReceipt(ctx context.Context, hash gethcommon.Hash) (*gethtypes.Receipt, error) {
	r, err := c.eth.TransactionReceipt(ctx, hash)
	if err != nil {
		if err == ethereum.NotFound {
			return nil, nil
		}
		return nil, errs.Transient(err)
	}
	return r, nil
}

// Healthy requires a successful network identity call (net_version). It does
// not check the push subscription connection, even when push is configured.
func (c *client) Healthy(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	var idHex string
	if err := c.rc.CallContext(healthCtx, &idHex, "net_version"); err != nil {
		logger.Warnw("health check failed", "rpcURL", c.rpcURL, "err", err)
		return false
	}
	return true
}

func (c *client) SubscribeNewHeads(ctx context.Context) (<-chan *gethtypes.Header, Subscription, error) {
	if c.pushAvailable {
		wsClient, err := ethclient.DialContext(ctx, c.wsURL)
		if err != nil {
			logger.Warnw("ws dial failed, falling back to polling", "err", err)
		} else {
			ch := make(chan *gethtypes.Header, 16)
			sub, err := wsClient.SubscribeNewHead(ctx, ch)
			if err == nil {
				return ch, sub, nil
			}
			logger.Warnw("ws subscribe failed, falling back to polling", "err", err)
		}
	}
	return c.pollNewHeads(ctx)
}

func (c *client) pollNewHeads(ctx context.Context) (<-chan *gethtypes.Header, Subscription, error) {
	ch := make(chan *gethtypes.Header, 16)
	errCh := make(chan error, 1)
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		var lastSeen uint64
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := c.LatestBlockNumber(ctx)
				if err != nil {
					continue
				}
				if n <= lastSeen {
					continue
				}
				hdr, err := c.headerByNumber(ctx, n)
				if err != nil {
					continue
				}
				lastSeen = n
				select {
				case ch <- hdr:
				case <-stop:
					return
				}
			}
		}
	}()
	return ch, &pollSubscription{stop: stop, errCh: errCh}, nil
}

func (c *client) headerByNumber(ctx context.Context, number uint64) (*gethtypes.Header, error) {
	hdr, err := c.eth.HeaderByNumber(ctx, newBigInt(number))
	if err != nil {
		return nil, errs.Transient(err)
	}
	return hdr, nil
}

func (c *client) Close() {
	c.rc.Close()
}

type pollSubscription struct {
	once  sync.Once
	stop  chan struct{}
	errCh chan error
}

func (s *pollSubscription) Unsubscribe() {
	s.once.Do(func() { close(s.stop) })
}

func (s *pollSubscription) Err() <-chan error { return s.errCh }
