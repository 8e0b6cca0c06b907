package bus

import (
	"context"
	"sync"

	"github.com/go-redis/redis/v7"

	"github.com/chainpipe/chainpipe/config"
	"github.com/chainpipe/chainpipe/errs"
	"github.com/chainpipe/chainpipe/pipeline"
)

// Publisher is the §4.7 Publisher capability: connect/disconnect, a single
// publish and an ordered batch publish.
type Publisher struct {
	mu        sync.Mutex
	cfg       config.Redis
	client    *redis.Client
	connected bool
}

// NewPublisher constructs a disconnected Publisher for the given redis
// configuration; call Connect before Publish.
func NewPublisher(cfg config.Redis) *Publisher {
	return &Publisher{cfg: cfg}
}

// Connect establishes the underlying redis connection.
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		return nil
	}
	client := newRedisClient(p.cfg)
	if err := client.Ping().Err(); err != nil {
		return errs.Fatal(err)
	}
	p.client = client
	p.connected = true
	return nil
}

// Disconnect closes the underlying connection.
func (p *Publisher) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil
	}
	p.connected = false
	return p.client.Close()
}

// Connected reports whether the publisher currently holds a live
// connection, used by the Indexer's health check (§4.6).
func (p *Publisher) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return false
	}
	return p.client.Ping().Err() == nil
}

// Publish sends a single message on the configured channel.
func (p *Publisher) Publish(msg pipeline.BlockchainMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return errs.Transientf("publisher: not connected")
	}
	payload, err := pipeline.Encode(msg)
	if err != nil {
		return errs.Decode(err)
	}
	return wrapRedisErr(p.client.Publish(p.cfg.Channel, payload).Err())
}

// PublishBatch sorts msgs ascending by timestamp and publishes them in that
// order, reporting a single success/failure for the whole batch (§4.7). A
// batch publish must preserve (blockNumber, logIndex) order within a block;
// callers are responsible for constructing msgs in that order before
// calling PublishBatch, since timestamp alone does not disambiguate
// same-second transactions.
func (p *Publisher) PublishBatch(msgs []pipeline.BlockchainMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	sortByTimestamp(msgs)

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return errs.Transientf("publisher: not connected")
	}
	pipe := p.client.Pipeline()
	for _, msg := range msgs {
		payload, err := pipeline.Encode(msg)
		if err != nil {
			return errs.Decode(err)
		}
		pipe.Publish(p.cfg.Channel, payload)
	}
	_, err := pipe.Exec()
	return wrapRedisErr(err)
}
