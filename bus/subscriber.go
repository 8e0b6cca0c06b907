package bus

import (
	"sync"

	"github.com/go-redis/redis/v7"

	"github.com/chainpipe/chainpipe/config"
	"github.com/chainpipe/chainpipe/errs"
	"github.com/chainpipe/chainpipe/pipeline"
)

// Handler processes one normalized message. It returns nothing: per-message
// errors are the handler's to log and never stop the subscriber — only a
// connection failure does, per §7's propagation rules.
type Handler func(msg pipeline.BlockchainMessage, variant pipeline.Variant)

// Subscriber is the §4.7 Subscriber capability: connect, subscribe to a
// single channel with a callback, unsubscribe, and pause/resume (pause =
// unsubscribe while holding the connection open).
type Subscriber struct {
	mu        sync.Mutex
	cfg       config.Redis
	client    *redis.Client
	pubsub    *redis.PubSub
	handler   Handler
	channel   string
	connected bool
	paused    bool
	stop      chan struct{}
	wg        sync.WaitGroup
}

// NewSubscriber constructs a disconnected Subscriber.
func NewSubscriber(cfg config.Redis) *Subscriber {
	return &Subscriber{cfg: cfg}
}

// Connect establishes the underlying redis connection without subscribing
// to any channel yet.
func (s *Subscriber) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}
	client := newRedisClient(s.cfg)
	if err := client.Ping().Err(); err != nil {
		return errs.Fatal(err)
	}
	s.client = client
	s.connected = true
	return nil
}

// Subscribe starts delivering normalized messages on channel to handler.
// Decode failures are logged and skipped per-message (§7's Decode class);
// they never stop the subscriber.
func (s *Subscriber) Subscribe(channel string, handler Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return errs.Transientf("subscriber: not connected")
	}
	s.channel = channel
	s.handler = handler
	return s.startLocked()
}

func (s *Subscriber) startLocked() error {
	s.pubsub = s.client.Subscribe(s.channel)
	if _, err := s.pubsub.Receive(); err != nil {
		return errs.Transient(err)
	}
	s.stop = make(chan struct{})
	s.paused = false
	ch := s.pubsub.Channel()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.stop:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				normalized, variant, err := pipeline.Decode([]byte(msg.Payload))
				if err != nil {
					logger.Errorw("dropping undecodable message", "channel", s.channel, "err", err)
					continue
				}
				s.handler(normalized, variant)
			}
		}
	}()
	return nil
}

// Unsubscribe permanently stops delivery and releases the pubsub handle.
func (s *Subscriber) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *Subscriber) stopLocked() error {
	if s.pubsub == nil {
		return nil
	}
	close(s.stop)
	err := s.pubsub.Close()
	s.wg.Wait()
	s.pubsub = nil
	return wrapRedisErr(err)
}

// Pause unsubscribes from the channel while keeping the underlying
// connection open, per §4.7's "pause = unsubscribe while holding the
// connection". Messages published while paused are not re-delivered on
// Resume (ordinary pub/sub semantics — §8 scenario 6).
func (s *Subscriber) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return nil
	}
	if err := s.stopLocked(); err != nil {
		return err
	}
	s.paused = true
	return nil
}

// Resume re-subscribes to the same channel with the same handler.
func (s *Subscriber) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return nil
	}
	return s.startLocked()
}

// Connected reports whether the subscriber holds a live redis connection.
func (s *Subscriber) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return false
	}
	return s.client.Ping().Err() == nil
}
