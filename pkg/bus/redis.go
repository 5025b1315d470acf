package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis pub/sub channel carrying flag mutations.
// Shared with the management layer; changing it orphans every subscriber.
const DefaultChannel = "flag_updates"

type redisSub struct {
	pubsub *redis.PubSub
	ch     chan Event
	once   sync.Once
	log    *slog.Logger
}

func (s *redisSub) Events() <-chan Event { return s.ch }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		err = s.pubsub.Close()
	})
	return err
}

// run pumps raw pub/sub messages into typed events until the underlying
// subscription closes. Garbage payloads are logged and dropped; a poisoned
// message must not kill the feed.
func (s *redisSub) run() {
	defer close(s.ch)
	for msg := range s.pubsub.Channel() {
		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			s.log.Warn("dropping malformed invalidation message",
				slog.String("payload", msg.Payload),
				slog.Any("error", err))
			continue
		}
		select {
		case s.ch <- event:
		default:
			// A full buffer means the consumer stopped draining; dropping is
			// bounded by the cache TTL.
			s.log.Warn("dropping invalidation event, subscriber buffer full",
				slog.String("app_id", event.AppID),
				slog.String("flag_key", event.FlagKey))
		}
	}
}

// RedisBus carries invalidation events over Redis pub/sub so every server
// instance sees mutations committed anywhere. The bus does not own the
// client; closing the bus closes its subscriptions, not the connection.
type RedisBus struct {
	client  redis.UniversalClient
	channel string
	log     *slog.Logger

	mu   sync.Mutex
	subs []*redisSub
}

// RedisBusOption configures a RedisBus.
type RedisBusOption func(*RedisBus)

// WithChannel overrides the pub/sub channel name.
func WithChannel(channel string) RedisBusOption {
	return func(b *RedisBus) {
		if channel != "" {
			b.channel = channel
		}
	}
}

// WithLogger sets the logger for subscription diagnostics.
func WithLogger(log *slog.Logger) RedisBusOption {
	return func(b *RedisBus) {
		if log != nil {
			b.log = log
		}
	}
}

// NewRedisBus creates an invalidation bus over the given Redis client.
func NewRedisBus(client redis.UniversalClient, opts ...RedisBusOption) *RedisBus {
	b := &RedisBus{
		client:  client,
		channel: DefaultChannel,
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish implements Bus.
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe implements Bus. The context cancels the subscription.
func (b *RedisBus) Subscribe(ctx context.Context) Subscription {
	sub := &redisSub{
		pubsub: b.client.Subscribe(ctx, b.channel),
		ch:     make(chan Event, 16),
		log:    b.log,
	}
	go sub.run()

	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			_ = sub.Close()
		}()
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	return sub
}

// Close implements Bus, closing every live subscription.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}
