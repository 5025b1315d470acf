package bus

import (
	"context"
	"sync"
)

type memorySub struct {
	ch     chan Event
	closed bool
	mu     sync.RWMutex
}

func newMemorySub(buffer int) *memorySub {
	return &memorySub{ch: make(chan Event, buffer)}
}

func (s *memorySub) Events() <-chan Event { return s.ch }

func (s *memorySub) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		close(s.ch)
		s.closed = true
	}
	return nil
}

// send is non-blocking: a full subscriber buffer drops the event instead of
// stalling the publisher.
func (s *memorySub) send(event Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- event:
		return true
	default:
		return false
	}
}

// MemoryBus is an in-process Bus for single-instance deployments and tests.
// All methods are safe for concurrent use.
type MemoryBus struct {
	subs      map[*memorySub]struct{}
	buffer    int
	closed    bool
	mu        sync.RWMutex
	cleanupWg sync.WaitGroup
}

// NewMemoryBus creates an in-memory invalidation bus. Each subscriber gets
// a channel buffered to the given size, minimum 1.
func NewMemoryBus(buffer int) *MemoryBus {
	return &MemoryBus{
		subs:   make(map[*memorySub]struct{}),
		buffer: max(buffer, 1),
	}
}

// Subscribe implements Bus. On a closed bus, the returned subscription is
// already closed.
func (b *MemoryBus) Subscribe(ctx context.Context) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := newMemorySub(b.buffer)
	if b.closed {
		_ = sub.Close()
		return sub
	}
	b.subs[sub] = struct{}{}

	if ctx.Done() != nil {
		b.cleanupWg.Add(1)
		go func() {
			defer b.cleanupWg.Done()
			<-ctx.Done()
			b.unsubscribe(sub)
		}()
	}

	return sub
}

// Publish implements Bus. Events are fanned out non-blocking; a subscriber
// that cannot keep up is dropped, which is safe because a missed
// invalidation is bounded by the cache TTL.
func (b *MemoryBus) Publish(_ context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}
	for sub := range b.subs {
		if !sub.send(event) {
			go b.unsubscribe(sub)
		}
	}
	return nil
}

// Close implements Bus and is safe to call more than once.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for sub := range b.subs {
		_ = sub.Close()
	}
	clear(b.subs)
	b.mu.Unlock()

	b.cleanupWg.Wait()
	return nil
}

func (b *MemoryBus) unsubscribe(sub *memorySub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub)
	_ = sub.Close()
}
