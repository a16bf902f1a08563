package redis

import (
	"context"
	"sync"

	"github.com/campus-hub/campus-attendance-hub/internal/infrastructure/messaging"
)

// ══════════════════════════════════════════════════════════════════════════════
// PUB/SUB BRIDGE
// ══════════════════════════════════════════════════════════════════════════════

// PubSubBridge adapts the go-redis client to the event bus's RedisClient
// interface, so the distributed event bus can run on the same connection
// pool as the progress cache.
type PubSubBridge struct {
	cache *Cache

	mu      sync.Mutex
	subs    []func()
	closed  bool
	started sync.WaitGroup
}

// NewPubSubBridge wraps an existing cache connection.
func NewPubSubBridge(cache *Cache) *PubSubBridge {
	return &PubSubBridge{cache: cache}
}

// Publish sends a message to a channel.
func (b *PubSubBridge) Publish(ctx context.Context, channel string, message interface{}) error {
	return b.cache.Client().Publish(ctx, channel, message).Err()
}

// Subscribe listens on the given channels and streams messages until the
// context is cancelled or the bridge is closed. Receive errors are
// delivered on the same channel so the consumer can log and continue.
func (b *PubSubBridge) Subscribe(ctx context.Context, channels ...string) (<-chan messaging.RedisMessage, error) {
	pubsub := b.cache.Client().Subscribe(ctx, channels...)

	// Force the subscription onto the wire before returning, so a
	// publisher started right after cannot race past us.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan messaging.RedisMessage)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = pubsub.Close()
		close(out)
		return out, nil
	}
	b.subs = append(b.subs, func() { _ = pubsub.Close() })
	b.mu.Unlock()

	b.started.Add(1)
	go func() {
		defer b.started.Done()
		defer close(out)

		source := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-source:
				if !ok {
					return
				}
				select {
				case out <- messaging.RedisMessage{Channel: msg.Channel, Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close shuts down all subscriptions. The underlying cache connection is
// owned by the caller and stays open.
func (b *PubSubBridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, closeSub := range subs {
		closeSub()
	}
	b.started.Wait()

	return nil
}
