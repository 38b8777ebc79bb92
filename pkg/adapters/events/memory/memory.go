package memory

import (
	"context"
	"sync"

	"github.com/aescanero/taozen/pkg/ports"
)

// InMemoryEventBus implements EventBus with in-process handlers. Suitable
// for tests and for embedding the engine without Redis.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	seq         int
	subscribers map[string]map[int]ports.EventHandler
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{
		subscribers: make(map[string]map[int]ports.EventHandler),
	}
}

// Publish delivers an event synchronously to all subscribers of a topic.
// Synchronous delivery preserves the engine's event ordering guarantees.
func (b *InMemoryEventBus) Publish(ctx context.Context, topic string, event ports.Event) error {
	b.mu.RLock()
	handlers := make([]ports.EventHandler, 0, len(b.subscribers[topic]))
	for _, h := range b.subscribers[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		// Handler errors do not interrupt delivery to other subscribers
		_ = handler(ctx, event)
	}
	return nil
}

// Subscribe subscribes to events on a specific topic. The subscription is
// released when ctx is cancelled.
func (b *InMemoryEventBus) Subscribe(ctx context.Context, topic string, handler ports.EventHandler) error {
	b.mu.Lock()
	b.seq++
	id := b.seq
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[int]ports.EventHandler)
	}
	b.subscribers[topic][id] = handler
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subscribers[topic], id)
		b.mu.Unlock()
	}()

	return nil
}

// Unsubscribe removes all subscriptions from a topic.
func (b *InMemoryEventBus) Unsubscribe(ctx context.Context, topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, topic)
	return nil
}

// Close closes the event bus and drops all subscribers.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[string]map[int]ports.EventHandler)
	return nil
}
