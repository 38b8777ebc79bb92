package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/taozen/pkg/ports"
)

func TestPublishSubscribe(t *testing.T) {
	bus := NewInMemoryEventBus()
	ctx := context.Background()

	var mu sync.Mutex
	var received []ports.Event
	err := bus.Subscribe(ctx, "graph.events", func(ctx context.Context, ev ports.Event) error {
		mu.Lock()
		received = append(received, ev)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		ev := ports.Event{ID: "ev", Type: ports.EventGraphStart, GraphID: "g1", Timestamp: time.Now()}
		if err := bus.Publish(ctx, "graph.events", ev); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 3 {
		t.Errorf("expected 3 events, got %d", len(received))
	}
}

func TestPublish_TopicIsolation(t *testing.T) {
	bus := NewInMemoryEventBus()
	ctx := context.Background()

	var count int
	_ = bus.Subscribe(ctx, "step.events", func(ctx context.Context, ev ports.Event) error {
		count++
		return nil
	})

	_ = bus.Publish(ctx, "graph.events", ports.Event{Type: ports.EventGraphStart})
	if count != 0 {
		t.Error("subscriber received event from another topic")
	}

	_ = bus.Publish(ctx, "step.events", ports.Event{Type: ports.EventStepStart})
	if count != 1 {
		t.Errorf("expected 1 event on own topic, got %d", count)
	}
}

func TestSubscribe_ContextRelease(t *testing.T) {
	bus := NewInMemoryEventBus()
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	var count int
	_ = bus.Subscribe(ctx, "graph.events", func(ctx context.Context, ev ports.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	cancel()
	// Cleanup goroutine needs a moment
	time.Sleep(20 * time.Millisecond)

	_ = bus.Publish(context.Background(), "graph.events", ports.Event{Type: ports.EventGraphStart})

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("released subscriber received %d events", count)
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus()
	ctx := context.Background()

	var count int
	_ = bus.Subscribe(ctx, "graph.events", func(ctx context.Context, ev ports.Event) error {
		count++
		return nil
	})

	if err := bus.Unsubscribe(ctx, "graph.events"); err != nil {
		t.Fatalf("unsubscribe failed: %v", err)
	}
	_ = bus.Publish(ctx, "graph.events", ports.Event{Type: ports.EventGraphStart})

	if count != 0 {
		t.Errorf("unsubscribed topic received %d events", count)
	}
}
