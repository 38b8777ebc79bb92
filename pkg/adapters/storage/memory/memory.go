package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/taozen/pkg/ports"
)

// InMemoryStateStore implements StateStore with in-memory maps. Suitable
// for tests and for embedding the engine without Redis.
type InMemoryStateStore struct {
	mu        sync.RWMutex
	snapshots map[string]*ports.GraphSnapshot
	events    map[string][]ports.Event
}

// NewInMemoryStateStore creates a new in-memory state store.
func NewInMemoryStateStore() *InMemoryStateStore {
	return &InMemoryStateStore{
		snapshots: make(map[string]*ports.GraphSnapshot),
		events:    make(map[string][]ports.Event),
	}
}

// SaveSnapshot persists the snapshot for a graph.
func (s *InMemoryStateStore) SaveSnapshot(ctx context.Context, snap *ports.GraphSnapshot) error {
	if snap == nil || snap.GraphID == "" {
		return fmt.Errorf("invalid snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Shallow copy to decouple from later mutations by the caller
	cp := *snap
	cp.Steps = append([]ports.StepSummary(nil), snap.Steps...)
	cp.StepStates = append([]ports.StepState(nil), snap.StepStates...)
	s.snapshots[snap.GraphID] = &cp
	return nil
}

// LoadSnapshot retrieves the latest snapshot for a graph.
func (s *InMemoryStateStore) LoadSnapshot(ctx context.Context, graphID string) (*ports.GraphSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.snapshots[graphID]
	if !ok {
		return nil, fmt.Errorf("snapshot not found: %s", graphID)
	}
	cp := *snap
	return &cp, nil
}

// DeleteSnapshot removes a graph's snapshot and event log.
func (s *InMemoryStateStore) DeleteSnapshot(ctx context.Context, graphID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.snapshots, graphID)
	delete(s.events, graphID)
	return nil
}

// ListSnapshots returns the snapshots of all mirrored graphs.
func (s *InMemoryStateStore) ListSnapshots(ctx context.Context) ([]*ports.GraphSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ports.GraphSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		cp := *snap
		out = append(out, &cp)
	}
	return out, nil
}

// AppendEvent appends an event to the graph's log.
func (s *InMemoryStateStore) AppendEvent(ctx context.Context, graphID string, event ports.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[graphID] = append(s.events[graphID], event)
	return nil
}

// ListEvents returns the graph's event log in append order.
func (s *InMemoryStateStore) ListEvents(ctx context.Context, graphID string) ([]ports.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]ports.Event(nil), s.events[graphID]...), nil
}

// SetTTL is a no-op for the in-memory store.
func (s *InMemoryStateStore) SetTTL(ctx context.Context, graphID string, ttl time.Duration) error {
	return nil
}
