package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aescanero/taozen/pkg/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StateStore implements StateStore using Redis. Snapshots live as JSON
// values with a TTL; the per-graph event log is a Redis list under a
// sibling key sharing the same TTL.
type StateStore struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewStateStore creates a new Redis state store.
func NewStateStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *StateStore {
	return &StateStore{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// SaveSnapshot persists the snapshot for a graph.
func (s *StateStore) SaveSnapshot(ctx context.Context, snap *ports.GraphSnapshot) error {
	if snap == nil || snap.GraphID == "" {
		return fmt.Errorf("invalid snapshot")
	}

	key := getSnapshotKey(snap.GraphID)

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	s.logger.Debug("snapshot saved",
		zap.String("graph_id", snap.GraphID),
		zap.String("status", snap.Status))

	return nil
}

// LoadSnapshot retrieves the latest snapshot for a graph.
func (s *StateStore) LoadSnapshot(ctx context.Context, graphID string) (*ports.GraphSnapshot, error) {
	key := getSnapshotKey(graphID)

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("snapshot not found: %s", graphID)
		}
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	var snap ports.GraphSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// DeleteSnapshot removes a graph's snapshot and event log.
func (s *StateStore) DeleteSnapshot(ctx context.Context, graphID string) error {
	if err := s.client.Del(ctx, getSnapshotKey(graphID), getEventLogKey(graphID)).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	s.logger.Debug("snapshot deleted",
		zap.String("graph_id", graphID))

	return nil
}

// ListSnapshots returns the snapshots of all mirrored graphs.
func (s *StateStore) ListSnapshots(ctx context.Context) ([]*ports.GraphSnapshot, error) {
	pattern := "taozen:state:*"

	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	snapshots := make([]*ports.GraphSnapshot, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			// Key expired between scan and get
			continue
		}

		var snap ports.GraphSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			continue
		}

		snapshots = append(snapshots, &snap)
	}

	return snapshots, nil
}

// AppendEvent appends an event to the graph's log.
func (s *StateStore) AppendEvent(ctx context.Context, graphID string, event ports.Event) error {
	key := getEventLogKey(graphID)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := s.client.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to refresh event log TTL: %w", err)
	}

	return nil
}

// ListEvents returns the graph's event log in append order.
func (s *StateStore) ListEvents(ctx context.Context, graphID string) ([]ports.Event, error) {
	key := getEventLogKey(graphID)

	entries, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	events := make([]ports.Event, 0, len(entries))
	for _, entry := range entries {
		var event ports.Event
		if err := json.Unmarshal([]byte(entry), &event); err != nil {
			s.logger.Error("failed to unmarshal event",
				zap.String("graph_id", graphID),
				zap.Error(err))
			continue
		}
		events = append(events, event)
	}

	return events, nil
}

// SetTTL sets a time-to-live for a graph's snapshot and event log.
func (s *StateStore) SetTTL(ctx context.Context, graphID string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, getSnapshotKey(graphID), ttl).Err(); err != nil {
		return fmt.Errorf("failed to set TTL: %w", err)
	}
	if err := s.client.Expire(ctx, getEventLogKey(graphID), ttl).Err(); err != nil {
		return fmt.Errorf("failed to set event log TTL: %w", err)
	}

	return nil
}

// getSnapshotKey returns the Redis key for a graph snapshot
func getSnapshotKey(graphID string) string {
	return fmt.Sprintf("taozen:state:%s", graphID)
}

// getEventLogKey returns the Redis key for a graph event log
func getEventLogKey(graphID string) string {
	return fmt.Sprintf("taozen:eventlog:%s", graphID)
}
