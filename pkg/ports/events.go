package ports

import (
	"context"
	"time"
)

// EventType identifies a graph-level (tao:) or step-level (zen:) event.
// The set is closed; consumers should switch exhaustively and treat any
// other value as a protocol error.
type EventType string

const (
	// Graph-level events
	EventGraphStart    EventType = "tao:start"
	EventGraphComplete EventType = "tao:complete"
	EventGraphFail     EventType = "tao:fail"
	EventGraphPause    EventType = "tao:pause"
	EventGraphResume   EventType = "tao:resume"
	EventGraphRetry    EventType = "tao:retry"

	// Step-level events
	EventStepStart    EventType = "zen:start"
	EventStepComplete EventType = "zen:complete"
	EventStepFail     EventType = "zen:fail"
	EventStepRetry    EventType = "zen:retry"
	EventStepPause    EventType = "zen:pause"
	EventStepResume   EventType = "zen:resume"
)

// StepLevel reports whether the event type refers to a single step
// rather than the whole graph.
func (t EventType) StepLevel() bool {
	switch t {
	case EventStepStart, EventStepComplete, EventStepFail,
		EventStepRetry, EventStepPause, EventStepResume:
		return true
	case EventGraphStart, EventGraphComplete, EventGraphFail,
		EventGraphPause, EventGraphResume, EventGraphRetry:
		return false
	}
	return false
}

// Valid reports whether the event type belongs to the closed set.
func (t EventType) Valid() bool {
	switch t {
	case EventGraphStart, EventGraphComplete, EventGraphFail,
		EventGraphPause, EventGraphResume, EventGraphRetry,
		EventStepStart, EventStepComplete, EventStepFail,
		EventStepRetry, EventStepPause, EventStepResume:
		return true
	}
	return false
}

// Event is the record published for every graph and step state change.
// StepID is empty for graph-level events. Error holds the message of the
// failure for fail events; the structured error stays with the engine.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	GraphID   string         `json:"graph_id"`
	StepID    string         `json:"step_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// EventHandler processes a single event delivered by an EventBus.
type EventHandler func(ctx context.Context, event Event) error

// EventBus is the pub/sub channel external collaborators subscribe to.
type EventBus interface {
	// Publish publishes an event to all subscribers of a topic
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe subscribes to events on a specific topic. The subscription
	// is released when ctx is cancelled.
	Subscribe(ctx context.Context, topic string, handler EventHandler) error

	// Unsubscribe removes all subscriptions from a topic
	Unsubscribe(ctx context.Context, topic string) error

	// Close closes the event bus and cleans up resources
	Close() error
}
