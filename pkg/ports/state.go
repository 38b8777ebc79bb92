package ports

import (
	"context"
	"time"
)

// StepSummary is the observer-facing view of a single step.
type StepSummary struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	Error     string     `json:"error,omitempty"`
	Result    any        `json:"result,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

// RetryPolicy mirrors a step's retry configuration so a graph can be
// rebuilt from a snapshot with its policies intact.
type RetryPolicy struct {
	MaxAttempts    int     `json:"max_attempts"`
	InitialDelayMs int64   `json:"initial_delay_ms"`
	BackoffFactor  float64 `json:"backoff_factor"`
	MaxDelayMs     int64   `json:"max_delay_ms"`
}

// StepState is the full per-step record kept for recovery. Unlike
// StepSummary it carries the dependency edges and execution policy.
// The wrapped function is not serializable and is never mirrored.
type StepState struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Status    string       `json:"status"`
	Error     string       `json:"error,omitempty"`
	Result    any          `json:"result,omitempty"`
	DependsOn []string     `json:"depends_on,omitempty"`
	Retry     *RetryPolicy `json:"retry,omitempty"`
	TimeoutMs int64        `json:"timeout_ms,omitempty"`
	StartedAt *time.Time   `json:"started_at,omitempty"`
	EndedAt   *time.Time   `json:"ended_at,omitempty"`
}

// GraphSnapshot is the record mirrored to the StateStore on every event.
type GraphSnapshot struct {
	GraphID     string        `json:"graph_id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Status      string        `json:"status"`
	Progress    int           `json:"progress"`
	Paused      bool          `json:"paused"`
	ElapsedMs   int64         `json:"elapsed_ms"`
	Steps       []StepSummary `json:"steps"`
	StepStates  []StepState   `json:"step_states"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// StateStore mirrors graph/step state for external observers and across
// reloads. Implementations must tolerate concurrent writers for distinct
// graph ids.
type StateStore interface {
	// SaveSnapshot persists the current snapshot for a graph
	SaveSnapshot(ctx context.Context, snap *GraphSnapshot) error

	// LoadSnapshot retrieves the latest snapshot for a graph
	LoadSnapshot(ctx context.Context, graphID string) (*GraphSnapshot, error)

	// DeleteSnapshot removes a graph's snapshot and event log
	DeleteSnapshot(ctx context.Context, graphID string) error

	// ListSnapshots returns the snapshots of all mirrored graphs
	ListSnapshots(ctx context.Context) ([]*GraphSnapshot, error)

	// AppendEvent appends an event to the graph's append-only log
	AppendEvent(ctx context.Context, graphID string, event Event) error

	// ListEvents returns the graph's event log in append order
	ListEvents(ctx context.Context, graphID string) ([]Event, error)

	// SetTTL sets a time-to-live on a graph's mirrored data
	SetTTL(ctx context.Context, graphID string, ttl time.Duration) error
}
