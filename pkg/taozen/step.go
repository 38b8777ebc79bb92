package taozen

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// Status is the lifecycle status of a graph or step.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused" // graph-level only
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is terminal.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// StepFunc is the asynchronous unit of work a step wraps. It receives an
// input view over the completed results of the step's dependencies.
type StepFunc func(ctx context.Context, input *Input) (any, error)

// RetryConfig is a step's retry policy. An attempt failing with anything
// other than cancellation is retried up to MaxAttempts total attempts, with
// delay = min(InitialDelay * BackoffFactor^(attempt-1), MaxDelay) between
// attempts.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration
}

// delay returns the backoff delay after the given 1-based attempt.
func (c RetryConfig) delay(attempt int) time.Duration {
	factor := c.BackoffFactor
	if factor <= 0 {
		factor = 1
	}
	d := time.Duration(float64(c.InitialDelay) * math.Pow(factor, float64(attempt-1)))
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// Step wraps a caller-supplied function, its dependency set and its
// execution policy. Steps are created through Graph.NewStep, never
// directly, and hold a non-owning back-reference to their graph for event
// emission and dependency lookup.
type Step struct {
	id    string
	name  string
	graph *Graph

	// Configuration, written only during graph building
	fn       StepFunc
	deps     []string
	retry    *RetryConfig
	timeout  time.Duration
	onCancel func()

	mu        sync.RWMutex
	status    Status
	result    any
	err       error
	startedAt *time.Time
	endedAt   *time.Time
}

// Exe sets the step's function. Returns the step for chaining.
func (s *Step) Exe(fn StepFunc) *Step {
	s.fn = fn
	return s
}

// After declares dependencies on sibling steps. A step from another graph
// is a configuration error, surfaced by Run.
func (s *Step) After(steps ...*Step) *Step {
	for _, dep := range steps {
		if dep == nil {
			s.graph.setConfigErr(fmt.Errorf("step %q: nil dependency", s.name))
			continue
		}
		if dep.graph != s.graph {
			s.graph.setConfigErr(fmt.Errorf("step %q: dependency %q belongs to a different graph", s.name, dep.name))
			continue
		}
		if dep.id == s.id {
			s.graph.setConfigErr(fmt.Errorf("step %q depends on itself", s.name))
			continue
		}
		if !containsString(s.deps, dep.id) {
			s.deps = append(s.deps, dep.id)
		}
	}
	return s
}

// Retry sets the step's retry policy.
func (s *Step) Retry(cfg RetryConfig) *Step {
	s.retry = &cfg
	return s
}

// Timeout sets a per-attempt timeout.
func (s *Step) Timeout(d time.Duration) *Step {
	s.timeout = d
	return s
}

// OnCancel sets a callback invoked when the step is cancelled or marked
// failed by a sibling's failure while still running.
func (s *Step) OnCancel(fn func()) *Step {
	s.onCancel = fn
	return s
}

// ID returns the step's generated identifier.
func (s *Step) ID() string { return s.id }

// Name returns the step's human-readable name.
func (s *Step) Name() string { return s.name }

// Status returns the step's current status.
func (s *Step) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Result returns the step's result. Defined only when the step completed.
func (s *Step) Result() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// Err returns the step's error. Defined only when the step failed or was
// cancelled.
func (s *Step) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// StartedAt returns the start timestamp of the last running episode.
func (s *Step) StartedAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// EndedAt returns the timestamp of the last terminal transition.
func (s *Step) EndedAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.endedAt
}

// Dependencies returns the step's dependency identifiers in declaration
// order.
func (s *Step) Dependencies() []string {
	out := make([]string, len(s.deps))
	copy(out, s.deps)
	return out
}

// reset returns the step to pending, clearing result and error. Identity,
// configuration and timestamps are preserved; timestamps keep diagnostic
// history until the next running episode re-stamps them.
func (s *Step) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusPending
	s.result = nil
	s.err = nil
}

// begin transitions the step to running, clearing prior result/error and
// stamping the start time.
func (s *Step) begin() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusRunning
	s.result = nil
	s.err = nil
	s.startedAt = &now
	s.endedAt = nil
}

// finish records a terminal transition. It only applies when the step is
// still running, so work abandoned after a timeout, cancellation or batch
// abort cannot overwrite the recorded outcome.
func (s *Step) finish(status Status, result any, err error) bool {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning {
		return false
	}
	s.status = status
	s.result = result
	s.err = err
	s.endedAt = &now
	return true
}

// markCancelled records cancellation observed before the step began.
func (s *Step) markCancelled(err error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	s.status = StatusCancelled
	s.err = err
	s.endedAt = &now
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
