package taozen

import (
	"errors"
	"fmt"
)

// Configuration and batching errors, detected before any step executes.
var (
	// ErrCircularDependency indicates the dependency edges contain a cycle.
	ErrCircularDependency = errors.New("circular dependency detected")

	// ErrDependencyUnresolved indicates a step read a dependency result
	// before the dependency completed. Guards against batching bugs and
	// misuse.
	ErrDependencyUnresolved = errors.New("dependency result not available")
)

// Execution errors.
var (
	// ErrStepTimeout indicates a step attempt exceeded its configured
	// timeout. Retryable if a retry policy is configured.
	ErrStepTimeout = errors.New("step timed out")

	// ErrStepCancelled indicates the run's cancellation token fired.
	// Never retried.
	ErrStepCancelled = errors.New("step cancelled")
)

// Caller-misuse guards, rejected immediately.
var (
	// ErrAlreadyRun indicates a second Run on a graph instance, which runs
	// at most once.
	ErrAlreadyRun = errors.New("graph has already run")

	// ErrTooManyConcurrentGraphs indicates the engine's admission limit is
	// exceeded.
	ErrTooManyConcurrentGraphs = errors.New("too many concurrent graph runs")

	// ErrNotRegistered indicates the graph is not attached to the state
	// mirror.
	ErrNotRegistered = errors.New("graph is not registered")

	// ErrInvalidRetryState indicates a Retry on a graph that is neither
	// failed nor cancelled.
	ErrInvalidRetryState = errors.New("graph is not in a retryable state")
)

// StepError wraps a failure with the identity of the step it came from.
type StepError struct {
	StepID   string
	StepName string
	Err      error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.StepName, e.Err)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}
