package taozen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aescanero/taozen/pkg/ports"
)

// execute drives one logical running episode of the step: pre-start
// checkpoint, input resolution, then the wrapped function under the step's
// policies. Retry, if configured, wraps the timeout: each attempt is
// individually subject to the timeout.
func (s *Step) execute(ctx context.Context) error {
	g := s.graph
	tok := g.runToken()

	if err := g.checkpoint(ctx, s); err != nil {
		s.markCancelled(err)
		g.emit(ports.EventStepFail, s.id, nil, err)
		g.engine.metricsStepExecuted(StatusCancelled, 0)
		return err
	}

	s.begin()
	g.addRunning(s)
	g.emit(ports.EventStepStart, s.id, nil, nil)

	input, err := s.resolveInput()
	if err != nil {
		return s.conclude(StatusFailed, nil, err)
	}

	result, err := s.runAttempts(ctx, tok, input)
	if err != nil {
		status := StatusFailed
		if errors.Is(err, ErrStepCancelled) {
			status = StatusCancelled
		}
		return s.conclude(status, nil, err)
	}
	return s.conclude(StatusCompleted, result, nil)
}

// conclude records the terminal transition and emits the matching event.
// If the step is no longer running (cancelled or aborted by a sibling
// while the function was in flight) the outcome is discarded and the
// recorded error is surfaced instead.
func (s *Step) conclude(status Status, result any, err error) error {
	g := s.graph
	if !s.finish(status, result, err) {
		return s.Err()
	}
	g.removeRunning(s)

	switch status {
	case StatusCompleted:
		g.emit(ports.EventStepComplete, s.id, map[string]any{"result": result}, nil)
	default:
		g.emit(ports.EventStepFail, s.id, nil, err)
	}
	g.engine.metricsStepExecuted(status, s.elapsed())
	return err
}

// runAttempts applies the retry policy around individual attempts.
// Cancellation observed at any point takes priority over exhausting
// retries and is never itself retried; exhausting all attempts surfaces
// the last attempt's error.
func (s *Step) runAttempts(ctx context.Context, tok *CancelToken, input *Input) (any, error) {
	attempts := 1
	if s.retry != nil && s.retry.MaxAttempts > 1 {
		attempts = s.retry.MaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := s.attempt(ctx, tok, input)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, ErrStepCancelled) {
			return nil, err
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		delay := s.retry.delay(attempt)
		s.graph.emit(ports.EventStepRetry, s.id, map[string]any{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
		}, err)
		s.graph.engine.metricsStepRetried()

		if err := s.awaitDelay(ctx, tok, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// attempt races the wrapped function against the optional timeout and the
// cancellation token. The engine cannot forcibly terminate the function;
// a lost race only stops awaiting it and discards its eventual result.
func (s *Step) attempt(ctx context.Context, tok *CancelToken, input *Input) (any, error) {
	type outcome struct {
		result any
		err    error
	}
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: &StepError{StepID: s.id, StepName: s.name, Err: fmt.Errorf("panic: %v", r)}}
			}
		}()
		result, err := s.fn(ctx, input)
		if err != nil {
			err = &StepError{StepID: s.id, StepName: s.name, Err: err}
		}
		ch <- outcome{result: result, err: err}
	}()

	var timeout <-chan time.Time
	if s.timeout > 0 {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case out := <-ch:
		return out.result, out.err
	case <-timeout:
		return nil, fmt.Errorf("step %q: %w after %s", s.name, ErrStepTimeout, s.timeout)
	case <-tok.Done():
		return nil, s.graph.cancelCause()
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
	}
}

// awaitDelay waits the backoff delay, aborting immediately if cancellation
// fires during the wait.
func (s *Step) awaitDelay(ctx context.Context, tok *CancelToken, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-tok.Done():
		return s.graph.cancelCause()
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
	}
}

// elapsed returns the duration of the last running episode.
func (s *Step) elapsed() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startedAt == nil {
		return 0
	}
	if s.endedAt == nil {
		return time.Since(*s.startedAt)
	}
	return s.endedAt.Sub(*s.startedAt)
}
