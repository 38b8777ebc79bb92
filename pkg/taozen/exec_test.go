package taozen

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aescanero/taozen/pkg/ports"
)

func TestRun_ResultsFlowToDependents(t *testing.T) {
	e := NewEngine(nil)
	g := e.NewGraph("inputs", "")

	a := g.NewStep("A").Exe(func(ctx context.Context, input *Input) (any, error) {
		return 42, nil
	})
	b := g.NewStep("B").Exe(func(ctx context.Context, input *Input) (any, error) {
		return "payload", nil
	})

	var fromA any
	var fromB any
	c := g.NewStep("C").Exe(func(ctx context.Context, input *Input) (any, error) {
		var err error
		if fromA, err = input.Result(a); err != nil {
			return nil, err
		}
		if fromB, err = input.ResultByID(b.ID()); err != nil {
			return nil, err
		}
		if len(input.Results()) != 2 {
			t.Errorf("expected 2 dependency results, got %d", len(input.Results()))
		}
		// Reading an undeclared step must fail
		if _, err := input.ResultByID("unknown"); !errors.Is(err, ErrDependencyUnresolved) {
			t.Errorf("expected ErrDependencyUnresolved for undeclared step, got %v", err)
		}
		return "done", nil
	}).After(a, b)

	results, err := g.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fromA != 42 || fromB != "payload" {
		t.Errorf("dependency results not propagated: %v, %v", fromA, fromB)
	}
	if results[c.ID()] != "done" {
		t.Errorf("expected result of C in output map, got %v", results[c.ID()])
	}
	if g.Progress() != 100 {
		t.Errorf("expected progress 100, got %d", g.Progress())
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	e := NewEngine(nil)
	g := e.NewGraph("retry", "")

	var calls atomic.Int32
	g.NewStep("flaky").Exe(func(ctx context.Context, input *Input) (any, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	}).Retry(RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  10 * time.Millisecond,
		BackoffFactor: 2,
	})

	rec := newRecorder(g)

	results, err := g.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}

	retries := rec.ofType(ports.EventStepRetry)
	if len(retries) != 2 {
		t.Fatalf("expected 2 retry events, got %d", len(retries))
	}
	if retries[0].Data["attempt"] != 1 || retries[0].Data["delay_ms"] != int64(10) {
		t.Errorf("first retry event: %v", retries[0].Data)
	}
	if retries[1].Data["attempt"] != 2 || retries[1].Data["delay_ms"] != int64(20) {
		t.Errorf("second retry event: %v", retries[1].Data)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	e := NewEngine(nil)
	g := e.NewGraph("exhaust", "")

	sentinel := errors.New("broken")
	var calls atomic.Int32
	g.NewStep("doomed").Exe(func(ctx context.Context, input *Input) (any, error) {
		calls.Add(1)
		return nil, sentinel
	}).Retry(RetryConfig{
		MaxAttempts:  2,
		InitialDelay: 5 * time.Millisecond,
	})

	_, err := g.Run(context.Background())
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatal("error should carry step identity")
	}
	if stepErr.StepName != "doomed" {
		t.Errorf("expected step name in error, got %q", stepErr.StepName)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
	if g.Status() != StatusFailed {
		t.Errorf("expected failed graph, got %s", g.Status())
	}
}

func TestRetry_MaxDelayCapsBackoff(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  100 * time.Millisecond,
		BackoffFactor: 2,
		MaxDelay:      250 * time.Millisecond,
	}

	if d := cfg.delay(1); d != 100*time.Millisecond {
		t.Errorf("attempt 1: expected 100ms, got %s", d)
	}
	if d := cfg.delay(2); d != 200*time.Millisecond {
		t.Errorf("attempt 2: expected 200ms, got %s", d)
	}
	if d := cfg.delay(3); d != 250*time.Millisecond {
		t.Errorf("attempt 3: expected cap at 250ms, got %s", d)
	}
	if d := cfg.delay(4); d != 250*time.Millisecond {
		t.Errorf("attempt 4: expected cap at 250ms, got %s", d)
	}
}

func TestTimeout_FailsSlowStep(t *testing.T) {
	e := NewEngine(nil)
	g := e.NewGraph("timeout", "")

	s := g.NewStep("slow").Exe(func(ctx context.Context, input *Input) (any, error) {
		time.Sleep(150 * time.Millisecond)
		return "late", nil
	}).Timeout(30 * time.Millisecond)

	start := time.Now()
	_, err := g.Run(context.Background())
	if !errors.Is(err, ErrStepTimeout) {
		t.Fatalf("expected ErrStepTimeout, got %v", err)
	}
	if time.Since(start) > 120*time.Millisecond {
		t.Error("run should fail at the timeout, not wait for the function")
	}
	if s.Status() != StatusFailed {
		t.Errorf("expected failed step, got %s", s.Status())
	}

	// The abandoned function eventually returns; its result must be discarded
	time.Sleep(200 * time.Millisecond)
	if s.Status() != StatusFailed || s.Result() != nil {
		t.Error("late result overwrote the recorded timeout")
	}
}

func TestTimeout_IsPerAttempt(t *testing.T) {
	e := NewEngine(nil)
	g := e.NewGraph("timeout-retry", "")

	var calls atomic.Int32
	g.NewStep("flaky-slow").Exe(func(ctx context.Context, input *Input) (any, error) {
		if calls.Add(1) == 1 {
			time.Sleep(200 * time.Millisecond)
		}
		return "ok", nil
	}).Timeout(50 * time.Millisecond).Retry(RetryConfig{
		MaxAttempts:  2,
		InitialDelay: 5 * time.Millisecond,
	})

	results, err := g.Run(context.Background())
	if err != nil {
		t.Fatalf("expected second attempt to succeed, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
}

func TestCancel_NeverRetried(t *testing.T) {
	e := NewEngine(nil)
	g := e.NewGraph("cancel-retry", "")

	started := make(chan struct{})
	release := make(chan struct{})
	s := g.NewStep("blocked").Exe(func(ctx context.Context, input *Input) (any, error) {
		close(started)
		<-release
		return nil, errors.New("should not matter")
	}).Retry(RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond})
	defer close(release)

	rec := newRecorder(g)

	errCh := make(chan error, 1)
	go func() {
		_, err := g.Run(context.Background())
		errCh <- err
	}()

	<-started
	g.Cancel()

	err := <-errCh
	if !errors.Is(err, ErrStepCancelled) {
		t.Fatalf("expected ErrStepCancelled, got %v", err)
	}
	if s.Status() != StatusCancelled {
		t.Errorf("expected cancelled step, got %s", s.Status())
	}
	if n := len(rec.ofType(ports.EventStepRetry)); n != 0 {
		t.Errorf("cancellation must not be retried, saw %d retry events", n)
	}
}

func TestCancel_DuringBackoffDelay(t *testing.T) {
	e := NewEngine(nil)
	g := e.NewGraph("cancel-backoff", "")

	var calls atomic.Int32
	g.NewStep("flaky").Exe(func(ctx context.Context, input *Input) (any, error) {
		calls.Add(1)
		return nil, errors.New("transient")
	}).Retry(RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
	})

	retried := make(chan struct{}, 4)
	g.On(func(ev ports.Event) {
		if ev.Type == ports.EventStepRetry {
			retried <- struct{}{}
		}
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := g.Run(context.Background())
		errCh <- err
	}()

	<-retried
	g.Cancel()

	err := <-errCh
	if !errors.Is(err, ErrStepCancelled) {
		t.Fatalf("expected ErrStepCancelled, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected the backoff wait to abort before attempt 2, got %d attempts", calls.Load())
	}
}

func TestPanic_BecomesStepError(t *testing.T) {
	e := NewEngine(nil)
	g := e.NewGraph("panic", "")

	g.NewStep("bomb").Exe(func(ctx context.Context, input *Input) (any, error) {
		panic("kaboom")
	})

	_, err := g.Run(context.Background())
	if err == nil {
		t.Fatal("expected error from panicking step")
	}
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected StepError, got %T", err)
	}
	if g.Status() != StatusFailed {
		t.Errorf("expected failed graph, got %s", g.Status())
	}
}
