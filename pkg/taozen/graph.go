package taozen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/taozen/pkg/ports"
)

// Listener receives graph and step events in emission order.
type Listener func(event ports.Event)

// Graph owns a collection of steps, computes their execution order, drives
// batch execution and emits progress events. A graph instance runs at most
// once; re-running goes through Retry after a failure, or a fresh instance.
type Graph struct {
	engine      *Engine
	id          string
	name        string
	description string

	mu         sync.RWMutex
	steps      map[string]*Step
	stepOrder  []string
	status     Status
	hasRun     bool
	registered bool
	configErr  error
	runErr     error
	token      *CancelToken
	pauseGate  chan struct{}
	running    map[string]*Step
	startedAt  time.Time
	endedAt    time.Time

	listenerSeq   int
	listeners     map[int]Listener
	stepListeners map[string]map[int]Listener
}

// NewStep creates a step owned by this graph. Steps are configured through
// their builder methods before Run.
func (g *Graph) NewStep(name string) *Step {
	s := &Step{
		id:     newID(),
		name:   name,
		graph:  g,
		status: StatusPending,
	}
	g.mu.Lock()
	g.steps[s.id] = s
	g.stepOrder = append(g.stepOrder, s.id)
	g.mu.Unlock()
	return s
}

// ID returns the graph's identifier.
func (g *Graph) ID() string { return g.id }

// Name returns the graph's name.
func (g *Graph) Name() string { return g.name }

// Description returns the graph's description.
func (g *Graph) Description() string { return g.description }

// Status returns the graph's current status.
func (g *Graph) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status
}

// Step returns a step by identifier.
func (g *Graph) Step(id string) (*Step, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.steps[id]
	return s, ok
}

// Steps returns the graph's steps in creation order.
func (g *Graph) Steps() []*Step {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Step, 0, len(g.stepOrder))
	for _, id := range g.stepOrder {
		out = append(out, g.steps[id])
	}
	return out
}

// Progress returns completed steps as a 0-100 integer.
func (g *Graph) Progress() int {
	steps := g.Steps()
	if len(steps) == 0 {
		return 0
	}
	completed := 0
	for _, s := range steps {
		if s.Status() == StatusCompleted {
			completed++
		}
	}
	return completed * 100 / len(steps)
}

// ExecutionTime returns the elapsed time of the current or last run.
func (g *Graph) ExecutionTime() time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.startedAt.IsZero() {
		return 0
	}
	if g.endedAt.IsZero() {
		return time.Since(g.startedAt)
	}
	return g.endedAt.Sub(g.startedAt)
}

// Errors returns the errors of every failed or cancelled step.
func (g *Graph) Errors() []error {
	var out []error
	for _, s := range g.Steps() {
		if err := s.Err(); err != nil {
			out = append(out, err)
		}
	}
	return out
}

// Results returns the results of all completed steps keyed by step id.
func (g *Graph) Results() map[string]any {
	out := make(map[string]any)
	for _, s := range g.Steps() {
		s.mu.RLock()
		if s.status == StatusCompleted {
			out[s.id] = s.result
		}
		s.mu.RUnlock()
	}
	return out
}

// On subscribes a listener to all of the graph's events. The returned
// function unsubscribes it.
func (g *Graph) On(l Listener) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listenerSeq++
	id := g.listenerSeq
	g.listeners[id] = l
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.listeners, id)
	}
}

// OnStep subscribes a listener to a single step's events.
func (g *Graph) OnStep(stepID string, l Listener) func() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listenerSeq++
	id := g.listenerSeq
	if g.stepListeners[stepID] == nil {
		g.stepListeners[stepID] = make(map[int]Listener)
	}
	g.stepListeners[stepID][id] = l
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.stepListeners[stepID], id)
	}
}

// Register attaches the graph to the engine's state mirror.
func (g *Graph) Register(ctx context.Context) error {
	return g.engine.register(ctx, g)
}

// Remove detaches the graph from the engine's state mirror.
func (g *Graph) Remove(ctx context.Context) error {
	return g.engine.remove(ctx, g)
}

// Registered reports whether the graph is attached to the state mirror.
func (g *Graph) Registered() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.registered
}

// Run executes the graph to completion and returns a mapping from step
// identifier to result. On failure the partial results of completed steps
// are returned alongside the terminal error. A graph runs at most once;
// see Retry for the post-failure protocol.
func (g *Graph) Run(ctx context.Context) (map[string]any, error) {
	g.mu.Lock()
	if err := g.validate(); err != nil {
		g.mu.Unlock()
		return nil, err
	}
	if g.hasRun {
		g.mu.Unlock()
		return nil, ErrAlreadyRun
	}
	if err := g.engine.acquireRun(); err != nil {
		g.mu.Unlock()
		return nil, err
	}
	g.hasRun = true
	g.beginRunLocked()
	g.mu.Unlock()
	defer g.engine.releaseRun()

	batches, err := g.batches()
	if err != nil {
		return nil, g.fail(err)
	}

	g.emit(ports.EventGraphStart, "", nil, nil)
	g.engine.metricsGraphStarted()

	return g.runBatches(ctx, batches)
}

// Retry re-executes a failed or cancelled graph. With failedOnly, steps
// already completed keep their result and are skipped, contributing their
// cached result to the output map; otherwise every step is reset.
func (g *Graph) Retry(ctx context.Context, failedOnly bool) (map[string]any, error) {
	g.mu.Lock()
	if err := g.validate(); err != nil {
		g.mu.Unlock()
		return nil, err
	}
	if g.status != StatusFailed && g.status != StatusCancelled {
		g.mu.Unlock()
		return nil, ErrInvalidRetryState
	}
	if err := g.engine.acquireRun(); err != nil {
		g.mu.Unlock()
		return nil, err
	}
	for _, id := range g.stepOrder {
		s := g.steps[id]
		if failedOnly {
			st := s.Status()
			if st != StatusFailed && st != StatusCancelled {
				continue
			}
		}
		s.reset()
	}
	g.beginRunLocked()
	g.mu.Unlock()
	defer g.engine.releaseRun()

	g.emit(ports.EventGraphRetry, "", map[string]any{"failed_only": failedOnly}, nil)
	g.engine.metricsGraphStarted()

	batches, err := g.batches()
	if err != nil {
		return nil, g.fail(err)
	}
	return g.runBatches(ctx, batches)
}

// beginRunLocked re-arms the cancellation token and marks the graph
// running. Caller holds g.mu.
func (g *Graph) beginRunLocked() {
	g.status = StatusRunning
	g.runErr = nil
	g.startedAt = time.Now()
	g.endedAt = time.Time{}
	g.token = NewCancelToken()
	g.token.OnCancel(g.cancelSteps)
}

// Pause installs the pause gate. Steps about to start, and batch
// continuations, await the gate; a step already mid-execution is not
// interrupted. No-op unless the graph is running.
func (g *Graph) Pause() {
	g.mu.Lock()
	if g.status != StatusRunning {
		g.mu.Unlock()
		return
	}
	g.status = StatusPaused
	g.pauseGate = make(chan struct{})
	g.mu.Unlock()
	g.emit(ports.EventGraphPause, "", nil, nil)
}

// Resume resolves and clears the pause gate. No-op unless paused.
func (g *Graph) Resume() {
	g.mu.Lock()
	if g.status != StatusPaused {
		g.mu.Unlock()
		return
	}
	close(g.pauseGate)
	g.pauseGate = nil
	g.status = StatusRunning
	g.mu.Unlock()
	g.emit(ports.EventGraphResume, "", nil, nil)
}

// Cancel fires the run's cancellation token. Terminal and idempotent:
// every still-registered step's cancellation callback is invoked
// best-effort, running steps are marked cancelled, and a single failure
// event carries the cancellation error. No-op unless running or paused.
func (g *Graph) Cancel() {
	g.mu.Lock()
	if g.status != StatusRunning && g.status != StatusPaused {
		g.mu.Unlock()
		return
	}
	cause := fmt.Errorf("graph %q cancelled: %w", g.name, ErrStepCancelled)
	g.status = StatusCancelled
	g.runErr = cause
	g.endedAt = time.Now()
	g.pauseGate = nil
	tok := g.token
	g.mu.Unlock()

	if !tok.Cancel(cause) {
		return
	}
	g.emit(ports.EventGraphFail, "", nil, cause)
	g.engine.metricsGraphFinished(StatusCancelled, g.ExecutionTime())
}

// runBatches executes each batch's steps concurrently, awaiting the pause
// gate and cancellation token at every batch boundary. A batch is never
// started until its predecessor has fully settled.
func (g *Graph) runBatches(ctx context.Context, batches [][]*Step) (map[string]any, error) {
	for _, batch := range batches {
		if err := g.checkpoint(ctx, nil); err != nil {
			return g.Results(), g.fail(err)
		}
		if err := g.runBatch(ctx, batch); err != nil {
			return g.Results(), g.fail(err)
		}
	}

	g.mu.Lock()
	g.status = StatusCompleted
	g.endedAt = time.Now()
	g.mu.Unlock()

	results := g.Results()
	g.emit(ports.EventGraphComplete, "", map[string]any{"results": results}, nil)
	g.engine.metricsGraphFinished(StatusCompleted, g.ExecutionTime())
	return results, nil
}

type stepOutcome struct {
	step *Step
	err  error
}

// runBatch runs every not-yet-completed step of the batch concurrently and
// waits for the first failure or for all to settle. On failure, siblings
// still running are marked failed-by-association and their eventual
// results are discarded.
func (g *Graph) runBatch(ctx context.Context, batch []*Step) error {
	runnable := make([]*Step, 0, len(batch))
	for _, s := range batch {
		if s.Status() != StatusCompleted {
			runnable = append(runnable, s)
		}
	}
	if len(runnable) == 0 {
		return nil
	}

	ch := make(chan stepOutcome, len(runnable))
	for _, s := range runnable {
		go func(s *Step) {
			ch <- stepOutcome{step: s, err: s.execute(ctx)}
		}(s)
	}

	for range runnable {
		out := <-ch
		if out.err != nil {
			g.abortBatch(batch, out.step)
			return out.err
		}
	}
	return nil
}

// abortBatch marks siblings of a failed step that are still running as
// failed-by-association, invoking their cancellation callbacks.
func (g *Graph) abortBatch(batch []*Step, failed *Step) {
	for _, s := range batch {
		if s == failed || s.Status() != StatusRunning {
			continue
		}
		if s.onCancel != nil {
			runRecovered(s.onCancel)
		}
		err := fmt.Errorf("aborted after failure of step %q", failed.name)
		if s.finish(StatusFailed, nil, err) {
			g.removeRunning(s)
			g.emit(ports.EventStepFail, s.id, nil, err)
			g.engine.metricsStepExecuted(StatusFailed, s.elapsed())
		}
	}
}

// cancelSteps is registered on the run's cancellation token. It invokes
// every non-terminal step's cancellation callback best-effort, marks
// running steps cancelled and clears the running-set.
func (g *Graph) cancelSteps() {
	cause := g.cancelCause()
	for _, s := range g.Steps() {
		st := s.Status()
		if st.Terminal() {
			continue
		}
		if s.onCancel != nil {
			runRecovered(s.onCancel)
		}
		if st == StatusRunning && s.finish(StatusCancelled, nil, cause) {
			g.emit(ports.EventStepFail, s.id, nil, cause)
			g.engine.metricsStepExecuted(StatusCancelled, s.elapsed())
		}
	}
	g.mu.Lock()
	g.running = make(map[string]*Step)
	g.mu.Unlock()
}

// fail records the terminal outcome of a run. Cancellation has already
// flipped the graph status and emitted its failure event; in that case the
// error is passed through untouched.
func (g *Graph) fail(err error) error {
	g.mu.Lock()
	if g.status.Terminal() {
		g.mu.Unlock()
		return err
	}
	status := StatusFailed
	if errors.Is(err, ErrStepCancelled) {
		status = StatusCancelled
	}
	g.status = status
	g.runErr = err
	g.endedAt = time.Now()
	g.mu.Unlock()

	g.emit(ports.EventGraphFail, "", nil, err)
	g.engine.metricsGraphFinished(status, g.ExecutionTime())
	return err
}

// checkpoint awaits the pause gate and observes the cancellation token.
// Called at batch boundaries (s == nil) and before each step starts; in
// the latter case it emits zen:pause/zen:resume when the step actually
// waited.
func (g *Graph) checkpoint(ctx context.Context, s *Step) error {
	for {
		g.mu.RLock()
		gate, tok := g.pauseGate, g.token
		g.mu.RUnlock()

		if tok.Cancelled() {
			return g.cancelCause()
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
		default:
		}
		if gate == nil {
			return nil
		}

		if s != nil {
			g.emit(ports.EventStepPause, s.id, nil, nil)
		}
		select {
		case <-gate:
			if s != nil {
				g.emit(ports.EventStepResume, s.id, nil, nil)
			}
		case <-tok.Done():
			return g.cancelCause()
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
		}
	}
}

// cancelCause returns the cancellation token's cause, always wrapping
// ErrStepCancelled.
func (g *Graph) cancelCause() error {
	g.mu.RLock()
	tok := g.token
	g.mu.RUnlock()
	if tok != nil {
		if err := tok.Err(); err != nil {
			return err
		}
	}
	return ErrStepCancelled
}

func (g *Graph) step(id string) (*Step, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.steps[id]
	return s, ok
}

func (g *Graph) runToken() *CancelToken {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token
}

func (g *Graph) addRunning(s *Step) {
	g.mu.Lock()
	g.running[s.id] = s
	g.mu.Unlock()
}

func (g *Graph) removeRunning(s *Step) {
	g.mu.Lock()
	delete(g.running, s.id)
	g.mu.Unlock()
}

func (g *Graph) setConfigErr(err error) {
	g.mu.Lock()
	if g.configErr == nil {
		g.configErr = err
	}
	g.mu.Unlock()
}

// emit delivers an event to the graph's listeners synchronously, then
// forwards it to the engine for bus publication and state mirroring.
func (g *Graph) emit(t ports.EventType, stepID string, data map[string]any, err error) {
	ev := ports.Event{
		ID:        newID(),
		Type:      t,
		GraphID:   g.id,
		StepID:    stepID,
		Timestamp: time.Now(),
		Data:      data,
	}
	if err != nil {
		ev.Error = err.Error()
	}

	g.mu.RLock()
	listeners := make([]Listener, 0, len(g.listeners))
	for _, l := range g.listeners {
		listeners = append(listeners, l)
	}
	if stepID != "" {
		for _, l := range g.stepListeners[stepID] {
			listeners = append(listeners, l)
		}
	}
	g.mu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
	g.engine.publish(g, ev)
}
