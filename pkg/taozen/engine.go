package taozen

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/taozen/pkg/ports"
	"go.uber.org/zap"
)

// DefaultMaxConcurrentGraphs caps concurrently-running graph instances
// when EngineConfig leaves the limit unset.
const DefaultMaxConcurrentGraphs = 10

// EngineConfig holds engine configuration. Store, Bus and Metrics are
// optional; a nil collaborator disables the corresponding concern.
type EngineConfig struct {
	MaxConcurrentGraphs int
	Store               ports.StateStore
	Bus                 ports.EventBus
	Metrics             ports.MetricsCollector
	Logger              *zap.Logger
}

// Engine is the top-level orchestrator context: the registry of graphs,
// the process-wide admission-control counter, and the handles to the
// external collaborators. Tests instantiate isolated engines instead of
// sharing process globals.
type Engine struct {
	store         ports.StateStore
	bus           ports.EventBus
	metrics       ports.MetricsCollector
	logger        *zap.Logger
	maxConcurrent int

	mu      sync.Mutex
	graphs  map[string]*Graph
	running int
}

// NewEngine creates a new engine.
func NewEngine(cfg *EngineConfig) *Engine {
	if cfg == nil {
		cfg = &EngineConfig{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxConcurrent := cfg.MaxConcurrentGraphs
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentGraphs
	}
	return &Engine{
		store:         cfg.Store,
		bus:           cfg.Bus,
		metrics:       cfg.Metrics,
		logger:        logger,
		maxConcurrent: maxConcurrent,
		graphs:        make(map[string]*Graph),
	}
}

// NewGraph creates a graph owned by this engine.
func (e *Engine) NewGraph(name, description string) *Graph {
	return &Graph{
		engine:        e,
		id:            newID(),
		name:          name,
		description:   description,
		status:        StatusPending,
		steps:         make(map[string]*Step),
		running:       make(map[string]*Step),
		listeners:     make(map[int]Listener),
		stepListeners: make(map[string]map[int]Listener),
	}
}

// Graph returns a registered graph by identifier.
func (e *Engine) Graph(id string) (*Graph, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	g, ok := e.graphs[id]
	return g, ok
}

// Graphs returns all registered graphs.
func (e *Engine) Graphs() []*Graph {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Graph, 0, len(e.graphs))
	for _, g := range e.graphs {
		out = append(out, g)
	}
	return out
}

// Events returns the mirrored event log for a graph. Requires a state
// store; only registered graphs have a log.
func (e *Engine) Events(ctx context.Context, graphID string) ([]ports.Event, error) {
	if e.store == nil {
		return nil, fmt.Errorf("no state store configured")
	}
	return e.store.ListEvents(ctx, graphID)
}

// RunningCount returns the number of currently running graphs.
func (e *Engine) RunningCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// acquireRun admits a graph run against the concurrency limit. Callers
// exceeding the limit must retry later themselves; there is no queue.
func (e *Engine) acquireRun() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running >= e.maxConcurrent {
		return fmt.Errorf("%w: limit %d", ErrTooManyConcurrentGraphs, e.maxConcurrent)
	}
	e.running++
	if e.metrics != nil {
		e.metrics.SetActiveGraphs(e.running)
	}
	return nil
}

func (e *Engine) releaseRun() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running--
	if e.metrics != nil {
		e.metrics.SetActiveGraphs(e.running)
	}
}

// register attaches a graph to the state mirror and the engine registry.
func (e *Engine) register(ctx context.Context, g *Graph) error {
	e.mu.Lock()
	e.graphs[g.id] = g
	e.mu.Unlock()

	g.mu.Lock()
	g.registered = true
	g.mu.Unlock()

	if e.store != nil {
		if err := e.store.SaveSnapshot(ctx, g.Snapshot()); err != nil {
			return fmt.Errorf("failed to save snapshot: %w", err)
		}
	}
	e.logger.Info("graph registered",
		zap.String("graph_id", g.id),
		zap.String("name", g.name))
	return nil
}

// remove detaches a graph from the state mirror and the engine registry.
func (e *Engine) remove(ctx context.Context, g *Graph) error {
	if !g.Registered() {
		return ErrNotRegistered
	}

	e.mu.Lock()
	delete(e.graphs, g.id)
	e.mu.Unlock()

	g.mu.Lock()
	g.registered = false
	g.mu.Unlock()

	if e.store != nil {
		if err := e.store.DeleteSnapshot(ctx, g.id); err != nil {
			return fmt.Errorf("failed to delete snapshot: %w", err)
		}
	}
	e.logger.Info("graph removed", zap.String("graph_id", g.id))
	return nil
}

// publish forwards an event to the event bus and, for registered graphs,
// appends it to the mirrored event log and refreshes the snapshot.
// Mirroring is best-effort: failures are logged, never surfaced to the
// run.
func (e *Engine) publish(g *Graph, ev ports.Event) {
	ctx := context.Background()

	if e.bus != nil {
		topic := "graph.events"
		if ev.Type.StepLevel() {
			topic = "step.events"
		}
		if err := e.bus.Publish(ctx, topic, ev); err != nil {
			e.logger.Error("failed to publish event",
				zap.String("graph_id", g.id),
				zap.String("type", string(ev.Type)),
				zap.Error(err))
		}
	}

	if e.store != nil && g.Registered() {
		if err := e.store.AppendEvent(ctx, g.id, ev); err != nil {
			e.logger.Error("failed to append event",
				zap.String("graph_id", g.id),
				zap.Error(err))
		}
		if err := e.store.SaveSnapshot(ctx, g.Snapshot()); err != nil {
			e.logger.Error("failed to save snapshot",
				zap.String("graph_id", g.id),
				zap.Error(err))
		}
	}
}

func (e *Engine) metricsGraphStarted() {
	if e.metrics != nil {
		e.metrics.RecordGraphStarted()
	}
}

func (e *Engine) metricsGraphFinished(status Status, d time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordGraphFinished(string(status), d)
	}
}

func (e *Engine) metricsStepExecuted(status Status, d time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordStepExecuted(string(status), d)
	}
}

func (e *Engine) metricsStepRetried() {
	if e.metrics != nil {
		e.metrics.RecordStepRetried()
	}
}
