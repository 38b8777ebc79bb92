package taozen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Restore rebuilds a graph from its mirrored snapshot: steps, dependency
// edges, execution policies, statuses and timestamps are recovered.
//
// Two things are NOT recoverable from the mirror and must be re-attached
// by the caller before Retry: the wrapped functions (not serializable),
// and the result values of already-completed steps. A dependent re-run
// against a restored completed step therefore reads a nil result. Callers
// that need the prior outputs should retry with failedOnly set to false so
// every step recomputes.
//
// A snapshot recorded as running or paused belongs to a process that went
// away mid-run; the restored graph is marked failed so the retry protocol
// applies.
func (e *Engine) Restore(ctx context.Context, graphID string) (*Graph, error) {
	if e.store == nil {
		return nil, errors.New("no state store configured")
	}

	snap, err := e.store.LoadSnapshot(ctx, graphID)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	g := e.NewGraph(snap.Name, snap.Description)
	g.id = snap.GraphID
	g.status = Status(snap.Status)
	g.registered = true

	switch g.status {
	case StatusRunning, StatusPaused:
		e.logger.Warn("restoring interrupted graph as failed",
			zap.String("graph_id", g.id),
			zap.String("recorded_status", snap.Status))
		g.status = StatusFailed
	}
	g.hasRun = g.status != StatusPending

	for _, st := range snap.StepStates {
		s := &Step{
			id:        st.ID,
			name:      st.Name,
			graph:     g,
			deps:      append([]string(nil), st.DependsOn...),
			timeout:   time.Duration(st.TimeoutMs) * time.Millisecond,
			status:    Status(st.Status),
			startedAt: st.StartedAt,
			endedAt:   st.EndedAt,
		}
		if st.Retry != nil {
			s.retry = &RetryConfig{
				MaxAttempts:   st.Retry.MaxAttempts,
				InitialDelay:  time.Duration(st.Retry.InitialDelayMs) * time.Millisecond,
				BackoffFactor: st.Retry.BackoffFactor,
				MaxDelay:      time.Duration(st.Retry.MaxDelayMs) * time.Millisecond,
			}
		}
		if st.Error != "" {
			s.err = errors.New(st.Error)
		}
		if s.status == StatusRunning {
			s.status = StatusFailed
			s.err = errors.New("interrupted by process restart")
		}
		g.steps[s.id] = s
		g.stepOrder = append(g.stepOrder, s.id)
	}

	e.mu.Lock()
	e.graphs[g.id] = g
	e.mu.Unlock()

	e.logger.Info("graph restored",
		zap.String("graph_id", g.id),
		zap.String("name", g.name),
		zap.String("status", string(g.status)),
		zap.Int("steps", len(g.stepOrder)))
	return g, nil
}
