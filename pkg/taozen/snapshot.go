package taozen

import (
	"time"

	"github.com/aescanero/taozen/pkg/ports"
)

// Snapshot builds the mirrored state record for the graph: an observer
// summary per step plus the full per-step state, including dependency
// identifiers, for recovery.
func (g *Graph) Snapshot() *ports.GraphSnapshot {
	steps := g.Steps()

	snap := &ports.GraphSnapshot{
		GraphID:     g.id,
		Name:        g.name,
		Description: g.description,
		Status:      string(g.Status()),
		Progress:    g.Progress(),
		Paused:      g.Status() == StatusPaused,
		ElapsedMs:   g.ExecutionTime().Milliseconds(),
		Steps:       make([]ports.StepSummary, 0, len(steps)),
		StepStates:  make([]ports.StepState, 0, len(steps)),
		UpdatedAt:   time.Now(),
	}

	for _, s := range steps {
		s.mu.RLock()
		summary := ports.StepSummary{
			ID:        s.id,
			Name:      s.name,
			Status:    string(s.status),
			Result:    s.result,
			StartedAt: s.startedAt,
		}
		if s.err != nil {
			summary.Error = s.err.Error()
		}
		state := ports.StepState{
			ID:        s.id,
			Name:      s.name,
			Status:    summary.Status,
			Error:     summary.Error,
			Result:    s.result,
			DependsOn: append([]string(nil), s.deps...),
			TimeoutMs: s.timeout.Milliseconds(),
			StartedAt: s.startedAt,
			EndedAt:   s.endedAt,
		}
		if s.retry != nil {
			state.Retry = &ports.RetryPolicy{
				MaxAttempts:    s.retry.MaxAttempts,
				InitialDelayMs: s.retry.InitialDelay.Milliseconds(),
				BackoffFactor:  s.retry.BackoffFactor,
				MaxDelayMs:     s.retry.MaxDelay.Milliseconds(),
			}
		}
		s.mu.RUnlock()

		snap.Steps = append(snap.Steps, summary)
		snap.StepStates = append(snap.StepStates, state)
	}

	return snap
}
