package taozen

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Monitor periodically logs the status breakdown of an engine's registered
// graphs and refreshes the active-graph metric.
type Monitor struct {
	engine   *Engine
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// MonitorStatus is a point-in-time status breakdown.
type MonitorStatus struct {
	Total     int
	Pending   int
	Running   int
	Paused    int
	Completed int
	Failed    int
	Cancelled int
	Timestamp time.Time
}

// NewMonitor creates a new engine monitor.
func NewMonitor(engine *Engine, interval time.Duration, logger *zap.Logger) *Monitor {
	return &Monitor{
		engine:   engine,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the monitor.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	go m.run()
}

// Stop stops the monitor.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
}

func (m *Monitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.check()
		}
	}
}

func (m *Monitor) check() {
	status := m.Status()

	m.logger.Info("engine status",
		zap.Int("total", status.Total),
		zap.Int("running", status.Running),
		zap.Int("paused", status.Paused),
		zap.Int("completed", status.Completed),
		zap.Int("failed", status.Failed),
		zap.Int("cancelled", status.Cancelled))

	if m.engine.metrics != nil {
		m.engine.metrics.SetActiveGraphs(m.engine.RunningCount())
	}
}

// Status returns the current status breakdown of registered graphs.
func (m *Monitor) Status() *MonitorStatus {
	status := &MonitorStatus{Timestamp: time.Now()}
	for _, g := range m.engine.Graphs() {
		status.Total++
		switch g.Status() {
		case StatusPending:
			status.Pending++
		case StatusRunning:
			status.Running++
		case StatusPaused:
			status.Paused++
		case StatusCompleted:
			status.Completed++
		case StatusFailed:
			status.Failed++
		case StatusCancelled:
			status.Cancelled++
		}
	}
	return status
}
