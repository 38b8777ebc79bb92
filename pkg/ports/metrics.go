package ports

import "time"

// MetricsCollector records execution metrics for graphs and steps.
type MetricsCollector interface {
	// RecordGraphStarted records a graph run admission
	RecordGraphStarted()

	// RecordGraphFinished records a graph reaching a terminal status
	RecordGraphFinished(status string, duration time.Duration)

	// RecordStepExecuted records a step reaching a terminal status
	RecordStepExecuted(status string, duration time.Duration)

	// RecordStepRetried records a single retry attempt
	RecordStepRetried()

	// SetActiveGraphs sets the number of currently running graphs
	SetActiveGraphs(count int)
}
