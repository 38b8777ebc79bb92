// Package ports defines the boundary interfaces between the taozen engine
// and its external collaborators.
//
// Interfaces:
//   - EventBus: pub/sub channel for graph and step events
//   - StateStore: mirror of graph/step state for external observers
//   - MetricsCollector: execution metrics
//
// Adapters implementing these interfaces live under pkg/adapters.
package ports
