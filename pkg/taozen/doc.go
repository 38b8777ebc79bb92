// Package taozen implements the graph execution engine.
//
// A caller builds a Graph of named Steps on an Engine, declares dependency
// edges between them, and runs the graph to completion:
//
//	eng := taozen.NewEngine(&taozen.EngineConfig{Logger: logger})
//	g := eng.NewGraph("pipeline", "")
//
//	a := g.NewStep("fetch").Exe(fetch)
//	b := g.NewStep("parse").After(a).Exe(parse).Timeout(5 * time.Second)
//	c := g.NewStep("store").After(b).Exe(store).Retry(taozen.RetryConfig{
//	    MaxAttempts:   3,
//	    InitialDelay:  100 * time.Millisecond,
//	    BackoffFactor: 2,
//	})
//
//	results, err := g.Run(ctx)
//
// Steps whose dependencies belong to earlier batches run concurrently.
// Each step applies its own policy: retry with exponential backoff wraps an
// optional per-attempt timeout, and every suspend point observes the run's
// cancellation token. Progress is published as tao:/zen: events to listeners
// registered with On/OnStep, and mirrored to the engine's event bus and
// state store for external observers.
package taozen
