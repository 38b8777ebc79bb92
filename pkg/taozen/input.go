package taozen

import "fmt"

// Input is the dependency-input view a step function receives. It exposes
// the completed results of the step's declared dependencies, keyed by step
// reference or identifier. The view is resolved before the function runs;
// every dependency is guaranteed completed.
type Input struct {
	step    *Step
	results map[string]any
}

// Result returns the result of a dependency by step reference.
func (in *Input) Result(dep *Step) (any, error) {
	if dep == nil {
		return nil, fmt.Errorf("%w: nil step", ErrDependencyUnresolved)
	}
	return in.ResultByID(dep.id)
}

// ResultByID returns the result of a dependency by step identifier.
func (in *Input) ResultByID(id string) (any, error) {
	res, ok := in.results[id]
	if !ok {
		return nil, fmt.Errorf("%w: step %q is not a completed dependency of %q", ErrDependencyUnresolved, id, in.step.name)
	}
	return res, nil
}

// Results returns the raw mapping of all dependency results keyed by step
// identifier.
func (in *Input) Results() map[string]any {
	out := make(map[string]any, len(in.results))
	for k, v := range in.results {
		out[k] = v
	}
	return out
}

// resolveInput builds the input view by reading each dependency's result.
// Reading from a non-completed dependency is a hard error; correct batching
// makes that unreachable, but the guard protects against misuse.
func (s *Step) resolveInput() (*Input, error) {
	results := make(map[string]any, len(s.deps))
	for _, depID := range s.deps {
		dep, ok := s.graph.step(depID)
		if !ok {
			return nil, fmt.Errorf("%w: unknown step %q", ErrDependencyUnresolved, depID)
		}
		dep.mu.RLock()
		status, result := dep.status, dep.result
		dep.mu.RUnlock()
		if status != StatusCompleted {
			return nil, fmt.Errorf("%w: step %q is %s", ErrDependencyUnresolved, dep.name, status)
		}
		results[depID] = result
	}
	return &Input{step: s, results: results}, nil
}
