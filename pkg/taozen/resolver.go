package taozen

import "fmt"

// validate checks the graph configuration before execution.
func (g *Graph) validate() error {
	if g.configErr != nil {
		return g.configErr
	}
	if len(g.steps) == 0 {
		return fmt.Errorf("graph %q has no steps", g.name)
	}
	for _, id := range g.stepOrder {
		if g.steps[id].fn == nil {
			return fmt.Errorf("step %q has no function", g.steps[id].name)
		}
	}
	return nil
}

// batches converts the dependency edges into an ordered sequence of batches
// such that every step's dependencies belong to strictly earlier batches.
// All mutually-independent steps share a batch and run concurrently.
//
// Iterative topological layering: repeatedly collect every unassigned step
// whose dependencies are all assigned to an earlier batch. An iteration
// that assigns nothing while steps remain means the graph has a cycle.
func (g *Graph) batches() ([][]*Step, error) {
	assigned := make(map[string]bool, len(g.steps))
	var out [][]*Step

	for len(assigned) < len(g.steps) {
		var batch []*Step
		for _, id := range g.stepOrder {
			if assigned[id] {
				continue
			}
			s := g.steps[id]
			ready := true
			for _, depID := range s.deps {
				if !assigned[depID] {
					ready = false
					break
				}
			}
			if ready {
				batch = append(batch, s)
			}
		}
		if len(batch) == 0 {
			return nil, fmt.Errorf("%w: %d unassignable steps", ErrCircularDependency, len(g.steps)-len(assigned))
		}
		for _, s := range batch {
			assigned[s.id] = true
		}
		out = append(out, batch)
	}

	return out, nil
}

// DependencyNode is one node of the tree returned by DependencyTree.
type DependencyNode struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Status    Status            `json:"status"`
	DependsOn []*DependencyNode `json:"depends_on,omitempty"`
}

// DependencyTree returns the transitive dependency tree of a step. A cycle
// among the dependencies is reported as ErrCircularDependency instead of
// recursing forever.
func (g *Graph) DependencyTree(stepID string) (*DependencyNode, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s, ok := g.steps[stepID]
	if !ok {
		return nil, fmt.Errorf("unknown step: %s", stepID)
	}
	return g.dependencyNode(s, make(map[string]bool))
}

func (g *Graph) dependencyNode(s *Step, visiting map[string]bool) (*DependencyNode, error) {
	if visiting[s.id] {
		return nil, fmt.Errorf("%w: step %q", ErrCircularDependency, s.name)
	}
	visiting[s.id] = true
	defer delete(visiting, s.id)

	node := &DependencyNode{
		ID:     s.id,
		Name:   s.name,
		Status: s.Status(),
	}
	for _, depID := range s.deps {
		if dep, ok := g.steps[depID]; ok {
			child, err := g.dependencyNode(dep, visiting)
			if err != nil {
				return nil, err
			}
			node.DependsOn = append(node.DependsOn, child)
		}
	}
	return node, nil
}
