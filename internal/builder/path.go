package builder

import (
	"github.com/rendis/flowplan/pkg/schema"
)

// ConstructPaths computes which nodes are reachable from the entry point.
// Edges pointing at unknown nodes are skipped, not rejected.
func ConstructPaths(def *schema.WorkflowDefinition) (*schema.ReachabilityResult, error) {
	if def == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow definition is nil")
	}
	if def.EntryPoint == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow has no entry point")
	}
	if _, ok := def.Nodes[def.EntryPoint]; !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"entry point %q does not reference an existing node", def.EntryPoint).
			WithNode(def.EntryPoint)
	}

	adj := make(adjacency)
	for _, e := range def.Edges {
		if _, ok := def.Nodes[e.Target]; !ok {
			continue
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	visited := make(map[string]bool, len(def.Nodes))
	for _, id := range bfs([]string{def.EntryPoint}, adj.successors, nil, nil) {
		visited[id] = true
	}

	var reachable, unreachable []string
	for _, id := range def.NodeIDs() {
		if visited[id] {
			reachable = append(reachable, id)
		} else {
			unreachable = append(unreachable, id)
		}
	}
	return schema.NewReachabilityResult(def.EntryPoint, reachable, unreachable), nil
}

// FilterReachableEdges returns the edges whose source and target are both reachable.
func FilterReachableEdges(edges []schema.EdgeDefinition, reach *schema.ReachabilityResult) []schema.EdgeDefinition {
	var out []schema.EdgeDefinition
	for _, e := range edges {
		if reach.IsReachable(e.Source) && reach.IsReachable(e.Target) {
			out = append(out, e)
		}
	}
	return out
}

// DanglingEdge is an edge whose source or target does not name a node.
type DanglingEdge struct {
	EdgeID        string `json:"edgeId"`
	MissingSource string `json:"missingSource,omitempty"`
	MissingTarget string `json:"missingTarget,omitempty"`
}

// ValidateEdgeReferences lists edges that reference nonexistent nodes.
func ValidateEdgeReferences(def *schema.WorkflowDefinition) []DanglingEdge {
	var out []DanglingEdge
	for _, e := range def.Edges {
		var d DanglingEdge
		if _, ok := def.Nodes[e.Source]; !ok {
			d.MissingSource = e.Source
		}
		if _, ok := def.Nodes[e.Target]; !ok {
			d.MissingTarget = e.Target
		}
		if d.MissingSource != "" || d.MissingTarget != "" {
			d.EdgeID = e.ID
			out = append(out, d)
		}
	}
	return out
}

// Cycle is a back edge found during depth-first search, reported as the
// path from the back edge's target around to its source.
type Cycle []string

// DetectCycles reports back edges of the raw graph. Loop constructs make
// cycles legitimate, so the result is informational only.
func DetectCycles(def *schema.WorkflowDefinition) []Cycle {
	adj := make(adjacency)
	for _, e := range def.Edges {
		if _, ok := def.Nodes[e.Target]; !ok {
			continue
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[string]int, len(def.Nodes))
	var stack []string
	var cycles []Cycle

	var visit func(id string)
	visit = func(id string) {
		state[id] = onStack
		stack = append(stack, id)
		for _, next := range adj[id] {
			switch state[next] {
			case unvisited:
				visit(next)
			case onStack:
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == next {
						cycle := make(Cycle, len(stack)-i)
						copy(cycle, stack[i:])
						cycles = append(cycles, cycle)
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
	}

	roots := def.NodeIDs()
	if _, ok := def.Nodes[def.EntryPoint]; ok {
		roots = append([]string{def.EntryPoint}, roots...)
	}
	for _, id := range roots {
		if state[id] == unvisited {
			visit(id)
		}
	}
	return cycles
}

// CalculateNodeDepths returns the shortest hop distance from the entry point
// for every reachable node.
func CalculateNodeDepths(def *schema.WorkflowDefinition) map[string]int {
	depths := make(map[string]int, len(def.Nodes))
	if _, ok := def.Nodes[def.EntryPoint]; !ok {
		return depths
	}

	adj := make(adjacency)
	for _, e := range def.Edges {
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	depths[def.EntryPoint] = 0
	queue := []string{def.EntryPoint}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range adj[id] {
			if _, ok := def.Nodes[next]; !ok {
				continue
			}
			if d, seen := depths[next]; !seen || depths[id]+1 < d {
				depths[next] = depths[id] + 1
				queue = append(queue, next)
			}
		}
	}
	return depths
}
