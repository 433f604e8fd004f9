package builder

import (
	"github.com/rendis/flowplan/internal/nodeconfig"
	"github.com/rendis/flowplan/pkg/schema"
)

// expandParallelNodes builds a ParallelBoundary for every parallel node.
// Each outgoing edge starts one branch. A branch is discovered breadth-first
// from its start and stops at the originating parallel node. A nested
// parallel node joins the branch but its successors are left to its own
// boundary. Loop nodes are walked through, so their bodies and exits stay
// in the branch, except a loop that can reach the parallel node again: that
// loop encloses the parallel node and is not part of any branch.
func expandParallelNodes(def *schema.WorkflowDefinition, cc *ConstructionContext) {
	adj := make(adjacency)
	for _, e := range def.Edges {
		if _, ok := cc.Nodes[e.Source]; !ok {
			continue
		}
		if _, ok := cc.Nodes[e.Target]; !ok {
			continue
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	for _, id := range cc.NodeOrder {
		node := cc.Nodes[id]
		if !cc.catalog.IsParallel(node.Type) {
			continue
		}
		expandParallel(node, adj, cc)
	}
}

func expandParallel(node *schema.ExecutableNode, adj adjacency, cc *ConstructionContext) {
	cfg := nodeconfig.New(node.Config)
	starts := adj[node.ID]

	if cfg.Has("branches") {
		if branches, ok := cfg.Slice("branches"); !ok || len(branches) == 0 {
			cc.warn(schema.WarnParallelBranches, node.ID,
				"parallel node %q declares config.branches but it is empty or not a list", node.ID)
		}
	}
	if len(starts) == 0 {
		cc.warn(schema.WarnParallelBranches, node.ID,
			"parallel node %q has no outgoing edges", node.ID)
		return
	}
	if len(starts) < 2 {
		cc.warn(schema.WarnParallelBranches, node.ID,
			"parallel node %q has only %d branch; parallel nodes need at least 2", node.ID, len(starts))
	}

	boundary := &schema.ParallelBoundary{
		ParallelNodeID: node.ID,
		Aggregation:    parseAggregation(node.ID, cfg, cc),
	}

	encloses := make(map[string]bool)
	for id, n := range cc.Nodes {
		if !cc.catalog.IsLoop(n.Type) {
			continue
		}
		reach := bfs([]string{id}, adj.successors, nil, nil)
		for _, r := range reach {
			if r == node.ID {
				encloses[id] = true
				break
			}
		}
	}

	for i, start := range starts {
		members := bfs([]string{start}, adj.successors,
			func(id string) bool { return id != node.ID && !encloses[id] },
			func(id string) bool {
				t := cc.Nodes[id].Type
				return id == start || !cc.catalog.IsParallel(t)
			},
		)

		for _, id := range members {
			if n := cc.Nodes[id]; n.ParallelContext == nil {
				n.ParallelContext = &schema.ParallelContext{ParentParallelID: node.ID, BranchIndex: i}
			}
		}

		boundary.Branches = append(boundary.Branches, schema.ParallelBranch{
			Index:       i,
			NodeIDs:     members,
			StartNodeID: start,
			EndNodeID:   branchEnd(members, adj),
		})
	}

	cc.ParallelBoundaries[node.ID] = boundary
	cc.ParallelOrder = append(cc.ParallelOrder, node.ID)
}

// branchEnd picks the first member with no outgoing edge that stays inside
// the branch, falling back to the last member visited.
func branchEnd(members []string, adj adjacency) string {
	inBranch := make(map[string]bool, len(members))
	for _, id := range members {
		inBranch[id] = true
	}
	for _, id := range members {
		leaves := true
		for _, next := range adj[id] {
			if inBranch[next] {
				leaves = false
				break
			}
		}
		if leaves {
			return id
		}
	}
	if len(members) == 0 {
		return ""
	}
	return members[len(members)-1]
}

func parseAggregation(nodeID string, cfg nodeconfig.Config, cc *ConstructionContext) schema.Aggregation {
	raw := cfg.String("aggregation", "")
	switch schema.Aggregation(raw) {
	case schema.AggregateAll, schema.AggregateFirst, schema.AggregateRace:
		return schema.Aggregation(raw)
	case "":
		return schema.AggregateAll
	}
	cc.warn(schema.WarnInvalidAggregation, nodeID,
		"parallel node %q has unknown aggregation %q; using %q", nodeID, raw, schema.AggregateAll)
	return schema.AggregateAll
}
