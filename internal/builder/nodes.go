package builder

import (
	"github.com/rendis/flowplan/internal/nodeconfig"
	"github.com/rendis/flowplan/pkg/schema"
)

// ConstructNodes converts every reachable definition node into an
// ExecutableNode and then expands parallel nodes into boundaries.
// Dependencies and dependents only ever name reachable nodes, so an
// unreachable predecessor can never hold a node back.
func ConstructNodes(def *schema.WorkflowDefinition, reach *schema.ReachabilityResult, cc *ConstructionContext) {
	incoming := make(map[string][]string)
	outgoing := make(map[string][]string)
	for _, e := range def.Edges {
		if !reach.IsReachable(e.Source) || !reach.IsReachable(e.Target) {
			continue
		}
		outgoing[e.Source] = appendUnique(outgoing[e.Source], e.Target)
		incoming[e.Target] = appendUnique(incoming[e.Target], e.Source)
	}

	for _, id := range reach.ReachableNodeIDs {
		raw, ok := def.Nodes[id]
		if !ok {
			continue
		}
		node := &schema.ExecutableNode{
			ID:           id,
			Type:         raw.Type,
			Name:         raw.Name,
			Config:       raw.Config,
			Position:     raw.Position,
			Dependencies: nonNil(incoming[id]),
			Dependents:   nonNil(outgoing[id]),
			HandleType:   schema.HandleSource,
			HasErrorPort: hasErrorPort(raw, cc.catalog),
		}
		node.IsTerminal = len(node.Dependents) == 0
		cc.addNode(node, "")
	}

	expandParallelNodes(def, cc)
}

func hasErrorPort(raw schema.NodeDefinition, catalog *schema.NodeCatalog) bool {
	if catalog.Category(raw.Type).HasErrorPort() {
		return true
	}
	if raw.OnError != nil && raw.OnError.Strategy == schema.OnErrorGoto {
		return true
	}
	return nodeconfig.New(raw.Config).Bool("errorPort", false)
}
