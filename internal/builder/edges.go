package builder

import (
	"strings"

	"github.com/rendis/flowplan/pkg/schema"
)

// ConstructEdges resolves the final edge list: definition edges between
// reachable nodes that loop rewiring left in place, followed by the edges
// rewiring synthesized. It then assigns each node its dominant handle type
// and reports structural problems as warnings.
func ConstructEdges(def *schema.WorkflowDefinition, reach *schema.ReachabilityResult, cc *ConstructionContext) {
	var edges []*schema.ExecutableEdge
	for i, raw := range def.Edges {
		if cc.removedDefEdges[i] {
			continue
		}
		if !reach.IsReachable(raw.Source) || !reach.IsReachable(raw.Target) {
			continue
		}
		src, ok := cc.Nodes[raw.Source]
		if !ok {
			continue
		}
		if _, ok := cc.Nodes[raw.Target]; !ok {
			continue
		}
		edges = append(edges, newExecutableEdge(raw, src.Type, cc.catalog))
	}
	for _, e := range cc.Edges {
		if cc.synthetic[e] {
			edges = append(edges, e)
		}
	}
	cc.Edges = edges

	assignHandleTypes(cc)
	validateEdges(cc)
}

func assignHandleTypes(cc *ConstructionContext) {
	present := make(map[string]map[schema.HandleType]bool)
	for _, e := range cc.Edges {
		if present[e.Source] == nil {
			present[e.Source] = make(map[schema.HandleType]bool)
		}
		present[e.Source][e.HandleType] = true
	}
	for _, id := range cc.NodeOrder {
		cc.Nodes[id].HandleType = dominantHandleType(present[id])
	}
}

func validateEdges(cc *ConstructionContext) {
	counts := make(map[string]int, len(cc.Edges))
	for _, e := range cc.Edges {
		counts[e.ID]++
	}
	reported := make(map[string]bool)
	for _, e := range cc.Edges {
		if counts[e.ID] > 1 && !reported[e.ID] {
			reported[e.ID] = true
			cc.warn(schema.WarnDuplicateEdgeID, "", "edge id %q is used by %d edges", e.ID, counts[e.ID])
		}
	}

	for _, e := range cc.Edges {
		if e.Source == e.Target && cc.category(e.Source) != schema.CategoryLoop {
			cc.warn(schema.WarnSelfLoop, e.Source,
				"edge %q connects node %q to itself; only loop nodes may do that", e.ID, e.Source)
		}
	}

	for _, id := range cc.NodeOrder {
		node := cc.Nodes[id]
		switch {
		case cc.catalog.IsConditional(node.Type):
			var hasTrue, hasFalse bool
			for _, e := range EdgesByHandleType(cc.Edges, id, schema.HandleCondition) {
				switch strings.ToLower(e.ConditionValue) {
				case "true":
					hasTrue = true
				case "false":
					hasFalse = true
				}
			}
			if !hasTrue || !hasFalse {
				cc.warn(schema.WarnConditionalBranches, id,
					"conditional node %q is missing true/false branches", id)
			}
		case cc.catalog.IsRouter(node.Type):
			if len(EdgesByHandleType(cc.Edges, id, schema.HandleRouter)) == 0 {
				cc.warn(schema.WarnRouterWithoutRoutes, id,
					"router node %q has no route edges", id)
			}
		}
	}
}

// OutgoingEdges returns the edges leaving nodeID, in plan order.
func OutgoingEdges(edges []*schema.ExecutableEdge, nodeID string) []*schema.ExecutableEdge {
	var out []*schema.ExecutableEdge
	for _, e := range edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// IncomingEdges returns the edges entering nodeID, in plan order.
func IncomingEdges(edges []*schema.ExecutableEdge, nodeID string) []*schema.ExecutableEdge {
	var out []*schema.ExecutableEdge
	for _, e := range edges {
		if e.Target == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// EdgesByHandleType returns the edges leaving nodeID with the given handle type.
func EdgesByHandleType(edges []*schema.ExecutableEdge, nodeID string, ht schema.HandleType) []*schema.ExecutableEdge {
	var out []*schema.ExecutableEdge
	for _, e := range edges {
		if e.Source == nodeID && e.HandleType == ht {
			out = append(out, e)
		}
	}
	return out
}

// ErrorEdge returns the edge a failure of nodeID is routed along, or nil.
func ErrorEdge(edges []*schema.ExecutableEdge, nodeID string) *schema.ExecutableEdge {
	for _, e := range edges {
		if e.Source == nodeID && e.HandleType == schema.HandleError {
			return e
		}
	}
	return nil
}

// ConditionEdge returns the edge leaving nodeID whose condition value or
// router path matches value, ignoring case, or nil.
func ConditionEdge(edges []*schema.ExecutableEdge, nodeID, value string) *schema.ExecutableEdge {
	for _, e := range edges {
		if e.Source != nodeID {
			continue
		}
		switch e.HandleType {
		case schema.HandleCondition:
			if strings.EqualFold(e.ConditionValue, value) {
				return e
			}
		case schema.HandleRouter:
			if strings.EqualFold(e.RouterPath, value) {
				return e
			}
		}
	}
	return nil
}

// DefaultEdge returns the fallback edge of a branching node: the edge
// labelled "default", then "else", then the first plain source edge.
func DefaultEdge(edges []*schema.ExecutableEdge, nodeID string) *schema.ExecutableEdge {
	out := OutgoingEdges(edges, nodeID)
	for _, label := range []string{"default", "else"} {
		for _, e := range out {
			if strings.EqualFold(e.SourceHandle, label) || strings.EqualFold(e.ConditionValue, label) ||
				strings.EqualFold(e.RouterPath, label) {
				return e
			}
		}
	}
	for _, e := range out {
		if e.HandleType == schema.HandleSource {
			return e
		}
	}
	return nil
}
