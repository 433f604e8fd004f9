package diagram

import (
	"fmt"
	"sort"

	"github.com/rendis/flowplan/pkg/schema"
)

// Build constructs a DiagramModel from a compiled plan. Nodes follow the
// plan's node order between virtual start and end nodes; loop bodies and
// parallel branches become nested clusters.
func Build(plan *schema.ExecutionPlan) (*DiagramModel, error) {
	if plan == nil {
		return nil, schema.NewError(schema.ErrCodeRender, "diagram: plan is required")
	}
	catalog := schema.NewNodeCatalog(nil)

	warnings := make(map[string][]string)
	for _, w := range plan.Warnings {
		if w.NodeID != "" {
			warnings[w.NodeID] = append(warnings[w.NodeID], w.Code)
		}
	}

	nodes := make([]*Node, 0, len(plan.NodeOrder)+2)
	nodes = append(nodes, &Node{ID: StartID, Label: "Start", Kind: NodeKindStart})
	for _, id := range plan.NodeOrder {
		n, ok := plan.Nodes[id]
		if !ok {
			continue
		}
		nodes = append(nodes, &Node{
			ID:       id,
			Label:    nodeLabel(n),
			Kind:     kindOf(catalog, n.Type),
			Warnings: warnings[id],
		})
	}
	nodes = append(nodes, &Node{ID: EndID, Label: "End", Kind: NodeKindEnd})

	return &DiagramModel{
		Title:    titleFromPlan(plan),
		Nodes:    nodes,
		Edges:    buildEdges(plan),
		Levels:   buildLevels(plan),
		Clusters: buildClusters(plan),
	}, nil
}

func kindOf(catalog *schema.NodeCatalog, nodeType string) NodeKind {
	switch catalog.Category(nodeType) {
	case schema.CategoryLogic:
		return NodeKindCondition
	case schema.CategoryRouter:
		return NodeKindRouter
	case schema.CategoryLLM, schema.CategoryAgent:
		return NodeKindReasoning
	case schema.CategoryParallel:
		return NodeKindParallel
	case schema.CategoryLoop:
		return NodeKindLoop
	case schema.CategoryHuman:
		return NodeKindWait
	case schema.CategoryTrigger:
		return NodeKindTrigger
	case schema.CategorySentinel:
		return NodeKindSentinel
	default:
		return NodeKindAction
	}
}

// nodeLabel is the display name followed by the node type on a second line.
// Sentinels carry only their name.
func nodeLabel(n *schema.ExecutableNode) string {
	name := n.Name
	if name == "" {
		name = n.ID
	}
	if n.Type == schema.NodeTypeLoopSentinel {
		return name
	}
	return fmt.Sprintf("%s\n(%s)", name, n.Type)
}

func edgeLabel(e *schema.ExecutableEdge) string {
	switch e.HandleType {
	case schema.HandleCondition:
		return e.ConditionValue
	case schema.HandleRouter:
		return e.RouterPath
	case schema.HandleError:
		return "error"
	case schema.HandleLoop:
		if e.SourceHandle != "" {
			return e.SourceHandle
		}
		return "loop"
	}
	return ""
}

// buildEdges converts plan edges and adds start and end edges.
func buildEdges(plan *schema.ExecutionPlan) []Edge {
	edges := make([]Edge, 0, len(plan.Edges)+len(plan.StartNodes)+1)
	for _, id := range plan.StartNodes {
		edges = append(edges, Edge{From: StartID, To: id})
	}
	for _, e := range plan.Edges {
		edges = append(edges, Edge{
			From:   e.Source,
			To:     e.Target,
			Label:  edgeLabel(e),
			Handle: e.HandleType,
		})
	}
	for _, id := range plan.NodeOrder {
		if n, ok := plan.Nodes[id]; ok && n.IsTerminal {
			edges = append(edges, Edge{From: id, To: EndID})
		}
	}
	return edges
}

// buildLevels wraps plan levels with virtual start/end levels.
func buildLevels(plan *schema.ExecutionPlan) [][]string {
	levels := make([][]string, 0, len(plan.ExecutionLevels)+2)
	levels = append(levels, []string{StartID})
	levels = append(levels, plan.ExecutionLevels...)
	levels = append(levels, []string{EndID})
	return levels
}

func titleFromPlan(plan *schema.ExecutionPlan) string {
	if plan.Definition != nil && plan.Definition.Name != "" {
		return plan.Definition.Name
	}
	return "Workflow"
}

// clusterSpec is a cluster together with every node it contains,
// including nodes of clusters nested inside it.
type clusterSpec struct {
	cluster *Cluster
	members map[string]bool
}

// buildClusters nests loop and parallel regions. Each node belongs to the
// smallest region that contains it, and each region hangs off the smallest
// region containing all of its nodes.
func buildClusters(plan *schema.ExecutionPlan) []*Cluster {
	var specs []*clusterSpec

	for _, loopID := range sortedKeys(plan.LoopBoundaries) {
		b := plan.LoopBoundaries[loopID]
		members := map[string]bool{b.StartSentinelID: true, b.EndSentinelID: true}
		for _, id := range b.BodyNodeIDs {
			members[id] = true
			if nested, ok := plan.LoopBoundaries[id]; ok {
				members[nested.StartSentinelID] = true
				members[nested.EndSentinelID] = true
			}
		}
		specs = append(specs, &clusterSpec{
			cluster: &Cluster{
				ID:    "loop_" + loopID,
				Label: fmt.Sprintf("%s (%s)", displayName(plan, loopID), b.LoopType),
				Kind:  ClusterLoop,
			},
			members: members,
		})
	}
	for _, parID := range sortedKeys(plan.ParallelBoundaries) {
		b := plan.ParallelBoundaries[parID]
		for _, branch := range b.Branches {
			members := make(map[string]bool, len(branch.NodeIDs))
			for _, id := range branch.NodeIDs {
				members[id] = true
			}
			specs = append(specs, &clusterSpec{
				cluster: &Cluster{
					ID:    fmt.Sprintf("parallel_%s_%d", parID, branch.Index),
					Label: fmt.Sprintf("%s branch %d", displayName(plan, parID), branch.Index),
					Kind:  ClusterParallel,
				},
				members: members,
			})
		}
	}

	sort.SliceStable(specs, func(i, j int) bool {
		if len(specs[i].members) != len(specs[j].members) {
			return len(specs[i].members) < len(specs[j].members)
		}
		return specs[i].cluster.ID < specs[j].cluster.ID
	})

	for _, id := range plan.NodeOrder {
		for _, s := range specs {
			if s.members[id] {
				s.cluster.NodeIDs = append(s.cluster.NodeIDs, id)
				break
			}
		}
	}

	var roots []*Cluster
	for i, s := range specs {
		var parent *clusterSpec
		for _, candidate := range specs[i+1:] {
			if containsAll(candidate.members, s.members) {
				parent = candidate
				break
			}
		}
		if parent == nil {
			roots = append(roots, s.cluster)
		} else {
			parent.cluster.Children = append(parent.cluster.Children, s.cluster)
		}
	}
	sort.SliceStable(roots, func(i, j int) bool { return roots[i].ID < roots[j].ID })
	return roots
}

func containsAll(outer, inner map[string]bool) bool {
	for id := range inner {
		if !outer[id] {
			return false
		}
	}
	return true
}

func displayName(plan *schema.ExecutionPlan, id string) string {
	if n, ok := plan.Nodes[id]; ok && n.Name != "" {
		return n.Name
	}
	return id
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
