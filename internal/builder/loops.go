package builder

import (
	"sort"

	"github.com/rendis/flowplan/internal/nodeconfig"
	"github.com/rendis/flowplan/pkg/schema"
)

// Sentinel id suffixes appended to the loop node id.
const (
	loopStartSuffix = "__loop_start"
	loopEndSuffix   = "__loop_end"
)

// ExpandLoops rewires every loop node in definition order. For a loop L with
// body entry targets B1..Bn the graph becomes
//
//	L → L__loop_start → B1..Bn → … → terminals → L__loop_end → L
//
// where the first and last edges carry the loop handle type. A loop without
// loop-handle edges is left untouched and reported.
//
// Bodies are discovered on the authored graph, so sentinels and edges added
// for one loop never pull nodes into another loop's body.
func ExpandLoops(cc *ConstructionContext) {
	adj := make(adjacency)
	for _, e := range cc.Definition.Edges {
		if _, ok := cc.Nodes[e.Source]; !ok {
			continue
		}
		if _, ok := cc.Nodes[e.Target]; !ok {
			continue
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
	}

	order := append([]string(nil), cc.NodeOrder...)
	for _, id := range order {
		node, ok := cc.Nodes[id]
		if !ok || !cc.catalog.IsLoop(node.Type) {
			continue
		}
		expandLoop(node, adj, cc)
	}
}

func expandLoop(loop *schema.ExecutableNode, adj adjacency, cc *ConstructionContext) {
	edges := cc.workingEdges()

	var entries []*schema.ExecutableEdge
	var targets []string
	for _, e := range edges {
		if e.Source != loop.ID || e.HandleType != schema.HandleLoop || e.Target == loop.ID {
			continue
		}
		entries = append(entries, e)
		targets = appendUnique(targets, e.Target)
	}
	if len(entries) == 0 {
		cc.warn(schema.WarnLoopWithoutBody, loop.ID,
			"loop node %q has no loop body edges; it will pass through without iterating", loop.ID)
		return
	}

	startID := loop.ID + loopStartSuffix
	endID := loop.ID + loopEndSuffix

	body := bfs(targets, adj.successors,
		func(id string) bool { return id != loop.ID }, nil)

	inBody := make(map[string]bool, len(body))
	for _, id := range body {
		inBody[id] = true
	}

	overlapping := make(map[string]bool)
	for _, id := range body {
		n := cc.Nodes[id]
		if n.LoopContext == nil {
			n.LoopContext = &schema.LoopContext{ParentLoopID: loop.ID}
			continue
		}
		owner := n.LoopContext.ParentLoopID
		if owner == loop.ID || overlapping[owner] || inBody[owner] {
			continue
		}
		if b, ok := cc.LoopBoundaries[owner]; ok && b.Contains(loop.ID) {
			n.LoopContext.ParentLoopID = loop.ID
			continue
		}
		overlapping[owner] = true
		cc.warn(schema.WarnLoopBodyOverlap, loop.ID,
			"loop %q shares body node %q with sibling loop %q; the node stays owned by %q",
			loop.ID, id, owner, owner)
	}

	cc.addNode(newSentinel(loop, startID, schema.SentinelStart), loop.ID)
	cc.addNode(newSentinel(loop, endID, schema.SentinelEnd), startID)

	removed := make(map[*schema.ExecutableEdge]bool)
	for _, e := range entries {
		removed[e] = true
	}

	added := []*schema.ExecutableEdge{
		syntheticEdge(loop.ID, startID, schema.HandleLoop),
	}
	for _, t := range targets {
		added = append(added, syntheticEdge(startID, t, schema.HandleSource))
	}

	// A body node closes an iteration when it edges back to the loop or has
	// no successor inside the body. Both are judged on the authored graph so
	// sentinels of loops expanded earlier do not count.
	var terminals []string
	for _, id := range body {
		closesBack, continues := false, false
		for _, next := range adj.successors(id) {
			if next == loop.ID {
				closesBack = true
			} else if inBody[next] {
				continues = true
			}
		}
		if continues && !closesBack {
			continue
		}
		terminals = append(terminals, id)
		for _, e := range edges {
			if e.Source == id && e.Target == loop.ID {
				removed[e] = true
			}
		}
		added = append(added, syntheticEdge(id, endID, schema.HandleSource))
	}
	added = append(added, syntheticEdge(endID, loop.ID, schema.HandleLoop))

	cc.replaceEdges(removed, added)

	affected := append([]string{loop.ID, startID, endID}, targets...)
	affected = append(affected, terminals...)
	cc.relink(affected)

	cc.LoopBoundaries[loop.ID] = &schema.LoopBoundary{
		LoopNodeID:      loop.ID,
		StartSentinelID: startID,
		EndSentinelID:   endID,
		BodyNodeIDs:     body,
		LoopType:        loopTypeOf(loop.Type),
		LoopConfig:      loopConfigOf(loopTypeOf(loop.Type), loop.Config),
	}
	cc.LoopOrder = append(cc.LoopOrder, loop.ID)
}

func newSentinel(loop *schema.ExecutableNode, id string, kind schema.SentinelKind) *schema.ExecutableNode {
	suffix := " (start)"
	if kind == schema.SentinelEnd {
		suffix = " (end)"
	}
	name := loop.Name
	if name == "" {
		name = loop.ID
	}
	n := &schema.ExecutableNode{
		ID:           id,
		Type:         schema.NodeTypeLoopSentinel,
		Name:         name + suffix,
		Position:     loop.Position,
		Dependencies: []string{},
		Dependents:   []string{},
		HandleType:   schema.HandleSource,
		LoopContext:  &schema.LoopContext{ParentLoopID: loop.ID, Sentinel: kind},
	}
	if loop.ParallelContext != nil {
		pc := *loop.ParallelContext
		n.ParallelContext = &pc
	}
	return n
}

func syntheticEdge(source, target string, ht schema.HandleType) *schema.ExecutableEdge {
	return &schema.ExecutableEdge{
		ID:         source + "->" + target,
		Source:     source,
		Target:     target,
		HandleType: ht,
	}
}

func loopTypeOf(nodeType string) schema.LoopType {
	switch schema.NormalizeNodeType(nodeType) {
	case "foreach":
		return schema.LoopForEach
	case "while":
		return schema.LoopWhile
	case "dowhile":
		return schema.LoopDoWhile
	}
	return schema.LoopFor
}

func loopConfigOf(lt schema.LoopType, raw map[string]any) schema.LoopConfig {
	cfg := nodeconfig.New(raw)
	lc := schema.LoopConfig{MaxIterations: cfg.Int("maxIterations", 0)}

	switch lt {
	case schema.LoopFor:
		count := cfg.Int("count", 1)
		lc.Count = &count
	case schema.LoopForEach:
		lc.SourceArray = cfg.String("sourceArray", "")
		lc.ItemVariable = cfg.String("itemVariable", "item")
	case schema.LoopWhile, schema.LoopDoWhile:
		lc.Condition = cfg.String("condition", "")
	}
	return lc
}

// IsInsideLoop reports whether nodeID belongs to any loop body.
func IsInsideLoop(plan *schema.ExecutionPlan, nodeID string) bool {
	return GetContainingLoop(plan, nodeID) != nil
}

// GetContainingLoop returns the innermost loop whose body holds nodeID,
// or nil. Innermost means the boundary with the smallest body.
func GetContainingLoop(plan *schema.ExecutionPlan, nodeID string) *schema.LoopBoundary {
	var best *schema.LoopBoundary
	for _, b := range sortedLoops(plan.LoopBoundaries) {
		if !b.Contains(nodeID) {
			continue
		}
		if best == nil || len(b.BodyNodeIDs) < len(best.BodyNodeIDs) {
			best = b
		}
	}
	return best
}

// GetLoopDepth counts the loop bodies that contain nodeID.
func GetLoopDepth(boundaries map[string]*schema.LoopBoundary, nodeID string) int {
	depth := 0
	for _, b := range boundaries {
		if b.Contains(nodeID) {
			depth++
		}
	}
	return depth
}

func sortedLoops(boundaries map[string]*schema.LoopBoundary) []*schema.LoopBoundary {
	ids := make([]string, 0, len(boundaries))
	for id := range boundaries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*schema.LoopBoundary, len(ids))
	for i, id := range ids {
		out[i] = boundaries[id]
	}
	return out
}
