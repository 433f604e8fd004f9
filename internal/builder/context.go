package builder

import (
	"fmt"

	"github.com/rendis/flowplan/pkg/schema"
)

// ConstructionContext is the state threaded through the construction stages
// of a single build. Each stage reads what earlier stages produced and adds
// its own results; nothing outlives the build except what Build copies into
// the ExecutionPlan.
type ConstructionContext struct {
	Definition         *schema.WorkflowDefinition
	Nodes              map[string]*schema.ExecutableNode
	NodeOrder          []string
	Edges              []*schema.ExecutableEdge
	LoopBoundaries     map[string]*schema.LoopBoundary
	LoopOrder          []string
	ParallelBoundaries map[string]*schema.ParallelBoundary
	ParallelOrder      []string
	Warnings           []schema.Warning

	catalog *schema.NodeCatalog

	// Edge bookkeeping for loop rewiring. Seeded edges remember the index
	// of the definition edge they came from so the edge stage can skip the
	// ones rewiring removed; synthetic edges are carried over verbatim.
	edgesSeeded     bool
	edgeOrigin      map[*schema.ExecutableEdge]int
	removedDefEdges map[int]bool
	synthetic       map[*schema.ExecutableEdge]bool
}

// NewConstructionContext creates an empty context for def. A nil catalog
// means schema.DefaultCatalog.
func NewConstructionContext(def *schema.WorkflowDefinition, catalog *schema.NodeCatalog) *ConstructionContext {
	if catalog == nil {
		catalog = schema.DefaultCatalog
	}
	return &ConstructionContext{
		Definition:         def,
		Nodes:              make(map[string]*schema.ExecutableNode),
		LoopBoundaries:     make(map[string]*schema.LoopBoundary),
		ParallelBoundaries: make(map[string]*schema.ParallelBoundary),
		catalog:            catalog,
		edgeOrigin:         make(map[*schema.ExecutableEdge]int),
		removedDefEdges:    make(map[int]bool),
		synthetic:          make(map[*schema.ExecutableEdge]bool),
	}
}

// Catalog returns the node catalog the build resolves categories with.
func (c *ConstructionContext) Catalog() *schema.NodeCatalog {
	return c.catalog
}

func (c *ConstructionContext) warn(code, nodeID, format string, args ...any) {
	c.Warnings = append(c.Warnings, schema.Warning{
		Code:    code,
		NodeID:  nodeID,
		Message: fmt.Sprintf(format, args...),
	})
}

// category resolves the category of an executable node, or CategoryUnknown
// for ids not in the context.
func (c *ConstructionContext) category(id string) schema.NodeCategory {
	n, ok := c.Nodes[id]
	if !ok {
		return schema.CategoryUnknown
	}
	return c.catalog.Category(n.Type)
}

// addNode registers n and places it in NodeOrder right after anchor, or at
// the end when anchor is empty or unknown.
func (c *ConstructionContext) addNode(n *schema.ExecutableNode, anchor string) {
	c.Nodes[n.ID] = n
	for i, id := range c.NodeOrder {
		if id == anchor {
			c.NodeOrder = append(c.NodeOrder[:i+1], append([]string{n.ID}, c.NodeOrder[i+1:]...)...)
			return
		}
	}
	c.NodeOrder = append(c.NodeOrder, n.ID)
}

// workingEdges returns the edge list loop rewiring operates on. On first use
// it is seeded from the definition edges whose endpoints both made it into
// the context, classified with the same rules the edge stage uses.
func (c *ConstructionContext) workingEdges() []*schema.ExecutableEdge {
	if c.edgesSeeded {
		return c.Edges
	}
	c.edgesSeeded = true
	c.Edges = nil
	for i, raw := range c.Definition.Edges {
		src, ok := c.Nodes[raw.Source]
		if !ok {
			continue
		}
		if _, ok := c.Nodes[raw.Target]; !ok {
			continue
		}
		e := newExecutableEdge(raw, src.Type, c.catalog)
		c.edgeOrigin[e] = i
		c.Edges = append(c.Edges, e)
	}
	return c.Edges
}

// replaceEdges swaps in a new working edge list built from the current one
// minus removed plus added.
func (c *ConstructionContext) replaceEdges(removed map[*schema.ExecutableEdge]bool, added []*schema.ExecutableEdge) {
	next := make([]*schema.ExecutableEdge, 0, len(c.Edges)+len(added))
	for _, e := range c.Edges {
		if !removed[e] {
			next = append(next, e)
			continue
		}
		if idx, ok := c.edgeOrigin[e]; ok {
			c.removedDefEdges[idx] = true
		}
		delete(c.synthetic, e)
	}
	for _, e := range added {
		c.synthetic[e] = true
		next = append(next, e)
	}
	c.Edges = next
}

// relink recomputes dependencies, dependents and the terminal flag of ids
// from the working edge list. The END sentinel's edge back to its loop
// closes the iteration and is not a scheduling dependency of the loop.
func (c *ConstructionContext) relink(ids []string) {
	in := make(map[string][]string)
	out := make(map[string][]string)
	for _, e := range c.Edges {
		out[e.Source] = appendUnique(out[e.Source], e.Target)
		if c.isIterationEdge(e) {
			continue
		}
		in[e.Target] = appendUnique(in[e.Target], e.Source)
	}
	for _, id := range ids {
		n, ok := c.Nodes[id]
		if !ok {
			continue
		}
		n.Dependencies = nonNil(in[id])
		n.Dependents = nonNil(out[id])
		n.IsTerminal = len(n.Dependents) == 0
	}
}

func (c *ConstructionContext) isIterationEdge(e *schema.ExecutableEdge) bool {
	src, ok := c.Nodes[e.Source]
	if !ok || src.LoopContext == nil {
		return false
	}
	return src.LoopContext.Sentinel == schema.SentinelEnd && src.LoopContext.ParentLoopID == e.Target
}

func appendUnique(list []string, id string) []string {
	for _, existing := range list {
		if existing == id {
			return list
		}
	}
	return append(list, id)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
