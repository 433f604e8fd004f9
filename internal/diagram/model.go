package diagram

import "github.com/rendis/flowplan/pkg/schema"

// NodeKind classifies a diagram node by the category of its node type.
type NodeKind string

const (
	NodeKindAction    NodeKind = "action"
	NodeKindCondition NodeKind = "condition"
	NodeKindRouter    NodeKind = "router"
	NodeKindReasoning NodeKind = "reasoning"
	NodeKindParallel  NodeKind = "parallel"
	NodeKindLoop      NodeKind = "loop"
	NodeKindWait      NodeKind = "wait"
	NodeKindTrigger   NodeKind = "trigger"
	NodeKindSentinel  NodeKind = "sentinel"
	NodeKindStart     NodeKind = "start"
	NodeKindEnd       NodeKind = "end"
)

// Virtual node ids framing every diagram.
const (
	StartID = "__start__"
	EndID   = "__end__"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title    string
	Nodes    []*Node
	Edges    []Edge
	Levels   [][]string
	Clusters []*Cluster // outermost clusters; nested ones hang off Children
}

// Node represents a single plan node in the diagram.
type Node struct {
	ID       string
	Label    string
	Kind     NodeKind
	Warnings []string // warning codes attached to this node
}

// ClusterKind tells loop bodies from parallel branches.
type ClusterKind string

const (
	ClusterLoop     ClusterKind = "loop"
	ClusterParallel ClusterKind = "parallel"
)

// Cluster groups the nodes of a loop body or a parallel branch. NodeIDs
// holds only the direct members; nodes of nested clusters live in Children.
type Cluster struct {
	ID       string
	Label    string
	Kind     ClusterKind
	NodeIDs  []string
	Children []*Cluster
}

// Edge represents a plan edge between two nodes.
type Edge struct {
	From   string
	To     string
	Label  string
	Handle schema.HandleType
}

// Node returns the node with the given id, or nil.
func (m *DiagramModel) Node(id string) *Node {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// walkClusters visits every cluster depth-first, passing its nesting depth.
func walkClusters(clusters []*Cluster, depth int, fn func(c *Cluster, depth int)) {
	for _, c := range clusters {
		fn(c, depth)
		walkClusters(c.Children, depth+1, fn)
	}
}
