package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/flowplan/pkg/schema"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph TD\n")
	if model.Title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", model.Title)
	}

	clustered := make(map[string]bool)
	walkClusters(model.Clusters, 0, func(c *Cluster, _ int) {
		for _, id := range c.NodeIDs {
			clustered[id] = true
		}
	})

	for _, node := range model.Nodes {
		if !clustered[node.ID] {
			fmt.Fprintf(&b, "    %s\n", mermaidNodeDef(node))
		}
	}
	for _, c := range model.Clusters {
		writeMermaidCluster(&b, model, c, 1)
	}

	for _, edge := range model.Edges {
		fmt.Fprintf(&b, "    %s %s %s\n",
			mermaidSafeID(edge.From), mermaidArrow(edge), mermaidSafeID(edge.To))
	}

	b.WriteString("\n")
	b.WriteString("    classDef sentinel fill:#eeeeee,stroke:#999,color:#555\n")
	b.WriteString("    classDef warning fill:#b7791a,stroke:#8a5c14,color:#fff\n")
	b.WriteString("    classDef terminal fill:#6b6b6b,stroke:#4a4a4a,color:#fff\n")

	for _, node := range model.Nodes {
		if cls := mermaidClass(node); cls != "" {
			fmt.Fprintf(&b, "    class %s %s\n", mermaidSafeID(node.ID), cls)
		}
	}

	return b.String()
}

func writeMermaidCluster(b *strings.Builder, model *DiagramModel, c *Cluster, depth int) {
	indent := strings.Repeat("    ", depth)
	fmt.Fprintf(b, "%ssubgraph %s[\"%s\"]\n", indent, mermaidSafeID(c.ID), c.Label)
	for _, id := range c.NodeIDs {
		if node := model.Node(id); node != nil {
			fmt.Fprintf(b, "%s    %s\n", indent, mermaidNodeDef(node))
		}
	}
	for _, child := range c.Children {
		writeMermaidCluster(b, model, child, depth+1)
	}
	fmt.Fprintf(b, "%send\n", indent)
}

// mermaidNodeDef returns a Mermaid node definition with the appropriate shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := firstLine(node.Label)

	switch node.Kind {
	case NodeKindCondition, NodeKindRouter:
		return fmt.Sprintf("%s{%q}", id, label)
	case NodeKindReasoning:
		return fmt.Sprintf("%s{{%q}}", id, label)
	case NodeKindWait, NodeKindTrigger:
		return fmt.Sprintf("%s([%q])", id, label)
	case NodeKindParallel, NodeKindLoop:
		return fmt.Sprintf("%s[[%q]]", id, label)
	case NodeKindSentinel:
		return fmt.Sprintf("%s>%q]", id, label)
	case NodeKindStart, NodeKindEnd:
		return fmt.Sprintf("%s((%q))", id, label)
	default: // action
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// mermaidArrow draws error edges dotted and loop edges thick.
func mermaidArrow(edge Edge) string {
	arrow := "-->"
	switch edge.Handle {
	case schema.HandleError:
		arrow = "-.->"
	case schema.HandleLoop:
		arrow = "==>"
	}
	if edge.Label != "" {
		arrow += "|" + edge.Label + "|"
	}
	return arrow
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

func mermaidClass(node *Node) string {
	switch {
	case len(node.Warnings) > 0:
		return "warning"
	case node.Kind == NodeKindSentinel:
		return "sentinel"
	case node.Kind == NodeKindStart, node.Kind == NodeKindEnd:
		return "terminal"
	}
	return ""
}
