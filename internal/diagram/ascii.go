package diagram

import (
	"fmt"
	"strings"
)

// warningTag returns a short ASCII marker for a node's warnings.
func warningTag(codes []string) string {
	switch len(codes) {
	case 0:
		return ""
	case 1:
		return "[! " + codes[0] + "]"
	default:
		return fmt.Sprintf("[! %s +%d]", codes[0], len(codes)-1)
	}
}

// RenderASCII renders a DiagramModel as a text-based ASCII diagram.
// It uses a level-based layout with box-drawing characters, followed by
// the loop and parallel regions and the labelled edges.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		fmt.Fprintf(&b, "=== %s ===\n\n", model.Title)
	}

	for levelIdx, level := range model.Levels {
		var boxes []asciiBox
		for _, nodeID := range level {
			node := model.Node(nodeID)
			if node == nil {
				continue
			}
			boxes = append(boxes, makeBox(node))
		}

		renderBoxRow(&b, boxes)

		if levelIdx < len(model.Levels)-1 {
			renderConnector(&b, len(boxes))
		}
	}

	if len(model.Clusters) > 0 {
		b.WriteString("\n--- regions ---\n")
		walkClusters(model.Clusters, 0, func(c *Cluster, depth int) {
			renderCluster(&b, model, c, depth)
		})
	}

	var labelled []Edge
	for _, e := range model.Edges {
		if e.Label != "" {
			labelled = append(labelled, e)
		}
	}
	if len(labelled) > 0 {
		b.WriteString("\n--- branches ---\n")
		for _, e := range labelled {
			fmt.Fprintf(&b, "  %s ─[%s]→ %s\n", e.From, e.Label, e.To)
		}
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node.
func makeBox(node *Node) asciiBox {
	contentLines := []string{firstLine(node.Label)}
	if tag := warningTag(node.Warnings); tag != "" {
		contentLines = append(contentLines, tag)
	}

	maxLen := 0
	for _, line := range contentLines {
		if n := len([]rune(line)); n > maxLen {
			maxLen = n
		}
	}
	width := maxLen + 4 // 2 border + 2 padding

	lines := []string{"┌" + strings.Repeat("─", width-2) + "┐"}
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-len([]rune(content)))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, "└"+strings.Repeat("─", width-2)+"┘")

	return asciiBox{lines: lines, width: width}
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}

	maxHeight := 0
	for _, box := range boxes {
		if len(box.lines) > maxHeight {
			maxHeight = len(box.lines)
		}
	}

	for row := 0; row < maxHeight; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

// renderConnector draws a vertical connector between levels.
func renderConnector(b *strings.Builder, boxCount int) {
	if boxCount == 0 {
		return
	}
	b.WriteString("       │\n")
	b.WriteString("       ▼\n")
}

func renderCluster(b *strings.Builder, model *DiagramModel, c *Cluster, depth int) {
	indent := strings.Repeat("  ", depth+1)
	fmt.Fprintf(b, "%s[%s: %s]\n", indent, c.Kind, c.Label)
	for _, id := range c.NodeIDs {
		label := id
		var tag string
		if node := model.Node(id); node != nil {
			label = firstLine(node.Label)
			if t := warningTag(node.Warnings); t != "" {
				tag = " " + t
			}
		}
		fmt.Fprintf(b, "%s  %s%s\n", indent, label, tag)
	}
}
