package diagram

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// RenderASCIIAuto renders through the mermaid-ascii binary in binDir when
// it exists, falling back to RenderASCII.
func RenderASCIIAuto(ctx context.Context, model *DiagramModel, binDir string) string {
	if binDir != "" {
		binPath := filepath.Join(binDir, "mermaid-ascii")
		if _, err := os.Stat(binPath); err == nil {
			if result, err := RenderASCIIViaCLI(ctx, model, binPath); err == nil {
				return result
			}
		}
	}
	return RenderASCII(model)
}

// RenderASCIIViaCLI pipes simplified Mermaid syntax through the mermaid-ascii binary.
func RenderASCIIViaCLI(ctx context.Context, model *DiagramModel, binPath string) (string, error) {
	cmd := exec.CommandContext(ctx, binPath)
	cmd.Stdin = strings.NewReader(RenderMermaidForCLI(model))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("mermaid-ascii: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// RenderMermaidForCLI generates the edge-only Mermaid dialect mermaid-ascii
// understands. Node ids are replaced by readable display ids, and clusters
// are dropped since mermaid-ascii ignores subgraph blocks.
func RenderMermaidForCLI(model *DiagramModel) string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	displayID := make(map[string]string, len(model.Nodes))
	used := make(map[string]string, len(model.Nodes))
	for _, node := range model.Nodes {
		id := cliNodeID(node)
		if owner, taken := used[id]; taken && owner != node.ID {
			id += "-" + mermaidSafeID(node.ID)
		}
		used[id] = node.ID
		displayID[node.ID] = id
	}

	resolve := func(id string) string {
		if d, ok := displayID[id]; ok {
			return d
		}
		return mermaidSafeID(id)
	}

	for _, edge := range model.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", edge.Label)
		}
		fmt.Fprintf(&b, "    %s -->%s %s\n", resolve(edge.From), label, resolve(edge.To))
	}

	return b.String()
}

// cliNodeID builds a display id from the node label, marking nodes that
// carry warnings.
func cliNodeID(node *Node) string {
	id := firstLine(node.Label)
	if id == "" {
		id = node.ID
	}
	if len(node.Warnings) > 0 {
		id += "-WARN"
	}
	return strings.NewReplacer(" ", "-", "(", "", ")", "").Replace(id)
}
