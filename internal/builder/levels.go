package builder

import (
	"strings"

	"github.com/rendis/flowplan/pkg/schema"
)

// computeExecutionLevels batches nodes into levels: a node joins the first
// level after all of its dependencies have been placed. Dependencies on
// nodes outside the plan and on the node itself count as satisfied. When no node can be placed
// but some remain, the remainder forms one final level and a cycle warning
// is recorded.
func computeExecutionLevels(cc *ConstructionContext) [][]string {
	assigned := make(map[string]bool, len(cc.Nodes))
	var levels [][]string

	for len(assigned) < len(cc.NodeOrder) {
		var level []string
		for _, id := range cc.NodeOrder {
			if assigned[id] {
				continue
			}
			if dependenciesMet(cc, cc.Nodes[id], assigned) {
				level = append(level, id)
			}
		}

		if len(level) == 0 {
			var rest []string
			for _, id := range cc.NodeOrder {
				if !assigned[id] {
					rest = append(rest, id)
				}
			}
			cc.warn(schema.WarnCycleDetected, "",
				"dependency cycle among %d nodes (%s); they are scheduled together in a final level",
				len(rest), strings.Join(rest, ", "))
			levels = append(levels, rest)
			break
		}

		for _, id := range level {
			assigned[id] = true
		}
		levels = append(levels, level)
	}
	return levels
}

func dependenciesMet(cc *ConstructionContext, n *schema.ExecutableNode, assigned map[string]bool) bool {
	for _, dep := range n.Dependencies {
		if dep == n.ID {
			continue
		}
		if _, inPlan := cc.Nodes[dep]; inPlan && !assigned[dep] {
			return false
		}
	}
	return true
}

// findStartNodes returns the nodes with no in-plan dependency, with the
// entry point forced to the front.
func findStartNodes(cc *ConstructionContext, entry string) []string {
	starts := []string{entry}
	for _, id := range cc.NodeOrder {
		if id == entry {
			continue
		}
		hasDep := false
		for _, dep := range cc.Nodes[id].Dependencies {
			if _, ok := cc.Nodes[dep]; ok && dep != id {
				hasDep = true
				break
			}
		}
		if !hasDep {
			starts = append(starts, id)
		}
	}
	return starts
}
