package builder

// bfs walks the graph breadth-first from starts. visit decides whether a
// discovered node is entered at all; expand decides whether an entered
// node's successors are explored. Either predicate may be nil to allow
// everything. Nodes are returned in visiting order, each at most once.
func bfs(starts []string, successors func(string) []string, visit, expand func(string) bool) []string {
	visited := make(map[string]bool)
	var order, queue []string

	for _, s := range starts {
		if visited[s] || (visit != nil && !visit(s)) {
			continue
		}
		visited[s] = true
		queue = append(queue, s)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		if expand != nil && !expand(id) {
			continue
		}
		for _, next := range successors(id) {
			if visited[next] || (visit != nil && !visit(next)) {
				continue
			}
			visited[next] = true
			queue = append(queue, next)
		}
	}
	return order
}

// adjacency indexes edges by source. Targets keep edge order and repeat
// when several edges connect the same pair.
type adjacency map[string][]string

func (a adjacency) successors(id string) []string {
	return a[id]
}
