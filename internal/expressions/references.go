package expressions

import (
	"sort"
	"strings"
)

const (
	openMarker  = "${{"
	closeMarker = "}}"
)

// HasInterpolation reports whether s contains a ${{...}} token.
func HasInterpolation(s string) bool {
	return strings.Contains(s, openMarker)
}

// Unwrap strips a single enclosing ${{ }} pair, returning the inner
// expression trimmed. Strings that are not fully wrapped come back trimmed.
func Unwrap(s string) string {
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, openMarker) && strings.HasSuffix(t, closeMarker) {
		inner := t[len(openMarker) : len(t)-len(closeMarker)]
		if !strings.Contains(inner, openMarker) {
			return strings.TrimSpace(inner)
		}
	}
	return t
}

// NodeRefs walks a config value and returns, sorted and deduplicated, the
// node ids referenced by ${{nodes.<id>...}} tokens in any string inside it.
func NodeRefs(v any) []string {
	set := make(map[string]bool)
	collectNodeRefs(v, set)
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func collectNodeRefs(v any, set map[string]bool) {
	switch val := v.(type) {
	case string:
		extractNodeRefs(val, set)
	case map[string]any:
		for _, item := range val {
			collectNodeRefs(item, set)
		}
	case []any:
		for _, item := range val {
			collectNodeRefs(item, set)
		}
	}
}

func extractNodeRefs(s string, set map[string]bool) {
	for {
		idx := strings.Index(s, openMarker)
		if idx == -1 {
			return
		}
		rest := s[idx+len(openMarker):]
		closeIdx := strings.Index(rest, closeMarker)
		if closeIdx == -1 {
			return
		}
		token := strings.TrimSpace(rest[:closeIdx])
		s = rest[closeIdx+len(closeMarker):]

		if !strings.HasPrefix(token, "nodes.") {
			continue
		}
		ref := token[len("nodes."):]
		if end := strings.IndexAny(ref, ".[ "); end != -1 {
			ref = ref[:end]
		}
		if ref != "" {
			set[ref] = true
		}
	}
}
