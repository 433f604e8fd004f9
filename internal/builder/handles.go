package builder

import (
	"strings"

	"github.com/rendis/flowplan/pkg/schema"
)

// DetermineHandleType classifies an edge from its source handle and the type
// of its source node. Handle matching ignores case. Precedence:
//
//	error, error-*                      → error
//	loop, loopbody, loop-*              → loop
//	true, false, condition-true/false,
//	branch-*, case-*                    → condition
//	route-*, path-*                     → router
//	source node is a conditional/router → condition
//	loop source, handle not exit/complete → loop
//	anything else                       → source
func DetermineHandleType(sourceHandle, sourceNodeType string, catalog *schema.NodeCatalog) schema.HandleType {
	if catalog == nil {
		catalog = schema.DefaultCatalog
	}
	h := strings.ToLower(strings.TrimSpace(sourceHandle))

	switch {
	case h == "error" || strings.HasPrefix(h, "error-"):
		return schema.HandleError
	case h == "loop" || h == "loopbody" || strings.HasPrefix(h, "loop-"):
		return schema.HandleLoop
	case h == "true" || h == "false" || h == "condition-true" || h == "condition-false",
		strings.HasPrefix(h, "branch-"), strings.HasPrefix(h, "case-"):
		return schema.HandleCondition
	case strings.HasPrefix(h, "route-"), strings.HasPrefix(h, "path-"):
		return schema.HandleRouter
	}

	switch catalog.Category(sourceNodeType) {
	case schema.CategoryLogic, schema.CategoryRouter:
		return schema.HandleCondition
	case schema.CategoryLoop:
		if h != "exit" && h != "complete" {
			return schema.HandleLoop
		}
	}
	return schema.HandleSource
}

// ConditionValue extracts the branch value a condition edge fires on.
func ConditionValue(sourceHandle string) string {
	h := strings.TrimSpace(sourceHandle)
	lower := strings.ToLower(h)

	switch lower {
	case "true", "condition-true":
		return "true"
	case "false", "condition-false":
		return "false"
	case "default":
		return "default"
	}
	for _, prefix := range []string{"branch-", "case-"} {
		if strings.HasPrefix(lower, prefix) {
			return h[len(prefix):]
		}
	}
	return h
}

// RouterPath strips a route- or path- prefix from a router handle.
func RouterPath(sourceHandle string) string {
	h := strings.TrimSpace(sourceHandle)
	lower := strings.ToLower(h)
	for _, prefix := range []string{"route-", "path-"} {
		if strings.HasPrefix(lower, prefix) {
			return h[len(prefix):]
		}
	}
	return h
}

func newExecutableEdge(raw schema.EdgeDefinition, sourceType string, catalog *schema.NodeCatalog) *schema.ExecutableEdge {
	e := &schema.ExecutableEdge{
		ID:           raw.ID,
		Source:       raw.Source,
		Target:       raw.Target,
		SourceHandle: raw.SourceHandle,
		HandleType:   DetermineHandleType(raw.SourceHandle, sourceType, catalog),
	}
	switch e.HandleType {
	case schema.HandleCondition:
		e.ConditionValue = ConditionValue(raw.SourceHandle)
	case schema.HandleRouter:
		e.RouterPath = RouterPath(raw.SourceHandle)
	}
	return e
}

// handlePriority orders handle types for a node's dominant classification.
var handlePriority = []schema.HandleType{
	schema.HandleRouter,
	schema.HandleCondition,
	schema.HandleLoop,
	schema.HandleError,
}

func dominantHandleType(present map[schema.HandleType]bool) schema.HandleType {
	for _, ht := range handlePriority {
		if present[ht] {
			return ht
		}
	}
	return schema.HandleSource
}
