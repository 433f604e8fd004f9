package builder

import (
	"testing"

	"github.com/rendis/flowplan/pkg/schema"
	"github.com/stretchr/testify/assert"
)

func TestDetermineHandleType(t *testing.T) {
	tests := []struct {
		handle   string
		nodeType string
		want     schema.HandleType
	}{
		{"", "http", schema.HandleSource},
		{"output", "transform", schema.HandleSource},
		{"error", "http", schema.HandleError},
		{"Error-Timeout", "llm", schema.HandleError},
		{"loop", "transform", schema.HandleLoop},
		{"loopBody", "for", schema.HandleLoop},
		{"loop-items", "forEach", schema.HandleLoop},
		{"true", "transform", schema.HandleCondition},
		{"FALSE", "conditional", schema.HandleCondition},
		{"condition-true", "if", schema.HandleCondition},
		{"branch-left", "transform", schema.HandleCondition},
		{"case-3", "switch", schema.HandleCondition},
		{"route-premium", "router", schema.HandleRouter},
		{"path-b", "transform", schema.HandleRouter},
		{"", "conditional", schema.HandleCondition},
		{"default", "condition", schema.HandleCondition},
		{"", "for", schema.HandleLoop},
		{"body", "while", schema.HandleLoop},
		{"exit", "for", schema.HandleSource},
		{"Complete", "doWhile", schema.HandleSource},
		{"anything", "router", schema.HandleCondition},
		{"", "switch", schema.HandleCondition},
		{"default", "router", schema.HandleCondition},
	}
	for _, tt := range tests {
		got := DetermineHandleType(tt.handle, tt.nodeType, nil)
		assert.Equal(t, tt.want, got, "handle %q on %s", tt.handle, tt.nodeType)
	}
}

func TestDetermineHandleType_CustomCatalog(t *testing.T) {
	catalog := schema.NewNodeCatalog(map[string]schema.NodeCategory{"repeat": schema.CategoryLoop})

	assert.Equal(t, schema.HandleLoop, DetermineHandleType("", "repeat", catalog))
	assert.Equal(t, schema.HandleSource, DetermineHandleType("", "repeat", nil))
}

func TestConditionValue(t *testing.T) {
	tests := map[string]string{
		"true":            "true",
		"TRUE":            "true",
		"condition-false": "false",
		"Default":         "default",
		"branch-Left":     "Left",
		"case-42":         "42",
		"custom":          "custom",
		" yes ":           "yes",
	}
	for in, want := range tests {
		assert.Equal(t, want, ConditionValue(in), in)
	}
}

func TestRouterPath(t *testing.T) {
	assert.Equal(t, "premium", RouterPath("route-premium"))
	assert.Equal(t, "B", RouterPath("Path-B"))
	assert.Equal(t, "fallback", RouterPath("fallback"))
}

func TestNewExecutableEdge_OnlyBranchFieldsForBranchEdges(t *testing.T) {
	cond := newExecutableEdge(handled("e1", "a", "b", "branch-x"), "transform", schema.DefaultCatalog)
	assert.Equal(t, schema.HandleCondition, cond.HandleType)
	assert.Equal(t, "x", cond.ConditionValue)
	assert.Empty(t, cond.RouterPath)

	route := newExecutableEdge(handled("e2", "a", "b", "route-y"), "router", schema.DefaultCatalog)
	assert.Equal(t, "y", route.RouterPath)
	assert.Empty(t, route.ConditionValue)

	plain := newExecutableEdge(handled("e3", "a", "b", "out"), "transform", schema.DefaultCatalog)
	assert.Empty(t, plain.ConditionValue)
	assert.Empty(t, plain.RouterPath)
	assert.Equal(t, "out", plain.SourceHandle)
}

func TestDominantHandleType(t *testing.T) {
	assert.Equal(t, schema.HandleSource, dominantHandleType(nil))
	assert.Equal(t, schema.HandleError, dominantHandleType(map[schema.HandleType]bool{
		schema.HandleSource: true, schema.HandleError: true,
	}))
	assert.Equal(t, schema.HandleRouter, dominantHandleType(map[schema.HandleType]bool{
		schema.HandleCondition: true, schema.HandleRouter: true, schema.HandleLoop: true,
	}))
	assert.Equal(t, schema.HandleCondition, dominantHandleType(map[schema.HandleType]bool{
		schema.HandleLoop: true, schema.HandleCondition: true,
	}))
}
