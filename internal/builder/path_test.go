package builder

import (
	"errors"
	"testing"

	"github.com/rendis/flowplan/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructPaths(t *testing.T) {
	def := workflow("a",
		[]testNode{node("a", "input"), node("b", "transform"), node("c", "output"), node("x", "transform")},
		edge("e1", "a", "b"),
		edge("e2", "b", "c"),
		edge("e3", "b", "ghost"),
		edge("e4", "x", "c"),
	)

	reach, err := ConstructPaths(def)
	require.NoError(t, err)

	assert.Equal(t, "a", reach.EntryPointID)
	assert.Equal(t, []string{"a", "b", "c"}, reach.ReachableNodeIDs)
	assert.Equal(t, []string{"x"}, reach.UnreachableNodeIDs)
	assert.True(t, reach.IsReachable("c"))
	assert.False(t, reach.IsReachable("x"))
	assert.False(t, reach.IsReachable("ghost"))
}

func TestConstructPaths_Errors(t *testing.T) {
	_, err := ConstructPaths(nil)
	require.Error(t, err)

	_, err = ConstructPaths(workflow("", []testNode{node("a", "input")}))
	require.Error(t, err)

	_, err = ConstructPaths(workflow("missing", []testNode{node("a", "input")}))
	require.Error(t, err)
	var buildErr *schema.BuildError
	require.True(t, errors.As(err, &buildErr))
	assert.Equal(t, "missing", buildErr.NodeID)
}

func TestConstructPaths_DefinitionOrderWithoutNodeOrder(t *testing.T) {
	def := workflow("c",
		[]testNode{node("c", "input"), node("a", "transform"), node("b", "output")},
		edge("e1", "c", "b"),
		edge("e2", "c", "a"),
	)
	def.NodeOrder = nil

	reach, err := ConstructPaths(def)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, reach.ReachableNodeIDs)
}

func TestFilterReachableEdges(t *testing.T) {
	def := workflow("a",
		[]testNode{node("a", "input"), node("b", "output"), node("x", "transform")},
		edge("e1", "a", "b"),
		edge("e2", "x", "b"),
	)
	reach, err := ConstructPaths(def)
	require.NoError(t, err)

	edges := FilterReachableEdges(def.Edges, reach)
	require.Len(t, edges, 1)
	assert.Equal(t, "e1", edges[0].ID)
}

func TestValidateEdgeReferences(t *testing.T) {
	def := workflow("a",
		[]testNode{node("a", "input"), node("b", "output")},
		edge("e1", "a", "b"),
		edge("e2", "a", "nowhere"),
		edge("e3", "nobody", "b"),
	)

	dangling := ValidateEdgeReferences(def)

	assert.Equal(t, []DanglingEdge{
		{EdgeID: "e2", MissingTarget: "nowhere"},
		{EdgeID: "e3", MissingSource: "nobody"},
	}, dangling)
}

func TestDetectCycles(t *testing.T) {
	acyclic := workflow("a",
		[]testNode{node("a", "input"), node("b", "transform"), node("c", "output")},
		edge("e1", "a", "b"), edge("e2", "a", "c"), edge("e3", "b", "c"),
	)
	assert.Empty(t, DetectCycles(acyclic))

	cyclic := workflow("a",
		[]testNode{node("a", "input"), node("b", "transform"), node("c", "transform")},
		edge("e1", "a", "b"), edge("e2", "b", "c"), edge("e3", "c", "b"),
	)
	assert.Equal(t, []Cycle{{"b", "c"}}, DetectCycles(cyclic))
}

func TestCalculateNodeDepths(t *testing.T) {
	def := workflow("a",
		[]testNode{node("a", "input"), node("b", "transform"), node("c", "transform"), node("d", "output"), node("x", "transform")},
		edge("e1", "a", "b"),
		edge("e2", "b", "c"),
		edge("e3", "c", "d"),
		edge("e4", "a", "d"),
	)

	assert.Equal(t, map[string]int{"a": 0, "b": 1, "c": 2, "d": 1}, CalculateNodeDepths(def))
}
