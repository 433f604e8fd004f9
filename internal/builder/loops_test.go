package builder

import (
	"slices"
	"sort"
	"testing"

	"github.com/rendis/flowplan/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nestedLoops() *schema.WorkflowDefinition {
	return workflow("outer",
		[]testNode{
			nodeWith("outer", "forEach", map[string]any{"sourceArray": "${{inputs.pages}}", "itemVariable": "page"}),
			nodeWith("inner", "while", map[string]any{"condition": "iteration.index < 5", "maxIterations": 20}),
			node("work", "transform"),
		},
		handled("e1", "outer", "inner", "loop"),
		handled("e2", "inner", "work", "loop"),
		edge("e3", "work", "inner"),
		handled("e4", "inner", "outer", "complete"),
	)
}

func TestExpandLoops_Nested(t *testing.T) {
	plan := mustBuild(t, nestedLoops())

	outer := plan.LoopBoundaries["outer"]
	inner := plan.LoopBoundaries["inner"]
	require.NotNil(t, outer)
	require.NotNil(t, inner)

	assert.Equal(t, []string{"inner", "work"}, outer.BodyNodeIDs)
	assert.Equal(t, []string{"work"}, inner.BodyNodeIDs)
	assert.Equal(t, schema.LoopForEach, outer.LoopType)
	assert.Equal(t, "page", outer.LoopConfig.ItemVariable)
	assert.Equal(t, schema.LoopWhile, inner.LoopType)
	assert.Equal(t, "iteration.index < 5", inner.LoopConfig.Condition)
	assert.Equal(t, 20, inner.LoopConfig.MaxIterations)

	assert.Equal(t, []string{"outer__loop_start"}, plan.Nodes["inner"].Dependencies)
	assert.Equal(t, []string{"inner__loop_end"}, plan.Nodes["work"].Dependents)
	assert.Equal(t, []string{"inner"}, plan.Nodes["outer__loop_end"].Dependencies)

	assert.NotContains(t, warningCodes(plan.Warnings), schema.WarnLoopBodyOverlap)
	assert.NotContains(t, warningCodes(plan.Warnings), schema.WarnCycleDetected)

	assert.Equal(t, "inner", GetContainingLoop(plan, "work").LoopNodeID)
	assert.Equal(t, "outer", GetContainingLoop(plan, "inner").LoopNodeID)
	assert.Nil(t, GetContainingLoop(plan, "outer"))
	assert.Equal(t, 2, GetLoopDepth(plan.LoopBoundaries, "work"))
	assert.Equal(t, 1, GetLoopDepth(plan.LoopBoundaries, "inner"))
	assert.Equal(t, 0, GetLoopDepth(plan.LoopBoundaries, "outer"))

	assertSentinelEdges(t, plan)
	assertNoDanglingLinks(t, plan)
	assertLevelsPartitionNodes(t, plan)
}

// innerFirst lists the nested loop before the loop that contains it.
func innerFirst(def *schema.WorkflowDefinition) *schema.WorkflowDefinition {
	def.NodeOrder = []string{"inner", "work", "outer"}
	return def
}

func sortedLevels(levels [][]string) [][]string {
	out := make([][]string, len(levels))
	for i, level := range levels {
		out[i] = append([]string(nil), level...)
		sort.Strings(out[i])
	}
	return out
}

func TestExpandLoops_NestedIndependentOfNodeOrder(t *testing.T) {
	want := mustBuild(t, nestedLoops())
	got := mustBuild(t, innerFirst(nestedLoops()))

	assert.Equal(t, []string{"inner__loop_end"}, got.Nodes["work"].Dependents)
	assert.Equal(t, []string{"inner"}, got.Nodes["outer__loop_end"].Dependencies)
	assert.Equal(t, []string{"outer__loop_start"}, got.Nodes["inner"].Dependencies)

	require.Len(t, got.Nodes, len(want.Nodes))
	for id, n := range want.Nodes {
		other := got.Nodes[id]
		require.NotNil(t, other, id)
		assert.ElementsMatch(t, n.Dependencies, other.Dependencies, "dependencies of %s", id)
		assert.ElementsMatch(t, n.Dependents, other.Dependents, "dependents of %s", id)
		assert.Equal(t, n.LoopContext, other.LoopContext, "loop context of %s", id)
	}
	assert.Equal(t, "inner", got.Nodes["work"].LoopContext.ParentLoopID)
	assert.Equal(t, "outer", got.Nodes["inner"].LoopContext.ParentLoopID)

	assert.Equal(t, want.LoopBoundaries["outer"].BodyNodeIDs, got.LoopBoundaries["outer"].BodyNodeIDs)
	assert.Equal(t, want.LoopBoundaries["inner"].BodyNodeIDs, got.LoopBoundaries["inner"].BodyNodeIDs)
	assert.Equal(t, sortedLevels(want.ExecutionLevels), sortedLevels(got.ExecutionLevels))
	assert.ElementsMatch(t, edgeIDs(want.Edges), edgeIDs(got.Edges))

	for _, level := range got.ExecutionLevels {
		if slices.Contains(level, "inner__loop_end") {
			assert.NotContains(t, level, "outer__loop_end")
		}
	}
	assert.ElementsMatch(t, warningCodes(want.Warnings), warningCodes(got.Warnings))
	assert.NotContains(t, warningCodes(got.Warnings), schema.WarnCycleDetected)

	assertSentinelEdges(t, got)
	assertNoDanglingLinks(t, got)
	assertLevelsPartitionNodes(t, got)
}

func TestExpandLoops_SiblingOverlap(t *testing.T) {
	def := workflow("start",
		[]testNode{
			node("start", "input"),
			node("first", "for"),
			node("second", "for"),
			node("shared", "transform"),
		},
		edge("e1", "start", "first"),
		edge("e2", "start", "second"),
		handled("e3", "first", "shared", "loop"),
		handled("e4", "second", "shared", "loop"),
	)

	plan := mustBuild(t, def)

	require.Len(t, plan.LoopBoundaries, 2)
	assert.Equal(t, []string{"shared"}, plan.LoopBoundaries["first"].BodyNodeIDs)
	assert.Equal(t, []string{"shared"}, plan.LoopBoundaries["second"].BodyNodeIDs)
	assert.Equal(t, "first", plan.Nodes["shared"].LoopContext.ParentLoopID)

	require.Equal(t, []string{schema.WarnLoopBodyOverlap}, warningCodes(plan.Warnings))
	assert.Equal(t, "second", plan.Warnings[0].NodeID)
	assertSentinelEdges(t, plan)
}

func TestExpandLoops_WithoutBody(t *testing.T) {
	def := workflow("start",
		[]testNode{node("start", "input"), node("repeat", "for"), node("done", "output")},
		edge("e1", "start", "repeat"),
		handled("e2", "repeat", "done", "exit"),
	)

	plan := mustBuild(t, def)

	assert.Empty(t, plan.LoopBoundaries)
	assert.Equal(t, []string{schema.WarnLoopWithoutBody}, warningCodes(plan.Warnings))
	assert.Equal(t, "repeat", plan.Warnings[0].NodeID)
	assert.Equal(t, []string{"e1", "e2"}, edgeIDs(plan.Edges))
	assert.Equal(t, [][]string{{"start"}, {"repeat"}, {"done"}}, plan.ExecutionLevels)
}

func TestExpandLoops_SentinelInheritsParallelContext(t *testing.T) {
	def := workflow("fan",
		[]testNode{
			node("fan", "parallel"),
			node("loop", "for"),
			node("body", "transform"),
			node("other", "transform"),
		},
		edge("e1", "fan", "loop"),
		edge("e2", "fan", "other"),
		handled("e3", "loop", "body", "loop"),
	)

	plan := mustBuild(t, def)

	start := plan.Nodes["loop__loop_start"]
	require.NotNil(t, start)
	require.NotNil(t, start.ParallelContext)
	assert.Equal(t, "fan", start.ParallelContext.ParentParallelID)
	assert.Equal(t, 0, start.ParallelContext.BranchIndex)
	assert.Equal(t, "loop (start)", start.Name)
	assert.Equal(t, "loop (end)", plan.Nodes["loop__loop_end"].Name)
}

func TestLoopConfigOf(t *testing.T) {
	lc := loopConfigOf(schema.LoopFor, nil)
	require.NotNil(t, lc.Count)
	assert.Equal(t, 1, *lc.Count)

	lc = loopConfigOf(schema.LoopFor, map[string]any{"count": float64(4)})
	assert.Equal(t, 4, *lc.Count)

	lc = loopConfigOf(schema.LoopDoWhile, map[string]any{"condition": "iteration.index < 2"})
	assert.Nil(t, lc.Count)
	assert.Equal(t, "iteration.index < 2", lc.Condition)
}

func TestLoopTypeOf(t *testing.T) {
	assert.Equal(t, schema.LoopFor, loopTypeOf("loop"))
	assert.Equal(t, schema.LoopFor, loopTypeOf("for"))
	assert.Equal(t, schema.LoopForEach, loopTypeOf("for-each"))
	assert.Equal(t, schema.LoopWhile, loopTypeOf("While"))
	assert.Equal(t, schema.LoopDoWhile, loopTypeOf("do_while"))
}
