package diagram

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rendis/flowplan/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mermaid ---

func TestRenderMermaidLinear(t *testing.T) {
	model, err := Build(linearPlan(t))
	require.NoError(t, err)

	output := RenderMermaid(model)

	assert.True(t, strings.HasPrefix(output, "graph TD\n"))
	assert.Contains(t, output, "%% ETL Pipeline")
	assert.Contains(t, output, `fetch["fetch"]`)
	assert.Contains(t, output, `__start__(("Start"))`)
	assert.Contains(t, output, `__end__(("End"))`)
	assert.Contains(t, output, "fetch --> transform")
	assert.Contains(t, output, "classDef warning")
	assert.Contains(t, output, "class __start__ terminal")
	assert.NotContains(t, output, "subgraph")
}

func TestRenderMermaidCondition(t *testing.T) {
	model, err := Build(conditionPlan(t))
	require.NoError(t, err)

	output := RenderMermaid(model)
	assert.Contains(t, output, `decide{"decide"}`)
	assert.Contains(t, output, "decide -->|true| deploy")
	assert.Contains(t, output, "decide -->|false| notify")
	assert.Contains(t, output, "check -.->|error| notify")
}

func TestRenderMermaidLoop(t *testing.T) {
	model, err := Build(loopPlan(t))
	require.NoError(t, err)

	output := RenderMermaid(model)
	assert.Contains(t, output, `subgraph loop_each["each (forEach)"]`)
	assert.Contains(t, output, `each[["each"]]`)
	assert.Contains(t, output, "each__loop_start>")
	assert.Contains(t, output, "==>")
	assert.Contains(t, output, "class each__loop_start sentinel")

	// Clustered nodes are declared once, inside their subgraph.
	assert.Equal(t, 1, strings.Count(output, `fetch["fetch"]`))
}

func TestRenderMermaidNestedClusters(t *testing.T) {
	model, err := Build(nestedLoopPlan(t))
	require.NoError(t, err)

	output := RenderMermaid(model)
	outerAt := strings.Index(output, "subgraph loop_outer")
	innerAt := strings.Index(output, "        subgraph loop_inner")
	require.GreaterOrEqual(t, outerAt, 0)
	require.Greater(t, innerAt, outerAt)
}

func TestRenderMermaidWarningClass(t *testing.T) {
	model := &DiagramModel{
		Nodes: []*Node{{ID: "bad-node", Label: "bad", Kind: NodeKindAction, Warnings: []string{schema.WarnInvalidNodeConfig}}},
	}
	output := RenderMermaid(model)
	assert.Contains(t, output, "class bad_node warning")
}

func TestMermaidSafeID(t *testing.T) {
	assert.Equal(t, "a_b_c_d", mermaidSafeID("a.b-c d"))
}

// --- ASCII ---

func TestRenderASCIILinear(t *testing.T) {
	model, err := Build(linearPlan(t))
	require.NoError(t, err)

	output := RenderASCII(model)
	assert.Contains(t, output, "=== ETL Pipeline ===")
	for _, ch := range []string{"┌", "┐", "└", "┘", "│", "─", "▼"} {
		assert.Contains(t, output, ch)
	}
	for _, label := range []string{"Start", "End", "fetch", "transform", "store"} {
		assert.Contains(t, output, label)
	}
	assert.NotContains(t, output, "--- regions ---")
	assert.NotContains(t, output, "--- branches ---")
}

func TestRenderASCIIRegionsAndBranches(t *testing.T) {
	model, err := Build(nestedLoopPlan(t))
	require.NoError(t, err)

	output := RenderASCII(model)
	assert.Contains(t, output, "--- regions ---")
	assert.Contains(t, output, "  [loop: outer (forEach)]")
	assert.Contains(t, output, "    [loop: inner (while)]")

	model, err = Build(conditionPlan(t))
	require.NoError(t, err)
	output = RenderASCII(model)
	assert.Contains(t, output, "--- branches ---")
	assert.Contains(t, output, "decide ─[true]→ deploy")
}

func TestRenderASCIIWarnings(t *testing.T) {
	model := &DiagramModel{
		Title: "Test",
		Nodes: []*Node{
			{ID: "a", Label: "step-a", Kind: NodeKindAction, Warnings: []string{"SELF_LOOP"}},
			{ID: "b", Label: "step-b", Kind: NodeKindAction, Warnings: []string{"SELF_LOOP", "CYCLE_DETECTED"}},
			{ID: "c", Label: "step-c", Kind: NodeKindAction},
		},
		Levels: [][]string{{"a", "b"}, {"c", "missing"}},
	}

	output := RenderASCII(model)
	assert.Contains(t, output, "[! SELF_LOOP]")
	assert.Contains(t, output, "[! SELF_LOOP +1]")
	assert.NotContains(t, output, "missing")
}

func TestMakeBoxWidth(t *testing.T) {
	box := makeBox(&Node{Label: "héllo\n(type)"})
	require.Len(t, box.lines, 3)
	assert.Equal(t, 9, box.width)
	assert.Equal(t, "│ héllo │", box.lines[1])
}

// --- mermaid-ascii CLI ---

func TestRenderMermaidForCLI(t *testing.T) {
	model, err := Build(conditionPlan(t))
	require.NoError(t, err)

	result := RenderMermaidForCLI(model)
	assert.Contains(t, result, "graph TD")
	assert.Contains(t, result, "Start --> check")
	assert.Contains(t, result, "decide -->|true| deploy")
	assert.NotContains(t, result, "[\"")
	assert.NotContains(t, result, "classDef")
	assert.NotContains(t, result, "subgraph")
}

func TestRenderMermaidForCLI_Warnings(t *testing.T) {
	model := &DiagramModel{
		Nodes: []*Node{
			{ID: "a", Label: "fetch data\n(http)", Kind: NodeKindAction, Warnings: []string{"X"}},
			{ID: "b", Label: "fetch data\n(http)", Kind: NodeKindAction},
		},
		Edges: []Edge{{From: "a", To: "b"}},
	}
	result := RenderMermaidForCLI(model)
	assert.Contains(t, result, "fetch-data-WARN --> fetch-data")
}

func TestRenderMermaidForCLI_DuplicateLabels(t *testing.T) {
	model := &DiagramModel{
		Nodes: []*Node{
			{ID: "one", Label: "same", Kind: NodeKindAction},
			{ID: "two", Label: "same", Kind: NodeKindAction},
		},
		Edges: []Edge{{From: "one", To: "two"}},
	}
	assert.Contains(t, RenderMermaidForCLI(model), "same --> same-two")
}

func TestRenderASCIIAuto_FallsBack(t *testing.T) {
	model, err := Build(linearPlan(t))
	require.NoError(t, err)

	want := RenderASCII(model)
	assert.Equal(t, want, RenderASCIIAuto(context.Background(), model, ""))
	assert.Equal(t, want, RenderASCIIAuto(context.Background(), model, t.TempDir()))
}

func TestRenderASCIIViaCLI_MissingBinary(t *testing.T) {
	model, err := Build(linearPlan(t))
	require.NoError(t, err)

	_, err = RenderASCIIViaCLI(context.Background(), model, filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestRenderASCIIViaCLI_RealBinary(t *testing.T) {
	binPath := os.Getenv("MERMAID_ASCII_BIN")
	if binPath == "" {
		t.Skip("MERMAID_ASCII_BIN not set")
	}
	model, err := Build(linearPlan(t))
	require.NoError(t, err)

	out, err := RenderASCIIViaCLI(context.Background(), model, binPath)
	require.NoError(t, err)
	assert.Contains(t, out, "fetch")
}

// --- graphviz ---

func TestParseImageFormat(t *testing.T) {
	for in, want := range map[string]ImageFormat{"png": FormatPNG, ".SVG": FormatSVG, "dot": FormatDOT} {
		got, err := ParseImageFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseImageFormat("gif")
	assert.Error(t, err)
}

func TestRenderImagePNG(t *testing.T) {
	for name, plan := range map[string]*schema.ExecutionPlan{
		"linear":    linearPlan(t),
		"condition": conditionPlan(t),
		"parallel":  parallelPlan(t),
		"nested":    nestedLoopPlan(t),
	} {
		t.Run(name, func(t *testing.T) {
			model, err := Build(plan)
			require.NoError(t, err)

			png, err := RenderImage(context.Background(), model, FormatPNG)
			require.NoError(t, err)
			require.Greater(t, len(png), 8)
			assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
		})
	}
}

func TestRenderImageSVGAndDOT(t *testing.T) {
	model, err := Build(loopPlan(t))
	require.NoError(t, err)

	svg, err := RenderImage(context.Background(), model, FormatSVG)
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")

	dot, err := RenderImage(context.Background(), model, FormatDOT)
	require.NoError(t, err)
	assert.Contains(t, string(dot), "cluster_loop_each")
}
