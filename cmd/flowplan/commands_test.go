package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowplan/pkg/schema"
)

var orderIntake = filepath.Join("..", "..", "examples", "workflows", "order-intake.json")

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeDoc(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestVersionCommand(t *testing.T) {
	setHome(t)
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestBuildCommand(t *testing.T) {
	setHome(t)

	out, errOut, err := run(t, "build", orderIntake)
	require.NoError(t, err)
	assert.Contains(t, errOut, "compiled plan")

	var plan schema.ExecutionPlan
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	assert.Equal(t, []string{"receive"}, plan.StartNodes)
	assert.NotEmpty(t, plan.ID)
	assert.Contains(t, plan.Nodes, "notify")
}

func TestBuildCommandWritesFile(t *testing.T) {
	setHome(t)
	target := filepath.Join(t.TempDir(), "plan.json")

	out, errOut, err := run(t, "build", orderIntake, "--out", target)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "wrote "+target)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}

func TestBuildCommandErrors(t *testing.T) {
	setHome(t)

	_, _, err := run(t, "build")
	assert.Error(t, err)

	_, _, err = run(t, "build", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	ghost := writeDoc(t, "ghost.json", `{"entryPoint":"ghost","nodes":{"a":{"type":"input"}},"edges":[]}`)
	_, _, err = run(t, "build", ghost)
	require.Error(t, err)
	assert.Contains(t, err.Error(), schema.ErrCodeValidation)
}

func TestPlansLifecycle(t *testing.T) {
	dir := setHome(t)

	out, _, err := run(t, "build", orderIntake, "--save")
	require.NoError(t, err)
	var plan schema.ExecutionPlan
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	assert.FileExists(t, filepath.Join(dir, "plans.db"))

	out, _, err = run(t, "plans", "list")
	require.NoError(t, err)
	assert.Contains(t, out, plan.ID)
	assert.Contains(t, out, "order-intake")

	out, _, err = run(t, "plans", "list", "--workflow", "other")
	require.NoError(t, err)
	assert.Empty(t, out)

	out, _, err = run(t, "plans", "show", plan.ID)
	require.NoError(t, err)
	assert.Contains(t, out, `"workflow": "order-intake"`)

	out, _, err = run(t, "diagram", "--plan", plan.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")

	out, _, err = run(t, "plans", "prune", "--older-than", "1h")
	require.NoError(t, err)
	assert.Equal(t, "pruned 0 plan(s)\n", out)

	_, _, err = run(t, "plans", "delete", plan.ID)
	require.NoError(t, err)

	_, _, err = run(t, "plans", "show", plan.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), schema.ErrCodeNotFound)
}

func TestValidateCommand(t *testing.T) {
	setHome(t)

	out, _, err := run(t, "validate", orderIntake)
	require.NoError(t, err)
	assert.Contains(t, out, "valid (")

	ghost := writeDoc(t, "ghost.json", `{"entryPoint":"ghost","nodes":{"a":{"type":"input"}},"edges":[]}`)
	out, _, err = run(t, "validate", ghost)
	require.Error(t, err)
	assert.Contains(t, out, "error ")
	var buildErr *schema.BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, schema.ErrCodeValidation, buildErr.Code)
	assert.Contains(t, err.Error(), `entry point "ghost"`)

	out, _, err = run(t, "validate", "--json", ghost)
	require.Error(t, err)
	var result schema.ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.False(t, result.Valid())
}

func TestValidateCommand_LoopConditionSample(t *testing.T) {
	setHome(t)

	sample := filepath.Join("..", "..", "examples", "workflows", "expense-approval.hcl")
	out, _, err := run(t, "validate", "--json", sample)
	require.NoError(t, err)

	var result schema.ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	for _, w := range result.Warnings {
		if w.Path == "nodes.poll" {
			assert.NotEqual(t, schema.WarnInvalidNodeConfig, w.Code, w.Message)
		}
	}
}

func TestSummaryCommand(t *testing.T) {
	setHome(t)

	out, _, err := run(t, "summary", orderIntake)
	require.NoError(t, err)

	var summary schema.PlanSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, []string{"receive"}, summary.StartNodes)
	assert.Positive(t, summary.NodeCount)
}

func TestInspectCommand(t *testing.T) {
	setHome(t)

	doc := writeDoc(t, "cyclic.json", `{
  "entryPoint": "a",
  "nodes": {"a": {"type": "input"}, "b": {"type": "code"}, "c": {"type": "code"}},
  "edges": [
    {"id": "e1", "source": "a", "target": "b"},
    {"id": "e2", "source": "b", "target": "a"},
    {"id": "e3", "source": "b", "target": "gone"}
  ]
}`)

	out, _, err := run(t, "inspect", doc)
	require.NoError(t, err)

	var report inspection
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, map[string]int{"a": 0, "b": 1}, report.Depths)
	assert.NotEmpty(t, report.Cycles)
	require.Len(t, report.DanglingEdges, 1)
	assert.Equal(t, "gone", report.DanglingEdges[0].MissingTarget)
	require.NotNil(t, report.Reachability)
	assert.Equal(t, []string{"c"}, report.Reachability.UnreachableNodeIDs)
}

func TestDiagramCommand(t *testing.T) {
	setHome(t)

	out, _, err := run(t, "diagram", orderIntake)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "graph TD"))

	out, _, err = run(t, "diagram", orderIntake, "--format", "ascii")
	require.NoError(t, err)
	assert.Contains(t, out, "=== order-intake ===")

	_, _, err = run(t, "diagram", orderIntake, "--format", "png")
	assert.Error(t, err)

	target := filepath.Join(t.TempDir(), "plan.png")
	_, _, err = run(t, "diagram", orderIntake, "--format", "png", "--out", target)
	require.NoError(t, err)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, data[:4])

	_, _, err = run(t, "diagram", orderIntake, "--format", "gif")
	assert.Error(t, err)

	_, _, err = run(t, "diagram")
	assert.Error(t, err)
}

func TestServeRejectsUnknownTransport(t *testing.T) {
	setHome(t)
	_, _, err := run(t, "serve", "--transport", "pigeon")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transport")
}

func TestLogLevelFlag(t *testing.T) {
	setHome(t)
	_, _, err := run(t, "--log-level", "loud", "version")
	assert.Error(t, err)
}
