package mcp

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rendis/flowplan/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	s := NewServer(ServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.compiler)
	assert.NotNil(t, s.loader)
	assert.NotNil(t, s.notifier)
	assert.Same(t, s.mcpServer, s.MCPServer())
}

func TestToolRegistration(t *testing.T) {
	s := NewServer(ServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 5)

	for _, name := range []string{
		"flowplan.build",
		"flowplan.validate",
		"flowplan.diagram",
		"flowplan.plan",
		"flowplan.plans",
	} {
		assert.NotNil(t, s.mcpServer.GetTool(name), "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name        string
		toolName    string
		description string
	}{
		{"build", "flowplan.build", "Compile a workflow into an execution plan and store it"},
		{"validate", "flowplan.validate", "Validate a workflow without storing a plan"},
		{"plan", "flowplan.plan", "Fetch a stored execution plan"},
		{"plans", "flowplan.plans", "List stored execution plans, newest first"},
	}

	s := NewServer(ServerDeps{})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}

	diagramTool := s.mcpServer.GetTool("flowplan.diagram")
	require.NotNil(t, diagramTool)
	assert.Contains(t, diagramTool.Tool.InputSchema.Required, "diagram_format")
}

func TestWithRequestID(t *testing.T) {
	s := NewServer(ServerDeps{})

	var seen []string
	h := s.withRequestID(func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		seen = append(seen, logging.RequestID(ctx))
		return mcp.NewToolResultText("ok"), nil
	})

	for i := 0; i < 2; i++ {
		_, err := h(context.Background(), buildRequest("flowplan.plans", nil))
		require.NoError(t, err)
	}
	require.Len(t, seen, 2)
	assert.NotEmpty(t, seen[0])
	assert.NotEqual(t, seen[0], seen[1])
}
