package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/flowplan/internal/compiler"
	"github.com/rendis/flowplan/internal/loader"
	"github.com/rendis/flowplan/internal/logging"
)

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Compiler *compiler.Service
	Loader   *loader.Loader
	Logger   *slog.Logger

	// MermaidBinDir is searched for a mermaid-ascii binary when rendering
	// ASCII diagrams. Empty means always use the built-in renderer.
	MermaidBinDir string
}

// Server wraps an MCP server with flowplan tool handlers.
type Server struct {
	compiler      *compiler.Service
	loader        *loader.Loader
	logger        *slog.Logger
	mermaidBinDir string
	sessions      *SessionRegistry
	notifier      ClientNotifier
	mcpServer     *server.MCPServer
}

// NewServer creates a Server with all tools registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	comp := deps.Compiler
	if comp == nil {
		comp = compiler.New(compiler.WithLogger(logger))
	}

	ld := deps.Loader
	if ld == nil {
		var err error
		if ld, err = loader.New(); err != nil {
			logger.Error("workflow loader unavailable", "error", err)
		}
	}

	s := &Server{
		compiler:      comp,
		loader:        ld,
		logger:        logger,
		mermaidBinDir: deps.MermaidBinDir,
		sessions:      NewSessionRegistry(),
	}

	hooks := &server.Hooks{}
	hooks.AddOnUnregisterSession(func(_ context.Context, session server.ClientSession) {
		s.sessions.Remove(session.SessionID())
	})

	mcpSrv := server.NewMCPServer(
		"flowplan",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithHooks(hooks),
		server.WithInstructions("Flowplan compiles visual workflow graphs into execution plans. Use flowplan.validate to check a workflow, flowplan.build to compile and store a plan, flowplan.diagram to render one, and flowplan.plan / flowplan.plans to read stored plans."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.sessions)
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// ServeSSE serves the SSE transport on addr until ctx is cancelled.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	errCh := make(chan error, 1)
	go func() { errCh <- sse.Start(addr) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return sse.Shutdown(context.WithoutCancel(ctx))
	}
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: buildTool(), Handler: s.withRequestID(s.handleBuild)},
		{Tool: validateTool(), Handler: s.withRequestID(s.handleValidate)},
		{Tool: diagramTool(), Handler: s.withRequestID(s.handleDiagram)},
		{Tool: planTool(), Handler: s.withRequestID(s.handlePlan)},
		{Tool: plansTool(), Handler: s.withRequestID(s.handlePlans)},
	}
}

// withRequestID tags every tool call with a fresh request id so the
// compiler's log lines for one call can be correlated.
func (s *Server) withRequestID(h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx = logging.WithRequestID(ctx, uuid.New().String())
		logging.LogWith(ctx, s.logger).Debug("tool call", "tool", req.Params.Name)
		return h(ctx, req)
	}
}

// --- Tool definitions ---

func withDefinitionArgs() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithObject("definition", mcp.Description("Workflow definition object (nodes, edges, entryPoint)")),
		mcp.WithString("source", mcp.Description("Workflow document text; preserves authored node order")),
		mcp.WithString("format",
			mcp.Enum("json", "yaml", "hcl"),
			mcp.Description("Format of source (default: json)"),
		),
	}
}

func buildTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Compile a workflow into an execution plan and store it"),
	}, withDefinitionArgs()...)
	opts = append(opts,
		mcp.WithBoolean("include_plan", mcp.Description("Return the full plan, not only its summary")),
		mcp.WithString("client_id", mcp.Description("Caller ID; receives a notification when the plan is stored")),
	)
	return mcp.NewTool("flowplan.build", opts...)
}

func validateTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Validate a workflow without storing a plan"),
	}, withDefinitionArgs()...)
	return mcp.NewTool("flowplan.validate", opts...)
}

func diagramTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Render a workflow or stored plan as ASCII art, Mermaid syntax, SVG or a PNG image"),
		mcp.WithString("plan_id", mcp.Description("Stored plan to render instead of a definition")),
		mcp.WithString("diagram_format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "svg", "image"),
			mcp.Description("Output format: ascii, mermaid, svg, or image (PNG)"),
		),
	}, withDefinitionArgs()...)
	return mcp.NewTool("flowplan.diagram", opts...)
}

func planTool() mcp.Tool {
	return mcp.NewTool("flowplan.plan",
		mcp.WithDescription("Fetch a stored execution plan"),
		mcp.WithString("plan_id", mcp.Required(), mcp.Description("ID of the plan")),
	)
}

func plansTool() mcp.Tool {
	return mcp.NewTool("flowplan.plans",
		mcp.WithDescription("List stored execution plans, newest first"),
		mcp.WithObject("filter", mcp.Description("Filter criteria (workflow, hash, since, limit, offset)")),
	)
}
