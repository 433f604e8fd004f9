package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/flowplan/internal/builder"
	"github.com/rendis/flowplan/internal/diagram"
	"github.com/rendis/flowplan/internal/loader"
	"github.com/rendis/flowplan/internal/store"
	"github.com/rendis/flowplan/pkg/schema"
)

type buildResponse struct {
	PlanID   string                `json:"plan_id"`
	Workflow string                `json:"workflow,omitempty"`
	Hash     string                `json:"hash"`
	Cached   bool                  `json:"cached"`
	Summary  schema.PlanSummary    `json:"summary"`
	Warnings []schema.Warning      `json:"warnings,omitempty"`
	Plan     *schema.ExecutionPlan `json:"plan,omitempty"`
}

// handleBuild compiles a workflow and stores the resulting plan.
func (s *Server) handleBuild(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	def, err := s.definitionFrom(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	clientID := req.GetString("client_id", "")
	if clientID != "" {
		s.captureSession(ctx, clientID)
	}

	res, err := s.compiler.Compile(ctx, def)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("build failed: %v", err)), nil
	}

	resp := buildResponse{
		PlanID:   res.Plan.ID,
		Workflow: def.Name,
		Hash:     res.Hash,
		Cached:   res.Cached,
		Summary:  builder.Summarize(res.Plan),
		Warnings: res.Plan.Warnings,
	}
	if req.GetBool("include_plan", false) {
		resp.Plan = res.Plan
	}

	if clientID != "" && !res.Cached {
		payload := map[string]any{
			"event":    "plan.compiled",
			"plan_id":  res.Plan.ID,
			"workflow": def.Name,
			"hash":     res.Hash,
		}
		if nErr := s.notifier.Notify(ctx, clientID, payload); nErr != nil {
			s.logger.Warn("plan notification failed", "client_id", clientID, "error", nErr)
		}
	}

	return marshalResult(resp)
}

// handleValidate reports problems with a workflow without storing anything.
func (s *Server) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	def, err := s.definitionFrom(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := s.compiler.Validate(ctx, def)
	return marshalResult(map[string]any{
		"valid":    result.Valid(),
		"errors":   result.Errors,
		"warnings": result.Warnings,
	})
}

// handleDiagram renders a stored plan or a freshly compiled definition.
func (s *Server) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("diagram_format")
	if err != nil {
		return mcp.NewToolResultError("diagram_format is required"), nil
	}
	if format != "ascii" && format != "mermaid" && format != "svg" && format != "image" {
		return mcp.NewToolResultError("diagram_format must be ascii, mermaid, svg, or image"), nil
	}

	var plan *schema.ExecutionPlan
	if planID := req.GetString("plan_id", ""); planID != "" {
		rec, getErr := s.compiler.Plan(ctx, planID)
		if getErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("plan lookup failed: %v", getErr)), nil
		}
		plan = rec.Plan
	} else {
		def, defErr := s.definitionFrom(req)
		if defErr != nil {
			return mcp.NewToolResultError(defErr.Error()), nil
		}
		res, buildErr := s.compiler.Compile(ctx, def)
		if buildErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("build failed: %v", buildErr)), nil
		}
		plan = res.Plan
	}

	model, err := diagram.Build(plan)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", err)), nil
	}

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCIIAuto(ctx, model, s.mermaidBinDir)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	case "svg":
		svg, imgErr := diagram.RenderImage(ctx, model, diagram.FormatSVG)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("svg render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultText(string(svg)), nil
	default:
		png, imgErr := diagram.RenderImage(ctx, model, diagram.FormatPNG)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		encoded := base64.StdEncoding.EncodeToString(png)
		return mcp.NewToolResultImage(model.Title, encoded, "image/png"), nil
	}
}

// handlePlan returns a stored plan.
func (s *Server) handlePlan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	planID, err := req.RequireString("plan_id")
	if err != nil {
		return mcp.NewToolResultError("plan_id is required"), nil
	}

	rec, err := s.compiler.Plan(ctx, planID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("plan lookup failed: %v", err)), nil
	}
	return marshalResult(rec)
}

// handlePlans lists stored plans.
func (s *Server) handlePlans(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := mcp.ParseStringMap(req, "filter", nil)

	pf := store.PlanFilter{
		Limit:  extractInt(filter, "limit", 50),
		Offset: extractInt(filter, "offset", 0),
	}
	if v, ok := filter["workflow"].(string); ok {
		pf.Workflow = v
	}
	if v, ok := filter["hash"].(string); ok {
		pf.Hash = v
	}
	if v, ok := filter["since"].(string); ok && v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("since must be RFC3339: %v", err)), nil
		}
		pf.Since = &since
	}

	recs, err := s.compiler.Plans(ctx, pf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query plans failed: %v", err)), nil
	}
	if recs == nil {
		recs = []*store.PlanRecord{}
	}
	return marshalResult(map[string]any{"plans": recs})
}

// --- Helpers ---

// definitionFrom decodes the workflow carried by req. A source document wins
// over a definition object because it keeps the authored node order.
func (s *Server) definitionFrom(req mcp.CallToolRequest) (*schema.WorkflowDefinition, error) {
	if s.loader == nil {
		return nil, errors.New("no workflow loader configured")
	}

	source := req.GetString("source", "")
	if source != "" {
		format := loader.FormatJSON
		if f := req.GetString("format", ""); f != "" {
			parsed, err := loader.ParseFormat(f)
			if err != nil {
				return nil, err
			}
			format = parsed
		}
		return s.loader.Load([]byte(source), format, "source")
	}

	raw := mcp.ParseStringMap(req, "definition", nil)
	if raw == nil {
		return nil, errors.New("one of definition or source is required")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeInvalidDocument, "definition is not serializable").WithCause(err)
	}
	return s.loader.Load(data, loader.FormatJSON, "definition")
}

func extractInt(filter map[string]any, key string, defaultVal int) int {
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return defaultVal
}

// captureSession maps the client ID to its current MCP session for notifications.
func (s *Server) captureSession(ctx context.Context, clientID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(clientID, session.SessionID())
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
