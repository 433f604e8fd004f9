// Package builder compiles workflow definitions into execution plans.
//
// A build runs four construction stages over a shared ConstructionContext:
// reachability, node construction with parallel expansion, loop rewiring,
// and edge resolution. The result is then checked against loop-depth and
// parallel-branch limits, batched into execution levels and returned as an
// ExecutionPlan. Builds are pure and synchronous; independent builds may
// run concurrently.
package builder

import (
	"fmt"
	"log/slog"

	"github.com/rendis/flowplan/internal/validation"
	"github.com/rendis/flowplan/pkg/schema"
)

// Build compiles def into an ExecutionPlan. Structural problems that make a
// plan impossible are returned as *schema.BuildError; everything else is
// recorded as a warning on the plan.
func Build(def *schema.WorkflowDefinition, opts ...Option) (*schema.ExecutionPlan, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	if def == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow definition is nil")
	}
	if len(def.Nodes) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow has no nodes")
	}

	reach, err := ConstructPaths(def)
	if err != nil {
		return nil, err
	}

	cc := NewConstructionContext(def, schema.NewNodeCatalog(o.categories))
	for _, id := range reach.UnreachableNodeIDs {
		cc.warn(schema.WarnUnreachableNode, id,
			"node %q is not reachable from entry point %q", id, def.EntryPoint)
	}
	for _, d := range ValidateEdgeReferences(def) {
		cc.warn(schema.WarnDanglingEdge, "",
			"edge %q references a missing node (source %q, target %q)", d.EdgeID, d.MissingSource, d.MissingTarget)
	}

	effective := reach
	if o.includeUnreachable && len(reach.UnreachableNodeIDs) > 0 {
		effective = schema.NewReachabilityResult(def.EntryPoint, def.NodeIDs(), nil)
	}

	if o.validateConfigs {
		if err := validateNodeConfigs(def, effective, cc, o.nodeValidator); err != nil {
			return nil, err
		}
	}
	logger.Debug("paths constructed",
		slog.Int("reachable", len(reach.ReachableNodeIDs)),
		slog.Int("unreachable", len(reach.UnreachableNodeIDs)))

	ConstructNodes(def, effective, cc)
	logger.Debug("nodes constructed",
		slog.Int("nodes", len(cc.Nodes)),
		slog.Int("parallel_boundaries", len(cc.ParallelBoundaries)))

	ExpandLoops(cc)
	logger.Debug("loops expanded", slog.Int("loop_boundaries", len(cc.LoopBoundaries)))

	ConstructEdges(def, effective, cc)
	logger.Debug("edges constructed", slog.Int("edges", len(cc.Edges)))

	if err := checkLoopDepth(cc, o.maxLoopDepth); err != nil {
		return nil, err
	}
	if err := checkParallelBranches(cc, o.maxParallelBranches); err != nil {
		return nil, err
	}

	levels := computeExecutionLevels(cc)
	starts := findStartNodes(cc, def.EntryPoint)

	warnings := cc.Warnings
	if warnings == nil {
		warnings = []schema.Warning{}
	}
	plan := &schema.ExecutionPlan{
		Nodes:              cc.Nodes,
		NodeOrder:          cc.NodeOrder,
		Edges:              cc.Edges,
		StartNodes:         starts,
		ExecutionLevels:    levels,
		LoopBoundaries:     cc.LoopBoundaries,
		ParallelBoundaries: cc.ParallelBoundaries,
		Definition:         def,
		NodeCount:          len(cc.Nodes),
		Warnings:           warnings,
	}
	if plan.Edges == nil {
		plan.Edges = []*schema.ExecutableEdge{}
	}

	logger.Debug("execution plan built",
		slog.Int("levels", len(levels)),
		slog.Int("warnings", len(warnings)))
	return plan, nil
}

func validateNodeConfigs(def *schema.WorkflowDefinition, reach *schema.ReachabilityResult, cc *ConstructionContext, v NodeValidator) error {
	if v == nil {
		nv, err := validation.Default()
		if err != nil {
			return schema.NewError(schema.ErrCodeValidation, "node config validator unavailable").WithCause(err)
		}
		v = nv
	}
	known := func(id string) bool {
		_, ok := def.Nodes[id]
		return ok
	}
	for _, id := range reach.ReachableNodeIDs {
		cc.Warnings = append(cc.Warnings, v.ValidateNode(id, def.Nodes[id], known)...)
	}
	return nil
}

func checkLoopDepth(cc *ConstructionContext, limit int) error {
	for _, id := range cc.NodeOrder {
		if depth := GetLoopDepth(cc.LoopBoundaries, id); depth > limit {
			return schema.NewErrorf(schema.ErrCodeLoopDepthExceeded,
				"node %q is nested %d loops deep, exceeding the maximum loop depth of %d", id, depth, limit).
				WithNode(id).
				WithDetails(map[string]any{"depth": depth, "max_loop_depth": limit})
		}
	}
	return nil
}

func checkParallelBranches(cc *ConstructionContext, limit int) error {
	for _, id := range cc.ParallelOrder {
		if n := len(cc.ParallelBoundaries[id].Branches); n > limit {
			return schema.NewErrorf(schema.ErrCodeParallelLimit,
				"parallel node %q has %d branches, exceeding the maximum of %d", id, n, limit).
				WithNode(id).
				WithDetails(map[string]any{"branches": n, "max_parallel_branches": limit})
		}
	}
	return nil
}

// ValidateWorkflow builds def and reports the outcome as a ValidationResult
// instead of an error: build failures become errors, plan warnings become
// warnings, and nodes without any edge are flagged as unconnected.
func ValidateWorkflow(def *schema.WorkflowDefinition, opts ...Option) (result *schema.ValidationResult) {
	result = &schema.ValidationResult{}
	defer func() {
		if r := recover(); r != nil {
			result.AddError("/", schema.ErrCodeValidation, fmt.Sprintf("build panicked: %v", r))
		}
	}()

	plan, err := Build(def, opts...)
	if err != nil {
		result.AddBuildError(err)
		return result
	}

	result.AddWarnings(plan.Warnings)

	if len(def.Nodes) > 1 {
		connected := make(map[string]bool, len(def.Nodes))
		for _, e := range def.Edges {
			connected[e.Source] = true
			connected[e.Target] = true
		}
		for _, id := range def.NodeIDs() {
			if !connected[id] {
				result.AddWarning("nodes."+id, schema.WarnUnconnectedNode,
					fmt.Sprintf("node %q has no incoming or outgoing edges", id))
			}
		}
	}
	return result
}

// Summarize reports counts and notable node ids of a plan.
func Summarize(plan *schema.ExecutionPlan) schema.PlanSummary {
	s := schema.PlanSummary{
		NodeCount:        plan.NodeCount,
		EdgeCount:        len(plan.Edges),
		LevelCount:       len(plan.ExecutionLevels),
		LoopCount:        len(plan.LoopBoundaries),
		ParallelCount:    len(plan.ParallelBoundaries),
		StartNodes:       plan.StartNodes,
		TerminalNodes:    []string{},
		WarningCount:     len(plan.Warnings),
		HandleTypeCounts: make(map[schema.HandleType]int),
	}
	for _, level := range plan.ExecutionLevels {
		if len(level) > s.MaxParallelism {
			s.MaxParallelism = len(level)
		}
	}
	for _, e := range plan.Edges {
		s.HandleTypeCounts[e.HandleType]++
	}
	for _, id := range planNodeOrder(plan) {
		if n := plan.Nodes[id]; n != nil && n.IsTerminal {
			s.TerminalNodes = append(s.TerminalNodes, id)
		}
	}
	return s
}

// planNodeOrder returns the plan's node ids in build order, tolerating plans
// decoded without NodeOrder.
func planNodeOrder(plan *schema.ExecutionPlan) []string {
	if len(plan.NodeOrder) == len(plan.Nodes) {
		return plan.NodeOrder
	}
	var ids []string
	for _, level := range plan.ExecutionLevels {
		ids = append(ids, level...)
	}
	return ids
}
