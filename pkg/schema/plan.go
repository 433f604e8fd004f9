package schema

import "fmt"

// HandleType classifies the activation condition of an edge.
type HandleType string

const (
	HandleSource    HandleType = "source"
	HandleError     HandleType = "error"
	HandleCondition HandleType = "condition"
	HandleRouter    HandleType = "router"
	HandleLoop      HandleType = "loop"
)

// SentinelKind marks a synthetic loop boundary node.
type SentinelKind string

const (
	SentinelStart SentinelKind = "START"
	SentinelEnd   SentinelKind = "END"
)

// NodeTypeLoopSentinel is the type given to synthetic loop boundary nodes.
const NodeTypeLoopSentinel = "loop-sentinel"

// ExecutableNode is a reachable node resolved for execution.
type ExecutableNode struct {
	ID              string           `json:"id"`
	Type            string           `json:"type"`
	Name            string           `json:"name"`
	Config          map[string]any   `json:"config,omitempty"`
	Position        Position         `json:"position"`
	Dependencies    []string         `json:"dependencies"`
	Dependents      []string         `json:"dependents"`
	HandleType      HandleType       `json:"handleType"`
	LoopContext     *LoopContext     `json:"loopContext,omitempty"`
	ParallelContext *ParallelContext `json:"parallelContext,omitempty"`
	HasErrorPort    bool             `json:"hasErrorPort"`
	IsTerminal      bool             `json:"isTerminal"`
}

// LoopContext ties a node to the loop that owns it. Sentinel is set only on
// the synthetic START and END nodes.
type LoopContext struct {
	ParentLoopID string       `json:"parentLoopId"`
	Sentinel     SentinelKind `json:"sentinel,omitempty"`
}

// ParallelContext ties a node to a parallel branch.
type ParallelContext struct {
	ParentParallelID string `json:"parentParallelId"`
	BranchIndex      int    `json:"branchIndex"`
}

// ExecutableEdge is a classified edge of the plan.
type ExecutableEdge struct {
	ID             string     `json:"id"`
	Source         string     `json:"source"`
	Target         string     `json:"target"`
	HandleType     HandleType `json:"handleType"`
	SourceHandle   string     `json:"sourceHandle,omitempty"`
	ConditionValue string     `json:"conditionValue,omitempty"`
	RouterPath     string     `json:"routerPath,omitempty"`
}

// LoopType enumerates iteration strategies.
type LoopType string

const (
	LoopFor     LoopType = "for"
	LoopForEach LoopType = "forEach"
	LoopWhile   LoopType = "while"
	LoopDoWhile LoopType = "doWhile"
)

// LoopConfig holds the iteration parameters relevant to the loop type.
type LoopConfig struct {
	Count         *int   `json:"count,omitempty"`         // for
	SourceArray   string `json:"sourceArray,omitempty"`   // forEach
	ItemVariable  string `json:"itemVariable,omitempty"`  // forEach
	Condition     string `json:"condition,omitempty"`     // while | doWhile
	MaxIterations int    `json:"maxIterations,omitempty"` // safety cap, 0 = runtime default
}

// LoopBoundary describes a loop region and its synthetic sentinels.
type LoopBoundary struct {
	LoopNodeID      string     `json:"loopNodeId"`
	StartSentinelID string     `json:"startSentinelId"`
	EndSentinelID   string     `json:"endSentinelId"`
	BodyNodeIDs     []string   `json:"bodyNodeIds"`
	LoopType        LoopType   `json:"loopType"`
	LoopConfig      LoopConfig `json:"loopConfig"`
}

// Contains reports whether nodeID is a member of the loop body.
func (b *LoopBoundary) Contains(nodeID string) bool {
	for _, id := range b.BodyNodeIDs {
		if id == nodeID {
			return true
		}
	}
	return false
}

// Aggregation controls how a parallel node joins its branches.
type Aggregation string

const (
	AggregateAll   Aggregation = "all"
	AggregateFirst Aggregation = "first"
	AggregateRace  Aggregation = "race"
)

// ParallelBranch is one fan-out branch of a parallel node.
type ParallelBranch struct {
	Index       int      `json:"index"`
	NodeIDs     []string `json:"nodeIds"`
	StartNodeID string   `json:"startNodeId"`
	EndNodeID   string   `json:"endNodeId"`
}

// ParallelBoundary describes a parallel region.
type ParallelBoundary struct {
	ParallelNodeID string           `json:"parallelNodeId"`
	Branches       []ParallelBranch `json:"branches"`
	Aggregation    Aggregation      `json:"aggregation"`
}

// ReachabilityResult partitions the definition's nodes by reachability from
// the entry point. Both slices follow definition order.
type ReachabilityResult struct {
	ReachableNodeIDs   []string `json:"reachableNodeIds"`
	UnreachableNodeIDs []string `json:"unreachableNodeIds"`
	EntryPointID       string   `json:"entryPointId"`

	reachable map[string]bool
}

// NewReachabilityResult builds a result and its lookup set.
func NewReachabilityResult(entry string, reachable, unreachable []string) *ReachabilityResult {
	r := &ReachabilityResult{
		ReachableNodeIDs:   reachable,
		UnreachableNodeIDs: unreachable,
		EntryPointID:       entry,
		reachable:          make(map[string]bool, len(reachable)),
	}
	for _, id := range reachable {
		r.reachable[id] = true
	}
	return r
}

// IsReachable reports whether id is in the reachable set.
func (r *ReachabilityResult) IsReachable(id string) bool {
	if r.reachable == nil {
		for _, rid := range r.ReachableNodeIDs {
			if rid == id {
				return true
			}
		}
		return false
	}
	return r.reachable[id]
}

// Warning codes for non-fatal findings.
const (
	WarnUnreachableNode     = "UNREACHABLE_NODE"
	WarnUnconnectedNode     = "UNCONNECTED_NODE"
	WarnDanglingEdge        = "DANGLING_EDGE"
	WarnLoopWithoutBody     = "LOOP_WITHOUT_BODY"
	WarnLoopBodyOverlap     = "LOOP_BODY_OVERLAP"
	WarnParallelBranches    = "PARALLEL_BRANCHES"
	WarnInvalidAggregation  = "INVALID_AGGREGATION"
	WarnDuplicateEdgeID     = "DUPLICATE_EDGE_ID"
	WarnSelfLoop            = "SELF_LOOP"
	WarnConditionalBranches = "CONDITIONAL_BRANCHES"
	WarnRouterWithoutRoutes = "ROUTER_WITHOUT_ROUTES"
	WarnCycleDetected       = "CYCLE_DETECTED"
	WarnInvalidNodeConfig   = "INVALID_NODE_CONFIG"
)

// Warning is a non-fatal finding attached to a plan.
type Warning struct {
	Code    string `json:"code"`
	NodeID  string `json:"nodeId,omitempty"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	if w.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", w.Code, w.NodeID, w.Message)
	}
	return fmt.Sprintf("[%s] %s", w.Code, w.Message)
}

// Path returns the validation path the warning points at.
func (w Warning) Path() string {
	if w.NodeID == "" {
		return "/"
	}
	return "nodes." + w.NodeID
}

// ExecutionPlan is the compiled, DAG-shaped artifact consumed by the runtime.
type ExecutionPlan struct {
	ID                 string                       `json:"id,omitempty"`
	Nodes              map[string]*ExecutableNode   `json:"nodes"`
	NodeOrder          []string                     `json:"nodeOrder"`
	Edges              []*ExecutableEdge            `json:"edges"`
	StartNodes         []string                     `json:"startNodes"`
	ExecutionLevels    [][]string                   `json:"executionLevels"`
	LoopBoundaries     map[string]*LoopBoundary     `json:"loopBoundaries"`
	ParallelBoundaries map[string]*ParallelBoundary `json:"parallelBoundaries"`
	Definition         *WorkflowDefinition          `json:"definition"`
	NodeCount          int                          `json:"nodeCount"`
	Warnings           []Warning                    `json:"warnings"`
}

// PlanSummary is a diagnostic digest of an ExecutionPlan.
type PlanSummary struct {
	NodeCount        int                `json:"nodeCount"`
	EdgeCount        int                `json:"edgeCount"`
	LevelCount       int                `json:"levelCount"`
	MaxParallelism   int                `json:"maxParallelism"`
	LoopCount        int                `json:"loopCount"`
	ParallelCount    int                `json:"parallelCount"`
	StartNodes       []string           `json:"startNodes"`
	TerminalNodes    []string           `json:"terminalNodes"`
	WarningCount     int                `json:"warningCount"`
	HandleTypeCounts map[HandleType]int `json:"handleTypeCounts"`
}
