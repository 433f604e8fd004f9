package store

import (
	"time"

	"github.com/rendis/flowplan/pkg/schema"
)

// PlanRecord is a compiled plan as persisted.
type PlanRecord struct {
	ID           string    `json:"id"`
	Workflow     string    `json:"workflow"`
	Hash         string    `json:"hash"`
	NodeCount    int       `json:"nodeCount"`
	LevelCount   int       `json:"levelCount"`
	WarningCount int       `json:"warningCount"`
	CreatedAt    time.Time `json:"createdAt"`

	// Plan is nil in listings.
	Plan *schema.ExecutionPlan `json:"plan,omitempty"`
}

// PlanFilter narrows ListPlans. Zero values match everything.
type PlanFilter struct {
	Workflow string
	Hash     string
	Since    *time.Time
	Limit    int
	Offset   int
}

// NewPlanRecord builds a record for plan, copying its counters.
func NewPlanRecord(plan *schema.ExecutionPlan, hash string) *PlanRecord {
	rec := &PlanRecord{
		ID:           plan.ID,
		Hash:         hash,
		NodeCount:    plan.NodeCount,
		LevelCount:   len(plan.ExecutionLevels),
		WarningCount: len(plan.Warnings),
		Plan:         plan,
	}
	if plan.Definition != nil {
		rec.Workflow = plan.Definition.Name
	}
	return rec
}
