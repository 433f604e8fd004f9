package store

import (
	"context"
	"time"
)

// PlanStore persists compiled execution plans.
// All implementations must be safe for concurrent use.
type PlanStore interface {
	SavePlan(ctx context.Context, rec *PlanRecord) error
	GetPlan(ctx context.Context, id string) (*PlanRecord, error)
	// GetPlanByHash returns the newest plan compiled from the definition
	// with the given hash.
	GetPlanByHash(ctx context.Context, hash string) (*PlanRecord, error)
	ListPlans(ctx context.Context, filter PlanFilter) ([]*PlanRecord, error)
	DeletePlan(ctx context.Context, id string) error
	// PrunePlans deletes plans created before the cutoff and reports how
	// many were removed.
	PrunePlans(ctx context.Context, before time.Time) (int64, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
