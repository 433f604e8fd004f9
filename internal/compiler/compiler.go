// Package compiler wraps the plan builder with the concerns of a
// long-running service: definition hashing, plan caching and persistence,
// tracing, metrics and correlation logging.
package compiler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rendis/flowplan/internal/builder"
	"github.com/rendis/flowplan/internal/logging"
	"github.com/rendis/flowplan/internal/observability"
	"github.com/rendis/flowplan/internal/store"
	"github.com/rendis/flowplan/pkg/schema"
)

// Result is the outcome of a Compile call.
type Result struct {
	Plan   *schema.ExecutionPlan `json:"plan"`
	Hash   string                `json:"hash"`
	Cached bool                  `json:"cached"`
}

// Service compiles workflow definitions into execution plans.
// It is safe for concurrent use.
type Service struct {
	store     store.PlanStore
	metrics   observability.MetricsRecorder
	spans     observability.SpanManager
	logger    *slog.Logger
	buildOpts []builder.Option
	cache     bool

	mu     sync.RWMutex
	byHash map[string]*schema.ExecutionPlan
}

// Option configures a Service.
type Option func(*Service)

// WithStore persists compiled plans and serves cache lookups from st.
func WithStore(st store.PlanStore) Option {
	return func(s *Service) { s.store = st }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSpanManager sets the span manager.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(s *Service) { s.spans = sm }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithBuildOptions passes options through to every build.
func WithBuildOptions(opts ...builder.Option) Option {
	return func(s *Service) { s.buildOpts = append(s.buildOpts, opts...) }
}

// WithCache reuses plans compiled from an identical definition.
func WithCache(enabled bool) Option {
	return func(s *Service) { s.cache = enabled }
}

// New creates a Service. Without options it builds plans with no
// persistence, no caching and no-op telemetry.
func New(opts ...Option) *Service {
	s := &Service{
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
		logger:  slog.Default(),
		byHash:  make(map[string]*schema.ExecutionPlan),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Compile builds an execution plan for def. When caching is enabled and a
// plan for the same definition exists, that plan is returned instead.
func (s *Service) Compile(ctx context.Context, def *schema.WorkflowDefinition) (res *Result, err error) {
	if def == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow definition is required")
	}
	hash, err := Hash(def)
	if err != nil {
		return nil, err
	}

	ctx = logging.WithWorkflow(ctx, def.Name)
	ctx, span := s.spans.StartCompileSpan(ctx, def.Name, hash)
	defer func() { s.spans.EndSpanWithError(span, err) }()
	log := logging.LogWith(ctx, s.logger)

	if s.cache {
		if plan := s.lookup(ctx, hash); plan != nil {
			s.metrics.RecordCacheLookup(ctx, true)
			s.spans.AddSpanEvent(ctx, "cache.hit", attribute.String("plan.id", plan.ID))
			log.Debug("plan served from cache", "plan_id", plan.ID, "hash", hash)
			return &Result{Plan: plan, Hash: hash, Cached: true}, nil
		}
		s.metrics.RecordCacheLookup(ctx, false)
	}

	start := time.Now()
	plan, err := builder.Build(def, append([]builder.Option{builder.WithLogger(log)}, s.buildOpts...)...)
	if err != nil {
		s.metrics.RecordBuild(ctx, def.Name, time.Since(start), 0, 0, err)
		log.Warn("plan build failed", "error", err)
		return nil, err
	}
	s.metrics.RecordBuild(ctx, def.Name, time.Since(start), plan.NodeCount, len(plan.Warnings), nil)

	plan.ID = uuid.New().String()
	ctx = logging.WithPlanID(ctx, plan.ID)
	s.spans.AddSpanEvent(ctx, "plan.built",
		attribute.Int("nodes", plan.NodeCount),
		attribute.Int("levels", len(plan.ExecutionLevels)),
		attribute.Int("warnings", len(plan.Warnings)),
	)

	if s.store != nil {
		if err := s.save(ctx, plan, hash); err != nil {
			return nil, err
		}
	}
	if s.cache {
		s.mu.Lock()
		s.byHash[hash] = plan
		s.mu.Unlock()
	}

	logging.LogWith(ctx, s.logger).Info("plan compiled",
		"nodes", plan.NodeCount,
		"levels", len(plan.ExecutionLevels),
		"warnings", len(plan.Warnings),
	)
	return &Result{Plan: plan, Hash: hash}, nil
}

// Validate reports every problem with def without returning an error.
func (s *Service) Validate(ctx context.Context, def *schema.WorkflowDefinition) *schema.ValidationResult {
	if def != nil {
		ctx = logging.WithWorkflow(ctx, def.Name)
	}
	result := builder.ValidateWorkflow(def, s.buildOpts...)
	logging.LogWith(ctx, s.logger).Debug("workflow validated",
		"errors", len(result.Errors),
		"warnings", len(result.Warnings),
	)
	return result
}

// Plan loads a stored plan by id.
func (s *Service) Plan(ctx context.Context, id string) (rec *store.PlanRecord, err error) {
	if s.store == nil {
		return nil, errNoStore()
	}
	ctx, span := s.spans.StartStoreSpan(ctx, "get", id)
	defer func() { s.spans.EndSpanWithError(span, err) }()

	rec, err = s.store.GetPlan(ctx, id)
	s.metrics.RecordStoreOp(ctx, "get", err)
	return rec, err
}

// Plans lists stored plans.
func (s *Service) Plans(ctx context.Context, filter store.PlanFilter) (recs []*store.PlanRecord, err error) {
	if s.store == nil {
		return nil, errNoStore()
	}
	ctx, span := s.spans.StartStoreSpan(ctx, "list", "")
	defer func() { s.spans.EndSpanWithError(span, err) }()

	recs, err = s.store.ListPlans(ctx, filter)
	s.metrics.RecordStoreOp(ctx, "list", err)
	return recs, err
}

func errNoStore() error {
	return schema.NewError(schema.ErrCodeStore, "no plan store configured")
}

func (s *Service) lookup(ctx context.Context, hash string) *schema.ExecutionPlan {
	s.mu.RLock()
	plan := s.byHash[hash]
	s.mu.RUnlock()
	if plan != nil || s.store == nil {
		return plan
	}

	ctx, span := s.spans.StartStoreSpan(ctx, "get_by_hash", "")
	rec, err := s.store.GetPlanByHash(ctx, hash)
	var buildErr *schema.BuildError
	if errors.As(err, &buildErr) && buildErr.Code == schema.ErrCodeNotFound {
		err = nil
	}
	s.metrics.RecordStoreOp(ctx, "get_by_hash", err)
	s.spans.EndSpanWithError(span, err)
	if err != nil {
		logging.LogWith(ctx, s.logger).Warn("plan cache lookup failed", "error", err)
		return nil
	}
	if rec == nil {
		return nil
	}

	s.mu.Lock()
	s.byHash[hash] = rec.Plan
	s.mu.Unlock()
	return rec.Plan
}

func (s *Service) save(ctx context.Context, plan *schema.ExecutionPlan, hash string) (err error) {
	ctx, span := s.spans.StartStoreSpan(ctx, "save", plan.ID)
	defer func() { s.spans.EndSpanWithError(span, err) }()

	err = s.store.SavePlan(ctx, store.NewPlanRecord(plan, hash))
	s.metrics.RecordStoreOp(ctx, "save", err)
	return err
}

// Hash returns a stable digest of def, including its node order.
func Hash(def *schema.WorkflowDefinition) (string, error) {
	payload := struct {
		Definition *schema.WorkflowDefinition `json:"definition"`
		Order      []string                   `json:"order"`
	}{def, def.NodeIDs()}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", schema.NewError(schema.ErrCodeInvalidDocument, "definition is not serializable").WithCause(err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// String renders a short description of r for logs and CLI output.
func (r *Result) String() string {
	state := "compiled"
	if r.Cached {
		state = "cached"
	}
	return fmt.Sprintf("%s plan %s (%d nodes, %d levels, %d warnings)",
		state, r.Plan.ID, r.Plan.NodeCount, len(r.Plan.ExecutionLevels), len(r.Plan.Warnings))
}
