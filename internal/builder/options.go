package builder

import (
	"log/slog"

	"github.com/rendis/flowplan/pkg/schema"
)

// Default limits.
const (
	DefaultMaxLoopDepth        = 10
	DefaultMaxParallelBranches = 50
)

// NodeValidator checks a single node's config during a build. known reports
// whether an id names a node of the workflow.
type NodeValidator interface {
	ValidateNode(id string, node schema.NodeDefinition, known func(string) bool) []schema.Warning
}

// options holds build configuration.
type options struct {
	includeUnreachable  bool
	validateConfigs     bool
	maxLoopDepth        int
	maxParallelBranches int
	logger              *slog.Logger
	categories          map[string]schema.NodeCategory
	nodeValidator       NodeValidator
}

func defaultOptions() options {
	return options{
		validateConfigs:     true,
		maxLoopDepth:        DefaultMaxLoopDepth,
		maxParallelBranches: DefaultMaxParallelBranches,
	}
}

// Option configures a build.
type Option func(*options)

// WithIncludeUnreachable compiles nodes the entry point cannot reach into
// the plan as well. They are still reported as unreachable.
func WithIncludeUnreachable(include bool) Option {
	return func(o *options) {
		o.includeUnreachable = include
	}
}

// WithValidateConfigs toggles per-node config validation.
func WithValidateConfigs(validate bool) Option {
	return func(o *options) {
		o.validateConfigs = validate
	}
}

// WithMaxLoopDepth sets how deeply loops may nest. Values below 1 are ignored.
func WithMaxLoopDepth(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLoopDepth = n
		}
	}
}

// WithMaxParallelBranches caps the branches of a single parallel node.
// Values below 1 are ignored.
func WithMaxParallelBranches(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxParallelBranches = n
		}
	}
}

// WithLogger sets the logger for stage debug output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithNodeCategories maps extra node types onto categories.
func WithNodeCategories(categories map[string]schema.NodeCategory) Option {
	return func(o *options) {
		o.categories = categories
	}
}

// WithNodeValidator replaces the default node config validator.
func WithNodeValidator(v NodeValidator) Option {
	return func(o *options) {
		o.nodeValidator = v
	}
}
