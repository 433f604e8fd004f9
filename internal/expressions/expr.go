package expressions

import (
	"sync"

	"github.com/expr-lang/expr"
	"github.com/rendis/flowplan/pkg/schema"
)

// ExprChecker compiles expr-lang expressions used by conditional and router
// nodes. Unknown identifiers are allowed because node outputs are only
// known at run time.
type ExprChecker struct {
	mu    sync.RWMutex
	cache map[string]error
}

// NewExprChecker creates a new Expr checker.
func NewExprChecker() *ExprChecker {
	return &ExprChecker{
		cache: make(map[string]error),
	}
}

// Name returns the checker identifier.
func (c *ExprChecker) Name() string {
	return "expr"
}

// Check compiles the expression against an open environment.
func (c *ExprChecker) Check(expression string) error {
	if expression == "" {
		return schema.NewError(schema.ErrCodeValidation, "empty expr expression")
	}

	c.mu.RLock()
	if err, ok := c.cache[expression]; ok {
		c.mu.RUnlock()
		return err
	}
	c.mu.RUnlock()

	var result error
	_, err := expr.Compile(expression,
		expr.Env(map[string]any{
			"nodes":     map[string]any{},
			"inputs":    map[string]any{},
			"variables": map[string]any{},
		}),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		result = schema.NewErrorf(schema.ErrCodeValidation,
			"expr compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	c.mu.Lock()
	c.cache[expression] = result
	c.mu.Unlock()
	return result
}

var _ Checker = (*ExprChecker)(nil)
