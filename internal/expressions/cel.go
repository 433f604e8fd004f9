package expressions

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/rendis/flowplan/pkg/schema"
)

// CELChecker compiles Common Expression Language conditions used by
// while/doWhile loops. Thread-safe: compile outcomes are cached.
type CELChecker struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]error
}

// NewCELChecker creates a checker whose environment exposes the variables a
// runtime provides to loop conditions:
//   - nodes:     map(string, dyn) - outputs of completed nodes
//   - inputs:    map(string, dyn) - workflow inputs
//   - variables: map(string, dyn) - workflow variables
//   - iteration: map(string, dyn) - current iteration (index, item)
//
// "loop" is a reserved word in CEL, hence the iteration name.
func NewCELChecker() (*CELChecker, error) {
	mapType := cel.MapType(cel.StringType, cel.DynType)

	env, err := cel.NewEnv(
		cel.Variable("nodes", mapType),
		cel.Variable("inputs", mapType),
		cel.Variable("variables", mapType),
		cel.Variable("iteration", mapType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &CELChecker{
		env:   env,
		cache: make(map[string]error),
	}, nil
}

// Name returns the checker identifier.
func (c *CELChecker) Name() string {
	return "cel"
}

// Check compiles the expression and requires a boolean (or dyn) result type.
func (c *CELChecker) Check(expression string) error {
	if expression == "" {
		return schema.NewError(schema.ErrCodeValidation, "empty CEL expression")
	}

	c.mu.RLock()
	if err, ok := c.cache[expression]; ok {
		c.mu.RUnlock()
		return err
	}
	c.mu.RUnlock()

	err := c.compile(expression)

	c.mu.Lock()
	c.cache[expression] = err
	c.mu.Unlock()
	return err
}

func (c *CELChecker) compile(expression string) error {
	ast, issues := c.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		msg := issues.Err().Error()
		if strings.Contains(msg, "reserved identifier: loop") {
			msg += " (use iteration.index / iteration.item)"
		}
		return schema.NewErrorf(schema.ErrCodeValidation,
			"CEL compile error in %q: %s", expression, msg).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expression})
	}

	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"CEL condition %q must evaluate to bool, got %s", expression, out).
			WithDetails(map[string]any{"expression": expression})
	}

	if _, err := c.env.Program(ast); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"CEL program error for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	return nil
}

var _ Checker = (*CELChecker)(nil)
