package expressions

import (
	"sync"

	"github.com/itchyny/gojq"
	"github.com/rendis/flowplan/pkg/schema"
)

// JQChecker parses and compiles jq queries such as forEach source paths
// and transform programs.
type JQChecker struct {
	mu    sync.RWMutex
	cache map[string]error
}

// NewJQChecker creates a new jq checker.
func NewJQChecker() *JQChecker {
	return &JQChecker{
		cache: make(map[string]error),
	}
}

// Name returns the checker identifier.
func (c *JQChecker) Name() string {
	return "jq"
}

// Check parses and compiles the query with the environment sandboxed.
func (c *JQChecker) Check(expression string) error {
	if expression == "" {
		return schema.NewError(schema.ErrCodeValidation, "empty jq expression")
	}

	c.mu.RLock()
	if err, ok := c.cache[expression]; ok {
		c.mu.RUnlock()
		return err
	}
	c.mu.RUnlock()

	result := compileJQ(expression)

	c.mu.Lock()
	c.cache[expression] = result
	c.mu.Unlock()
	return result
}

func compileJQ(expression string) error {
	query, err := gojq.Parse(expression)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"jq parse error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	_, err = gojq.Compile(query,
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"jq compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	return nil
}

var _ Checker = (*JQChecker)(nil)
