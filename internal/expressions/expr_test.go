package expressions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExprChecker_Name(t *testing.T) {
	assert.Equal(t, "expr", NewExprChecker().Name())
}

func TestExprChecker_Valid(t *testing.T) {
	c := NewExprChecker()
	for _, expr := range []string{
		"inputs.score > 3",
		`nodes.classify.label in ["a", "b"]`,
		"let x = 2; x * 3 > 5",
		"unknownVar ?? false",
		`len(filter(inputs.items, # > 1)) > 0`,
	} {
		assert.NoError(t, c.Check(expr), expr)
	}
}

func TestExprChecker_Invalid(t *testing.T) {
	c := NewExprChecker()
	assert.Error(t, c.Check("inputs.score >"))
	assert.Error(t, c.Check("(1 + 2"))
	assert.Error(t, c.Check(""))
}

func TestExprChecker_CachesFailures(t *testing.T) {
	c := NewExprChecker()
	first := c.Check("1 +")
	second := c.Check("1 +")
	assert.Error(t, first)
	assert.Same(t, first, second)
}
