package expressions

import (
	"errors"
	"sync"
	"testing"

	"github.com/rendis/flowplan/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCELChecker(t *testing.T) {
	c, err := NewCELChecker()
	require.NoError(t, err)
	assert.Equal(t, "cel", c.Name())
}

func TestCEL_ValidConditions(t *testing.T) {
	c, err := NewCELChecker()
	require.NoError(t, err)

	for _, expr := range []string{
		"true",
		"iteration.index < 10",
		`nodes.fetch.status == "ok"`,
		"size(inputs.items) > 0 && variables.retry",
		"nodes.check.done",
	} {
		assert.NoError(t, c.Check(expr), expr)
	}
}

func TestCEL_RejectsSyntaxErrors(t *testing.T) {
	c, err := NewCELChecker()
	require.NoError(t, err)

	err = c.Check("iteration.index <")
	require.Error(t, err)

	var buildErr *schema.BuildError
	require.True(t, errors.As(err, &buildErr))
	assert.Equal(t, schema.ErrCodeValidation, buildErr.Code)
	assert.Equal(t, "iteration.index <", buildErr.Details["expression"])
}

func TestCEL_LoopIsReserved(t *testing.T) {
	c, err := NewCELChecker()
	require.NoError(t, err)

	err = c.Check("loop.index < 5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved identifier: loop")
	assert.Contains(t, err.Error(), "iteration.index")

	assert.NoError(t, c.Check("iteration.index < 5"))
	assert.NoError(t, c.Check(`iteration.item.kind == "retry"`))
}

func TestCEL_RejectsUnknownVariables(t *testing.T) {
	c, err := NewCELChecker()
	require.NoError(t, err)
	assert.Error(t, c.Check("steps.a.done"))
}

func TestCEL_RejectsNonBooleanResult(t *testing.T) {
	c, err := NewCELChecker()
	require.NoError(t, err)

	err = c.Check("1 + 2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must evaluate to bool")
}

func TestCEL_EmptyExpression(t *testing.T) {
	c, err := NewCELChecker()
	require.NoError(t, err)
	assert.Error(t, c.Check(""))
}

func TestCEL_CachesOutcome(t *testing.T) {
	c, err := NewCELChecker()
	require.NoError(t, err)

	first := c.Check("iteration.index <")
	second := c.Check("iteration.index <")
	assert.Same(t, first, second)
	assert.Len(t, c.cache, 1)
}

func TestCEL_ConcurrentChecks(t *testing.T) {
	c, err := NewCELChecker()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, c.Check("iteration.index < 3"))
		}()
	}
	wg.Wait()
}
