package expressions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasInterpolation(t *testing.T) {
	assert.True(t, HasInterpolation("hello ${{ nodes.a.text }}"))
	assert.False(t, HasInterpolation("plain text"))
}

func TestUnwrap(t *testing.T) {
	assert.Equal(t, "loop.index < 3", Unwrap("${{ loop.index < 3 }}"))
	assert.Equal(t, "loop.index < 3", Unwrap("  loop.index < 3 "))
	assert.Equal(t, "${{ a }} and ${{ b }}", Unwrap("${{ a }} and ${{ b }}"))
}

func TestNodeRefs(t *testing.T) {
	cfg := map[string]any{
		"prompt": "Summarize ${{nodes.fetch.body}} for ${{ inputs.user }}",
		"headers": map[string]any{
			"x-trace": "${{ nodes.trace.id }}",
		},
		"list":  []any{"${{nodes.fetch[0]}}", 3, "${{nodes.classify}}"},
		"other": 42,
	}
	assert.Equal(t, []string{"classify", "fetch", "trace"}, NodeRefs(cfg))
}

func TestNodeRefs_IgnoresUnclosedTokens(t *testing.T) {
	assert.Empty(t, NodeRefs("${{nodes.a"))
	assert.Empty(t, NodeRefs(nil))
}
