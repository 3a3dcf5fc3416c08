package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnhancedErrorCategory(t *testing.T) {
	t.Parallel()

	err := Newf("upstream unavailable").
		Category(CategoryNetwork).
		Component("gbif").
		Context("status_code", 503).
		Build()

	assert.Equal(t, "upstream unavailable", err.Error())
	assert.Equal(t, "gbif", err.GetComponent())
	assert.True(t, IsCategory(err, CategoryNetwork), "expected network category")
	assert.False(t, IsRateLimit(err), "network error is not a rate-limit error")
	assert.Equal(t, 503, StatusCode(err), "expected status code from context")
}

func TestCategoryDefaultsToGeneric(t *testing.T) {
	t.Parallel()

	err := Newf("something").Build()
	assert.Equal(t, CategoryGeneric, err.Category)
}

func TestIsMatchesByCategory(t *testing.T) {
	t.Parallel()

	rateLimited := Newf("429").Category(CategoryRateLimit).Build()
	other := Newf("different message").Category(CategoryRateLimit).Build()

	assert.True(t, Is(rateLimited, other), "enhanced errors match by category")
	assert.True(t, IsRateLimit(rateLimited))
}

func TestUnwrapPreservesCause(t *testing.T) {
	t.Parallel()

	cause := NewStd("root cause")
	err := Newf("wrapped: %w", cause).Category(CategoryDatabase).Build()

	require.ErrorIs(t, err, cause, "expected errors.Is to find the cause")
	assert.Equal(t, 0, StatusCode(err), "no status code context present")
}
