package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfWrapped(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("saving books: %w", Connection("acquire connection", cause))

	assert.Equal(t, KindConnection, KindOf(err))
	assert.True(t, Is(err, KindConnection))
	assert.False(t, Is(err, KindQuery))
	assert.ErrorIs(t, err, cause)
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.False(t, Is(nil, KindUnknown))
}

func TestErrorMessage(t *testing.T) {
	err := InvalidInput("run report", "unknown report %q", "x")
	require.EqualError(t, err, `run report: unknown report "x"`)
	assert.Equal(t, "invalid_input", err.Kind.String())

	bare := &Error{Kind: KindAPI, Op: "search volumes"}
	assert.Equal(t, "search volumes: api_error", bare.Error())
}
