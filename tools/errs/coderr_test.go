package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeErrorIs(t *testing.T) {
	err := ErrQueueFull.WrapMsg("drop", "conn_id", "42")

	assert.True(t, errors.Is(err, ErrQueueFull))
	assert.False(t, errors.Is(err, ErrConnNotFound))
	assert.Equal(t, QueueFullError, Code(err))
	assert.Contains(t, err.Error(), "drop conn_id=42")
}

func TestCodeErrorWrapKeepsSentinelUntouched(t *testing.T) {
	_ = ErrPersistFailed.WrapMsg("mongo down")
	assert.Empty(t, ErrPersistFailed.Detail)

	d := ErrPersistFailed.WithDetail("a").WithDetail("b")
	assert.Equal(t, "a, b", d.Detail)
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, 0, Code(nil))
	assert.Equal(t, ServerInternalError, Code(errors.New("boom")))

	wrapped := fmt.Errorf("outer: %w", ErrUnauthenticated.Wrap())
	assert.Equal(t, UnauthenticatedError, Code(wrapped))
}

func TestErrPanic(t *testing.T) {
	require.NoError(t, ErrPanic(nil))

	err := ErrPanic("nil map")
	var ce *CodeError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ServerInternalError, ce.Code)
	assert.Equal(t, "nil map", ce.Detail)
}

func TestToString(t *testing.T) {
	assert.Equal(t, "m", toString("m", nil))
	assert.Equal(t, "m a=1 b=MISSING", toString("m", []any{"a", 1, "b"}))
}
