package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodes(t *testing.T) {
	cause := errors.New("disk full")

	t.Run("wrap keeps the cause", func(t *testing.T) {
		err := Wrap(cause, CodeUnavailable, "append request")
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "append request: disk full", err.Error())
		assert.Equal(t, CodeUnavailable, CodeOf(err))
		assert.True(t, HasCode(err, CodeUnavailable))
	})

	t.Run("wrap of nil is nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "noop"))
	})

	t.Run("outermost code wins", func(t *testing.T) {
		inner := New(CodeNotFound, "resident not found")
		outer := Wrap(inner, CodeUnavailable, "resolve")
		assert.Equal(t, CodeUnavailable, CodeOf(outer))
		assert.False(t, HasCode(outer, CodeNotFound))
	})

	t.Run("found through fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("handle event: %w", New(CodeValidation, "kind is required"))
		assert.True(t, HasCode(err, CodeValidation))
	})

	t.Run("uncoded errors are internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(cause))
		assert.False(t, HasCode(cause, CodeInternal))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}
