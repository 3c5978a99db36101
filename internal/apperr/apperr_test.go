package apperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"eventhub/internal/apperr"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(apperr.NotFound("missing")))
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(apperr.Conflict("duplicate")))
	assert.Equal(t, apperr.KindUnknown, apperr.KindOf(errors.New("plain")))
	assert.Equal(t, apperr.KindUnknown, apperr.KindOf(nil))
}

func TestKindOfWrapped(t *testing.T) {
	inner := apperr.Expired("token expired")
	wrapped := fmt.Errorf("redeem: %w", inner)

	assert.Equal(t, apperr.KindExpired, apperr.KindOf(wrapped))
	assert.True(t, apperr.IsKind(wrapped, apperr.KindExpired))
	assert.False(t, apperr.IsKind(wrapped, apperr.KindNotFound))
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	cause := errors.New("row not found")
	err := apperr.Wrap(apperr.KindNotFound, "event not found", cause)

	assert.Contains(t, err.Error(), "event not found")
	assert.ErrorIs(t, err, cause)
}
