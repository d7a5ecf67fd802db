package mongo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	t.Parallel()

	errorCodes := []Error{
		CallbackFailed,
		CallbackTimeout,
		ProtocolViolation,
		TransportFailure,
		AlreadyFrozen,
	}

	for _, err := range errorCodes {
		t.Run(fmt.Sprintf("verify that an error message is defined for %d", int(err)), func(t *testing.T) {
			assert.NotEmpty(t, err.Title())
			assert.NotEmpty(t, err.Description())
		})
	}

	t.Run("verify that an invalid error code has no title", func(t *testing.T) {
		assert.Empty(t, Error(-1).Title())
		assert.Empty(t, Error(-1).Description())
	})

	t.Run("verify that only callback timeouts are timeouts", func(t *testing.T) {
		for _, err := range errorCodes {
			assert.Equal(t, err == CallbackTimeout, err.Timeout(), err.Title())
		}
	})
}

func TestAuthError(t *testing.T) {
	t.Parallel()

	cause := errors.New("token endpoint returned 503")
	err := makeError(CallbackFailed, "error from user provided OIDC callback", cause)

	assert.EqualError(t, err, "error from user provided OIDC callback: token endpoint returned 503")
	assert.ErrorIs(t, err, CallbackFailed)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, CallbackTimeout)

	wrapped := fmt.Errorf("dial db:27017: %w", err)
	var authErr *AuthError
	assert.ErrorAs(t, wrapped, &authErr)
	assert.Equal(t, CallbackFailed, authErr.Code)
	assert.False(t, authErr.Timeout())
	assert.False(t, authErr.Temporary())

	assert.EqualError(t, makeError(CallbackTimeout, "", nil), "OIDC Callback Timeout")
	assert.True(t, makeError(TransportFailure, "", nil).(*AuthError).Temporary())
}

func TestAppendError(t *testing.T) {
	t.Parallel()

	a := errors.New("a")
	b := errors.New("b")

	assert.Nil(t, appendError(nil, nil))
	assert.Equal(t, a, appendError(a, nil))
	assert.Equal(t, b, appendError(nil, b))

	err := appendError(a, b)
	assert.ErrorIs(t, err, a)
	assert.ErrorIs(t, err, b)
}
