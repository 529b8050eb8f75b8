package apperrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dukepan/multi-rooms-chat-back/internal/apperrors"
)

func TestIsMatchesByKindOnly(t *testing.T) {
	a := apperrors.RoomNotFound()
	b := apperrors.RoomNotFound()
	assert.True(t, errors.Is(a, b))

	c := apperrors.UserNotFound()
	assert.False(t, errors.Is(a, c))
}

func TestInvalidArgumentMessage(t *testing.T) {
	err := apperrors.InvalidArgument("email", "cannot be empty")
	assert.Equal(t, `invalid argument "email": cannot be empty`, err.Error())
}

func TestRateLimitExceededMessage(t *testing.T) {
	err := apperrors.RateLimitExceeded(61, 60)
	assert.Equal(t, "rate limit exceeded: 61/60", err.Error())
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		kind apperrors.Kind
		want int
	}{
		{apperrors.KindInvalidArgument, 400},
		{apperrors.KindAuthenticationFail, 401},
		{apperrors.KindAuthorizationFail, 403},
		{apperrors.KindRoomPrivate, 403},
		{apperrors.KindUserNotFound, 404},
		{apperrors.KindMembershipExists, 409},
		{apperrors.KindRateLimitExceeded, 429},
		{apperrors.KindInfrastructure, 500},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.kind.HTTPStatus(), "kind %s", tc.kind)
	}
}

func TestAsUnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := apperrors.Infrastructure("db write failed", cause)

	appErr, ok := apperrors.As(err)
	assert.True(t, ok)
	assert.Equal(t, apperrors.KindInfrastructure, appErr.Kind)
	assert.True(t, errors.Is(err, cause))
}

func TestAsRejectsPlainError(t *testing.T) {
	_, ok := apperrors.As(errors.New("plain"))
	assert.False(t, ok)
}
