package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukepan/multi-rooms-chat-back/internal/auth"
)

func TestHashAndVerifyPasswordRoundTrip(t *testing.T) {
	encoded, err := auth.HashPassword("correct horse battery staple", 1)
	require.NoError(t, err)
	assert.Contains(t, encoded, "$argon2id$")

	assert.True(t, auth.VerifyPassword(encoded, "correct horse battery staple"))
	assert.False(t, auth.VerifyPassword(encoded, "wrong password"))
}

func TestHashPasswordProducesDistinctSalts(t *testing.T) {
	first, err := auth.HashPassword("same-password", 1)
	require.NoError(t, err)
	second, err := auth.HashPassword("same-password", 1)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, auth.VerifyPassword(first, "same-password"))
	assert.True(t, auth.VerifyPassword(second, "same-password"))
}

func TestVerifyPasswordRejectsMalformedEncoding(t *testing.T) {
	assert.False(t, auth.VerifyPassword("not-an-encoded-hash", "whatever"))
	assert.False(t, auth.VerifyPassword("$argon2id$v=19$m=65536,t=1,p=4$badsalt", "whatever"))
}
