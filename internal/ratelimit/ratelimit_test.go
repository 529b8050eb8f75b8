package ratelimit_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukepan/multi-rooms-chat-back/internal/apperrors"
	"github.com/dukepan/multi-rooms-chat-back/internal/ids"
	"github.com/dukepan/multi-rooms-chat-back/internal/ratelimit"
)

func newTestLimiter(t *testing.T, limits ratelimit.Limits) *ratelimit.Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return ratelimit.New(client, limits)
}

func TestCheckMessageRateAllowsUpToMax(t *testing.T) {
	ctx := context.Background()
	lim := newTestLimiter(t, ratelimit.Limits{MaxMessagesPerMinute: 3, MaxConnectionsPerUser: 5})
	userID := ids.NewUserID()

	for i := 0; i < 3; i++ {
		require.NoError(t, lim.CheckMessageRate(ctx, userID))
	}

	err := lim.CheckMessageRate(ctx, userID)
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindRateLimitExceeded, appErr.Kind)
	assert.Equal(t, 4, appErr.Current)
	assert.Equal(t, 3, appErr.Max)
}

func TestMessageRateIsPerUser(t *testing.T) {
	ctx := context.Background()
	lim := newTestLimiter(t, ratelimit.Limits{MaxMessagesPerMinute: 1, MaxConnectionsPerUser: 5})
	alice, bob := ids.NewUserID(), ids.NewUserID()

	require.NoError(t, lim.CheckMessageRate(ctx, alice))
	require.Error(t, lim.CheckMessageRate(ctx, alice))
	require.NoError(t, lim.CheckMessageRate(ctx, bob))
}

func TestAddConnectionEnforcesCeiling(t *testing.T) {
	ctx := context.Background()
	lim := newTestLimiter(t, ratelimit.Limits{MaxMessagesPerMinute: 100, MaxConnectionsPerUser: 2})
	userID := ids.NewUserID()

	require.NoError(t, lim.AddConnection(ctx, userID))
	require.NoError(t, lim.AddConnection(ctx, userID))

	err := lim.AddConnection(ctx, userID)
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindRateLimitExceeded, appErr.Kind)

	count, err := lim.ConnectionCount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRemoveConnectionFreesASlot(t *testing.T) {
	ctx := context.Background()
	lim := newTestLimiter(t, ratelimit.Limits{MaxMessagesPerMinute: 100, MaxConnectionsPerUser: 1})
	userID := ids.NewUserID()

	require.NoError(t, lim.AddConnection(ctx, userID))
	require.Error(t, lim.AddConnection(ctx, userID))

	require.NoError(t, lim.RemoveConnection(ctx, userID))

	count, err := lim.ConnectionCount(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, lim.AddConnection(ctx, userID))
}

func TestResetUserQuotaClearsBothCounters(t *testing.T) {
	ctx := context.Background()
	lim := newTestLimiter(t, ratelimit.Limits{MaxMessagesPerMinute: 1, MaxConnectionsPerUser: 1})
	userID := ids.NewUserID()

	require.NoError(t, lim.CheckMessageRate(ctx, userID))
	require.NoError(t, lim.AddConnection(ctx, userID))

	require.NoError(t, lim.ResetUserQuota(ctx, userID))

	require.NoError(t, lim.CheckMessageRate(ctx, userID))
	require.NoError(t, lim.AddConnection(ctx, userID))
}
