// Package ratelimit enforces the two per-user budgets the chat domain
// cares about: messages sent per rolling minute, and concurrent
// connections held open at once. Both checks run as single Redis Lua
// scripts so the read-then-write can't race across sessions.
//
// Ported from the original application::rate_limiter::MessageRateLimiter,
// which implements the same two scripts against a redis::Script.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dukepan/multi-rooms-chat-back/internal/apperrors"
	"github.com/dukepan/multi-rooms-chat-back/internal/ids"
)

const (
	messageWindow        = 60 * time.Second
	connectionIdleExpiry = 24 * time.Hour
)

// messageRateScript increments the per-minute message counter, setting a
// 60s expiry only on the first increment of the window, and reports
// whether the new count exceeds max.
var messageRateScript = redis.NewScript(`
local key = KEYS[1]
local max = tonumber(ARGV[1])
local window = tonumber(ARGV[2])

local count = redis.call("INCR", key)
if count == 1 then
	redis.call("EXPIRE", key, window)
end
if count > max then
	return {0, count}
end
return {1, count}
`)

// connectionAddScript enforces the connection ceiling before admitting a
// new one: it only increments if the current count is still below max.
var connectionAddScript = redis.NewScript(`
local key = KEYS[1]
local max = tonumber(ARGV[1])
local idle = tonumber(ARGV[2])

local current = tonumber(redis.call("GET", key) or "0")
if current >= max then
	return {0, current}
end
local updated = redis.call("INCR", key)
redis.call("EXPIRE", key, idle)
return {1, updated}
`)

// connectionRemoveScript decrements the connection counter, deleting the
// key once it reaches zero so idle users don't linger in Redis.
var connectionRemoveScript = redis.NewScript(`
local key = KEYS[1]
local current = tonumber(redis.call("GET", key) or "0")
if current <= 0 then
	return 0
end
local updated = redis.call("DECR", key)
if updated <= 0 then
	redis.call("DEL", key)
end
return updated
`)

type Limits struct {
	MaxMessagesPerMinute   int
	MaxConnectionsPerUser  int
}

type Limiter struct {
	client *redis.Client
	limits Limits
}

func New(client *redis.Client, limits Limits) *Limiter {
	return &Limiter{client: client, limits: limits}
}

func messageKey(userID ids.UserID) string    { return fmt.Sprintf("rate:messages:%s", userID.String()) }
func connectionKey(userID ids.UserID) string { return fmt.Sprintf("rate:connections:%s", userID.String()) }

// CheckMessageRate increments the user's message counter for the current
// rolling minute and returns apperrors.RateLimitExceeded if it now
// exceeds the configured maximum.
func (l *Limiter) CheckMessageRate(ctx context.Context, userID ids.UserID) error {
	res, err := messageRateScript.Run(ctx, l.client,
		[]string{messageKey(userID)},
		l.limits.MaxMessagesPerMinute, int(messageWindow.Seconds()),
	).Result()
	if err != nil {
		return apperrors.Infrastructure("rate limiter message check failed", err)
	}
	ok, count := unpackPair(res)
	if !ok {
		return apperrors.RateLimitExceeded(count, l.limits.MaxMessagesPerMinute)
	}
	return nil
}

// AddConnection admits a new connection for userID if doing so would not
// exceed the per-user connection ceiling.
func (l *Limiter) AddConnection(ctx context.Context, userID ids.UserID) error {
	res, err := connectionAddScript.Run(ctx, l.client,
		[]string{connectionKey(userID)},
		l.limits.MaxConnectionsPerUser, int(connectionIdleExpiry.Seconds()),
	).Result()
	if err != nil {
		return apperrors.Infrastructure("rate limiter connection check failed", err)
	}
	ok, count := unpackPair(res)
	if !ok {
		return apperrors.RateLimitExceeded(count, l.limits.MaxConnectionsPerUser)
	}
	return nil
}

// RemoveConnection releases one of userID's connection slots. Its typical
// caller, session teardown (session.Session.teardown), logs the error and
// carries on; this returns the error for callers that do want to observe
// it rather than hiding it here.
func (l *Limiter) RemoveConnection(ctx context.Context, userID ids.UserID) error {
	if err := connectionRemoveScript.Run(ctx, l.client, []string{connectionKey(userID)}).Err(); err != nil {
		return apperrors.Infrastructure("rate limiter connection release failed", err)
	}
	return nil
}

// ConnectionCount returns the current number of open connections tracked
// for userID.
func (l *Limiter) ConnectionCount(ctx context.Context, userID ids.UserID) (int, error) {
	v, err := l.client.Get(ctx, connectionKey(userID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, apperrors.Infrastructure("rate limiter connection count failed", err)
	}
	return v, nil
}

// ResetUserQuota clears both counters for userID, used by admin tooling
// and tests.
func (l *Limiter) ResetUserQuota(ctx context.Context, userID ids.UserID) error {
	if err := l.client.Del(ctx, messageKey(userID), connectionKey(userID)).Err(); err != nil {
		return apperrors.Infrastructure("rate limiter reset failed", err)
	}
	return nil
}

func unpackPair(res interface{}) (ok bool, count int) {
	pair, isPair := res.([]interface{})
	if !isPair || len(pair) != 2 {
		return false, 0
	}
	okInt, _ := pair[0].(int64)
	countInt, _ := pair[1].(int64)
	return okInt == 1, int(countInt)
}
