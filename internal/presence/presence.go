// Package presence tracks which users are active in which rooms using
// three Redis indices: a per-room set of online users, a per-user set of
// rooms they're in, and a per-(room,user) expiring key that drives the
// sweep. A session refreshes its key on every heartbeat; a background
// sweep evicts sessions that stop heartbeating without a clean
// disconnect.
//
// Generalized from the teacher's single-key cache.SetUserPresence, which
// has no room-membership index at all, into the room-scoped membership
// design the chat domain actually needs.
package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dukepan/multi-rooms-chat-back/internal/apperrors"
	"github.com/dukepan/multi-rooms-chat-back/internal/clock"
	"github.com/dukepan/multi-rooms-chat-back/internal/ids"
	"github.com/dukepan/multi-rooms-chat-back/internal/models"
)

// onConnectScript adds the user to both membership sets and sets the
// per-(room,user) liveness key in one round trip.
var onConnectScript = redis.NewScript(`
redis.call("SADD", KEYS[1], ARGV[1])
redis.call("SADD", KEYS[2], ARGV[2])
redis.call("SET", KEYS[3], ARGV[3], "EX", ARGV[4])
return 1
`)

// onDisconnectScript removes the user from both membership sets and
// deletes the liveness key.
var onDisconnectScript = redis.NewScript(`
redis.call("SREM", KEYS[1], ARGV[1])
redis.call("SREM", KEYS[2], ARGV[2])
redis.call("DEL", KEYS[3])
return 1
`)

type Engine struct {
	client         *redis.Client
	clock          clock.Clock
	idleWindow     time.Duration
	heartbeatEvery time.Duration

	mu            sync.Mutex
	lastHeartbeat map[string]time.Time

	onEvent func(models.PresenceEvent)
}

func roomUsersKey(roomID ids.RoomID) string { return fmt.Sprintf("presence:room_users:%s", roomID.String()) }
func userRoomsKey(userID ids.UserID) string { return fmt.Sprintf("presence:user_rooms:%s", userID.String()) }
func livenessKey(roomID ids.RoomID, userID ids.UserID) string {
	return fmt.Sprintf("presence:liveness:%s:%s", roomID.String(), userID.String())
}

// New constructs a presence Engine. onEvent, if non-nil, receives a
// PresenceEvent for every connect and disconnect and for each heartbeat
// that passes OnHeartbeat's throttle, intended to feed an
// internal/stats.Sink.
func New(client *redis.Client, clk clock.Clock, idleWindow time.Duration, onEvent func(models.PresenceEvent)) *Engine {
	return &Engine{
		client:         client,
		clock:          clk,
		idleWindow:     idleWindow,
		heartbeatEvery: 30 * time.Second,
		lastHeartbeat:  make(map[string]time.Time),
		onEvent:        onEvent,
	}
}

func (e *Engine) OnConnect(ctx context.Context, roomID ids.RoomID, userID ids.UserID) error {
	now := e.clock.Now()
	err := onConnectScript.Run(ctx, e.client,
		[]string{roomUsersKey(roomID), userRoomsKey(userID), livenessKey(roomID, userID)},
		userID.String(), roomID.String(), now.Format(time.RFC3339Nano), int(e.idleWindow.Seconds()),
	).Err()
	if err != nil {
		return apperrors.Infrastructure("presence connect failed", err)
	}
	e.emit(models.NewConnectionEvent(userID, roomID, now))
	return nil
}

func (e *Engine) OnDisconnect(ctx context.Context, roomID ids.RoomID, userID ids.UserID) error {
	err := onDisconnectScript.Run(ctx, e.client,
		[]string{roomUsersKey(roomID), userRoomsKey(userID), livenessKey(roomID, userID)},
		userID.String(), roomID.String(),
	).Err()
	if err != nil {
		return apperrors.Infrastructure("presence disconnect failed", err)
	}
	e.mu.Lock()
	delete(e.lastHeartbeat, heartbeatKey(roomID, userID))
	e.mu.Unlock()
	e.emit(models.NewDisconnectionEvent(userID, roomID, e.clock.Now()))
	return nil
}

// OnHeartbeat refreshes the liveness TTL. It is throttled in-process to
// emit at most one PresenceEvent per 30s per (room, user) pair so a
// chatty client can't flood the stats sink, even though the TTL refresh
// itself always happens.
func (e *Engine) OnHeartbeat(ctx context.Context, roomID ids.RoomID, userID ids.UserID) error {
	now := e.clock.Now()
	if err := e.client.Expire(ctx, livenessKey(roomID, userID), e.idleWindow).Err(); err != nil {
		return apperrors.Infrastructure("presence heartbeat failed", err)
	}
	key := heartbeatKey(roomID, userID)
	e.mu.Lock()
	last, seen := e.lastHeartbeat[key]
	if seen && now.Sub(last) < e.heartbeatEvery {
		e.mu.Unlock()
		return nil
	}
	e.lastHeartbeat[key] = now
	e.mu.Unlock()
	e.emit(models.NewHeartbeatEvent(userID, roomID, now))
	return nil
}

// CleanupUser removes userID from every room listed in its user_rooms
// index, running OnDisconnect (and so emitting a disconnect event) for
// each; the caller does not need to know the room set.
func (e *Engine) CleanupUser(ctx context.Context, userID ids.UserID) error {
	rooms, err := e.client.SMembers(ctx, userRoomsKey(userID)).Result()
	if err != nil {
		return apperrors.Infrastructure("presence cleanup lookup failed", err)
	}
	for _, r := range rooms {
		roomID, err := ids.ParseRoomID(r)
		if err != nil {
			continue
		}
		if err := e.OnDisconnect(ctx, roomID, userID); err != nil {
			return err
		}
	}
	return nil
}

// RoomUsers lists users currently present in roomID.
func (e *Engine) RoomUsers(ctx context.Context, roomID ids.RoomID) ([]ids.UserID, error) {
	members, err := e.client.SMembers(ctx, roomUsersKey(roomID)).Result()
	if err != nil {
		return nil, apperrors.Infrastructure("presence room lookup failed", err)
	}
	out := make([]ids.UserID, 0, len(members))
	for _, m := range members {
		uid, err := ids.ParseUserID(m)
		if err != nil {
			continue
		}
		out = append(out, uid)
	}
	return out, nil
}

// Sweep scans every (room, user) pair currently recorded in membership
// sets and evicts any whose liveness key has expired without a clean
// disconnect (e.g. the process died mid-session). Intended to run on a
// ticker at presence.sweep_interval_seconds.
func (e *Engine) Sweep(ctx context.Context) error {
	// Membership sets are the source of truth for "who to check"; the
	// liveness key's own TTL is what actually expires. A user surviving
	// in the membership set with no liveness key is stale and is evicted.
	pattern := "presence:room_users:*"
	iter := e.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		roomKey := iter.Val()
		roomID, err := ids.ParseRoomID(roomKey[len("presence:room_users:"):])
		if err != nil {
			continue
		}
		members, err := e.client.SMembers(ctx, roomKey).Result()
		if err != nil {
			continue
		}
		for _, m := range members {
			userID, err := ids.ParseUserID(m)
			if err != nil {
				continue
			}
			exists, err := e.client.Exists(ctx, livenessKey(roomID, userID)).Result()
			if err != nil {
				continue
			}
			if exists == 0 {
				_ = e.OnDisconnect(ctx, roomID, userID)
			}
		}
	}
	return iter.Err()
}

func (e *Engine) emit(ev models.PresenceEvent) {
	if e.onEvent != nil {
		e.onEvent(ev)
	}
}

func heartbeatKey(roomID ids.RoomID, userID ids.UserID) string {
	return roomID.String() + ":" + userID.String()
}
