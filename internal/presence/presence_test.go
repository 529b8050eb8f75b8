package presence_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukepan/multi-rooms-chat-back/internal/clock"
	"github.com/dukepan/multi-rooms-chat-back/internal/ids"
	"github.com/dukepan/multi-rooms-chat-back/internal/models"
	"github.com/dukepan/multi-rooms-chat-back/internal/presence"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []models.PresenceEvent
}

func (r *eventRecorder) record(ev models.PresenceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) kinds() []models.PresenceEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.PresenceEventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func newTestEngine(t *testing.T, now time.Time) (*presence.Engine, *eventRecorder, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	rec := &eventRecorder{}
	engine := presence.New(client, clock.Fixed(now), 90*time.Second, rec.record)
	return engine, rec, mr
}

func TestOnConnectTracksRoomMembership(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	engine, rec, _ := newTestEngine(t, now)
	roomID, userID := ids.NewRoomID(), ids.NewUserID()

	require.NoError(t, engine.OnConnect(ctx, roomID, userID))

	users, err := engine.RoomUsers(ctx, roomID)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, userID, users[0])

	assert.Equal(t, []models.PresenceEventKind{models.EventConnected}, rec.kinds())
}

func TestOnDisconnectRemovesMembership(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t, time.Now())
	roomID, userID := ids.NewRoomID(), ids.NewUserID()

	require.NoError(t, engine.OnConnect(ctx, roomID, userID))
	require.NoError(t, engine.OnDisconnect(ctx, roomID, userID))

	users, err := engine.RoomUsers(ctx, roomID)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestHeartbeatThrottlesEventEmission(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	engine, rec, _ := newTestEngine(t, now)
	roomID, userID := ids.NewRoomID(), ids.NewUserID()

	require.NoError(t, engine.OnConnect(ctx, roomID, userID))
	require.NoError(t, engine.OnHeartbeat(ctx, roomID, userID))
	require.NoError(t, engine.OnHeartbeat(ctx, roomID, userID))

	// Two immediate heartbeats within the 30s throttle window only emit once.
	kinds := rec.kinds()
	heartbeats := 0
	for _, k := range kinds {
		if k == models.EventHeartbeat {
			heartbeats++
		}
	}
	assert.Equal(t, 1, heartbeats)
}

func TestCleanupUserRemovesFromEveryRoom(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t, time.Now())
	userID := ids.NewUserID()
	roomA, roomB := ids.NewRoomID(), ids.NewRoomID()

	require.NoError(t, engine.OnConnect(ctx, roomA, userID))
	require.NoError(t, engine.OnConnect(ctx, roomB, userID))

	require.NoError(t, engine.CleanupUser(ctx, userID))

	usersA, err := engine.RoomUsers(ctx, roomA)
	require.NoError(t, err)
	usersB, err := engine.RoomUsers(ctx, roomB)
	require.NoError(t, err)
	assert.Empty(t, usersA)
	assert.Empty(t, usersB)
}

func TestSweepEvictsExpiredLiveness(t *testing.T) {
	ctx := context.Background()
	engine, _, mr := newTestEngine(t, time.Now())
	roomID, userID := ids.NewRoomID(), ids.NewUserID()

	require.NoError(t, engine.OnConnect(ctx, roomID, userID))

	// Simulate the liveness key expiring without a clean disconnect —
	// the membership set still lists the user.
	mr.FastForward(91 * time.Second)

	require.NoError(t, engine.Sweep(ctx))

	users, err := engine.RoomUsers(ctx, roomID)
	require.NoError(t, err)
	assert.Empty(t, users)
}
