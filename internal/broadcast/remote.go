// Remote tier: cross-process fan-out over Redis Pub/Sub. Grounded on the
// teacher's cache.Cache.Publish/Subscribe (internal/cache/cache.go) and
// persistence.SyncEngine's channel-per-concern dispatch
// (internal/persistence/sync.go), generalized to one channel per room.
package broadcast

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/dukepan/multi-rooms-chat-back/internal/apperrors"
	"github.com/dukepan/multi-rooms-chat-back/internal/cache"
	"github.com/dukepan/multi-rooms-chat-back/internal/ids"
	"github.com/dukepan/multi-rooms-chat-back/internal/utils"
)

// frameLengthSize is the width of the big-endian length prefix carried in
// front of every Redis pub/sub envelope, matching spec.md's wire framing
// for the remote broadcast tier.
const frameLengthSize = 4

func roomChannel(roomID ids.RoomID) string { return fmt.Sprintf("room.%s", roomID.String()) }

// Remote publishes envelopes to Redis and relays inbound ones onto a
// local Topic so same-process subscribers see both locally-originated and
// remotely-originated messages through one API.
type Remote struct {
	cache  *cache.Cache
	local  *Topic
	logger *utils.Logger
}

func NewRemote(c *cache.Cache, local *Topic, logger *utils.Logger) *Remote {
	return &Remote{cache: c, local: local, logger: logger}
}

// Publish marshals env and publishes it on roomID's Redis channel, framed
// as a 4-byte big-endian length prefix followed by the JSON body.
func (r *Remote) Publish(ctx context.Context, roomID ids.RoomID, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return apperrors.Infrastructure("marshal broadcast envelope failed", err)
	}
	frame := make([]byte, frameLengthSize+len(data))
	binary.BigEndian.PutUint32(frame[:frameLengthSize], uint32(len(data)))
	copy(frame[frameLengthSize:], data)
	if err := r.cache.Publish(ctx, roomChannel(roomID), frame); err != nil {
		return apperrors.Infrastructure("publish to remote tier failed", err)
	}
	return nil
}

// Relay subscribes to roomID's Redis channel and forwards every message
// onto the local topic until ctx is cancelled or the subscription channel
// closes. Call once per room that has at least one local subscriber. Relay
// does not resubscribe: once it returns it makes no reconnect attempt and
// applies no backoff.
func (r *Remote) Relay(ctx context.Context, roomID ids.RoomID) {
	pubsub := r.cache.Subscribe(ctx, roomChannel(roomID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			payload := []byte(msg.Payload)
			if len(payload) < frameLengthSize {
				r.logger.Error(ctx, "discarding broadcast frame shorter than length prefix")
				continue
			}
			want := binary.BigEndian.Uint32(payload[:frameLengthSize])
			body := payload[frameLengthSize:]
			if int(want) != len(body) {
				r.logger.Error(ctx, "discarding broadcast frame with mismatched length prefix: want %d got %d", want, len(body))
				continue
			}
			var env Envelope
			if err := json.Unmarshal(body, &env); err != nil {
				r.logger.Error(ctx, "discarding malformed broadcast envelope: %v", err)
				continue
			}
			r.local.Broadcast(roomID, env)
		}
	}
}
