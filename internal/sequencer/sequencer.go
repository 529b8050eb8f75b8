// Package sequencer assigns each message a monotonically increasing,
// per-room sequence number exactly once, even if the same message id is
// submitted more than once (at-least-once delivery from upstream).
//
// Ported from the original application::sequencer::MessageSequencer,
// which runs the same dedup-or-increment logic as a single Redis Lua
// script so the check and the increment can never race.
package sequencer

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dukepan/multi-rooms-chat-back/internal/apperrors"
	"github.com/dukepan/multi-rooms-chat-back/internal/ids"
)

const processedMessagesTTL = 24 * time.Hour

// assignScript dedups on message id within a room: if the id was already
// assigned a sequence, return it unchanged; otherwise increment the room
// counter and record the mapping.
var assignScript = redis.NewScript(`
local seq_key = KEYS[1]
local processed_key = KEYS[2]
local message_id = ARGV[1]

local existing = redis.call("HGET", processed_key, message_id)
if existing then
	return {0, tonumber(existing)}
end

local seq = redis.call("INCR", seq_key)
redis.call("HSET", processed_key, message_id, seq)
redis.call("EXPIRE", processed_key, ARGV[2])
return {1, seq}
`)

type Sequencer struct {
	client *redis.Client
}

func New(client *redis.Client) *Sequencer {
	return &Sequencer{client: client}
}

func seqKey(roomID ids.RoomID) string       { return fmt.Sprintf("room_sequence:%s", roomID.String()) }
func processedKey(roomID ids.RoomID) string { return fmt.Sprintf("processed_messages:%s", roomID.String()) }

// Assign returns the sequence number for messageID within roomID,
// assigning a new one only the first time it is seen.
func (s *Sequencer) Assign(ctx context.Context, roomID ids.RoomID, messageID ids.MessageID) (uint64, error) {
	res, err := assignScript.Run(ctx, s.client,
		[]string{seqKey(roomID), processedKey(roomID)},
		messageID.String(), int(processedMessagesTTL.Seconds()),
	).Result()
	if err != nil {
		return 0, apperrors.Infrastructure("sequencer assign failed", err)
	}
	pair, ok := res.([]interface{})
	if !ok || len(pair) != 2 {
		return 0, apperrors.Infrastructure("sequencer returned unexpected shape", nil)
	}
	seq, ok := pair[1].(int64)
	if !ok {
		return 0, apperrors.Infrastructure("sequencer returned non-integer sequence", nil)
	}
	return uint64(seq), nil
}

// IsDuplicate reports whether messageID has already been assigned a
// sequence in roomID, without assigning one.
func (s *Sequencer) IsDuplicate(ctx context.Context, roomID ids.RoomID, messageID ids.MessageID) (bool, error) {
	exists, err := s.client.HExists(ctx, processedKey(roomID), messageID.String()).Result()
	if err != nil {
		return false, apperrors.Infrastructure("sequencer duplicate check failed", err)
	}
	return exists, nil
}

// RoomSequence returns the current sequence counter for roomID (0 if no
// message has ever been sequenced in it).
func (s *Sequencer) RoomSequence(ctx context.Context, roomID ids.RoomID) (uint64, error) {
	v, err := s.client.Get(ctx, seqKey(roomID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, apperrors.Infrastructure("sequencer room sequence lookup failed", err)
	}
	return uint64(v), nil
}
