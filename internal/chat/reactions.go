package chat

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dukepan/multi-rooms-chat-back/internal/apperrors"
	"github.com/dukepan/multi-rooms-chat-back/internal/broadcast"
	"github.com/dukepan/multi-rooms-chat-back/internal/ids"
)

// Reactions and read receipts supplement the distilled spec: both exist
// in the teacher (internal/db/queries.go's AddMessageReaction/
// GetMessageReads) and in the original domain's message_delivery.rs. Kept
// as a thin layer directly over the pool, since neither needs the
// entity-invariant machinery the core Message/ChatRoom types carry.
type ReactionStore struct {
	pool   *pgxpool.Pool
	fabric broadcast.Broadcaster
}

func NewReactionStore(pool *pgxpool.Pool, fabric broadcast.Broadcaster) *ReactionStore {
	return &ReactionStore{pool: pool, fabric: fabric}
}

func (r *ReactionStore) AddReaction(ctx context.Context, roomID ids.RoomID, messageID ids.MessageID, userID ids.UserID, emoji string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO message_reactions (message_id, user_id, emoji, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (message_id, user_id, emoji) DO NOTHING`,
		messageID.String(), userID.String(), emoji, time.Now(),
	)
	if err != nil {
		return apperrors.Infrastructure("add reaction failed", err)
	}
	r.fabric.Broadcast(roomID, broadcast.Envelope{RoomID: roomID, Type: "reaction_added", Payload: map[string]string{
		"message_id": messageID.String(), "user_id": userID.String(), "emoji": emoji,
	}})
	return nil
}

func (r *ReactionStore) RemoveReaction(ctx context.Context, roomID ids.RoomID, messageID ids.MessageID, userID ids.UserID, emoji string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
		messageID.String(), userID.String(), emoji,
	)
	if err != nil {
		return apperrors.Infrastructure("remove reaction failed", err)
	}
	r.fabric.Broadcast(roomID, broadcast.Envelope{RoomID: roomID, Type: "reaction_removed", Payload: map[string]string{
		"message_id": messageID.String(), "user_id": userID.String(), "emoji": emoji,
	}})
	return nil
}

func (r *ReactionStore) MarkRead(ctx context.Context, messageID ids.MessageID, userID ids.UserID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO message_reads (message_id, user_id, read_at) VALUES ($1, $2, $3)
		 ON CONFLICT (message_id, user_id) DO NOTHING`,
		messageID.String(), userID.String(), time.Now(),
	)
	if err != nil {
		return apperrors.Infrastructure("mark read failed", err)
	}
	return nil
}
