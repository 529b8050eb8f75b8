// Package delivery tracks whether a message has been handed to, and
// acknowledged by, each of its intended recipients. Backed by Postgres so
// undelivered backlogs survive a process restart.
//
// Ported from the original application::delivery::DeliveryTracker trait
// (mark_sent, mark_delivered, get_undelivered, cleanup_delivered) onto the
// teacher's pgx query style (internal/db/queries.go).
package delivery

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dukepan/multi-rooms-chat-back/internal/apperrors"
	"github.com/dukepan/multi-rooms-chat-back/internal/ids"
	"github.com/dukepan/multi-rooms-chat-back/internal/models"
)

type Tracker struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Tracker {
	return &Tracker{pool: pool}
}

// MarkSent records that messageID was handed to userID's session.
// Idempotent: resending to an already-tracked (message, user) pair is a
// no-op rather than an error, matching the teacher's ON CONFLICT DO
// NOTHING idiom for membership inserts.
func (t *Tracker) MarkSent(ctx context.Context, messageID ids.MessageID, userID ids.UserID, sentAt time.Time) error {
	_, err := t.pool.Exec(ctx, `
		INSERT INTO message_deliveries (message_id, user_id, sent_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id, user_id) DO NOTHING
	`, messageID.String(), userID.String(), sentAt)
	if err != nil {
		return apperrors.Infrastructure("mark sent failed", err)
	}
	return nil
}

// MarkDelivered records userID's acknowledgement of messageID. Returns
// apperrors.MessageNotFound if no matching undelivered record exists.
func (t *Tracker) MarkDelivered(ctx context.Context, messageID ids.MessageID, userID ids.UserID, deliveredAt time.Time) error {
	tag, err := t.pool.Exec(ctx, `
		UPDATE message_deliveries
		SET delivered_at = $3
		WHERE message_id = $1 AND user_id = $2 AND delivered_at IS NULL
	`, messageID.String(), userID.String(), deliveredAt)
	if err != nil {
		return apperrors.Infrastructure("mark delivered failed", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.MessageNotFound()
	}
	return nil
}

// GetUndelivered returns userID's pending delivery records, oldest first,
// used to replay a backlog when a session reconnects.
func (t *Tracker) GetUndelivered(ctx context.Context, userID ids.UserID) ([]*models.DeliveryRecord, error) {
	rows, err := t.pool.Query(ctx, `
		SELECT message_id, user_id, sent_at, delivered_at
		FROM message_deliveries
		WHERE user_id = $1 AND delivered_at IS NULL
		ORDER BY sent_at ASC
	`, userID.String())
	if err != nil {
		return nil, apperrors.Infrastructure("get undelivered failed", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// CleanupDelivered removes delivered records older than olderThanHours,
// returning the number of rows removed.
func (t *Tracker) CleanupDelivered(ctx context.Context, olderThanHours int) (int64, error) {
	tag, err := t.pool.Exec(ctx, `
		DELETE FROM message_deliveries
		WHERE delivered_at IS NOT NULL AND delivered_at < now() - ($1 || ' hours')::interval
	`, olderThanHours)
	if err != nil {
		return 0, apperrors.Infrastructure("cleanup delivered failed", err)
	}
	return tag.RowsAffected(), nil
}

func scanRecords(rows pgx.Rows) ([]*models.DeliveryRecord, error) {
	var out []*models.DeliveryRecord
	for rows.Next() {
		var (
			msgIDStr, userIDStr string
			sentAt              time.Time
			deliveredAt         *time.Time
		)
		if err := rows.Scan(&msgIDStr, &userIDStr, &sentAt, &deliveredAt); err != nil {
			return nil, apperrors.Infrastructure("scan delivery record failed", err)
		}
		msgID, err := ids.ParseMessageID(msgIDStr)
		if err != nil {
			continue
		}
		userID, err := ids.ParseUserID(userIDStr)
		if err != nil {
			continue
		}
		out = append(out, &models.DeliveryRecord{
			MessageID: msgID, UserID: userID, SentAt: sentAt, DeliveredAt: deliveredAt,
		})
	}
	return out, rows.Err()
}
