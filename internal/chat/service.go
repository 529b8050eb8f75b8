// Package chat composes the repositories, broadcast fabric, sequencer,
// rate limiter, presence engine and delivery tracker into the operations
// a session invokes: create_room, join_room, leave_room, send_message,
// edit_message, delete_message, admin_history, plus reactions/read
// receipts supplementing the distilled spec from the original source.
package chat

import (
	"context"
	"time"

	"github.com/dukepan/multi-rooms-chat-back/internal/apperrors"
	"github.com/dukepan/multi-rooms-chat-back/internal/broadcast"
	"github.com/dukepan/multi-rooms-chat-back/internal/clock"
	"github.com/dukepan/multi-rooms-chat-back/internal/db"
	"github.com/dukepan/multi-rooms-chat-back/internal/ids"
	"github.com/dukepan/multi-rooms-chat-back/internal/models"
)

// Sequencer is the capability internal/sequencer.Sequencer satisfies.
type Sequencer interface {
	Assign(ctx context.Context, roomID ids.RoomID, messageID ids.MessageID) (uint64, error)
}

// RateLimiter is the capability internal/ratelimit.Limiter satisfies.
type RateLimiter interface {
	CheckMessageRate(ctx context.Context, userID ids.UserID) error
}

// PresenceEngine is the capability internal/presence.Engine satisfies.
type PresenceEngine interface {
	RoomUsers(ctx context.Context, roomID ids.RoomID) ([]ids.UserID, error)
}

// DeliveryTracker is the capability internal/delivery.Tracker satisfies.
type DeliveryTracker interface {
	MarkSent(ctx context.Context, messageID ids.MessageID, userID ids.UserID, sentAt time.Time) error
}

type Service struct {
	rooms      db.ChatRoomRepository
	members    db.RoomMemberRepository
	messages   db.MessageRepository
	fabric     broadcast.Broadcaster
	sequencer  Sequencer
	ratelimit  RateLimiter
	presence   PresenceEngine
	delivery   DeliveryTracker
	clock      clock.Clock
}

func NewService(
	rooms db.ChatRoomRepository,
	members db.RoomMemberRepository,
	messages db.MessageRepository,
	fabric broadcast.Broadcaster,
	sequencer Sequencer,
	ratelimit RateLimiter,
	presence PresenceEngine,
	delivery DeliveryTracker,
	clk clock.Clock,
) *Service {
	return &Service{
		rooms: rooms, members: members, messages: messages, fabric: fabric,
		sequencer: sequencer, ratelimit: ratelimit, presence: presence, delivery: delivery, clock: clk,
	}
}

// CreateRoom creates a room and adds ownerID as its owner, as a single
// transaction (internal/db/repositories.go's ChatRoomRepository.CreateWithOwner).
func (s *Service) CreateRoom(ctx context.Context, name string, ownerID ids.UserID, private bool, password *string) (*models.ChatRoom, error) {
	var room *models.ChatRoom
	var err error
	now := s.clock.Now()
	if private {
		room, err = models.NewPrivateRoom(ids.NewRoomID(), name, ownerID, password, now)
	} else {
		room, err = models.NewPublicRoom(ids.NewRoomID(), name, ownerID, now)
	}
	if err != nil {
		return nil, err
	}
	if err := s.rooms.CreateWithOwner(ctx, room, ownerID); err != nil {
		return nil, err
	}
	return room, nil
}

// JoinRoom admits userID to roomID, enforcing the closed/private/
// already-member invariants.
func (s *Service) JoinRoom(ctx context.Context, roomID ids.RoomID, userID ids.UserID, password *string) error {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return apperrors.RoomNotFound()
	}
	if room.IsClosed {
		return apperrors.RoomClosed()
	}
	existing, err := s.members.Get(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperrors.MembershipExists()
	}
	if room.Visibility == models.RoomPrivate {
		if room.Password != nil {
			if password == nil || *password != *room.Password {
				return apperrors.RoomPrivate()
			}
		}
	}
	member := models.NewRoomMember(roomID, userID, models.RoleMember, s.clock.Now())
	return s.members.Add(ctx, member)
}

// LeaveRoom removes userID from roomID. If the departing member was the
// owner, ownership is promoted automatically: first to the earliest
// Admin, else the oldest remaining Member (spec open question (b)). If
// the room is left with no members, it is closed.
func (s *Service) LeaveRoom(ctx context.Context, roomID ids.RoomID, userID ids.UserID) error {
	member, err := s.members.Get(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if member == nil {
		return apperrors.NotRoomMember()
	}
	if err := s.members.Remove(ctx, roomID, userID); err != nil {
		return err
	}

	if member.Role != models.RoleOwner {
		return nil
	}

	remaining, err := s.members.ListByRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		room, err := s.rooms.GetByID(ctx, roomID)
		if err != nil {
			return err
		}
		if room == nil {
			return nil
		}
		room.Close(s.clock.Now())
		return s.rooms.Update(ctx, room)
	}

	successor := pickSuccessor(remaining)
	if err := s.members.UpdateRole(ctx, roomID, successor.UserID, models.RoleOwner); err != nil {
		return err
	}
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return nil
	}
	room.ChangeOwner(successor.UserID, s.clock.Now())
	return s.rooms.Update(ctx, room)
}

func pickSuccessor(members []*models.RoomMember) *models.RoomMember {
	var bestAdmin, oldest *models.RoomMember
	for _, m := range members {
		if oldest == nil || m.JoinedAt.Before(oldest.JoinedAt) {
			oldest = m
		}
		if m.Role == models.RoleAdmin && (bestAdmin == nil || m.JoinedAt.Before(bestAdmin.JoinedAt)) {
			bestAdmin = m
		}
	}
	if bestAdmin != nil {
		return bestAdmin
	}
	return oldest
}

// SendMessage validates membership, checks the rate limit, persists the
// message, assigns it a sequence number, records a delivery row for every
// currently-online member, and publishes it on the broadcast fabric — in
// that order, so a message is never fanned out before it's durable.
func (s *Service) SendMessage(ctx context.Context, roomID ids.RoomID, senderID ids.UserID, content string, typ models.MessageType, replyTo *ids.MessageID) (*models.SequencedMessage, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, apperrors.RoomNotFound()
	}
	if room.IsClosed {
		return nil, apperrors.RoomClosed()
	}
	member, err := s.members.Get(ctx, roomID, senderID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, apperrors.NotRoomMember()
	}

	if err := s.ratelimit.CheckMessageRate(ctx, senderID); err != nil {
		return nil, err
	}

	msgContent, err := ids.NewMessageContent(content)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	msg := models.NewMessage(ids.NewMessageID(), roomID, senderID, msgContent, typ, replyTo, now)
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	seq, err := s.sequencer.Assign(ctx, roomID, msg.ID)
	if err != nil {
		return nil, err
	}

	online, err := s.presence.RoomUsers(ctx, roomID)
	if err != nil {
		online = nil
	}
	for _, uid := range online {
		_ = s.delivery.MarkSent(ctx, msg.ID, uid, now)
	}

	sequenced := &models.SequencedMessage{Message: *msg, SequenceID: seq}
	s.fabric.Broadcast(roomID, broadcast.Envelope{RoomID: roomID, Type: "message", Payload: sequenced})
	return sequenced, nil
}

// EditMessage replaces a message's content, recording the prior content as
// its last revision, and publishes an edit notification.
func (s *Service) EditMessage(ctx context.Context, messageID ids.MessageID, editorID ids.UserID, editorRole models.MemberRole, newContent string) (*models.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, apperrors.MessageNotFound()
	}
	if msg.SenderID != editorID && editorRole != models.RoleOwner && editorRole != models.RoleAdmin {
		return nil, apperrors.AuthorizationFailed("only the sender or a room admin may edit this message")
	}
	content, err := ids.NewMessageContent(newContent)
	if err != nil {
		return nil, err
	}
	if err := msg.Edit(content, s.clock.Now()); err != nil {
		return nil, err
	}
	if err := s.messages.Update(ctx, msg); err != nil {
		return nil, err
	}
	s.fabric.Broadcast(msg.RoomID, broadcast.Envelope{RoomID: msg.RoomID, Type: "message_edited", Payload: msg})
	return msg, nil
}

// DeleteMessage tombstones a message and publishes a delete notification.
func (s *Service) DeleteMessage(ctx context.Context, messageID ids.MessageID, actorID ids.UserID, actorRole models.MemberRole) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return apperrors.MessageNotFound()
	}
	if msg.SenderID != actorID && actorRole != models.RoleOwner && actorRole != models.RoleAdmin {
		return apperrors.AuthorizationFailed("only the sender or a room admin may delete this message")
	}
	msg.MarkDeleted()
	if err := s.messages.Update(ctx, msg); err != nil {
		return err
	}
	s.fabric.Broadcast(msg.RoomID, broadcast.Envelope{RoomID: msg.RoomID, Type: "message_deleted", Payload: map[string]string{"message_id": messageID.String()}})
	return nil
}

// AdminHistory returns a room's message history, newest first. Restricted
// to Owner/Admin per spec.md's admin_history contract.
func (s *Service) AdminHistory(ctx context.Context, roomID ids.RoomID, requesterID ids.UserID, limit int, before *time.Time) ([]*models.Message, error) {
	member, err := s.members.Get(ctx, roomID, requesterID)
	if err != nil {
		return nil, err
	}
	if member == nil || (member.Role != models.RoleOwner && member.Role != models.RoleAdmin) {
		return nil, apperrors.AuthorizationFailed("admin history requires Owner or Admin role")
	}
	return s.messages.History(ctx, roomID, limit, before)
}
