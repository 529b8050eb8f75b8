// Package models defines the chat core's entities: plain structs with
// validating constructors and narrow mutators. None of them read the
// clock themselves — every mutator that needs "now" takes it as an
// explicit parameter so callers control time (see internal/clock).
//
// Grounded on the original domain crate's chat_room.rs, message.rs and
// message_delivery.rs, translated onto the teacher repo's plain-struct,
// JSON-tagged style (internal/models/models.go in the teacher).
package models

import (
	"time"

	"github.com/dukepan/multi-rooms-chat-back/internal/apperrors"
	"github.com/dukepan/multi-rooms-chat-back/internal/ids"
)

// RoomVisibility controls whether a room is joinable without an explicit
// invite/password check.
type RoomVisibility string

const (
	RoomPublic  RoomVisibility = "public"
	RoomPrivate RoomVisibility = "private"
)

// MemberRole controls what a RoomMember may do within a room.
type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleAdmin  MemberRole = "admin"
	RoleMember MemberRole = "member"
)

// MessageType distinguishes message payload kinds. File/Image messages
// carry an out-of-band reference in Content (e.g. a storage key) rather
// than raw bytes; the core never inspects or transcodes attachments.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

const maxRoomNameLength = 60

// User is a registered account. PasswordDigest is never serialized.
type User struct {
	ID             ids.UserID
	Username       ids.Username
	Email          ids.Email
	PasswordDigest string `json:"-"`
	CreatedAt      time.Time
}

func NewUser(id ids.UserID, username ids.Username, email ids.Email, digest string, now time.Time) *User {
	return &User{ID: id, Username: username, Email: email, PasswordDigest: digest, CreatedAt: now}
}

// ChatRoom is a named channel, public or password-optional-private.
type ChatRoom struct {
	ID         ids.RoomID
	Name       string
	OwnerID    ids.UserID
	Visibility RoomVisibility
	Password   *string `json:"-"`
	IsClosed   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func validateRoomName(name string) (string, error) {
	n := trimSpace(name)
	if n == "" {
		return "", apperrors.InvalidArgument("room_name", "cannot be empty")
	}
	if len(n) > maxRoomNameLength {
		return "", apperrors.InvalidArgument("room_name", "too long")
	}
	return n, nil
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }

// NewPublicRoom constructs a public room with no password.
func NewPublicRoom(id ids.RoomID, name string, ownerID ids.UserID, now time.Time) (*ChatRoom, error) {
	n, err := validateRoomName(name)
	if err != nil {
		return nil, err
	}
	return &ChatRoom{
		ID: id, Name: n, OwnerID: ownerID, Visibility: RoomPublic,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

// NewPrivateRoom constructs a private room with an optional join password.
func NewPrivateRoom(id ids.RoomID, name string, ownerID ids.UserID, password *string, now time.Time) (*ChatRoom, error) {
	n, err := validateRoomName(name)
	if err != nil {
		return nil, err
	}
	return &ChatRoom{
		ID: id, Name: n, OwnerID: ownerID, Visibility: RoomPrivate, Password: password,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

func (r *ChatRoom) Rename(name string, now time.Time) error {
	n, err := validateRoomName(name)
	if err != nil {
		return err
	}
	r.Name = n
	r.UpdatedAt = now
	return nil
}

func (r *ChatRoom) ChangeOwner(userID ids.UserID, now time.Time) {
	r.OwnerID = userID
	r.UpdatedAt = now
}

func (r *ChatRoom) SetPrivate(password *string, now time.Time) {
	r.Visibility = RoomPrivate
	r.Password = password
	r.UpdatedAt = now
}

func (r *ChatRoom) SetPublic(now time.Time) {
	r.Visibility = RoomPublic
	r.Password = nil
	r.UpdatedAt = now
}

func (r *ChatRoom) Close(now time.Time) {
	r.IsClosed = true
	r.UpdatedAt = now
}

func (r *ChatRoom) Reopen(now time.Time) {
	r.IsClosed = false
	r.UpdatedAt = now
}

// RoomMember is a user's membership in a room.
type RoomMember struct {
	RoomID   ids.RoomID
	UserID   ids.UserID
	Role     MemberRole
	JoinedAt time.Time
}

func NewRoomMember(roomID ids.RoomID, userID ids.UserID, role MemberRole, now time.Time) *RoomMember {
	return &RoomMember{RoomID: roomID, UserID: userID, Role: role, JoinedAt: now}
}

// MessageRevision captures the content a message held before its most
// recent edit. Only the immediately-prior revision is kept (spec open
// question (a): unbounded history was never requested and last_revision
// in the original is already singular, not a chain).
type MessageRevision struct {
	Content   ids.MessageContent
	UpdatedAt time.Time
}

// Message is a single chat message posted to a room.
type Message struct {
	ID           ids.MessageID
	RoomID       ids.RoomID
	SenderID     ids.UserID
	Content      ids.MessageContent
	Type         MessageType
	ReplyTo      *ids.MessageID
	CreatedAt    time.Time
	LastRevision *MessageRevision
	IsDeleted    bool `json:"-"`
}

func NewMessage(id ids.MessageID, roomID ids.RoomID, senderID ids.UserID, content ids.MessageContent, typ MessageType, replyTo *ids.MessageID, now time.Time) *Message {
	return &Message{
		ID: id, RoomID: roomID, SenderID: senderID, Content: content, Type: typ,
		ReplyTo: replyTo, CreatedAt: now,
	}
}

// Edit replaces the message's content, stashing the prior content as the
// last revision. Editing a deleted message is not allowed.
func (m *Message) Edit(content ids.MessageContent, now time.Time) error {
	if m.IsDeleted {
		return apperrors.OperationNotAllowed("message has been deleted")
	}
	m.LastRevision = &MessageRevision{Content: m.Content, UpdatedAt: now}
	m.Content = content
	return nil
}

func (m *Message) MarkDeleted() {
	m.IsDeleted = true
}

// SequencedMessage pairs a persisted message with its per-room monotonic
// sequence number, assigned once and never reused.
type SequencedMessage struct {
	Message    Message
	SequenceID uint64
}

// DeliveryRecord tracks whether a message has been handed to, and
// acknowledged by, one recipient's active session.
type DeliveryRecord struct {
	MessageID   ids.MessageID
	UserID      ids.UserID
	SentAt      time.Time
	DeliveredAt *time.Time
}

func NewDeliveryRecord(messageID ids.MessageID, userID ids.UserID, sentAt time.Time) *DeliveryRecord {
	return &DeliveryRecord{MessageID: messageID, UserID: userID, SentAt: sentAt}
}

func (d *DeliveryRecord) IsDelivered() bool { return d.DeliveredAt != nil }

func (d *DeliveryRecord) MarkDelivered(at time.Time) {
	d.DeliveredAt = &at
}

func (d *DeliveryRecord) DeliveryDelay() (time.Duration, bool) {
	if d.DeliveredAt == nil {
		return 0, false
	}
	return d.DeliveredAt.Sub(d.SentAt), true
}

// PresenceEventKind enumerates the events the stats sink consumes.
type PresenceEventKind string

const (
	EventConnected    PresenceEventKind = "connected"
	EventDisconnected PresenceEventKind = "disconnected"
	EventHeartbeat    PresenceEventKind = "heartbeat"
)

// PresenceEvent is a fact about a session's lifecycle, queued for an
// external aggregator. OrgPath is optional; the core's event constructors
// leave it empty and the core never reads it.
type PresenceEvent struct {
	Kind    PresenceEventKind
	UserID  ids.UserID
	RoomID  ids.RoomID
	OrgPath ids.OrgPath `json:"org_path,omitempty"`
	At      time.Time
}

func NewConnectionEvent(userID ids.UserID, roomID ids.RoomID, now time.Time) PresenceEvent {
	return PresenceEvent{Kind: EventConnected, UserID: userID, RoomID: roomID, At: now}
}

func NewDisconnectionEvent(userID ids.UserID, roomID ids.RoomID, now time.Time) PresenceEvent {
	return PresenceEvent{Kind: EventDisconnected, UserID: userID, RoomID: roomID, At: now}
}

func NewHeartbeatEvent(userID ids.UserID, roomID ids.RoomID, now time.Time) PresenceEvent {
	return PresenceEvent{Kind: EventHeartbeat, UserID: userID, RoomID: roomID, At: now}
}
