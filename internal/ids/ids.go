// Package ids defines the identifier and value types shared across the
// chat core. Each identifier wraps uuid.UUID so that a UserID can never be
// passed where a RoomID is expected, and value types carry their own
// validation so invalid data can't be constructed away from the edges.
package ids

import (
	"strings"

	"github.com/google/uuid"

	"github.com/dukepan/multi-rooms-chat-back/internal/apperrors"
)

// UserID identifies a registered user.
type UserID uuid.UUID

func NewUserID() UserID { return UserID(uuid.New()) }

func ParseUserID(s string) (UserID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, apperrors.InvalidArgument("user_id", "not a valid identifier")
	}
	return UserID(u), nil
}

func (id UserID) String() string { return uuid.UUID(id).String() }
func (id UserID) IsZero() bool   { return uuid.UUID(id) == uuid.Nil }

func (id UserID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id *UserID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = UserID(u)
	return nil
}

// RoomID identifies a chat room.
type RoomID uuid.UUID

func NewRoomID() RoomID { return RoomID(uuid.New()) }

func ParseRoomID(s string) (RoomID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return RoomID{}, apperrors.InvalidArgument("room_id", "not a valid identifier")
	}
	return RoomID(u), nil
}

func (id RoomID) String() string { return uuid.UUID(id).String() }
func (id RoomID) IsZero() bool   { return uuid.UUID(id) == uuid.Nil }

func (id RoomID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id *RoomID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = RoomID(u)
	return nil
}

// MessageID identifies a single message.
type MessageID uuid.UUID

func NewMessageID() MessageID { return MessageID(uuid.New()) }

func ParseMessageID(s string) (MessageID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return MessageID{}, apperrors.InvalidArgument("message_id", "not a valid identifier")
	}
	return MessageID(u), nil
}

func (id MessageID) String() string { return uuid.UUID(id).String() }
func (id MessageID) IsZero() bool   { return uuid.UUID(id) == uuid.Nil }

func (id MessageID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id *MessageID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = MessageID(u)
	return nil
}

// Email is a validated, lower-cased email address.
type Email string

func NewEmail(raw string) (Email, error) {
	s := strings.TrimSpace(strings.ToLower(raw))
	if s == "" {
		return "", apperrors.InvalidArgument("email", "cannot be empty")
	}
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 || strings.ContainsAny(s, " \t\n") {
		return "", apperrors.InvalidArgument("email", "not a valid address")
	}
	if len(s) > 254 {
		return "", apperrors.InvalidArgument("email", "too long")
	}
	return Email(s), nil
}

func (e Email) String() string { return string(e) }

// Username is a validated handle, 3-32 characters, alnum/underscore/dash.
type Username string

func NewUsername(raw string) (Username, error) {
	s := strings.TrimSpace(raw)
	if len(s) < 3 {
		return "", apperrors.InvalidArgument("username", "must be at least 3 characters")
	}
	if len(s) > 32 {
		return "", apperrors.InvalidArgument("username", "must be at most 32 characters")
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return "", apperrors.InvalidArgument("username", "may only contain letters, digits, '_' and '-'")
		}
	}
	return Username(s), nil
}

func (u Username) String() string { return string(u) }

// MessageContent is a validated, non-empty, bounded message body.
type MessageContent string

const MaxMessageContentLength = 4000

func NewMessageContent(raw string) (MessageContent, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", apperrors.InvalidArgument("content", "cannot be empty")
	}
	if len(s) > MaxMessageContentLength {
		return "", apperrors.InvalidArgument("content", "too long")
	}
	return MessageContent(s), nil
}

func (c MessageContent) String() string { return string(c) }

// OrgPath is a labeled ancestor chain (root first) used only to tag
// outbound presence events for an external aggregator; the core never
// reads it back.
type OrgPath []string

func (p OrgPath) IsAncestorOf(other OrgPath) bool {
	if len(p) >= len(other) {
		return false
	}
	for i, seg := range p {
		if other[i] != seg {
			return false
		}
	}
	return true
}

func (p OrgPath) Contains(label string) bool {
	for _, seg := range p {
		if seg == label {
			return true
		}
	}
	return false
}

func (p OrgPath) String() string { return strings.Join(p, "/") }
