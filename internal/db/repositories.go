package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dukepan/multi-rooms-chat-back/internal/apperrors"
	"github.com/dukepan/multi-rooms-chat-back/internal/ids"
	"github.com/dukepan/multi-rooms-chat-back/internal/models"
)

// Repository interfaces the chat service depends on. internal/chat never
// imports *Database directly, only these — the same interface-injection
// idiom the teacher uses to break the rooms/persistence cycle
// (internal/rooms/interfaces.go).
type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id ids.UserID) (*models.User, error)
	GetByUsername(ctx context.Context, username ids.Username) (*models.User, error)
}

type ChatRoomRepository interface {
	// CreateWithOwner persists room and adds ownerID as its Owner member
	// in a single transaction.
	CreateWithOwner(ctx context.Context, room *models.ChatRoom, ownerID ids.UserID) error
	GetByID(ctx context.Context, id ids.RoomID) (*models.ChatRoom, error)
	Update(ctx context.Context, room *models.ChatRoom) error
}

type RoomMemberRepository interface {
	Add(ctx context.Context, m *models.RoomMember) error
	Remove(ctx context.Context, roomID ids.RoomID, userID ids.UserID) error
	Get(ctx context.Context, roomID ids.RoomID, userID ids.UserID) (*models.RoomMember, error)
	ListByRoom(ctx context.Context, roomID ids.RoomID) ([]*models.RoomMember, error)
	UpdateRole(ctx context.Context, roomID ids.RoomID, userID ids.UserID, role models.MemberRole) error
}

type MessageRepository interface {
	Create(ctx context.Context, m *models.Message) error
	GetByID(ctx context.Context, id ids.MessageID) (*models.Message, error)
	Update(ctx context.Context, m *models.Message) error
	History(ctx context.Context, roomID ids.RoomID, limit int, before *time.Time) ([]*models.Message, error)
	Search(ctx context.Context, roomID ids.RoomID, query string, limit int) ([]*models.Message, error)
}

// pgError, when non-nil, is a driver-level error classifiable by SQLSTATE.
func pgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	ok := errors.As(err, &pgErr)
	return pgErr, ok
}

const uniqueViolation = "23505"

func mapWriteError(err error, conflict *apperrors.Error) error {
	if err == nil {
		return nil
	}
	if pgErr, ok := pgError(err); ok && pgErr.Code == uniqueViolation {
		return conflict
	}
	return apperrors.Infrastructure("database write failed", err)
}

// --- Users ---

type userRepo struct{ db *Database }

func NewUserRepository(db *Database) UserRepository { return &userRepo{db: db} }

func (r *userRepo) Create(ctx context.Context, u *models.User) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (id, username, email, password_digest, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID.String(), u.Username.String(), u.Email.String(), u.PasswordDigest, u.CreatedAt,
	)
	return mapWriteError(err, apperrors.UserExists())
}

func (r *userRepo) GetByID(ctx context.Context, id ids.UserID) (*models.User, error) {
	var (
		idStr, username, email, digest string
		createdAt                      time.Time
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, username, email, password_digest, created_at FROM users WHERE id = $1`,
		id.String(),
	).Scan(&idStr, &username, &email, &digest, &createdAt)
	return scanUser(idStr, username, email, digest, createdAt, err)
}

func (r *userRepo) GetByUsername(ctx context.Context, username ids.Username) (*models.User, error) {
	var (
		idStr, uname, email, digest string
		createdAt                   time.Time
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, username, email, password_digest, created_at FROM users WHERE username = $1`,
		username.String(),
	).Scan(&idStr, &uname, &email, &digest, &createdAt)
	return scanUser(idStr, uname, email, digest, createdAt, err)
}

func scanUser(idStr, username, email, digest string, createdAt time.Time, err error) (*models.User, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Infrastructure("user lookup failed", err)
	}
	uid, parseErr := ids.ParseUserID(idStr)
	if parseErr != nil {
		return nil, apperrors.Infrastructure("corrupt user id in storage", parseErr)
	}
	uname, parseErr := ids.NewUsername(username)
	if parseErr != nil {
		return nil, apperrors.Infrastructure("corrupt username in storage", parseErr)
	}
	mail, parseErr := ids.NewEmail(email)
	if parseErr != nil {
		return nil, apperrors.Infrastructure("corrupt email in storage", parseErr)
	}
	return &models.User{ID: uid, Username: uname, Email: mail, PasswordDigest: digest, CreatedAt: createdAt}, nil
}

// --- Chat rooms ---

type chatRoomRepo struct{ db *Database }

func NewChatRoomRepository(db *Database) ChatRoomRepository { return &chatRoomRepo{db: db} }

// CreateWithOwner wraps the room insert and the owner's membership insert
// in a single transaction — the one multi-statement transaction the chat
// service requires, closing the teacher's gap where CreateRoom and
// AddRoomMember ran as two independent Execs (internal/db/queries.go).
func (r *chatRoomRepo) CreateWithOwner(ctx context.Context, room *models.ChatRoom, ownerID ids.UserID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return apperrors.Infrastructure("begin create room transaction failed", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO chat_rooms (id, name, owner_id, visibility, password_digest, is_closed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		room.ID.String(), room.Name, room.OwnerID.String(), room.Visibility, room.Password, room.IsClosed, room.CreatedAt, room.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(err, apperrors.Conflict("room already exists"))
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO room_members (room_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4)`,
		room.ID.String(), ownerID.String(), models.RoleOwner, room.CreatedAt,
	)
	if err != nil {
		return apperrors.Infrastructure("insert owner membership failed", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return apperrors.Infrastructure("commit create room transaction failed", err)
	}
	return nil
}

func (r *chatRoomRepo) GetByID(ctx context.Context, id ids.RoomID) (*models.ChatRoom, error) {
	var (
		idStr, ownerIDStr, name string
		visibility              models.RoomVisibility
		password                *string
		isClosed                bool
		createdAt, updatedAt    time.Time
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, name, owner_id, visibility, password_digest, is_closed, created_at, updated_at
		 FROM chat_rooms WHERE id = $1`,
		id.String(),
	).Scan(&idStr, &name, &ownerIDStr, &visibility, &password, &isClosed, &createdAt, &updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Infrastructure("room lookup failed", err)
	}
	roomID, parseErr := ids.ParseRoomID(idStr)
	if parseErr != nil {
		return nil, apperrors.Infrastructure("corrupt room id in storage", parseErr)
	}
	ownerID, parseErr := ids.ParseUserID(ownerIDStr)
	if parseErr != nil {
		return nil, apperrors.Infrastructure("corrupt owner id in storage", parseErr)
	}
	return &models.ChatRoom{
		ID: roomID, Name: name, OwnerID: ownerID, Visibility: visibility,
		Password: password, IsClosed: isClosed, CreatedAt: createdAt, UpdatedAt: updatedAt,
	}, nil
}

func (r *chatRoomRepo) Update(ctx context.Context, room *models.ChatRoom) error {
	_, err := r.db.Exec(ctx,
		`UPDATE chat_rooms SET name = $2, owner_id = $3, visibility = $4, password_digest = $5, is_closed = $6, updated_at = $7
		 WHERE id = $1`,
		room.ID.String(), room.Name, room.OwnerID.String(), room.Visibility, room.Password, room.IsClosed, room.UpdatedAt,
	)
	if err != nil {
		return apperrors.Infrastructure("room update failed", err)
	}
	return nil
}

// --- Room members ---

type roomMemberRepo struct{ db *Database }

func NewRoomMemberRepository(db *Database) RoomMemberRepository { return &roomMemberRepo{db: db} }

func (r *roomMemberRepo) Add(ctx context.Context, m *models.RoomMember) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO room_members (room_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4)`,
		m.RoomID.String(), m.UserID.String(), m.Role, m.JoinedAt,
	)
	return mapWriteError(err, apperrors.MembershipExists())
}

func (r *roomMemberRepo) Remove(ctx context.Context, roomID ids.RoomID, userID ids.UserID) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM room_members WHERE room_id = $1 AND user_id = $2`,
		roomID.String(), userID.String(),
	)
	if err != nil {
		return apperrors.Infrastructure("remove membership failed", err)
	}
	return nil
}

func (r *roomMemberRepo) Get(ctx context.Context, roomID ids.RoomID, userID ids.UserID) (*models.RoomMember, error) {
	var (
		role     models.MemberRole
		joinedAt time.Time
	)
	err := r.db.QueryRow(ctx,
		`SELECT role, joined_at FROM room_members WHERE room_id = $1 AND user_id = $2`,
		roomID.String(), userID.String(),
	).Scan(&role, &joinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Infrastructure("membership lookup failed", err)
	}
	return &models.RoomMember{RoomID: roomID, UserID: userID, Role: role, JoinedAt: joinedAt}, nil
}

func (r *roomMemberRepo) ListByRoom(ctx context.Context, roomID ids.RoomID) ([]*models.RoomMember, error) {
	rows, err := r.db.Query(ctx,
		`SELECT user_id, role, joined_at FROM room_members WHERE room_id = $1 ORDER BY joined_at ASC`,
		roomID.String(),
	)
	if err != nil {
		return nil, apperrors.Infrastructure("list members failed", err)
	}
	defer rows.Close()

	var out []*models.RoomMember
	for rows.Next() {
		var (
			userIDStr string
			role      models.MemberRole
			joinedAt  time.Time
		)
		if err := rows.Scan(&userIDStr, &role, &joinedAt); err != nil {
			return nil, apperrors.Infrastructure("scan member failed", err)
		}
		userID, parseErr := ids.ParseUserID(userIDStr)
		if parseErr != nil {
			continue
		}
		out = append(out, &models.RoomMember{RoomID: roomID, UserID: userID, Role: role, JoinedAt: joinedAt})
	}
	return out, rows.Err()
}

func (r *roomMemberRepo) UpdateRole(ctx context.Context, roomID ids.RoomID, userID ids.UserID, role models.MemberRole) error {
	_, err := r.db.Exec(ctx,
		`UPDATE room_members SET role = $3 WHERE room_id = $1 AND user_id = $2`,
		roomID.String(), userID.String(), role,
	)
	if err != nil {
		return apperrors.Infrastructure("update member role failed", err)
	}
	return nil
}

// --- Messages ---

type messageRepo struct{ db *Database }

func NewMessageRepository(db *Database) MessageRepository { return &messageRepo{db: db} }

func (r *messageRepo) Create(ctx context.Context, m *models.Message) error {
	var replyTo *string
	if m.ReplyTo != nil {
		s := m.ReplyTo.String()
		replyTo = &s
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO messages (id, room_id, sender_id, content, message_type, reply_to, created_at, is_deleted)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID.String(), m.RoomID.String(), m.SenderID.String(), m.Content.String(), m.Type, replyTo, m.CreatedAt, m.IsDeleted,
	)
	if err != nil {
		return apperrors.Infrastructure("create message failed", err)
	}
	return nil
}

func (r *messageRepo) GetByID(ctx context.Context, id ids.MessageID) (*models.Message, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, room_id, sender_id, content, message_type, reply_to, created_at, is_deleted,
		        last_revision_content, last_revision_updated_at
		 FROM messages WHERE id = $1`,
		id.String(),
	)
	return scanMessage(row)
}

func (r *messageRepo) Update(ctx context.Context, m *models.Message) error {
	var revContent *string
	var revAt *time.Time
	if m.LastRevision != nil {
		s := m.LastRevision.Content.String()
		revContent = &s
		revAt = &m.LastRevision.UpdatedAt
	}
	_, err := r.db.Exec(ctx,
		`UPDATE messages SET content = $2, is_deleted = $3, last_revision_content = $4, last_revision_updated_at = $5
		 WHERE id = $1`,
		m.ID.String(), m.Content.String(), m.IsDeleted, revContent, revAt,
	)
	if err != nil {
		return apperrors.Infrastructure("update message failed", err)
	}
	return nil
}

func (r *messageRepo) History(ctx context.Context, roomID ids.RoomID, limit int, before *time.Time) ([]*models.Message, error) {
	query := `SELECT id, room_id, sender_id, content, message_type, reply_to, created_at, is_deleted,
	                 last_revision_content, last_revision_updated_at
	          FROM messages WHERE room_id = $1`
	args := []interface{}{roomID.String()}
	if before != nil {
		query += fmt.Sprintf(" AND created_at < $%d", len(args)+1)
		args = append(args, *before)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Infrastructure("history query failed", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *messageRepo) Search(ctx context.Context, roomID ids.RoomID, query string, limit int) ([]*models.Message, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, room_id, sender_id, content, message_type, reply_to, created_at, is_deleted,
		        last_revision_content, last_revision_updated_at
		 FROM messages
		 WHERE room_id = $1 AND is_deleted = false AND tsv @@ plainto_tsquery('english', $2)
		 ORDER BY ts_rank(tsv, plainto_tsquery('english', $2)) DESC, created_at DESC
		 LIMIT $3`,
		roomID.String(), query, limit,
	)
	if err != nil {
		return nil, apperrors.Infrastructure("search query failed", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var (
		idStr, roomIDStr, senderIDStr, content string
		msgType                                models.MessageType
		replyTo                                *string
		createdAt                              time.Time
		isDeleted                              bool
		revContent                             *string
		revAt                                  *time.Time
	)
	if err := row.Scan(&idStr, &roomIDStr, &senderIDStr, &content, &msgType, &replyTo, &createdAt, &isDeleted, &revContent, &revAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.Infrastructure("message lookup failed", err)
	}
	return buildMessage(idStr, roomIDStr, senderIDStr, content, msgType, replyTo, createdAt, isDeleted, revContent, revAt)
}

func scanMessages(rows pgx.Rows) ([]*models.Message, error) {
	var out []*models.Message
	for rows.Next() {
		var (
			idStr, roomIDStr, senderIDStr, content string
			msgType                                models.MessageType
			replyTo                                *string
			createdAt                               time.Time
			isDeleted                               bool
			revContent                              *string
			revAt                                   *time.Time
		)
		if err := rows.Scan(&idStr, &roomIDStr, &senderIDStr, &content, &msgType, &replyTo, &createdAt, &isDeleted, &revContent, &revAt); err != nil {
			return nil, apperrors.Infrastructure("scan message failed", err)
		}
		m, err := buildMessage(idStr, roomIDStr, senderIDStr, content, msgType, replyTo, createdAt, isDeleted, revContent, revAt)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func buildMessage(idStr, roomIDStr, senderIDStr, content string, msgType models.MessageType, replyTo *string, createdAt time.Time, isDeleted bool, revContent *string, revAt *time.Time) (*models.Message, error) {
	msgID, err := ids.ParseMessageID(idStr)
	if err != nil {
		return nil, apperrors.Infrastructure("corrupt message id in storage", err)
	}
	roomID, err := ids.ParseRoomID(roomIDStr)
	if err != nil {
		return nil, apperrors.Infrastructure("corrupt room id in storage", err)
	}
	senderID, err := ids.ParseUserID(senderIDStr)
	if err != nil {
		return nil, apperrors.Infrastructure("corrupt sender id in storage", err)
	}
	msgContent, err := ids.NewMessageContent(content)
	if err != nil {
		// Deleted/edited-away content may no longer validate; keep the
		// raw value rather than fail the whole read.
		msgContent = ids.MessageContent(content)
	}
	var replyID *ids.MessageID
	if replyTo != nil {
		rid, err := ids.ParseMessageID(*replyTo)
		if err == nil {
			replyID = &rid
		}
	}
	var revision *models.MessageRevision
	if revContent != nil && revAt != nil {
		revision = &models.MessageRevision{Content: ids.MessageContent(*revContent), UpdatedAt: *revAt}
	}
	return &models.Message{
		ID: msgID, RoomID: roomID, SenderID: senderID, Content: msgContent, Type: msgType,
		ReplyTo: replyID, CreatedAt: createdAt, IsDeleted: isDeleted, LastRevision: revision,
	}, nil
}
