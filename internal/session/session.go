// Package session is the façade between a WebSocket connection and the
// chat core: token verification, join, subscribe with backlog replay,
// concurrent inbound/outbound pumps, and teardown — the six-step
// lifecycle spec.md assigns to "session".
//
// Adapted from the teacher's rooms.Client read/write pump pair
// (internal/rooms/client.go), generalized from its unconditional
// broadcast relay into fabric-subscribed delivery with delivery-ack
// tracking, and from its ad hoc cache.SetUserPresence calls into calls
// against a dedicated presence.Engine.
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dukepan/multi-rooms-chat-back/internal/apperrors"
	"github.com/dukepan/multi-rooms-chat-back/internal/broadcast"
	"github.com/dukepan/multi-rooms-chat-back/internal/chat"
	"github.com/dukepan/multi-rooms-chat-back/internal/delivery"
	"github.com/dukepan/multi-rooms-chat-back/internal/ids"
	"github.com/dukepan/multi-rooms-chat-back/internal/models"
	"github.com/dukepan/multi-rooms-chat-back/internal/presence"
	"github.com/dukepan/multi-rooms-chat-back/internal/ratelimit"
	"github.com/dukepan/multi-rooms-chat-back/internal/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// InboundFrame is the JSON shape a client sends.
type InboundFrame struct {
	Type      string  `json:"type"`
	Content   string  `json:"content,omitempty"`
	MsgType   string  `json:"message_type,omitempty"`
	ReplyTo   *string `json:"reply_to,omitempty"`
	MessageID string  `json:"message_id,omitempty"`
	Emoji     string  `json:"emoji,omitempty"`
}

// OutboundFrame is the JSON shape the server sends.
type OutboundFrame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Session wraps one WebSocket connection for one (user, room) pair.
type Session struct {
	conn     *websocket.Conn
	roomID   ids.RoomID
	userID   ids.UserID
	role     models.MemberRole
	chatSvc  *chat.Service
	presence *presence.Engine
	ratelim  *ratelimit.Limiter
	delivery *delivery.Tracker
	fabric   *broadcast.Fabric
	logger   *utils.Logger

	send chan OutboundFrame
}

func New(conn *websocket.Conn, roomID ids.RoomID, userID ids.UserID, role models.MemberRole, chatSvc *chat.Service, pres *presence.Engine, ratelim *ratelimit.Limiter, deliv *delivery.Tracker, fabric *broadcast.Fabric, logger *utils.Logger) *Session {
	return &Session{
		conn: conn, roomID: roomID, userID: userID, role: role,
		chatSvc: chatSvc, presence: pres, ratelim: ratelim, delivery: deliv, fabric: fabric, logger: logger,
		send: make(chan OutboundFrame, 256),
	}
}

// Run drives the session's full lifecycle: admit, subscribe with backlog
// replay, run inbound/outbound loops concurrently, teardown on either
// loop's exit.
func (s *Session) Run(ctx context.Context) {
	if err := s.ratelim.AddConnection(ctx, s.userID); err != nil {
		s.logger.Error(ctx, "connection rejected for user %s: %v", s.userID.String(), err)
		_ = s.conn.WriteJSON(OutboundFrame{Type: "error", Payload: err.Error()})
		s.conn.Close()
		return
	}
	if err := s.presence.OnConnect(ctx, s.roomID, s.userID); err != nil {
		s.logger.Error(ctx, "presence connect failed for user %s: %v", s.userID.String(), err)
	}

	sub := s.fabric.Subscribe(s.roomID)
	defer sub.Close()
	defer s.fabric.StopRelay(s.roomID)

	s.replayBacklog(ctx)

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.outboundLoop(sessionCtx, sub)
		close(done)
	}()
	s.inboundLoop(sessionCtx, cancel)
	<-done

	s.teardown()
}

func (s *Session) replayBacklog(ctx context.Context) {
	backlog, err := s.delivery.GetUndelivered(ctx, s.userID)
	if err != nil {
		s.logger.Error(ctx, "backlog replay failed for user %s: %v", s.userID.String(), err)
		return
	}
	for _, rec := range backlog {
		select {
		case s.send <- OutboundFrame{Type: "backlog", Payload: rec}:
		default:
		}
	}
}

func (s *Session) inboundLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return s.presence.OnHeartbeat(ctx, s.roomID, s.userID)
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame InboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.sendError(apperrors.InvalidArgument("frame", "not valid JSON"))
			continue
		}
		s.dispatch(ctx, frame)
	}
}

func (s *Session) dispatch(ctx context.Context, frame InboundFrame) {
	switch frame.Type {
	case "send_message":
		s.handleSendMessage(ctx, frame)
	case "edit_message":
		s.handleEditMessage(ctx, frame)
	case "delete_message":
		s.handleDeleteMessage(ctx, frame)
	case "ack":
		s.handleAck(ctx, frame)
	case "heartbeat":
		if err := s.presence.OnHeartbeat(ctx, s.roomID, s.userID); err != nil {
			s.logger.Error(ctx, "heartbeat failed: %v", err)
		}
	default:
		s.sendError(apperrors.InvalidArgument("type", "unknown frame type"))
	}
}

func (s *Session) handleSendMessage(ctx context.Context, frame InboundFrame) {
	var replyTo *ids.MessageID
	if frame.ReplyTo != nil {
		id, err := ids.ParseMessageID(*frame.ReplyTo)
		if err == nil {
			replyTo = &id
		}
	}
	msgType := models.MessageText
	if frame.MsgType != "" {
		msgType = models.MessageType(frame.MsgType)
	}
	_, err := s.chatSvc.SendMessage(ctx, s.roomID, s.userID, frame.Content, msgType, replyTo)
	if err != nil {
		s.sendError(err)
	}
}

func (s *Session) handleEditMessage(ctx context.Context, frame InboundFrame) {
	msgID, err := ids.ParseMessageID(frame.MessageID)
	if err != nil {
		s.sendError(err)
		return
	}
	if _, err := s.chatSvc.EditMessage(ctx, msgID, s.userID, s.role, frame.Content); err != nil {
		s.sendError(err)
	}
}

func (s *Session) handleDeleteMessage(ctx context.Context, frame InboundFrame) {
	msgID, err := ids.ParseMessageID(frame.MessageID)
	if err != nil {
		s.sendError(err)
		return
	}
	if err := s.chatSvc.DeleteMessage(ctx, msgID, s.userID, s.role); err != nil {
		s.sendError(err)
	}
}

func (s *Session) handleAck(ctx context.Context, frame InboundFrame) {
	msgID, err := ids.ParseMessageID(frame.MessageID)
	if err != nil {
		s.sendError(err)
		return
	}
	if err := s.delivery.MarkDelivered(ctx, msgID, s.userID, time.Now()); err != nil {
		s.sendError(err)
	}
}

func (s *Session) sendError(err error) {
	select {
	case s.send <- OutboundFrame{Type: "error", Payload: err.Error()}:
	default:
	}
}

func (s *Session) outboundLoop(ctx context.Context, sub *broadcast.Subscription) {
	defer s.conn.Close()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.C:
			if !ok {
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(OutboundFrame{Type: env.Type, Payload: env.Payload}); err != nil {
				return
			}
		case frame, ok := <-s.send:
			if !ok {
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) teardown() {
	// Detached context: let presence/rate-limit cleanup finish even though
	// the session's own context has just been cancelled, same shape as the
	// teacher's gracefulShutdown's bounded shutdown context, scaled to a
	// single session's teardown.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := s.presence.OnDisconnect(ctx, s.roomID, s.userID); err != nil {
		s.logger.Error(ctx, "presence disconnect failed: %v", err)
	}
	if err := s.ratelim.RemoveConnection(ctx, s.userID); err != nil {
		s.logger.Error(ctx, "connection release failed: %v", err)
	}
}
