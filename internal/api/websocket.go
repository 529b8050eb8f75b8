package api

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/gorilla/websocket"

	"github.com/dukepan/multi-rooms-chat-back/internal/apperrors"
	"github.com/dukepan/multi-rooms-chat-back/internal/ids"
	"github.com/dukepan/multi-rooms-chat-back/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// joinFrame is the first frame a client must send after the WebSocket
// upgrade completes, naming the room it wants to join.
type joinFrame struct {
	RoomID   string  `json:"room_id"`
	Password *string `json:"password,omitempty"`
}

// WebSocketHandler upgrades an authenticated connection, then reads the
// client's join_room frame before handing off to a session.Session — the
// upgrade -> verify token -> join_room ordering spec.md's session lifecycle
// requires.
func (r *Router) WebSocketHandler(w http.ResponseWriter, req *http.Request) {
	ctx, span := otel.Tracer("websocket-server").Start(req.Context(), "WebSocketConnection")
	defer span.End()

	token := req.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "Missing token", http.StatusUnauthorized)
		span.SetStatus(codes.Error, "Missing token")
		return
	}

	claims, err := r.jwtMgr.ValidateToken(token)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		span.SetStatus(codes.Error, fmt.Sprintf("Invalid token: %v", err))
		return
	}
	span.SetAttributes(attribute.String("user.id", claims.UserID.String()))

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		span.SetStatus(codes.Error, fmt.Sprintf("failed to upgrade WebSocket connection: %v", err))
		return
	}

	var join joinFrame
	if err := conn.ReadJSON(&join); err != nil {
		span.SetStatus(codes.Error, fmt.Sprintf("failed to read join_room frame: %v", err))
		_ = conn.WriteJSON(session.OutboundFrame{Type: "error", Payload: "expected join_room frame"})
		conn.Close()
		return
	}
	roomID, err := ids.ParseRoomID(join.RoomID)
	if err != nil {
		span.SetStatus(codes.Error, fmt.Sprintf("invalid room_id in join_room frame: %v", err))
		_ = conn.WriteJSON(session.OutboundFrame{Type: "error", Payload: "invalid room_id"})
		conn.Close()
		return
	}
	span.SetAttributes(attribute.String("room.id", roomID.String()))

	// join_room is idempotent: a caller who is already a member joins again
	// for free, any other failure (room closed, wrong password, ...) ends
	// the connection.
	if err := r.chatSvc.JoinRoom(ctx, roomID, claims.UserID, join.Password); err != nil {
		if appErr, ok := apperrors.As(err); !ok || appErr.Kind != apperrors.KindMembershipExists {
			span.SetStatus(codes.Error, fmt.Sprintf("join_room failed for room %s: %v", roomID, err))
			_ = conn.WriteJSON(session.OutboundFrame{Type: "error", Payload: err.Error()})
			conn.Close()
			return
		}
	}

	member, err := r.members.Get(ctx, roomID, claims.UserID)
	if err != nil || member == nil {
		span.SetStatus(codes.Error, fmt.Sprintf("membership lookup failed after join for room %s: %v", roomID, err))
		_ = conn.WriteJSON(session.OutboundFrame{Type: "error", Payload: "not a member of this room"})
		conn.Close()
		return
	}

	span.SetStatus(codes.Ok, "WebSocket connection established")

	sess := session.New(conn, roomID, claims.UserID, member.Role, r.chatSvc, r.presence, r.ratelim, r.delivery, r.fabric, r.logger)
	sess.Run(req.Context())
}
