package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukepan/multi-rooms-chat-back/internal/auth"
	"github.com/dukepan/multi-rooms-chat-back/internal/broadcast"
	"github.com/dukepan/multi-rooms-chat-back/internal/chat"
	"github.com/dukepan/multi-rooms-chat-back/internal/config"
	"github.com/dukepan/multi-rooms-chat-back/internal/db"
	"github.com/dukepan/multi-rooms-chat-back/internal/delivery"
	"github.com/dukepan/multi-rooms-chat-back/internal/middleware"
	"github.com/dukepan/multi-rooms-chat-back/internal/presence"
	"github.com/dukepan/multi-rooms-chat-back/internal/ratelimit"
	"github.com/dukepan/multi-rooms-chat-back/internal/utils"
)

type Router struct {
	mux      *http.ServeMux
	authSvc  *auth.Service
	chatSvc  *chat.Service
	reacts   *chat.ReactionStore
	rooms    db.ChatRoomRepository
	members  db.RoomMemberRepository
	presence *presence.Engine
	ratelim  *ratelimit.Limiter
	delivery *delivery.Tracker
	fabric   *broadcast.Fabric
	jwtMgr   *auth.JWTManager
	logger   *utils.Logger
	cfg      *config.Config
}

// NewRouter wires the HTTP and WebSocket surface. Deliberately a plain
// net/http.ServeMux with Go 1.22+ pattern routing, the teacher's own
// style (internal/api/router.go) — no framework is introduced for this.
func NewRouter(
	authSvc *auth.Service,
	chatSvc *chat.Service,
	reacts *chat.ReactionStore,
	rooms db.ChatRoomRepository,
	members db.RoomMemberRepository,
	presenceEngine *presence.Engine,
	ratelim *ratelimit.Limiter,
	deliveryTracker *delivery.Tracker,
	fabric *broadcast.Fabric,
	jwtMgr *auth.JWTManager,
	logger *utils.Logger,
	cfg *config.Config,
	httpThrottle func(http.Handler) http.Handler,
) http.Handler {
	r := &Router{
		mux: http.NewServeMux(), authSvc: authSvc, chatSvc: chatSvc, reacts: reacts,
		rooms: rooms, members: members, presence: presenceEngine, ratelim: ratelim,
		delivery: deliveryTracker, fabric: fabric, jwtMgr: jwtMgr, logger: logger, cfg: cfg,
	}

	r.mux.HandleFunc("POST /auth/register", r.RegisterHandler)
	r.mux.HandleFunc("POST /auth/login", r.LoginHandler)
	r.mux.HandleFunc("GET /healthz", r.HealthzHandler)
	r.mux.Handle("GET /metrics", promhttp.Handler())

	r.mux.Handle("POST /rooms", r.AuthMiddleware(http.HandlerFunc(r.CreateRoomHandler)))
	r.mux.Handle("POST /rooms/{id}/join", r.AuthMiddleware(http.HandlerFunc(r.JoinRoomHandler)))
	r.mux.Handle("POST /rooms/{id}/leave", r.AuthMiddleware(http.HandlerFunc(r.LeaveRoomHandler)))
	r.mux.Handle("GET /rooms/{id}/history", r.AuthMiddleware(http.HandlerFunc(r.AdminHistoryHandler)))
	r.mux.Handle("POST /rooms/{id}/messages/{messageID}/reactions", r.AuthMiddleware(http.HandlerFunc(r.AddReactionHandler)))
	r.mux.Handle("DELETE /rooms/{id}/messages/{messageID}/reactions/{emoji}", r.AuthMiddleware(http.HandlerFunc(r.RemoveReactionHandler)))
	r.mux.Handle("GET /ws", http.HandlerFunc(r.WebSocketHandler))

	var handler http.Handler = r.mux
	if httpThrottle != nil {
		handler = httpThrottle(handler)
	}
	handler = middleware.TracingMiddleware(handler)
	handler = middleware.RequestIDMiddleware(handler)
	return handler
}
