package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dukepan/multi-rooms-chat-back/internal/apperrors"
	"github.com/dukepan/multi-rooms-chat-back/internal/ids"
	"github.com/dukepan/multi-rooms-chat-back/internal/utils"
)

type CreateRoomRequest struct {
	Name     string  `json:"name"`
	Private  bool    `json:"private"`
	Password *string `json:"password,omitempty"`
}

type JoinRoomRequest struct {
	Password *string `json:"password,omitempty"`
}

func (r *Router) CreateRoomHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	var cr CreateRoomRequest
	if err := json.NewDecoder(req.Body).Decode(&cr); err != nil {
		utils.RespondAppError(w, apperrors.InvalidArgument("body", "not valid JSON"))
		return
	}
	room, err := r.chatSvc.CreateRoom(ctx, cr.Name, userID, cr.Private, cr.Password)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, room)
}

func (r *Router) JoinRoomHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	roomID, err := ids.ParseRoomID(req.PathValue("id"))
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	var jr JoinRoomRequest
	if req.ContentLength != 0 {
		if err := json.NewDecoder(req.Body).Decode(&jr); err != nil {
			utils.RespondAppError(w, apperrors.InvalidArgument("body", "not valid JSON"))
			return
		}
	}
	if err := r.chatSvc.JoinRoom(ctx, roomID, userID, jr.Password); err != nil {
		utils.RespondAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) LeaveRoomHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	roomID, err := ids.ParseRoomID(req.PathValue("id"))
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	if err := r.chatSvc.LeaveRoom(ctx, roomID, userID); err != nil {
		utils.RespondAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) AdminHistoryHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	roomID, err := ids.ParseRoomID(req.PathValue("id"))
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	limit := 50
	if raw := req.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	var before *time.Time
	if raw := req.URL.Query().Get("before"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			before = &t
		}
	}
	history, err := r.chatSvc.AdminHistory(ctx, roomID, userID, limit, before)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, history)
}

type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

func (r *Router) AddReactionHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	roomID, err := ids.ParseRoomID(req.PathValue("id"))
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	messageID, err := ids.ParseMessageID(req.PathValue("messageID"))
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	var rr ReactionRequest
	if err := json.NewDecoder(req.Body).Decode(&rr); err != nil {
		utils.RespondAppError(w, apperrors.InvalidArgument("body", "not valid JSON"))
		return
	}
	if err := r.reacts.AddReaction(ctx, roomID, messageID, userID, rr.Emoji); err != nil {
		utils.RespondAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) RemoveReactionHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	userID, err := getUserIDFromContext(ctx)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	roomID, err := ids.ParseRoomID(req.PathValue("id"))
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	messageID, err := ids.ParseMessageID(req.PathValue("messageID"))
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	emoji := req.PathValue("emoji")
	if err := r.reacts.RemoveReaction(ctx, roomID, messageID, userID, emoji); err != nil {
		utils.RespondAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
