package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/dukepan/multi-rooms-chat-back/internal/apperrors"
	"github.com/dukepan/multi-rooms-chat-back/internal/contextkey"
	"github.com/dukepan/multi-rooms-chat-back/internal/ids"
	"github.com/dukepan/multi-rooms-chat-back/internal/utils"
)

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

func (r *Router) HealthzHandler(w http.ResponseWriter, req *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (r *Router) RegisterHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	var rr RegisterRequest
	if err := json.NewDecoder(req.Body).Decode(&rr); err != nil {
		utils.RespondAppError(w, apperrors.InvalidArgument("body", "not valid JSON"))
		return
	}
	user, err := r.authSvc.Register(ctx, rr.Username, rr.Email, rr.Password)
	if err != nil {
		r.logger.Error(ctx, "registration failed: %v", err)
		utils.RespondAppError(w, err)
		return
	}
	token, _, err := r.authSvc.Authenticate(ctx, rr.Username, rr.Password)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	_ = user
	utils.RespondJSON(w, http.StatusCreated, TokenResponse{Token: token})
}

func (r *Router) LoginHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	var lr LoginRequest
	if err := json.NewDecoder(req.Body).Decode(&lr); err != nil {
		utils.RespondAppError(w, apperrors.InvalidArgument("body", "not valid JSON"))
		return
	}
	token, _, err := r.authSvc.Authenticate(ctx, lr.Username, lr.Password)
	if err != nil {
		r.logger.Error(ctx, "login failed for %s: %v", lr.Username, err)
		utils.RespondAppError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// AuthMiddleware validates the bearer token and stashes the resolved user
// id on the request context.
func (r *Router) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		tokenString := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
		if tokenString == "" {
			utils.RespondAppError(w, apperrors.AuthenticationFailed())
			return
		}
		userID, err := r.authSvc.VerifySession(tokenString)
		if err != nil {
			utils.RespondAppError(w, err)
			return
		}
		ctx := context.WithValue(req.Context(), contextkey.ContextKeyUserID, userID)
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

func getUserIDFromContext(ctx context.Context) (ids.UserID, error) {
	userID, ok := ctx.Value(contextkey.ContextKeyUserID).(ids.UserID)
	if !ok {
		return ids.UserID{}, apperrors.AuthenticationFailed()
	}
	return userID, nil
}
