// Service composes password hashing, the user repository and JWT issuance
// into the register/authenticate/logout surface spec.md's user/auth
// service names.
package auth

import (
	"context"
	"time"

	"github.com/dukepan/multi-rooms-chat-back/internal/apperrors"
	"github.com/dukepan/multi-rooms-chat-back/internal/clock"
	"github.com/dukepan/multi-rooms-chat-back/internal/db"
	"github.com/dukepan/multi-rooms-chat-back/internal/ids"
	"github.com/dukepan/multi-rooms-chat-back/internal/models"
)

type Service struct {
	users      db.UserRepository
	jwt        *JWTManager
	clock      clock.Clock
	bcryptCost int
	tokenTTL   time.Duration
}

func NewService(users db.UserRepository, jwt *JWTManager, clk clock.Clock, bcryptCost int, tokenTTL time.Duration) *Service {
	return &Service{users: users, jwt: jwt, clock: clk, bcryptCost: bcryptCost, tokenTTL: tokenTTL}
}

// Register creates a new user account, returning apperrors.UserExists if
// the username is taken.
func (s *Service) Register(ctx context.Context, rawUsername, rawEmail, password string) (*models.User, error) {
	username, err := ids.NewUsername(rawUsername)
	if err != nil {
		return nil, err
	}
	email, err := ids.NewEmail(rawEmail)
	if err != nil {
		return nil, err
	}
	if len(password) < 8 {
		return nil, apperrors.InvalidArgument("password", "must be at least 8 characters")
	}

	digest, err := HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.Infrastructure("hash password failed", err)
	}

	user := models.NewUser(ids.NewUserID(), username, email, digest, s.clock.Now())
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate verifies credentials and issues a session token.
func (s *Service) Authenticate(ctx context.Context, rawUsername, password string) (string, *models.User, error) {
	username, err := ids.NewUsername(rawUsername)
	if err != nil {
		return "", nil, apperrors.AuthenticationFailed()
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return "", nil, err
	}
	if user == nil || !VerifyPassword(user.PasswordDigest, password) {
		return "", nil, apperrors.AuthenticationFailed()
	}
	token, err := s.jwt.GenerateToken(user.ID, s.tokenTTL)
	if err != nil {
		return "", nil, apperrors.Infrastructure("generate token failed", err)
	}
	return token, user, nil
}

// VerifySession validates a bearer token and resolves it to a user id.
// There is no server-side revocation list (spec open question (d)): a
// token remains valid until it expires, full stop.
func (s *Service) VerifySession(token string) (ids.UserID, error) {
	claims, err := s.jwt.ValidateToken(token)
	if err != nil {
		return ids.UserID{}, err
	}
	return claims.UserID, nil
}
