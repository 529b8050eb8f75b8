package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dukepan/multi-rooms-chat-back/internal/apperrors"
	"github.com/dukepan/multi-rooms-chat-back/internal/ids"
)

const minSecretLength = 32

// JWTManager issues and verifies the session token: a compact signed
// envelope carrying {user_id, exp}, HMAC'd over a deployment secret.
//
// The teacher signs with RS256 over an RSA keypair (internal/auth/jwt.go
// in the teacher); this supersedes that with HS256 over a shared secret,
// since the minimal envelope this service needs has no multi-party
// verification requirement that would justify asymmetric keys, and a
// shared secret is one fewer piece of operational surface (no key
// rotation/distribution story) — see DESIGN.md for the full resolution.
type JWTManager struct {
	secret []byte
}

func NewJWTManager(secret string) (*JWTManager, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", minSecretLength)
	}
	return &JWTManager{secret: []byte(secret)}, nil
}

// Claims is the minimal envelope spec.md names: user_id plus expiry.
type Claims struct {
	UserID ids.UserID `json:"user_id"`
	jwt.RegisteredClaims
}

func (jm *JWTManager) GenerateToken(userID ids.UserID, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "chatcore",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jm.secret)
}

func (jm *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jm.secret, nil
	})
	if err != nil {
		return nil, apperrors.AuthenticationFailed()
	}
	if !token.Valid {
		return nil, apperrors.AuthenticationFailed()
	}
	return claims, nil
}

// ExtractTokenFromHeader extracts the bearer token from an Authorization
// header.
func ExtractTokenFromHeader(authHeader string) (string, error) {
	if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
		return "", apperrors.AuthenticationFailed()
	}
	return authHeader[7:], nil
}
