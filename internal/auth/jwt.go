// Package auth verifies the bearer credential presented at websocket handshake.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var ErrAuthDisabled = errors.New("jwt secret not configured")

// JWTVerifier checks HS256 tokens whose subject is the user id.
type JWTVerifier struct {
	secret []byte
	expiry time.Duration
}

func NewJWTVerifier(secret string, expiry time.Duration) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), expiry: expiry}
}

// Issue signs a token for user. The REST side normally issues tokens; this
// exists for development and tests.
func (v *JWTVerifier) Issue(user domain.UserID) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrAuthDisabled
	}
	if strings.TrimSpace(string(user)) == "" {
		return "", errors.New("user id required")
	}
	claims := jwt.RegisteredClaims{
		Subject:  string(user),
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
	if v.expiry > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(v.expiry))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func (v *JWTVerifier) Authenticate(_ context.Context, token string) (domain.UserID, error) {
	if len(v.secret) == 0 {
		return "", ErrAuthDisabled
	}
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return "", core.ErrUnauthorized
	}
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %w", core.ErrUnauthorized, err)
	}
	uid, err := domain.ParseUserID(claims.Subject)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrUnauthorized, err)
	}
	return uid, nil
}
