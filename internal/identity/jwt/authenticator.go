// Package jwt validates the access tokens that gate every API route.
// Tokens are issued by the platform's account service; this module only
// needs to verify them and extract the actor.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/meddesk/consultq/internal/domain"
)

// Authenticator errors.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Config contains JWT configuration.
type Config struct {
	Secret              string
	AccessTokenDuration time.Duration
}

// Claims are the token claims the engine cares about.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator validates and issues HMAC-signed access tokens.
type Authenticator struct {
	config Config
}

// NewAuthenticator creates a new authenticator.
func NewAuthenticator(config Config) *Authenticator {
	return &Authenticator{config: config}
}

// ValidateToken parses and verifies an access token, returning the actor it
// was issued to. It implements httputil.TokenValidator.
func (a *Authenticator) ValidateToken(_ context.Context, tokenString string) (domain.Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Actor{}, ErrExpiredToken
		}
		return domain.Actor{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return domain.Actor{}, ErrInvalidToken
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return domain.Actor{}, ErrInvalidToken
	}

	return domain.Actor{ID: claims.Subject, Role: claims.Role}, nil
}

// IssueToken signs an access token for the given actor.
func (a *Authenticator) IssueToken(actor domain.Actor, now time.Time) (string, error) {
	claims := Claims{
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.AccessTokenDuration)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.config.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
