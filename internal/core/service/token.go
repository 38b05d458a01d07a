package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/99minutos/direct-messaging/internal/core/domain"
)

// Claims is the JWT body issued at login and checked on every handshake.
type Claims struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 tokens signed with a shared secret.
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenVerifier returns a verifier for tokens signed with secret. Tokens
// without an exp claim are rejected.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify checks signature, algorithm and expiry and returns the identity the
// token was issued for.
func (v *TokenVerifier) Verify(credential string) (domain.Identity, error) {
	if credential == "" {
		return domain.Identity{}, fmt.Errorf("%w: empty credential", domain.ErrInvalidCredential)
	}

	claims := &Claims{}
	tkn, err := v.parser.ParseWithClaims(credential, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrExpiredCredential, err)
		}
		return domain.Identity{}, fmt.Errorf("%w: %v", domain.ErrInvalidCredential, err)
	}
	if !tkn.Valid || claims.ID == "" || claims.Username == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing identity claims", domain.ErrInvalidCredential)
	}

	return domain.Identity{ID: claims.ID, DisplayName: claims.Username}, nil
}

// signToken issues a token for user that expires after ttl.
func signToken(secret []byte, user *domain.User, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		ID:       user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(secret)
}
