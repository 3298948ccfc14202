// Package auth issues and checks the bearer tokens that protect the HTTP API.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/watzon/gensched/internal/config"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidIssuer    = errors.New("invalid token issuer")
	ErrMissingSubject   = errors.New("token missing subject")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrNoSecret         = errors.New("no signing secret configured")
)

// TokenService signs and validates HS256 tokens.
type TokenService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewTokenService creates a token service from the server auth section.
func NewTokenService(cfg config.AuthConfig) *TokenService {
	return &TokenService{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		now:    time.Now,
	}
}

// Issue creates a token for subject. A zero ttl issues a token that never
// expires.
func (s *TokenService) Issue(subject string, ttl time.Duration) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrNoSecret
	}
	if subject == "" {
		return "", ErrMissingSubject
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses a token and returns its claims.
func (s *TokenService) Validate(tokenString string) (*jwt.RegisteredClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSignature
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Issuer != s.issuer {
		return nil, ErrInvalidIssuer
	}

	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}

	return claims, nil
}
