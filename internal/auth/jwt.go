// Package auth provides identity normalization, session tokens, the session
// middleware and the authorization guard.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. User visits /auth/discord/login → redirected to Discord
//  2. Discord calls back /auth/discord/callback with a code
//  3. Server exchanges the code for the Discord profile, syncs the user directory
//  4. Server issues a signed session token, stores it in an HttpOnly cookie
//  5. On every API call, middleware validates the token, loads the backing user
//     and puts a *model.Session in the request context
//
// WHY JWT?
// The token is stateless: all that's needed to verify it (subject, expiry)
// is inside and signed with our secret. Role is NOT trusted from the token:
// it is re-read from the user directory when the session is materialized,
// so a role change takes effect on the very next request.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "item-atlas"

// DefaultSessionTTL is used when NewTokenService gets a zero TTL.
const DefaultSessionTTL = 30 * 24 * time.Hour

// TokenService handles session token creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given secret and lifetime.
// The secret should be at least 32 bytes of random data in production.
// Example: ATLAS_AUTH_JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is how long issued tokens stay valid. The cookie MaxAge uses the same value.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// claims is the token payload.
//
// "sub" holds the internal user ID. When the directory could not store the
// user during sign-in, it holds a provisional "provisional:discord:<snowflake>" subject
// instead and the session degrades to INVITED (see service.AuthService).
//
// Discriminator travels in the token only so that such a provisional session
// can still show it; for real users it is re-read from the directory.
type claims struct {
	Discriminator string `json:"disc,omitempty"`
	jwt.RegisteredClaims
}

// TokenClaims is what Validate hands back to callers.
type TokenClaims struct {
	Subject       string
	Discriminator string
	ExpiresAt     time.Time
}

// Generate creates and signs a new session token with the service's TTL.
func (s *TokenService) Generate(subject, discriminator string) (string, error) {
	return s.GenerateWithDuration(subject, discriminator, s.ttl)
}

// GenerateWithDuration creates a token with a custom expiry duration.
// Used in tests to produce already-expired tokens.
func (s *TokenService) GenerateWithDuration(subject, discriminator string, d time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("auth: token subject must not be empty")
	}

	now := time.Now()
	c := claims{
		Discriminator: discriminator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    tokenIssuer,
		},
	}

	// Signing algorithm: HS256 (HMAC-SHA256), same key signs and verifies.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a token string.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired, and has an expiry at all
//   - Issuer matches (prevents tokens minted for other apps)
//   - Algorithm is HS256 (prevents "alg: none" confusion attacks)
func (s *TokenService) Validate(tokenStr string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}

	if c.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}

	out := &TokenClaims{
		Subject:       c.Subject,
		Discriminator: c.Discriminator,
	}
	if c.ExpiresAt != nil {
		out.ExpiresAt = c.ExpiresAt.Time
	}
	return out, nil
}
