package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenBytes is the entropy of generated session and refresh tokens (256 bits).
const tokenBytes = 32

// Claims is the JWT payload shared by access and refresh tokens.
//
// Subject is the username for access tokens and the user ID for refresh
// tokens. SessionID binds the JWT to a stored session: it carries the
// session token (access) or the refresh token (refresh).
type Claims struct {
	jwt.RegisteredClaims
	Name      string `json:"name"`
	SessionID string `json:"sid"`
}

// TokenConfig holds the signing material and lifetimes for both token types.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// TokenCodec issues and decodes signed JWTs. It is safe for concurrent use.
type TokenCodec struct {
	cfg TokenConfig
	now func() time.Time
}

// NewTokenCodec creates a codec. A nil clock means time.Now.
func NewTokenCodec(cfg TokenConfig, now func() time.Time) *TokenCodec {
	if now == nil {
		now = time.Now
	}
	return &TokenCodec{cfg: cfg, now: now}
}

// AccessTTL returns the configured access token lifetime.
func (c *TokenCodec) AccessTTL() time.Duration {
	return c.cfg.AccessTTL
}

// IssueAccess creates a signed access token for subject (a username).
func (c *TokenCodec) IssueAccess(subject, sessionToken string) (string, error) {
	return c.issue(subject, sessionToken, c.cfg.AccessSecret, c.cfg.AccessTTL)
}

// IssueRefresh creates a signed refresh token for subject (a user ID).
func (c *TokenCodec) IssueRefresh(subject, refreshToken string) (string, error) {
	return c.issue(subject, refreshToken, c.cfg.RefreshSecret, c.cfg.RefreshTTL)
}

// DecodeAccess verifies an access token and returns its claims.
func (c *TokenCodec) DecodeAccess(token string) (*Claims, error) {
	return c.decode(token, c.cfg.AccessSecret)
}

// DecodeRefresh verifies a refresh token and returns its claims.
func (c *TokenCodec) DecodeRefresh(token string) (*Claims, error) {
	return c.decode(token, c.cfg.RefreshSecret)
}

func (c *TokenCodec) issue(subject, sid, secret string, ttl time.Duration) (string, error) {
	now := c.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Name:      "",
		SessionID: sid,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

func (c *TokenCodec) decode(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformedToken)
	}

	return claims, nil
}

// GenerateToken returns a random URL-safe token with 256 bits of entropy.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
