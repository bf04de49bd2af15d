// Package token mints and verifies the role-scoped session credentials
// used to authenticate websocket connections at the relay. Tokens are
// HS256 JWTs carrying a session ID and a role claim; expiry is the only
// lifecycle bound, there is no revocation.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role identifies which side of a session a token authorizes.
type Role string

const (
	RoleBrowser   Role = "browser"
	RoleConnector Role = "connector"
)

// DefaultTTL is how long freshly minted tokens stay valid.
const DefaultTTL = 24 * time.Hour

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRoleMismatch = errors.New("token role mismatch")
)

// Claims is the JWT payload for a session credential.
type Claims struct {
	SessionID string `json:"sessionId"`
	Role      Role   `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies session tokens with a shared HMAC secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer creates an Issuer. A ttl of zero falls back to DefaultTTL.
func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: secret, ttl: ttl}
}

// Mint signs a token binding sessionID to the given role.
func (i *Issuer) Mint(sessionID string, role Role) (string, error) {
	now := time.Now()
	claims := Claims{
		SessionID: sessionID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token string. It enforces the HS256
// signing method and expiry but not the role; use VerifyRole at an
// endpoint that expects a specific role.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyRole validates a token and additionally requires its role claim
// to match want. A valid signature with the wrong role is rejected.
func (i *Issuer) VerifyRole(raw string, want Role) (*Claims, error) {
	claims, err := i.Verify(raw)
	if err != nil {
		return nil, err
	}
	if claims.Role != want {
		return nil, ErrRoleMismatch
	}
	return claims, nil
}
