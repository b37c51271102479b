// Package auth resolves a caller's session token into an owner identity.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken wraps every validation failure.
var ErrInvalidToken = errors.New("invalid session token")

// Manager issues and validates HS256 session tokens whose subject is the owner id.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a token manager. secret should be at least 32 bytes.
func NewManager(secret, issuer string, ttl time.Duration) *Manager {
	return &Manager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for owner. ttl <= 0 uses the manager default.
func (m *Manager) Issue(owner uuid.UUID, ttl time.Duration) (string, error) {
	if owner == uuid.Nil {
		return "", fmt.Errorf("owner id is required")
	}
	if ttl <= 0 {
		ttl = m.ttl
	}

	now := m.now()
	claims := jwt.RegisteredClaims{
		Subject:   owner.String(),
		Issuer:    m.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses token and returns its owner id.
func (m *Manager) Verify(token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, fmt.Errorf("%w: token is empty", ErrInvalidToken)
	}

	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return uuid.Nil, fmt.Errorf("%w: invalid claims", ErrInvalidToken)
	}

	owner, err := uuid.Parse(claims.Subject)
	if err != nil || owner == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: invalid subject", ErrInvalidToken)
	}
	return owner, nil
}
