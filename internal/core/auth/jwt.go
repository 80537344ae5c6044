package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role identifies the principal's access level.
type Role string

const (
	// RoleCustomer is a storefront customer.
	RoleCustomer Role = "cliente"
	// RoleEmployee is order-management staff.
	RoleEmployee Role = "empleado"
	// RoleAdmin has full administrative access.
	RoleAdmin Role = "admin"
)

var (
	// ErrInvalidToken is returned for malformed, expired or forged tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Claims are the JWT claims carried by storefront bearer tokens.
type Claims struct {
	// UserID is the authenticated principal's identifier.
	UserID string `json:"uid"`
	// Role is the principal's access level.
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// IsStaff reports whether the principal may manage any order.
func (c *Claims) IsStaff() bool {
	return c.Role == RoleEmployee || c.Role == RoleAdmin
}

// TokenManager issues and verifies HMAC-signed bearer tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager creates a TokenManager with the given signing secret and token lifetime.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Issue signs a token for the given user and role.
func (m *TokenManager) Issue(userID string, role Role) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token string, returning its claims.
func (m *TokenManager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
