// Package jwtauth verifies staff bearer tokens. The identity provider that
// issues tokens is external; only the shared signing key is configured here.
package jwtauth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"racereg/internal/platform/middleware"
)

// Validator verifies HS256 staff tokens.
type Validator struct {
	signingKey []byte
}

func NewValidator(signingKey string) *Validator {
	return &Validator{signingKey: []byte(signingKey)}
}

type staffTokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ValidateToken parses and verifies a staff token, returning its claims.
func (v *Validator) ValidateToken(tokenString string) (*middleware.StaffClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &staffTokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return v.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse staff token: %w", err)
	}

	claims, ok := token.Claims.(*staffTokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid staff token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("staff token missing subject")
	}
	return &middleware.StaffClaims{StaffID: claims.Subject, Role: claims.Role}, nil
}

// IssueToken mints a staff token. Used by tests and the local dev tooling;
// production tokens come from the identity provider.
func IssueToken(signingKey, staffID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := staffTokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   staffID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
}
