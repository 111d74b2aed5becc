package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken and ErrExpiredToken distinguish a malformed/unsigned token
// from one that parsed and verified but is past its expiry.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// Principal is the authenticated identity attached to a request on success.
type Principal struct {
	Subject     string
	Permissions []string
}

type claims struct {
	jwt.RegisteredClaims
	Permissions []string `json:"permissions,omitempty"`
}

// VerifyToken validates a three-segment HMAC-SHA256 signed token and
// extracts its Principal. exp is required and compared against now.
func VerifyToken(token, secret string) (Principal, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrExpiredToken
		}
		return Principal{}, ErrInvalidToken
	}

	if !parsed.Valid {
		return Principal{}, ErrInvalidToken
	}

	if c.Subject == "" {
		return Principal{}, ErrInvalidToken
	}
	if c.ExpiresAt == nil {
		return Principal{}, ErrInvalidToken
	}
	if c.ExpiresAt.Time.Before(time.Now()) || c.ExpiresAt.Time.Equal(time.Now()) {
		return Principal{}, ErrExpiredToken
	}

	return Principal{Subject: c.Subject, Permissions: c.Permissions}, nil
}

// ExtractBearer returns the substring after the literal "Bearer " prefix.
// Trailing whitespace is preserved; no trimming is performed.
func ExtractBearer(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return "", false
	}
	return header[len(prefix):], true
}

// HasPermissions reports whether every permission in required is present in
// held.
func HasPermissions(required, held []string) bool {
	set := make(map[string]bool, len(held))
	for _, p := range held {
		set[p] = true
	}
	for _, p := range required {
		if !set[p] {
			return false
		}
	}
	return true
}
