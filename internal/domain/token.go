package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenPayload represents structurally decoded token claims.
// Nothing in it has been cryptographically verified.
type TokenPayload struct {
	Subject   string
	ExpiresAt *time.Time
	Claims    jwt.MapClaims
}

// IsExpired reports whether exp*1000 <= now. Payloads without exp never expire locally.
func (p TokenPayload) IsExpired(now time.Time) bool {
	if p.ExpiresAt == nil {
		return false
	}
	return !p.ExpiresAt.After(now)
}
