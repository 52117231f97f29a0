// Package tokens reads client-visible metadata from JWT access tokens.
// Signatures are never checked here; that is the backend's job.
package tokens

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/layer-3/folio/ports"
)

// Inspector implements ports.TokenInspector for JWT tokens
type Inspector struct {
	parser *jwt.Parser
}

// NewInspector creates a new Inspector
func NewInspector() *Inspector {
	return &Inspector{parser: jwt.NewParser()}
}

var _ ports.TokenInspector = (*Inspector)(nil)

// Expiry returns the exp claim of a JWT; opaque tokens yield false
func (i *Inspector) Expiry(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := i.parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
