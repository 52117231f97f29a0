package ports

import "time"

// TokenInspector reads metadata from an opaque access token
type TokenInspector interface {
	// Expiry returns the token expiration, false if it cannot be read
	Expiry(token string) (time.Time, bool)
}
