package ports

import (
	"context"

	"github.com/layer-3/folio/core"
)

// SessionEventType names a session lifecycle change
type SessionEventType string

const (
	SessionLogin     SessionEventType = "login"
	SessionRefreshed SessionEventType = "refreshed"
	SessionCleared   SessionEventType = "cleared"
)

// SessionEvent describes a change of the current session
type SessionEvent struct {
	Type       SessionEventType `json:"type"`
	IdentityID string           `json:"identityId,omitempty"`
	Origin     core.Origin      `json:"origin,omitempty"`
	Reason     string           `json:"reason,omitempty"`
}

// EventPublisher publishes session lifecycle events so views can react
type EventPublisher interface {
	PublishSession(ctx context.Context, event SessionEvent) error
}
