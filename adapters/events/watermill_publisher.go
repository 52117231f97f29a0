package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/layer-3/folio/ports"
)

// SessionTopic is the topic session lifecycle events are published on
const SessionTopic = "folio.session"

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topic:     SessionTopic,
	}
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// PublishSession publishes a session lifecycle event
func (p *WatermillPublisher) PublishSession(ctx context.Context, event ports.SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("type", string(event.Type))

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Decode parses a message produced by PublishSession
func Decode(msg *message.Message) (ports.SessionEvent, error) {
	var event ports.SessionEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return ports.SessionEvent{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return event, nil
}
