package messaging

import (
	"context"

	"github.com/captvenkat/xainik-tracking/internal/domain"
)

// Publisher defines the interface for publishing recorded tracking
// events to the message broker. Downstream consumers (notification UIs,
// dashboard refreshers) subscribe out of scope of this engine.
type Publisher interface {
	// PublishEvent publishes a recorded tracking event
	PublishEvent(ctx context.Context, event *domain.TrackingEvent) error
	// Close closes the connection
	Close()
}
