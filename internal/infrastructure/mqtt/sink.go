package mqtt

import (
	"context"
	"encoding/json"

	"github.com/finchsec/authd/internal/auth"
	"github.com/finchsec/authd/internal/infrastructure/logging"
)

// EventSink publishes session-lifecycle events on the security stream.
//
// It implements auth.EventSink. Publish failures are logged and dropped;
// the message bus never fails an authentication request.
type EventSink struct {
	client *Client
	topics Topics
	logger *logging.Logger
}

// NewEventSink creates a sink publishing on the given client.
func NewEventSink(client *Client, logger *logging.Logger) *EventSink {
	if logger == nil {
		logger = logging.Default()
	}
	return &EventSink{client: client, logger: logger}
}

// Emit publishes the event as JSON on authd/events/security.
func (s *EventSink) Emit(_ context.Context, ev auth.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Warn("security event encode failed",
			"action", ev.Action,
			"error", err)
		return
	}

	if err := s.client.PublishJSON(s.topics.SecurityEvents(), payload); err != nil {
		s.logger.Warn("security event publish dropped",
			"action", ev.Action,
			"error", err)
	}
}
