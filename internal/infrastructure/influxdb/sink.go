package influxdb

import (
	"context"

	"github.com/finchsec/authd/internal/auth"
	"github.com/finchsec/authd/internal/infrastructure/logging"
)

// Sink forwards auth lifecycle events to InfluxDB as counter points.
//
// It implements auth.EventSink. Write failures are logged and dropped;
// metrics never fail an authentication request.
type Sink struct {
	client *Client
	logger *logging.Logger
}

// NewSink creates an event sink backed by the given client.
func NewSink(client *Client, logger *logging.Logger) *Sink {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sink{client: client, logger: logger}
}

// Emit writes the event as an auth_events point.
func (s *Sink) Emit(_ context.Context, ev auth.Event) {
	role := ""
	if r, ok := ev.Details["role"].(string); ok {
		role = r
	}

	if err := s.client.WriteAuthEvent(ev.Action, role); err != nil {
		s.logger.Warn("metrics write dropped",
			"action", ev.Action,
			"error", err)
	}
}
