package influxdb

import (
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
)

// WriteAuthEvent records an authentication lifecycle event as a counter point.
//
// The action tag carries the event type (login, refresh, reuse_detected, ...)
// and the role tag the subject's role. Points are batched and flushed
// asynchronously; this never blocks.
func (c *Client) WriteAuthEvent(action, role string) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	tags := map[string]string{
		"action": action,
	}
	if role != "" {
		tags["role"] = role
	}

	point := influxdb2.NewPoint(
		"auth_events",
		tags,
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)

	return nil
}

// WriteSweepMetric records the result of a token sweep pass.
//
// One point per sweep, carrying how many expired refresh tokens, one-shot
// tokens and stale revocation entries were removed.
func (c *Client) WriteSweepMetric(refreshTokens, oneShotTokens, revocations int64) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	point := influxdb2.NewPoint(
		"token_sweeps",
		nil,
		map[string]interface{}{
			"refresh_tokens": refreshTokens,
			"oneshot_tokens": oneShotTokens,
			"revocations":    revocations,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)

	return nil
}

// WriteHTTPMetric records an API request observation.
//
// Tags identify the route and method; fields carry the status code and
// latency in milliseconds.
func (c *Client) WriteHTTPMetric(route, method string, status int, latency time.Duration) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	point := influxdb2.NewPoint(
		"http_requests",
		map[string]string{
			"route":  route,
			"method": method,
		},
		map[string]interface{}{
			"status":     status,
			"latency_ms": float64(latency.Microseconds()) / 1000.0,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)

	return nil
}

// WritePoint writes a custom metric point with arbitrary tags and fields.
//
// Use this for metrics that don't fit the predefined helpers.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	point := influxdb2.NewPoint(measurement, tags, fields, time.Now())

	c.writeAPI.WritePoint(point)

	return nil
}

// WritePointWithTime writes a custom metric point with an explicit timestamp.
//
// Useful for backfilling or when the observation time differs from the
// write time.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	point := influxdb2.NewPoint(measurement, tags, fields, ts)

	c.writeAPI.WritePoint(point)

	return nil
}
