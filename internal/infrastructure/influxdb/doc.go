// Package influxdb provides time-series metrics for the auth service.
//
// The client wraps the official InfluxDB v2 Go client with non-blocking
// batched writes. Points are buffered and flushed on an interval, so
// recording a metric never sits on a request's critical path. Async write
// errors surface through the SetOnError callback.
//
// Metrics are optional: when disabled in configuration, Connect returns
// ErrDisabled and callers run without a client.
//
// Predefined helpers cover the service's own observations:
//
//   - WriteAuthEvent: authentication lifecycle counters (login, refresh,
//     reuse_detected, ...), tagged by action and role
//   - WriteSweepMetric: expired-token sweep results
//   - WriteHTTPMetric: API request latency and status
//
// WritePoint and WritePointWithTime accept arbitrary measurements for
// anything else. The Sink type adapts the client to the auth package's
// event stream.
package influxdb
