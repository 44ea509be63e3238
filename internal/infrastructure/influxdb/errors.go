package influxdb

import "errors"

// Sentinel errors for InfluxDB operations.
var (
	// ErrNotConnected indicates the client is not connected to InfluxDB.
	ErrNotConnected = errors.New("influxdb client not connected")

	// ErrConnectionFailed indicates the connection attempt failed.
	ErrConnectionFailed = errors.New("influxdb connection failed")

	// ErrWriteFailed indicates a metric write operation failed.
	ErrWriteFailed = errors.New("influxdb write failed")

	// ErrDisabled indicates metrics collection is disabled in configuration.
	ErrDisabled = errors.New("influxdb metrics disabled")
)
