package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	// The node runs without telemetry.
	ErrDisabled = errors.New("influxdb: telemetry disabled")

	// ErrConnectionFailed means the startup ping did not reach a healthy server.
	ErrConnectionFailed = errors.New("influxdb: telemetry server unreachable")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: client closed")

	// ErrWriteFailed wraps batch write errors handed to the SetOnError
	// callback. Heartbeat, connect and link points are written asynchronously,
	// so this is the only place a write failure surfaces.
	ErrWriteFailed = errors.New("influxdb: telemetry write failed")
)
