package influxdb

import "errors"

var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed wraps ping and health failures during Connect.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrInvalidTarget is returned for a bus or address that cannot
	// identify an MCU.
	ErrInvalidTarget = errors.New("influxdb: invalid target")

	// ErrWriteFailed is returned by Flush and Close when batched points
	// were rejected since the previous Flush.
	ErrWriteFailed = errors.New("influxdb: write failed")
)
