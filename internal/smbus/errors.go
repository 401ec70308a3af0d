package smbus

import "errors"

// Domain-specific errors for the SMBus transport.
var (
	// ErrOpen is returned when the adapter device node cannot be opened.
	ErrOpen = errors.New("smbus: cannot open adapter")

	// ErrIO is returned when a transfer fails at the kernel or on the wire.
	ErrIO = errors.New("smbus: transfer failed")

	// ErrUnsupported is returned for transfer shapes SMBus cannot express.
	ErrUnsupported = errors.New("smbus: unsupported transfer")

	// ErrLockTimeout is returned when the advisory bus lock is not granted in time.
	ErrLockTimeout = errors.New("smbus: timed out waiting for bus lock")

	// ErrClosed is returned for operations on a closed bus.
	ErrClosed = errors.New("smbus: bus closed")
)
