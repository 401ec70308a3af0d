package daemon

import "errors"

// Domain-specific errors for lifecycle management.
var (
	// ErrAlreadyRunning is returned when the pidfile names a live instance.
	ErrAlreadyRunning = errors.New("daemon: already running")

	// ErrNoPIDFile is returned when the pidfile does not exist.
	ErrNoPIDFile = errors.New("daemon: pidfile not found")

	// ErrStartTimeout is returned when a spawned instance does not publish
	// its pidfile in time.
	ErrStartTimeout = errors.New("daemon: timed out waiting for instance to start")

	// ErrStopTimeout is returned when an instance survives SIGKILL.
	ErrStopTimeout = errors.New("daemon: instance did not exit")
)
