// Package daemon manages the lifecycle of the background reconciler
// through a pidfile.
//
// The pidfile holds the decimal pid of the running instance followed by a
// newline. The running instance also holds an exclusive flock on it for
// its whole lifetime, so exclusion does not depend on pid liveness checks
// alone: a second instance fails to acquire the lock even if the pid in the
// file has been reused.
//
// Operations:
//   - Start: refuse if a live instance is recorded, otherwise spawn a
//     detached instance and wait for it to publish its pidfile
//   - Stop: SIGTERM, wait for the grace period, then SIGKILL; a missing
//     pidfile is not an error
//   - Restart: Stop then Start
//   - Run: the foreground side, acquiring the pidfile around the work loop
//
// States:
//
//	stopped -> starting -> running -> stopping -> stopped
package daemon
