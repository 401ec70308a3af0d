// Package api implements the HTTP REST API and WebSocket server for mcuctrl.
//
// This package provides:
//   - Register read and write endpoints backed by the MCU client
//   - Reconciler status and on-demand passes
//   - Pass and write history from the SQLite store
//   - A WebSocket hub broadcasting passes and register writes
//   - JWT bearer authentication on mutating routes
//   - Middleware stack (request ID, logging, recovery, body limit)
//
// # Security
//
// When api.auth.secret is set, PUT and POST routes require an HS256 bearer
// token signed with it (see IssueToken and "mcuctrl token"). Reads are
// always open; the listener binds to loopback by default.
//
// # Graceful Degradation
//
// The reconciler, history store and metrics handler are optional. Routes
// depending on a missing component answer 503.
package api
