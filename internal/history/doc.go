// Package history persists reconcile passes and register writes to SQLite
// so operators can see when and how often the panel drifted.
//
// Recording is best effort: the Recorder logs storage failures and never
// feeds them back into the control loop.
package history
