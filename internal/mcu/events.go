package mcu

import (
	"context"
	"time"
)

// WriteKind distinguishes requested writes from self-check corrections.
type WriteKind string

const (
	WritePrimary    WriteKind = "primary"
	WriteCorrective WriteKind = "corrective"
)

// WriteEvent describes one register write that reached the device.
type WriteEvent struct {
	Register string
	Opcode   Opcode
	Value    byte
	Kind     WriteKind
	Source   string
	PassID   string
	At       time.Time
}

// WriteObserver is notified after each completed write operation.
// Observers run outside the bus lock and must not block for long.
type WriteObserver interface {
	RegisterWritten(ctx context.Context, ev WriteEvent)
}

// WriteObserverFunc adapts a function to WriteObserver.
type WriteObserverFunc func(ctx context.Context, ev WriteEvent)

// RegisterWritten calls f.
func (f WriteObserverFunc) RegisterWritten(ctx context.Context, ev WriteEvent) {
	f(ctx, ev)
}

type ctxKey int

const (
	sourceKey ctxKey = iota
	passIDKey
)

// WithSource tags writes made with ctx with who requested them
// (cli, daemon, api, mqtt).
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey, source)
}

// SourceFrom returns the source set by WithSource, or "unknown".
func SourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey).(string); ok && s != "" {
		return s
	}
	return "unknown"
}

// WithPassID ties writes made with ctx to a reconcile pass.
func WithPassID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, passIDKey, id)
}

// PassIDFrom returns the pass ID set by WithPassID, or "".
func PassIDFrom(ctx context.Context) string {
	s, _ := ctx.Value(passIDKey).(string)
	return s
}
