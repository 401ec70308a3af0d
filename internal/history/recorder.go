package history

import (
	"context"
	"time"

	"github.com/nerrad567/mcuctrl/internal/mcu"
	"github.com/nerrad567/mcuctrl/internal/reconcile"
)

const recordTimeout = 2 * time.Second

// Logger is the logging interface used by the recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

// Recorder stores pass results and write events as they happen.
// It implements reconcile.Observer and mcu.WriteObserver.
type Recorder struct {
	repo   Repository
	logger Logger
}

var (
	_ reconcile.Observer = (*Recorder)(nil)
	_ mcu.WriteObserver  = (*Recorder)(nil)
)

// NewRecorder creates a recorder writing to repo.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// PassCompleted stores a pass result.
func (r *Recorder) PassCompleted(ctx context.Context, res reconcile.Result) {
	rec := PassRecord{
		ID:          res.PassID,
		StartedAt:   res.StartedAt,
		Duration:    res.Duration,
		PWMMin:      res.Snapshot.PWMMin,
		PWMMax:      res.Snapshot.PWMMax,
		Brightness:  res.Snapshot.Brightness,
		Diverged:    res.Diverged,
		Corrections: len(res.Corrections),
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}

	ctx, cancel := detached(ctx)
	defer cancel()
	if err := r.repo.RecordPass(ctx, rec); err != nil {
		r.logger.Warn("recording reconcile pass failed", "pass_id", res.PassID, "error", err)
	}
}

// RegisterWritten stores a register write.
func (r *Recorder) RegisterWritten(ctx context.Context, ev mcu.WriteEvent) {
	rec := WriteRecord{
		PassID:    ev.PassID,
		Register:  ev.Register,
		Opcode:    byte(ev.Opcode),
		Value:     ev.Value,
		Kind:      string(ev.Kind),
		Source:    ev.Source,
		WrittenAt: ev.At,
	}

	ctx, cancel := detached(ctx)
	defer cancel()
	if err := r.repo.RecordWrite(ctx, rec); err != nil {
		r.logger.Warn("recording register write failed", "register", ev.Register, "error", err)
	}
}

// detached keeps records made during shutdown from being cancelled with
// the loop context.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
}
