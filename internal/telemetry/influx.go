package telemetry

import (
	"context"

	"github.com/nerrad567/mcuctrl/internal/infrastructure/influxdb"
	"github.com/nerrad567/mcuctrl/internal/mcu"
	"github.com/nerrad567/mcuctrl/internal/reconcile"
)

// PointWriter is the subset of *influxdb.Client used here. The client is
// bound to the MCU being recorded.
type PointWriter interface {
	WritePass(s influxdb.PassSample)
	WriteRegisterWrite(s influxdb.WriteSample)
}

// InfluxRecorder writes register telemetry points.
type InfluxRecorder struct {
	writer PointWriter
}

var (
	_ reconcile.Observer = (*InfluxRecorder)(nil)
	_ mcu.WriteObserver  = (*InfluxRecorder)(nil)
)

// NewInfluxRecorder records points through writer.
func NewInfluxRecorder(writer PointWriter) *InfluxRecorder {
	return &InfluxRecorder{writer: writer}
}

// PassCompleted records the observed registers. Failed passes are skipped
// since their snapshot is incomplete.
func (r *InfluxRecorder) PassCompleted(_ context.Context, res reconcile.Result) {
	if res.Err != nil {
		return
	}
	r.writer.WritePass(influxdb.PassSample{
		PWMMin:      res.Snapshot.PWMMin,
		PWMMax:      res.Snapshot.PWMMax,
		Brightness:  res.Snapshot.Brightness,
		Diverged:    res.Diverged,
		Corrections: len(res.Corrections),
		At:          res.StartedAt,
	})
}

// RegisterWritten records a write.
func (r *InfluxRecorder) RegisterWritten(_ context.Context, ev mcu.WriteEvent) {
	r.writer.WriteRegisterWrite(influxdb.WriteSample{
		Register: ev.Register,
		Value:    ev.Value,
		Kind:     string(ev.Kind),
		Source:   ev.Source,
		At:       ev.At,
	})
}
