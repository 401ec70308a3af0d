package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementRegisters = "mcu_registers"
	MeasurementWrites    = "mcu_writes"
)

// PassSample is the register state observed by one reconcile pass.
type PassSample struct {
	PWMMin      byte
	PWMMax      byte
	Brightness  byte
	Diverged    bool
	Corrections int
	At          time.Time
}

// WriteSample is a single register write.
type WriteSample struct {
	Register string
	Value    byte
	Kind     string
	Source   string
	At       time.Time
}

// WritePass records the state observed by a reconcile pass.
func (c *Client) WritePass(s PassSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(passPoint(s))
}

// WriteRegisterWrite records a register write.
func (c *Client) WriteRegisterWrite(s WriteSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(writePoint(s))
}

// passPoint has no tags of its own; bus and address come from the
// client's default tags, so the series count is one per device.
func passPoint(s PassSample) *write.Point {
	return write.NewPoint(
		MeasurementRegisters,
		nil,
		map[string]interface{}{
			"pwm_min":     int64(s.PWMMin),
			"pwm_max":     int64(s.PWMMax),
			"brightness":  int64(s.Brightness),
			"diverged":    s.Diverged,
			"corrections": int64(s.Corrections),
		},
		timestampOrNow(s.At),
	)
}

func writePoint(s WriteSample) *write.Point {
	return write.NewPoint(
		MeasurementWrites,
		map[string]string{
			"register": s.Register,
			"kind":     s.Kind,
		},
		map[string]interface{}{
			"value":  int64(s.Value),
			"source": s.Source,
		},
		timestampOrNow(s.At),
	)
}

func timestampOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
