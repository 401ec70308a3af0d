package telemetry

import (
	"context"
	"time"

	"github.com/nerrad567/mcuctrl/internal/infrastructure/mqtt"
	"github.com/nerrad567/mcuctrl/internal/mcu"
	"github.com/nerrad567/mcuctrl/internal/reconcile"
)

// Logger is the logging interface used by this package.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Broker is the subset of *mqtt.Client used here.
type Broker interface {
	Topics() mqtt.Topics
	QoS() byte
	PublishJSON(topic string, v any, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// StatePayload is the retained document on the state topic.
type StatePayload struct {
	PassID      string                 `json:"pass_id"`
	StartedAt   time.Time              `json:"started_at"`
	DurationMS  int64                  `json:"duration_ms"`
	Snapshot    reconcile.Snapshot     `json:"snapshot"`
	Diverged    bool                   `json:"diverged"`
	Corrections []reconcile.Correction `json:"corrections,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// WritePayload is published on the write and correction event topics.
type WritePayload struct {
	Register string `json:"register"`
	Opcode   byte   `json:"opcode"`
	Value    byte   `json:"value"`
	Kind     string `json:"kind"`
	Source   string `json:"source"`
	PassID   string `json:"pass_id,omitempty"`
	At       string `json:"at"`
}

// MQTTPublisher publishes pass results and write events.
type MQTTPublisher struct {
	broker Broker
	logger Logger
}

var (
	_ reconcile.Observer = (*MQTTPublisher)(nil)
	_ mcu.WriteObserver  = (*MQTTPublisher)(nil)
)

// NewMQTTPublisher creates a publisher on broker. A nil logger discards
// publish failures.
func NewMQTTPublisher(broker Broker, logger Logger) *MQTTPublisher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &MQTTPublisher{broker: broker, logger: logger}
}

// PassCompleted publishes the pass as the retained state document.
func (p *MQTTPublisher) PassCompleted(_ context.Context, res reconcile.Result) {
	payload := StatePayload{
		PassID:      res.PassID,
		StartedAt:   res.StartedAt.UTC(),
		DurationMS:  res.Duration.Milliseconds(),
		Snapshot:    res.Snapshot,
		Diverged:    res.Diverged,
		Corrections: res.Corrections,
	}
	if res.Err != nil {
		payload.Error = res.Err.Error()
	}

	topic := p.broker.Topics().State()
	if err := p.broker.PublishJSON(topic, payload, true); err != nil {
		p.logger.Warn("publishing reconcile state failed", "topic", topic, "error", err)
	}
}

// RegisterWritten publishes every write on the write event topic, and
// corrective writes additionally on the correction topic.
func (p *MQTTPublisher) RegisterWritten(_ context.Context, ev mcu.WriteEvent) {
	payload := WritePayload{
		Register: ev.Register,
		Opcode:   byte(ev.Opcode),
		Value:    ev.Value,
		Kind:     string(ev.Kind),
		Source:   ev.Source,
		PassID:   ev.PassID,
		At:       ev.At.UTC().Format(time.RFC3339Nano),
	}

	topics := p.broker.Topics()
	p.publish(topics.WriteEvent(), payload)
	if ev.Kind == mcu.WriteCorrective {
		p.publish(topics.CorrectionEvent(), payload)
	}
}

func (p *MQTTPublisher) publish(topic string, v any) {
	if err := p.broker.PublishJSON(topic, v, false); err != nil {
		p.logger.Warn("publishing register event failed", "topic", topic, "error", err)
	}
}
