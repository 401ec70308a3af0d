package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/mcuctrl/internal/mcu"
	"github.com/nerrad567/mcuctrl/internal/reconcile"
)

// commandSource tags writes requested over MQTT.
const commandSource = "mqtt"

// ErrInvalidCommand is returned for malformed command payloads.
var ErrInvalidCommand = errors.New("telemetry: invalid command")

// RegisterWriter writes a named register.
type RegisterWriter interface {
	WriteRegister(ctx context.Context, name string, value byte) error
}

// PassRunner runs an immediate reconcile pass.
type PassRunner interface {
	Tick(ctx context.Context) (reconcile.Result, error)
}

// Ack is published on the ack topic after every command.
type Ack struct {
	Command  string `json:"command"`
	Register string `json:"register,omitempty"`
	Value    *byte  `json:"value,omitempty"`
	PassID   string `json:"pass_id,omitempty"`
	Diverged bool   `json:"diverged,omitempty"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	At       string `json:"at"`
}

type writeCommand struct {
	Value json.RawMessage `json:"value"`
}

// CommandHandler executes write and reconcile commands received over MQTT.
type CommandHandler struct {
	broker Broker
	writer RegisterWriter
	runner PassRunner
	logger Logger

	mu  sync.RWMutex
	ctx context.Context
}

// NewCommandHandler creates a handler. runner may be nil when no
// reconciler is running, in which case reconcile commands are rejected.
func NewCommandHandler(broker Broker, writer RegisterWriter, runner PassRunner, logger Logger) *CommandHandler {
	if logger == nil {
		logger = noopLogger{}
	}
	return &CommandHandler{
		broker: broker,
		writer: writer,
		runner: runner,
		logger: logger,
		ctx:    context.Background(),
	}
}

// Start subscribes to the command topics. Commands run with ctx, so
// cancelling it aborts in-flight bus operations.
func (h *CommandHandler) Start(ctx context.Context) error {
	h.mu.Lock()
	h.ctx = mcu.WithSource(ctx, commandSource)
	h.mu.Unlock()

	topics := h.broker.Topics()
	if err := h.broker.Subscribe(topics.AllWriteCommands(), h.broker.QoS(), h.HandleWrite); err != nil {
		return fmt.Errorf("subscribing to write commands: %w", err)
	}
	if err := h.broker.Subscribe(topics.ReconcileCommand(), h.broker.QoS(), h.HandleReconcile); err != nil {
		return fmt.Errorf("subscribing to reconcile command: %w", err)
	}

	h.logger.Info("MQTT command handler started", "topics", topics.Base()+"/command/#")
	return nil
}

func (h *CommandHandler) context() context.Context {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ctx
}

// HandleWrite processes a message on a write command topic. The payload
// is {"value": n} where n is a number or a decimal/0x-hex string.
func (h *CommandHandler) HandleWrite(topic string, payload []byte) error {
	register, ok := h.broker.Topics().RegisterFromWriteCommand(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected topic %q", ErrInvalidCommand, topic)
	}

	ack := Ack{Command: "write", Register: register}
	value, err := parseWriteCommand(payload)
	if err == nil {
		ack.Value = &value
		err = h.writer.WriteRegister(h.context(), register, value)
	}

	h.ack(register, ack, err)
	if err != nil {
		return fmt.Errorf("write command %s: %w", register, err)
	}
	h.logger.Info("MQTT write command applied", "register", register, "value", mcu.FormatValue(value))
	return nil
}

// HandleReconcile runs a pass immediately and acknowledges its outcome.
func (h *CommandHandler) HandleReconcile(_ string, _ []byte) error {
	ack := Ack{Command: "reconcile"}

	var err error
	if h.runner == nil {
		err = fmt.Errorf("%w: reconciler not running", ErrInvalidCommand)
	} else {
		var res reconcile.Result
		res, err = h.runner.Tick(h.context())
		ack.PassID = res.PassID
		ack.Diverged = res.Diverged
	}

	h.ack("reconcile", ack, err)
	if err != nil {
		return fmt.Errorf("reconcile command: %w", err)
	}
	return nil
}

func (h *CommandHandler) ack(name string, ack Ack, err error) {
	ack.OK = err == nil
	if err != nil {
		ack.Error = err.Error()
	}
	ack.At = time.Now().UTC().Format(time.RFC3339Nano)

	topic := h.broker.Topics().Ack(name)
	if perr := h.broker.PublishJSON(topic, ack, false); perr != nil {
		h.logger.Warn("publishing command ack failed", "topic", topic, "error", perr)
	}
}

func parseWriteCommand(payload []byte) (byte, error) {
	var cmd writeCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	if len(cmd.Value) == 0 {
		return 0, fmt.Errorf("%w: missing value", ErrInvalidCommand)
	}

	var s string
	if err := json.Unmarshal(cmd.Value, &s); err != nil {
		s = string(cmd.Value)
	}
	v, err := mcu.ParseValue(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	return v, nil
}
