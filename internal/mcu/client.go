package mcu

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"github.com/nerrad567/mcuctrl/internal/infrastructure/config"
	"github.com/nerrad567/mcuctrl/internal/smbus"
)

// DefaultLockTimeout bounds how long an operation waits for the bus lock.
const DefaultLockTimeout = 5 * time.Second

// Logger is the logging interface used by the client.
// This allows the client to work with any logger implementation.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Locker is implemented by transports that can exclude other processes
// from the bus for the duration of an operation.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock() error
}

// Limits are the PWM bounds the post-write self-check enforces.
type Limits struct {
	MinPWM byte
	MaxPWM byte
}

// LimitsFromConfig converts validated thresholds into Limits.
func LimitsFromConfig(t config.ThresholdsConfig) Limits {
	return Limits{MinPWM: byte(t.MinPWM), MaxPWM: byte(t.MaxPWM)}
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers a write observer.
func WithObserver(o WriteObserver) Option {
	return func(c *Client) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithLockTimeout overrides DefaultLockTimeout.
func WithLockTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.lockTimeout = d
		}
	}
}

// Client reads and writes named MCU registers.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Operations are serialised
//     in-process and, when the transport implements Locker, across processes.
type Client struct {
	mu          sync.Mutex
	bus         drivers.I2C
	locker      Locker
	closer      io.Closer
	addr        uint16
	limits      Limits
	lockTimeout time.Duration
	logger      Logger
	observers   []WriteObserver
}

// NewClient creates a client for the device at address on bus.
func NewClient(bus drivers.I2C, address uint16, limits Limits, opts ...Option) *Client {
	c := &Client{
		bus:         bus,
		addr:        address,
		limits:      limits,
		lockTimeout: DefaultLockTimeout,
		logger:      noopLogger{},
	}
	if l, ok := bus.(Locker); ok {
		c.locker = l
	}
	if cl, ok := bus.(io.Closer); ok {
		c.closer = cl
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open opens the configured SMBus adapter and returns a client for the
// configured device. Failures wrap ErrBusOpen.
func Open(cfg config.MCUConfig, limits Limits, opts ...Option) (*Client, error) {
	bus, err := smbus.Open(cfg.Bus, smbus.Options{
		Timeout: cfg.Timeout(),
		Retries: cfg.Retries,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: bus %d: %w", ErrBusOpen, cfg.Bus, err)
	}

	opts = append([]Option{WithLockTimeout(cfg.LockTimeout())}, opts...)
	return NewClient(bus, uint16(cfg.Address), limits, opts...), nil
}

// Address returns the device address.
func (c *Client) Address() uint16 {
	return c.addr
}

// Limits returns the enforced PWM bounds.
func (c *Client) Limits() Limits {
	return c.limits
}

// ReadRegister resolves name in the read namespace and reads it.
func (c *Client) ReadRegister(ctx context.Context, name string) (byte, error) {
	cmd, err := Lookup(name, Read)
	if err != nil {
		return 0, err
	}
	return c.Read(ctx, cmd)
}

// WriteRegister resolves name in the write namespace and writes value,
// followed by the PWM self-check.
func (c *Client) WriteRegister(ctx context.Context, name string, value byte) error {
	cmd, err := Lookup(name, Write)
	if err != nil {
		return err
	}
	return c.Write(ctx, cmd, value)
}

// Read reads one register.
func (c *Client) Read(ctx context.Context, cmd Command) (byte, error) {
	if cmd.Access&Read == 0 {
		return 0, fmt.Errorf("%w: %q is not readable", ErrUnknownCommand, cmd.Name)
	}

	release, err := c.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	v, err := c.readRaw(cmd)
	if err != nil {
		return 0, err
	}
	c.logger.Debug("read register", "register", cmd.Name, "value", v, "hex", hex(v))
	return v, nil
}

// Write writes one register and then runs the PWM self-check: pwm_min is
// raised to Limits.MinPWM if it reads lower and pwm_max is lowered to
// Limits.MaxPWM if it reads higher. Corrective writes do not trigger
// another self-check.
func (c *Client) Write(ctx context.Context, cmd Command, value byte) error {
	if cmd.Access&Write == 0 {
		return fmt.Errorf("%w: %q is not writable", ErrUnknownCommand, cmd.Name)
	}

	release, err := c.acquire(ctx)
	if err != nil {
		return err
	}

	events := make([]WriteEvent, 0, 3)
	err = c.writeRaw(cmd, value)
	if err == nil {
		c.logger.Info("wrote register", "register", cmd.Name, "value", value, "hex", hex(value))
		events = append(events, c.event(ctx, cmd, value, WritePrimary))

		var corrections []WriteEvent
		corrections, err = c.enforceLimits(ctx)
		events = append(events, corrections...)
	}
	release()

	c.notify(ctx, events)
	return err
}

func (c *Client) enforceLimits(ctx context.Context) ([]WriteEvent, error) {
	var events []WriteEvent

	lo, err := c.readRaw(PWMMin)
	if err != nil {
		return events, err
	}
	if lo < c.limits.MinPWM {
		c.logger.Warn("pwm_min below limit, applying corrective measures",
			"observed", lo, "observed_hex", hex(lo), "limit", c.limits.MinPWM)
		if err := c.writeRaw(PWMMin, c.limits.MinPWM); err != nil {
			return events, err
		}
		c.logger.Warn("pwm_min out of defined range, wrote new value",
			"value", c.limits.MinPWM, "hex", hex(c.limits.MinPWM))
		events = append(events, c.event(ctx, PWMMin, c.limits.MinPWM, WriteCorrective))
	}

	hi, err := c.readRaw(PWMMax)
	if err != nil {
		return events, err
	}
	if hi > c.limits.MaxPWM {
		c.logger.Warn("pwm_max above limit, applying corrective measures",
			"observed", hi, "observed_hex", hex(hi), "limit", c.limits.MaxPWM)
		if err := c.writeRaw(PWMMax, c.limits.MaxPWM); err != nil {
			return events, err
		}
		c.logger.Warn("pwm_max out of defined range, wrote new value",
			"value", c.limits.MaxPWM, "hex", hex(c.limits.MaxPWM))
		events = append(events, c.event(ctx, PWMMax, c.limits.MaxPWM, WriteCorrective))
	}

	return events, nil
}

func (c *Client) readRaw(cmd Command) (byte, error) {
	var r [1]byte
	if err := c.bus.Tx(c.addr, []byte{byte(cmd.Opcode)}, r[:]); err != nil {
		return 0, fmt.Errorf("%w: reading %s (0x%02x) from 0x%02x: %w", ErrBusIO, cmd.Name, byte(cmd.Opcode), c.addr, err)
	}
	return r[0], nil
}

func (c *Client) writeRaw(cmd Command, value byte) error {
	if err := c.bus.Tx(c.addr, []byte{byte(cmd.Opcode), value}, nil); err != nil {
		return fmt.Errorf("%w: writing %s (0x%02x) to 0x%02x: %w", ErrBusIO, cmd.Name, byte(cmd.Opcode), c.addr, err)
	}
	return nil
}

// acquire takes the in-process mutex and, if available, the bus lock.
func (c *Client) acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.locker == nil {
		return c.mu.Unlock, nil
	}

	lockCtx, cancel := context.WithTimeout(ctx, c.lockTimeout)
	defer cancel()
	if err := c.locker.Lock(lockCtx); err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrBusIO, err)
	}

	return func() {
		if err := c.locker.Unlock(); err != nil {
			c.logger.Warn("releasing bus lock failed", "error", err)
		}
		c.mu.Unlock()
	}, nil
}

func (c *Client) event(ctx context.Context, cmd Command, value byte, kind WriteKind) WriteEvent {
	return WriteEvent{
		Register: cmd.Name,
		Opcode:   cmd.Opcode,
		Value:    value,
		Kind:     kind,
		Source:   SourceFrom(ctx),
		PassID:   PassIDFrom(ctx),
		At:       time.Now().UTC(),
	}
}

func (c *Client) notify(ctx context.Context, events []WriteEvent) {
	for _, ev := range events {
		for _, o := range c.observers {
			o.RegisterWritten(ctx, ev)
		}
	}
}

// Close releases the underlying transport if the client owns one.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

func hex(v byte) string {
	return fmt.Sprintf("0x%02x", v)
}
