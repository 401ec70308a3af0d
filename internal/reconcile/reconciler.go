package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/mcuctrl/internal/infrastructure/config"
	"github.com/nerrad567/mcuctrl/internal/mcu"
)

// Client is the register access the reconciler needs. *mcu.Client satisfies it.
type Client interface {
	Read(ctx context.Context, cmd mcu.Command) (byte, error)
	Write(ctx context.Context, cmd mcu.Command, value byte) error
}

// Logger is the logging interface used by the reconciler.
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

// Config holds the enforced values.
type Config struct {
	MinPWM            byte
	MaxPWM            byte
	DefaultBrightness byte
	Interval          time.Duration
}

// ConfigFrom converts validated thresholds into a reconciler Config.
func ConfigFrom(t config.ThresholdsConfig) Config {
	return Config{
		MinPWM:            byte(t.MinPWM),
		MaxPWM:            byte(t.MaxPWM),
		DefaultBrightness: byte(t.DefaultBrightness),
		Interval:          t.Interval(),
	}
}

// State is the reconciler's position in its loop.
type State string

const (
	StateIdle       State = "idle"
	StateChecking   State = "checking"
	StateCorrecting State = "correcting"
	StateSleeping   State = "sleeping"
	StateStopped    State = "stopped"
)

// Snapshot is what one pass read from the device. It is never reused
// across passes.
type Snapshot struct {
	PWMMin     byte `json:"pwm_min"`
	PWMMax     byte `json:"pwm_max"`
	Brightness byte `json:"brightness"`
}

// Correction is one corrective write made by a pass.
type Correction struct {
	Register string `json:"register"`
	Observed byte   `json:"observed"`
	Target   byte   `json:"target"`
}

// Result describes a completed pass, successful or not.
type Result struct {
	PassID      string        `json:"pass_id"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration_ns"`
	Snapshot    Snapshot      `json:"snapshot"`
	Diverged    bool          `json:"diverged"`
	Corrections []Correction  `json:"corrections,omitempty"`
	Err         error         `json:"-"`
}

// Observer receives every pass result. Observers must not block for long.
type Observer interface {
	PassCompleted(ctx context.Context, res Result)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, res Result)

// PassCompleted calls f.
func (f ObserverFunc) PassCompleted(ctx context.Context, res Result) {
	f(ctx, res)
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the reconciler logger.
func WithLogger(l Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithObserver registers a pass observer.
func WithObserver(o Observer) Option {
	return func(r *Reconciler) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// IsRecoverable reports whether a pass error should be retried on the next
// interval rather than stopping the daemon.
func IsRecoverable(err error) bool {
	return errors.Is(err, mcu.ErrBusIO)
}

// Reconciler enforces Config against the device.
//
// Thread Safety:
//   - Tick may be called concurrently with Run; passes are serialised.
type Reconciler struct {
	client    Client
	cfg       Config
	logger    Logger
	observers []Observer

	tickMu sync.Mutex

	mu       sync.RWMutex
	state    State
	last     *Result
	failures int
}

// New creates a reconciler.
func New(client Client, cfg Config, opts ...Option) *Reconciler {
	r := &Reconciler{
		client: client,
		cfg:    cfg,
		logger: noopLogger{},
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the enforced values.
func (r *Reconciler) Config() Config {
	return r.cfg
}

// State returns the current loop state.
func (r *Reconciler) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// LastResult returns the most recent pass, if any.
func (r *Reconciler) LastResult() (Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return Result{}, false
	}
	return *r.last, true
}

// ConsecutiveFailures returns how many passes in a row have failed.
func (r *Reconciler) ConsecutiveFailures() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.failures
}

// Run performs a pass immediately and then every Interval until ctx is
// done. It returns nil on cancellation and the pass error when a pass
// fails for a reason other than bus I/O.
func (r *Reconciler) Run(ctx context.Context) error {
	ctx = mcu.WithSource(ctx, "daemon")
	defer r.setState(StateStopped)

	r.logger.Info("reconciler started",
		"interval", r.cfg.Interval,
		"min_pwm", r.cfg.MinPWM,
		"max_pwm", r.cfg.MaxPWM,
		"default_brightness", r.cfg.DefaultBrightness,
	)

	for {
		if _, err := r.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				r.logger.Info("reconciler stopped")
				return nil
			}
			if !IsRecoverable(err) {
				r.logger.Error("reconcile pass failed, stopping", "error", err)
				return err
			}
			r.logger.Error("reconcile pass failed, retrying next interval",
				"error", err,
				"consecutive_failures", r.ConsecutiveFailures(),
				"retry_in", r.cfg.Interval,
			)
		}

		r.setState(StateSleeping)
		timer := time.NewTimer(r.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("reconciler stopped")
			return nil
		case <-timer.C:
		}
	}
}

// Tick runs one reconciliation pass.
func (r *Reconciler) Tick(ctx context.Context) (Result, error) {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()

	res := Result{
		PassID:    uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	ctx = mcu.WithPassID(ctx, res.PassID)

	r.setState(StateChecking)
	res.Err = r.pass(ctx, &res)
	res.Duration = time.Since(res.StartedAt)

	r.mu.Lock()
	r.last = &res
	if res.Err != nil {
		r.failures++
	} else {
		r.failures = 0
	}
	r.state = StateIdle
	r.mu.Unlock()

	for _, o := range r.observers {
		o.PassCompleted(ctx, res)
	}
	return res, res.Err
}

func (r *Reconciler) pass(ctx context.Context, res *Result) error {
	lo, err := r.client.Read(ctx, mcu.PWMMin)
	if err != nil {
		return err
	}
	hi, err := r.client.Read(ctx, mcu.PWMMax)
	if err != nil {
		return err
	}
	brightness, err := r.client.Read(ctx, mcu.ReadBrightness)
	if err != nil {
		return err
	}
	res.Snapshot = Snapshot{PWMMin: lo, PWMMax: hi, Brightness: brightness}

	if lo != r.cfg.MinPWM {
		if err := r.correct(ctx, res, mcu.PWMMin, lo, r.cfg.MinPWM); err != nil {
			return err
		}
	}
	if hi != r.cfg.MaxPWM {
		if err := r.correct(ctx, res, mcu.PWMMax, hi, r.cfg.MaxPWM); err != nil {
			return err
		}
	}

	if !res.Diverged {
		r.logger.Debug("thresholds match configuration",
			"pwm_min", lo, "pwm_max", hi, "brightness", brightness)
		return nil
	}

	// Drifted bounds mean the firmware state is suspect, so brightness is
	// reset whether or not it matches.
	return r.correct(ctx, res, mcu.WriteBrightness, brightness, r.cfg.DefaultBrightness)
}

func (r *Reconciler) correct(ctx context.Context, res *Result, cmd mcu.Command, observed, target byte) error {
	res.Diverged = true
	r.setState(StateCorrecting)
	r.logger.Warn("register differs from configuration, applying corrective measures",
		"register", cmd.Name,
		"observed", mcu.FormatValue(observed),
		"target", mcu.FormatValue(target),
		"pass_id", res.PassID,
	)

	if err := r.client.Write(ctx, cmd, target); err != nil {
		return err
	}
	res.Corrections = append(res.Corrections, Correction{Register: cmd.Name, Observed: observed, Target: target})
	return nil
}

func (r *Reconciler) setState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
}
