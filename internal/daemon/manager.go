package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nerrad567/mcuctrl/internal/infrastructure/config"
)

// Status represents the lifecycle state of the managed instance.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
)

// Default timings.
const (
	DefaultStartTimeout = 5 * time.Second
	DefaultStopTimeout  = 10 * time.Second
	DefaultKillTimeout  = 5 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

// Logger is the logging interface used by the manager.
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

// Config contains lifecycle settings.
type Config struct {
	// PIDFile is the path of the pidfile.
	PIDFile string

	// StartTimeout bounds how long Start waits for the spawned instance.
	StartTimeout time.Duration

	// StopTimeout is the grace period between SIGTERM and SIGKILL.
	StopTimeout time.Duration

	// KillTimeout bounds how long Stop waits after SIGKILL.
	KillTimeout time.Duration

	// PollInterval is how often process liveness is checked.
	PollInterval time.Duration
}

// ConfigFrom converts the daemon section of the configuration file.
func ConfigFrom(c config.DaemonConfig) Config {
	return Config{
		PIDFile:      c.PIDFile,
		StartTimeout: time.Duration(c.StartTimeout) * time.Second,
		StopTimeout:  time.Duration(c.StopTimeout) * time.Second,
		KillTimeout:  time.Duration(c.KillTimeout) * time.Second,
	}
}

// Spawner launches a background instance and returns its process. The
// instance is expected to acquire the pidfile with its own pid.
type Spawner func(ctx context.Context) (*os.Process, error)

// Manager starts, stops and supervises a single instance through its pidfile.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Manager struct {
	cfg    Config
	spawn  Spawner
	logger Logger

	mu     sync.Mutex
	status Status
}

// NewManager creates a manager. spawn may be nil for callers that only
// stop, query or Run.
func NewManager(cfg Config, spawn Spawner) *Manager {
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = DefaultStartTimeout
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.KillTimeout <= 0 {
		cfg.KillTimeout = DefaultKillTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Manager{
		cfg:    cfg,
		spawn:  spawn,
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Start launches a background instance unless one is already running.
func (m *Manager) Start(ctx context.Context) error {
	pid, err := ReadPIDFile(m.cfg.PIDFile)
	switch {
	case err == nil && processAlive(pid):
		m.logger.Warn("daemon already running", "pid", pid, "pidfile", m.cfg.PIDFile)
		return fmt.Errorf("%w (pid %d, file %s)", ErrAlreadyRunning, pid, m.cfg.PIDFile)
	case err == nil:
		m.logger.Warn("removing stale pidfile", "path", m.cfg.PIDFile, "stale_pid", pid)
		if err := removePIDFile(m.cfg.PIDFile); err != nil {
			return err
		}
	case !errors.Is(err, ErrNoPIDFile):
		m.logger.Warn("removing unreadable pidfile", "path", m.cfg.PIDFile, "error", err)
		if err := removePIDFile(m.cfg.PIDFile); err != nil {
			return err
		}
	}

	if m.spawn == nil {
		return errors.New("daemon: no spawner configured")
	}

	m.setStatus(StatusStarting)
	proc, err := m.spawn(ctx)
	if err != nil {
		m.setStatus(StatusStopped)
		return fmt.Errorf("spawning daemon: %w", err)
	}

	if err := m.waitForPIDFile(ctx, proc.Pid); err != nil {
		_ = proc.Kill() //nolint:errcheck // already reporting the start failure
		m.setStatus(StatusStopped)
		return err
	}

	m.setStatus(StatusRunning)
	m.logger.Info("daemon started", "pid", proc.Pid, "pidfile", m.cfg.PIDFile)
	return nil
}

func (m *Manager) waitForPIDFile(ctx context.Context, pid int) error {
	deadline := time.Now().Add(m.cfg.StartTimeout)
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if got, err := ReadPIDFile(m.cfg.PIDFile); err == nil && got == pid {
			return nil
		}
		if !processAlive(pid) {
			return fmt.Errorf("daemon process %d exited during startup", pid)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: pid %d after %v", ErrStartTimeout, pid, m.cfg.StartTimeout)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for daemon to start: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Stop terminates the recorded instance. A missing pidfile means there is
// nothing to stop and is not an error.
func (m *Manager) Stop(ctx context.Context) error {
	pid, err := ReadPIDFile(m.cfg.PIDFile)
	if errors.Is(err, ErrNoPIDFile) {
		m.logger.Warn("pidfile does not exist, daemon not running?", "pidfile", m.cfg.PIDFile)
		m.setStatus(StatusStopped)
		return nil
	}
	if err != nil {
		m.logger.Warn("removing unreadable pidfile", "path", m.cfg.PIDFile, "error", err)
		return removePIDFile(m.cfg.PIDFile)
	}
	if !processAlive(pid) {
		m.logger.Warn("removing stale pidfile", "path", m.cfg.PIDFile, "stale_pid", pid)
		m.setStatus(StatusStopped)
		return removePIDFile(m.cfg.PIDFile)
	}

	m.setStatus(StatusStopping)
	m.logger.Info("stopping daemon", "pid", pid)

	if err := unix.Kill(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		m.setStatus(StatusRunning)
		return fmt.Errorf("signalling pid %d: %w", pid, err)
	}

	exited, err := m.waitForExit(ctx, pid, m.cfg.StopTimeout)
	if err != nil {
		return err
	}
	if !exited {
		m.logger.Warn("daemon did not stop within grace period, killing",
			"pid", pid, "grace_period", m.cfg.StopTimeout)
		if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("killing pid %d: %w", pid, err)
		}
		exited, err = m.waitForExit(ctx, pid, m.cfg.KillTimeout)
		if err != nil {
			return err
		}
		if !exited {
			return fmt.Errorf("%w: pid %d", ErrStopTimeout, pid)
		}
	}

	// A terminated instance removes its own pidfile; a killed one cannot.
	if err := removePIDFile(m.cfg.PIDFile); err != nil {
		return err
	}

	m.setStatus(StatusStopped)
	m.logger.Info("daemon stopped", "pid", pid)
	return nil
}

func (m *Manager) waitForExit(ctx context.Context, pid int, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if !processAlive(pid) {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, fmt.Errorf("waiting for pid %d to exit: %w", pid, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Restart stops the running instance, if any, and starts a new one.
func (m *Manager) Restart(ctx context.Context) error {
	if err := m.Stop(ctx); err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	if err := m.Start(ctx); err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	return nil
}

// Status reports the recorded instance. The pid is 0 when no pidfile exists.
func (m *Manager) Status() (Status, int) {
	pid, err := ReadPIDFile(m.cfg.PIDFile)
	if err != nil {
		return StatusStopped, 0
	}
	if !processAlive(pid) {
		return StatusStopped, pid
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == StatusStarting || m.status == StatusStopping {
		return m.status, pid
	}
	return StatusRunning, pid
}

// Run holds the pidfile for the current process while fn runs. fn should
// return when ctx is cancelled.
func (m *Manager) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	pf, err := AcquirePIDFile(m.cfg.PIDFile, os.Getpid(), m.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := pf.Release(); err != nil {
			m.logger.Error("releasing pidfile failed", "path", pf.Path(), "error", err)
		}
		m.setStatus(StatusStopped)
	}()

	m.setStatus(StatusRunning)
	m.logger.Info("daemon running", "pid", os.Getpid(), "pidfile", pf.Path())

	err = fn(ctx)
	m.setStatus(StatusStopping)
	return err
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != s {
		m.logger.Debug("daemon status changed", "from", m.status, "to", s)
	}
	m.status = s
}
