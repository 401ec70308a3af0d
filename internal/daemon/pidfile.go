package daemon

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// pidFileMode keeps the pidfile readable by status checks run as other users.
const pidFileMode = 0644

// maxPIDFileRetries limits recursion depth for PID file acquisition.
const maxPIDFileRetries = 3

// PIDFile is an acquired, locked pidfile.
type PIDFile struct {
	path string
	file *os.File
}

// ReadPIDFile returns the pid recorded at path.
// It returns ErrNoPIDFile if the file does not exist.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNoPIDFile
		}
		return 0, fmt.Errorf("reading pidfile %s: %w", path, err)
	}
	return parsePID(string(data))
}

func parsePID(s string) (int, error) {
	pid, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pidfile content %q", strings.TrimSpace(s))
	}
	return pid, nil
}

// AcquirePIDFile records pid at path and locks the file.
//
// A file locked by another process, or naming a live process other than
// pid, yields ErrAlreadyRunning. A file left behind by a dead instance is
// reclaimed in place.
func AcquirePIDFile(path string, pid int, logger Logger) (*PIDFile, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	return acquirePIDFileWithRetry(path, pid, logger, 0)
}

func acquirePIDFileWithRetry(path string, pid int, logger Logger, attempt int) (*PIDFile, error) {
	if attempt >= maxPIDFileRetries {
		return nil, fmt.Errorf("failed to acquire pidfile %s after %d attempts", path, maxPIDFileRetries)
	}

	// Try atomic exclusive create first.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, pidFileMode)
	if err == nil {
		if err := lockFile(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: pidfile %s is locked", ErrAlreadyRunning, path)
		}
		if err := holdsPath(f, path); err != nil {
			f.Close()
			if errors.Is(err, errPathReplaced) {
				logger.Debug("pidfile replaced while locking, retrying", "path", path)
				return acquirePIDFileWithRetry(path, pid, logger, attempt+1)
			}
			return nil, err
		}
		pf := &PIDFile{path: path, file: f}
		if err := pf.write(pid); err != nil {
			pf.Release()
			return nil, err
		}
		logger.Debug("acquired pidfile", "path", path, "pid", pid)
		return pf, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("creating pidfile %s: %w", path, err)
	}

	// File exists. Whoever holds its lock is the running instance.
	f, err = os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return acquirePIDFileWithRetry(path, pid, logger, attempt+1)
		}
		return nil, fmt.Errorf("opening pidfile %s: %w", path, err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		existing, _ := ReadPIDFile(path)
		return nil, fmt.Errorf("%w (pid %d, file %s)", ErrAlreadyRunning, existing, path)
	}
	// The previous owner may have unlinked the file between our open and
	// lock; a lock on an unlinked inode excludes nobody.
	if err := holdsPath(f, path); err != nil {
		f.Close()
		if errors.Is(err, errPathReplaced) {
			logger.Debug("pidfile replaced while locking, retrying", "path", path)
			return acquirePIDFileWithRetry(path, pid, logger, attempt+1)
		}
		return nil, err
	}

	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading pidfile %s: %w", path, err)
	}
	existing, parseErr := parsePID(string(data))
	switch {
	case parseErr != nil:
		logger.Warn("reclaiming invalid pidfile", "path", path, "content", strings.TrimSpace(string(data)))
	case existing != pid && processAlive(existing):
		f.Close()
		return nil, fmt.Errorf("%w (pid %d, file %s)", ErrAlreadyRunning, existing, path)
	case existing != pid:
		logger.Warn("reclaiming stale pidfile", "path", path, "stale_pid", existing)
	}

	pf := &PIDFile{path: path, file: f}
	if err := pf.write(pid); err != nil {
		f.Close()
		return nil, err
	}
	logger.Debug("acquired pidfile", "path", path, "pid", pid)
	return pf, nil
}

// errPathReplaced means path no longer names the locked file.
var errPathReplaced = errors.New("pidfile replaced")

// holdsPath checks that f is still the file at path.
func holdsPath(f *os.File, path string) error {
	held, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat locked pidfile %s: %w", path, err)
	}
	current, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return errPathReplaced
	}
	if err != nil {
		return fmt.Errorf("stat pidfile %s: %w", path, err)
	}
	if !os.SameFile(held, current) {
		return errPathReplaced
	}
	return nil
}

// lockFile takes the instance lock. Tests replace it to interleave a
// competing Release.
var lockFile = func(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

func (p *PIDFile) write(pid int) error {
	if err := p.file.Truncate(0); err != nil {
		return fmt.Errorf("truncating pidfile %s: %w", p.path, err)
	}
	if _, err := p.file.WriteAt([]byte(fmt.Sprintf("%d\n", pid)), 0); err != nil {
		return fmt.Errorf("writing pidfile %s: %w", p.path, err)
	}
	return p.file.Sync()
}

// Path returns the pidfile location.
func (p *PIDFile) Path() string {
	return p.path
}

// Release removes the pidfile and drops the lock.
func (p *PIDFile) Release() error {
	if p.file == nil {
		return nil
	}
	err := os.Remove(p.path)
	if errors.Is(err, os.ErrNotExist) {
		err = nil
	}
	if cerr := p.file.Close(); err == nil {
		err = cerr
	}
	p.file = nil
	return err
}

func removePIDFile(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing pidfile %s: %w", path, err)
	}
	return nil
}

// processAlive reports whether pid names an existing process, including
// one owned by another user.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
