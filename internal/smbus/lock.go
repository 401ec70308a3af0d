package smbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

const lockPollInterval = 10 * time.Millisecond

// Lock takes an exclusive advisory lock on the adapter node, waiting until
// ctx is done. Every process opens its own descriptor, so the lock excludes
// other mcuctrl processes. It does not nest within one Bus.
func (b *Bus) Lock(ctx context.Context) error {
	fd, err := b.fd()
	if err != nil {
		return err
	}

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			return fmt.Errorf("locking %s: %w", b.path, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", ErrLockTimeout, b.path, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Unlock releases the advisory lock.
func (b *Bus) Unlock() error {
	fd, err := b.fd()
	if err != nil {
		return err
	}
	if err := unix.Flock(fd, unix.LOCK_UN); err != nil {
		return fmt.Errorf("unlocking %s: %w", b.path, err)
	}
	return nil
}

func (b *Bus) fd() (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file == nil {
		return -1, ErrClosed
	}
	return int(b.file.Fd()), nil
}
