package smbus

import (
	"fmt"
	"os"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
	"tinygo.org/x/drivers"
)

// ioctl requests and transaction types from <linux/i2c-dev.h> and <linux/i2c.h>.
const (
	ioctlRetries = 0x0701
	ioctlTimeout = 0x0702
	ioctlSlave   = 0x0703
	ioctlSMBus   = 0x0720

	smbusWrite = 0
	smbusRead  = 1

	smbusByte     = 1
	smbusByteData = 2

	// union i2c_smbus_data holds a block of up to 32 bytes plus length and PEC.
	smbusDataSize = 34
)

// DefaultDevicePath is the adapter node pattern, formatted with the bus number.
const DefaultDevicePath = "/dev/i2c-%d"

// Options configures an adapter handle.
type Options struct {
	// DevicePath overrides DefaultDevicePath. It is formatted with the bus number.
	DevicePath string

	// Timeout bounds each transfer in the kernel (10 ms resolution).
	// Zero leaves the adapter default in place.
	Timeout time.Duration

	// Retries is the number of times the adapter retries on arbitration loss.
	// Zero leaves the adapter default in place.
	Retries int
}

// i2c_smbus_ioctl_data. Field layout matches the C struct on 32 and 64 bit.
type smbusIoctlData struct {
	readWrite uint8
	command   uint8
	size      uint32
	data      *[smbusDataSize]byte
}

// Bus is an open SMBus adapter.
//
// Thread Safety:
//   - Tx is serialised internally; Lock coordinates with other processes.
type Bus struct {
	mu    sync.Mutex
	file  *os.File
	path  string
	slave uint16
	bound bool
}

var _ drivers.I2C = (*Bus)(nil)

// Open opens adapter number bus.
//
// Returns an error wrapping ErrOpen if the node is missing, inaccessible or
// rejects the timeout settings.
func Open(bus int, opts Options) (*Bus, error) {
	if bus < 0 {
		return nil, fmt.Errorf("%w: invalid bus number %d", ErrOpen, bus)
	}
	pattern := opts.DevicePath
	if pattern == "" {
		pattern = DefaultDevicePath
	}
	path := fmt.Sprintf(pattern, bus)

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}

	fd := int(f.Fd())
	if opts.Timeout > 0 {
		ticks := int((opts.Timeout + 10*time.Millisecond - 1) / (10 * time.Millisecond))
		if err := unix.IoctlSetInt(fd, ioctlTimeout, ticks); err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: setting timeout on %s: %w", ErrOpen, path, err)
		}
	}
	if opts.Retries > 0 {
		if err := unix.IoctlSetInt(fd, ioctlRetries, opts.Retries); err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: setting retries on %s: %w", ErrOpen, path, err)
		}
	}

	return &Bus{file: f, path: path}, nil
}

// Path returns the device node this bus was opened from.
func (b *Bus) Path() string {
	return b.path
}

// Tx performs one SMBus transaction with the device at addr.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file == nil {
		return ErrClosed
	}

	switch {
	case len(w) == 1 && len(r) == 1:
		return b.transfer(addr, smbusRead, w[0], smbusByteData, 0, r)
	case len(w) == 2 && len(r) == 0:
		return b.transfer(addr, smbusWrite, w[0], smbusByteData, w[1], nil)
	case len(w) == 0 && len(r) == 1:
		return b.transfer(addr, smbusRead, 0, smbusByte, 0, r)
	case len(w) == 1 && len(r) == 0:
		return b.transfer(addr, smbusWrite, w[0], smbusByte, 0, nil)
	default:
		return fmt.Errorf("%w: write %d bytes, read %d bytes", ErrUnsupported, len(w), len(r))
	}
}

func (b *Bus) transfer(addr uint16, rw uint8, command byte, size uint32, value byte, r []byte) error {
	if err := b.selectSlave(addr); err != nil {
		return err
	}

	var data [smbusDataSize]byte
	data[0] = value
	args := smbusIoctlData{
		readWrite: rw,
		command:   command,
		size:      size,
		data:      &data,
	}

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, b.file.Fd(), ioctlSMBus, uintptr(unsafe.Pointer(&args)))
	if errno != 0 {
		return fmt.Errorf("%w: addr 0x%02x cmd 0x%02x: %w", ErrIO, addr, command, errno)
	}
	if len(r) > 0 {
		r[0] = data[0]
	}
	return nil
}

func (b *Bus) selectSlave(addr uint16) error {
	if b.bound && b.slave == addr {
		return nil
	}
	if err := unix.IoctlSetInt(int(b.file.Fd()), ioctlSlave, int(addr)); err != nil {
		b.bound = false
		return fmt.Errorf("%w: selecting addr 0x%02x: %w", ErrIO, addr, err)
	}
	b.slave = addr
	b.bound = true
	return nil
}

// Close releases the adapter. It also drops any advisory lock held through it.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file == nil {
		return nil
	}
	err := b.file.Close()
	b.file = nil
	return err
}
