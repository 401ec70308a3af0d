// Package mcutest provides an in-memory MCU register file for tests.
package mcutest

import (
	"errors"
	"fmt"
	"sync"

	"tinygo.org/x/drivers"

	"github.com/nerrad567/mcuctrl/internal/mcu"
)

// ErrNack is returned for transfers addressed to another device.
var ErrNack = errors.New("mcutest: no acknowledge")

// Write records one register write as seen on the wire.
type Write struct {
	Opcode mcu.Opcode
	Value  byte
}

// Device emulates the controller's register file behind drivers.I2C.
//
// Registers are stored under their read opcode; write opcodes that differ
// from the read opcode (brightness, volume, backlight, luxmode) land in the
// same storage, so a write is visible to the next read.
type Device struct {
	mu        sync.Mutex
	addr      uint16
	regs      map[mcu.Opcode]byte
	alias     map[mcu.Opcode]mcu.Opcode
	writes    []Write
	transfers int
	fault     func(op mcu.Opcode, write bool) error
	onWrite   func(d *Device, op mcu.Opcode, v byte)
}

var _ drivers.I2C = (*Device)(nil)

// New returns a device answering at addr with every register zeroed.
func New(addr uint16) *Device {
	d := &Device{
		addr:  addr,
		regs:  make(map[mcu.Opcode]byte),
		alias: make(map[mcu.Opcode]mcu.Opcode),
	}
	for _, w := range mcu.Commands(mcu.Write) {
		if r, err := mcu.Lookup(w.Name, mcu.Read); err == nil {
			d.alias[w.Opcode] = r.Opcode
		}
	}
	return d
}

// Set stores v in the register readable as name. It panics on unknown names.
func (d *Device) Set(name string, v byte) {
	cmd, err := mcu.Lookup(name, mcu.Read)
	if err != nil {
		panic(err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regs[cmd.Opcode] = v
}

// Get returns the register readable as name. It panics on unknown names.
func (d *Device) Get(name string) byte {
	cmd, err := mcu.Lookup(name, mcu.Read)
	if err != nil {
		panic(err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[cmd.Opcode]
}

// Poke stores v directly; intended for use inside OnWrite hooks.
func (d *Device) Poke(op mcu.Opcode, v byte) {
	d.regs[op] = v
}

// Writes returns the writes seen since the last Reset.
func (d *Device) Writes() []Write {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Write(nil), d.writes...)
}

// Transfers returns the number of Tx calls since the last Reset.
func (d *Device) Transfers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transfers
}

// Reset clears the write log and transfer count, keeping register contents.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes = nil
	d.transfers = 0
}

// SetFault installs a function consulted before every transfer. A non-nil
// return fails the transfer without touching the registers.
func (d *Device) SetFault(f func(op mcu.Opcode, write bool) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fault = f
}

// OnWrite installs a hook run after each write is applied, with the device
// lock held. Use Poke inside it to emulate firmware side effects.
func (d *Device) OnWrite(f func(d *Device, op mcu.Opcode, v byte)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onWrite = f
}

// Tx implements drivers.I2C for byte-data register transfers.
func (d *Device) Tx(addr uint16, w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.transfers++
	if addr != d.addr {
		return fmt.Errorf("%w: 0x%02x", ErrNack, addr)
	}

	switch {
	case len(w) == 1 && len(r) == 1:
		op := mcu.Opcode(w[0])
		if d.fault != nil {
			if err := d.fault(op, false); err != nil {
				return err
			}
		}
		r[0] = d.regs[op]
		return nil

	case len(w) == 2 && len(r) == 0:
		op := mcu.Opcode(w[0])
		if d.fault != nil {
			if err := d.fault(op, true); err != nil {
				return err
			}
		}
		d.writes = append(d.writes, Write{Opcode: op, Value: w[1]})
		target := op
		if a, ok := d.alias[op]; ok {
			target = a
		}
		d.regs[target] = w[1]
		if d.onWrite != nil {
			d.onWrite(d, op, w[1])
		}
		return nil

	default:
		return fmt.Errorf("mcutest: unsupported transfer: write %d bytes, read %d bytes", len(w), len(r))
	}
}

// FailAlways returns a fault function failing every transfer with err.
func FailAlways(err error) func(mcu.Opcode, bool) error {
	return func(mcu.Opcode, bool) error { return err }
}
