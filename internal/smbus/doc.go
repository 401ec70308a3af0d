// Package smbus is the Linux transport for SMBus devices behind /dev/i2c-N.
//
// A Bus implements the tinygo.org/x/drivers I2C contract,
// Tx(addr, w, r), so register-level code is written once and runs against
// the kernel adapter or a test double. Transfers are translated into the
// kernel's I2C_SMBUS ioctl rather than I2C_RDWR because SMBus-only
// controllers (Intel i801 and friends) reject plain I2C messages.
//
// Supported transfer shapes:
//
//	Tx(addr, []byte{cmd}, r[:1])     read byte data
//	Tx(addr, []byte{cmd, v}, nil)    write byte data
//	Tx(addr, nil, r[:1])             receive byte
//	Tx(addr, []byte{v}, nil)         send byte
//
// Bus also offers an advisory, cross-process lock (flock on the device
// node) so a one-shot CLI invocation and a running daemon never interleave
// a register read with another process's write.
//
// The transport knows nothing about the device it talks to.
package smbus
