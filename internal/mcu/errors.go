package mcu

import "errors"

// Domain-specific errors for MCU access.
var (
	// ErrUnknownCommand is returned when a register name is not defined for
	// the requested direction.
	ErrUnknownCommand = errors.New("mcu: unknown command")

	// ErrBusOpen is returned when the SMBus adapter cannot be opened.
	ErrBusOpen = errors.New("mcu: cannot open bus")

	// ErrBusIO is returned when a register transfer fails.
	ErrBusIO = errors.New("mcu: bus i/o error")

	// ErrValueRange is returned when a value or address does not fit its register.
	ErrValueRange = errors.New("mcu: value out of range")
)
