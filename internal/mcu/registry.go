package mcu

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Opcode is the SMBus command byte selecting a register.
type Opcode byte

// Access is the direction a command may be used in.
type Access uint8

const (
	Read Access = 1 << iota
	Write

	ReadWrite = Read | Write
)

// String returns "read", "write" or "read-write".
func (a Access) String() string {
	switch a {
	case Read:
		return "read"
	case Write:
		return "write"
	case ReadWrite:
		return "read-write"
	default:
		return fmt.Sprintf("access(%d)", uint8(a))
	}
}

// Command is one named register operation.
type Command struct {
	Name   string
	Opcode Opcode
	Access Access
}

// Commands used by the reconciler. They are values, not lookups, so the
// daemon never depends on string resolution succeeding.
var (
	ReadBrightness  = Command{Name: "brightness", Opcode: 0x01, Access: Read}
	WriteBrightness = Command{Name: "brightness", Opcode: 0x08, Access: Write}
	PWMMin          = Command{Name: "pwm_min", Opcode: 0x22, Access: ReadWrite}
	PWMMax          = Command{Name: "pwm_max", Opcode: 0x23, Access: ReadWrite}
)

var readCommands = index(
	ReadBrightness,
	Command{Name: "volume", Opcode: 0x02, Access: Read},
	Command{Name: "fw", Opcode: 0x11, Access: Read},
	Command{Name: "flag", Opcode: 0x12, Access: Read},
	Command{Name: "fwtype", Opcode: 0x16, Access: Read},
	Command{Name: "backlight", Opcode: 0x17, Access: Read},
	Command{Name: "rdname", Opcode: 0x18, Access: Read},
	Command{Name: "function", Opcode: 0x19, Access: Read},
	Command{Name: "luxmode", Opcode: 0x1b, Access: Read},
	Command{Name: "change_status", Opcode: 0x1c, Access: Read},
	PWMMin,
	PWMMax,
)

var writeCommands = index(
	Command{Name: "inc_brightness", Opcode: 0x03, Access: Write},
	Command{Name: "dec_brightness", Opcode: 0x04, Access: Write},
	Command{Name: "inc_volume", Opcode: 0x05, Access: Write},
	Command{Name: "dec_volume", Opcode: 0x06, Access: Write},
	Command{Name: "mute", Opcode: 0x07, Access: Write},
	WriteBrightness,
	Command{Name: "volume", Opcode: 0x09, Access: Write},
	Command{Name: "inverter", Opcode: 0x0a, Access: Write},
	Command{Name: "polling", Opcode: 0x13, Access: Write},
	Command{Name: "backlight", Opcode: 0x14, Access: Write},
	Command{Name: "auto_dimming", Opcode: 0x15, Access: Write},
	Command{Name: "luxmode", Opcode: 0x20, Access: Write},
	Command{Name: "keypad_lock", Opcode: 0x21, Access: Write},
	PWMMin,
	PWMMax,
)

func index(cmds ...Command) map[string]Command {
	m := make(map[string]Command, len(cmds))
	for _, c := range cmds {
		m[c.Name] = c
	}
	return m
}

// Lookup resolves a register name in the namespace for access, which must
// be exactly Read or Write.
func Lookup(name string, access Access) (Command, error) {
	var table map[string]Command
	switch access {
	case Read:
		table = readCommands
	case Write:
		table = writeCommands
	default:
		return Command{}, fmt.Errorf("%w: %q: lookup direction must be read or write, got %s", ErrUnknownCommand, name, access)
	}

	cmd, ok := table[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Command{}, fmt.Errorf("%w: %q is not a %s command", ErrUnknownCommand, name, access)
	}
	return cmd, nil
}

// Commands lists the namespace for access sorted by name.
func Commands(access Access) []Command {
	var table map[string]Command
	switch access {
	case Read:
		table = readCommands
	case Write:
		table = writeCommands
	default:
		return nil
	}

	out := make([]Command, 0, len(table))
	for _, c := range table {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b Command) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// ParseValue parses a register value written in decimal or 0x-prefixed hex.
func ParseValue(s string) (byte, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: value %q must be 0-255: %w", ErrValueRange, s, err)
	}
	return byte(v), nil
}

// ParseAddress parses a 7-bit bus address written in decimal or 0x-prefixed hex.
func ParseAddress(s string) (uint16, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil || v > 0x7f {
		return 0, fmt.Errorf("%w: address %q must be 0x00-0x7f", ErrValueRange, s)
	}
	return uint16(v), nil
}

// FormatValue renders a register value as "20 (0x14)".
func FormatValue(v byte) string {
	return fmt.Sprintf("%d (0x%02x)", v, v)
}
