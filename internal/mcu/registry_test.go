package mcu

import (
	"errors"
	"testing"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name    string
		access  Access
		want    Opcode
		wantErr bool
	}{
		{"brightness", Read, 0x01, false},
		{"brightness", Write, 0x08, false},
		{"volume", Read, 0x02, false},
		{"volume", Write, 0x09, false},
		{"backlight", Read, 0x17, false},
		{"backlight", Write, 0x14, false},
		{"luxmode", Read, 0x1b, false},
		{"luxmode", Write, 0x20, false},
		{"pwm_min", Read, 0x22, false},
		{"pwm_min", Write, 0x22, false},
		{"pwm_max", Write, 0x23, false},
		{"fw", Read, 0x11, false},
		{"change_status", Read, 0x1c, false},
		{"keypad_lock", Write, 0x21, false},
		{" PWM_MAX ", Read, 0x23, false},
		{"fw", Write, 0, true},
		{"mute", Read, 0, true},
		{"contrast", Read, 0, true},
		{"brightness", ReadWrite, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/"+tt.access.String(), func(t *testing.T) {
			cmd, err := Lookup(tt.name, tt.access)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownCommand) {
					t.Errorf("Lookup() error = %v, want ErrUnknownCommand", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			if cmd.Opcode != tt.want {
				t.Errorf("Lookup() opcode = 0x%02x, want 0x%02x", byte(cmd.Opcode), byte(tt.want))
			}
		})
	}
}

func TestCommands(t *testing.T) {
	reads := Commands(Read)
	if len(reads) != 12 {
		t.Errorf("len(Commands(Read)) = %d, want 12", len(reads))
	}
	writes := Commands(Write)
	if len(writes) != 15 {
		t.Errorf("len(Commands(Write)) = %d, want 15", len(writes))
	}
	for i := 1; i < len(writes); i++ {
		if writes[i-1].Name >= writes[i].Name {
			t.Errorf("Commands(Write) not sorted at %d: %q >= %q", i, writes[i-1].Name, writes[i].Name)
		}
	}
	if Commands(ReadWrite) != nil {
		t.Error("Commands(ReadWrite) should be nil")
	}
}

func TestReconcilerCommandsResolve(t *testing.T) {
	for _, tc := range []struct {
		cmd    Command
		access Access
	}{
		{ReadBrightness, Read},
		{WriteBrightness, Write},
		{PWMMin, Read},
		{PWMMin, Write},
		{PWMMax, Read},
		{PWMMax, Write},
	} {
		got, err := Lookup(tc.cmd.Name, tc.access)
		if err != nil {
			t.Fatalf("Lookup(%q, %s) error = %v", tc.cmd.Name, tc.access, err)
		}
		if got != tc.cmd {
			t.Errorf("Lookup(%q, %s) = %+v, want %+v", tc.cmd.Name, tc.access, got, tc.cmd)
		}
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in      string
		want    byte
		wantErr bool
	}{
		{"20", 20, false},
		{"0x14", 20, false},
		{"255", 255, false},
		{"0xff", 255, false},
		{"256", 0, true},
		{"-1", 0, true},
		{"twenty", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseValue(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrValueRange) {
					t.Errorf("ParseValue(%q) error = %v, want ErrValueRange", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseValue(%q) = %d, %v, want %d", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    uint16
		wantErr bool
	}{
		{"0x34", 0x34, false},
		{"52", 52, false},
		{"0x7f", 0x7f, false},
		{"0x80", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseAddress(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseAddress(%q) = 0x%02x, %v, want 0x%02x (err %v)", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestFormatValue(t *testing.T) {
	if got := FormatValue(20); got != "20 (0x14)" {
		t.Errorf("FormatValue(20) = %q, want %q", got, "20 (0x14)")
	}
}
