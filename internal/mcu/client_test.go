package mcu_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/nerrad567/mcuctrl/internal/mcu"
	"github.com/nerrad567/mcuctrl/internal/mcu/mcutest"
)

const addr = 0x34

var limits = mcu.Limits{MinPWM: 0, MaxPWM: 100}

func TestReadRegister(t *testing.T) {
	dev := mcutest.New(addr)
	dev.Set("brightness", 42)
	client := mcu.NewClient(dev, addr, limits)

	got, err := client.ReadRegister(context.Background(), "brightness")
	if err != nil {
		t.Fatalf("ReadRegister() error = %v", err)
	}
	if got != 42 {
		t.Errorf("ReadRegister() = %d, want 42", got)
	}
}

func TestWriteThenRead_RoundTrip(t *testing.T) {
	dev := mcutest.New(addr)
	client := mcu.NewClient(dev, addr, limits)
	ctx := context.Background()

	for _, name := range []string{"brightness", "pwm_min", "pwm_max", "volume"} {
		t.Run(name, func(t *testing.T) {
			if err := client.WriteRegister(ctx, name, 50); err != nil {
				t.Fatalf("WriteRegister() error = %v", err)
			}
			got, err := client.ReadRegister(ctx, name)
			if err != nil {
				t.Fatalf("ReadRegister() error = %v", err)
			}
			if got != 50 {
				t.Errorf("ReadRegister() = %d, want 50", got)
			}
		})
	}
}

func TestUnknownCommand_NoBusAccess(t *testing.T) {
	dev := mcutest.New(addr)
	client := mcu.NewClient(dev, addr, limits)
	ctx := context.Background()

	if _, err := client.ReadRegister(ctx, "contrast"); !errors.Is(err, mcu.ErrUnknownCommand) {
		t.Errorf("ReadRegister() error = %v, want ErrUnknownCommand", err)
	}
	if err := client.WriteRegister(ctx, "fw", 1); !errors.Is(err, mcu.ErrUnknownCommand) {
		t.Errorf("WriteRegister() error = %v, want ErrUnknownCommand", err)
	}
	if _, err := client.Read(ctx, mcu.WriteBrightness); !errors.Is(err, mcu.ErrUnknownCommand) {
		t.Errorf("Read(write-only) error = %v, want ErrUnknownCommand", err)
	}
	if n := dev.Transfers(); n != 0 {
		t.Errorf("Transfers() = %d, want 0", n)
	}
}

func TestWrite_SelfCheck(t *testing.T) {
	tests := []struct {
		name       string
		limits     mcu.Limits
		pwmMin     byte
		pwmMax     byte
		wantWrites []mcutest.Write
	}{
		{
			name:   "within limits",
			limits: mcu.Limits{MinPWM: 0, MaxPWM: 100},
			pwmMin: 0, pwmMax: 100,
			wantWrites: []mcutest.Write{{Opcode: 0x08, Value: 20}},
		},
		{
			name:   "min below limit",
			limits: mcu.Limits{MinPWM: 10, MaxPWM: 100},
			pwmMin: 5, pwmMax: 100,
			wantWrites: []mcutest.Write{{Opcode: 0x08, Value: 20}, {Opcode: 0x22, Value: 10}},
		},
		{
			name:   "max above limit",
			limits: mcu.Limits{MinPWM: 0, MaxPWM: 100},
			pwmMin: 0, pwmMax: 255,
			wantWrites: []mcutest.Write{{Opcode: 0x08, Value: 20}, {Opcode: 0x23, Value: 100}},
		},
		{
			name:   "both out of limits",
			limits: mcu.Limits{MinPWM: 10, MaxPWM: 90},
			pwmMin: 0, pwmMax: 200,
			wantWrites: []mcutest.Write{{Opcode: 0x08, Value: 20}, {Opcode: 0x22, Value: 10}, {Opcode: 0x23, Value: 90}},
		},
		{
			name:   "min above limit is left alone",
			limits: mcu.Limits{MinPWM: 0, MaxPWM: 100},
			pwmMin: 30, pwmMax: 60,
			wantWrites: []mcutest.Write{{Opcode: 0x08, Value: 20}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := mcutest.New(addr)
			dev.Set("pwm_min", tt.pwmMin)
			dev.Set("pwm_max", tt.pwmMax)
			client := mcu.NewClient(dev, addr, tt.limits)

			if err := client.WriteRegister(context.Background(), "brightness", 20); err != nil {
				t.Fatalf("WriteRegister() error = %v", err)
			}
			if got := dev.Writes(); !slices.Equal(got, tt.wantWrites) {
				t.Errorf("Writes() = %v, want %v", got, tt.wantWrites)
			}
		})
	}
}

func TestWrite_SelfCheckAfterFirmwareReset(t *testing.T) {
	dev := mcutest.New(addr)
	dev.Set("pwm_min", 10)
	dev.Set("pwm_max", 90)
	// Emulate firmware that resets the PWM range when luxmode changes.
	dev.OnWrite(func(d *mcutest.Device, op mcu.Opcode, v byte) {
		if op == 0x20 {
			d.Poke(mcu.PWMMin.Opcode, 0)
			d.Poke(mcu.PWMMax.Opcode, 255)
		}
	})
	client := mcu.NewClient(dev, addr, mcu.Limits{MinPWM: 10, MaxPWM: 90})

	if err := client.WriteRegister(context.Background(), "luxmode", 1); err != nil {
		t.Fatalf("WriteRegister() error = %v", err)
	}

	if got := dev.Get("pwm_min"); got != 10 {
		t.Errorf("pwm_min = %d, want 10", got)
	}
	if got := dev.Get("pwm_max"); got != 90 {
		t.Errorf("pwm_max = %d, want 90", got)
	}
	if got := len(dev.Writes()); got != 3 {
		t.Errorf("len(Writes()) = %d, want 3", got)
	}
}

func TestBusIOErrors(t *testing.T) {
	boom := errors.New("remote I/O error")

	t.Run("read", func(t *testing.T) {
		dev := mcutest.New(addr)
		dev.SetFault(mcutest.FailAlways(boom))
		client := mcu.NewClient(dev, addr, limits)

		_, err := client.ReadRegister(context.Background(), "brightness")
		if !errors.Is(err, mcu.ErrBusIO) || !errors.Is(err, boom) {
			t.Errorf("ReadRegister() error = %v, want ErrBusIO wrapping cause", err)
		}
	})

	t.Run("self-check read", func(t *testing.T) {
		dev := mcutest.New(addr)
		dev.SetFault(func(op mcu.Opcode, write bool) error {
			if !write && op == mcu.PWMMax.Opcode {
				return boom
			}
			return nil
		})
		client := mcu.NewClient(dev, addr, limits)

		err := client.WriteRegister(context.Background(), "brightness", 20)
		if !errors.Is(err, mcu.ErrBusIO) {
			t.Errorf("WriteRegister() error = %v, want ErrBusIO", err)
		}
	})

	t.Run("wrong address", func(t *testing.T) {
		dev := mcutest.New(addr)
		client := mcu.NewClient(dev, 0x35, limits)

		_, err := client.ReadRegister(context.Background(), "fw")
		if !errors.Is(err, mcutest.ErrNack) {
			t.Errorf("ReadRegister() error = %v, want ErrNack", err)
		}
	})
}

func TestWrite_NotifiesObservers(t *testing.T) {
	dev := mcutest.New(addr)
	dev.Set("pwm_max", 200)

	var mu sync.Mutex
	var events []mcu.WriteEvent
	client := mcu.NewClient(dev, addr, limits, mcu.WithObserver(mcu.WriteObserverFunc(
		func(_ context.Context, ev mcu.WriteEvent) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, ev)
		})))

	ctx := mcu.WithPassID(mcu.WithSource(context.Background(), "daemon"), "pass-1")
	if err := client.WriteRegister(ctx, "brightness", 20); err != nil {
		t.Fatalf("WriteRegister() error = %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Kind != mcu.WritePrimary || events[0].Register != "brightness" {
		t.Errorf("events[0] = %+v, want primary brightness", events[0])
	}
	if events[1].Kind != mcu.WriteCorrective || events[1].Register != "pwm_max" || events[1].Value != 100 {
		t.Errorf("events[1] = %+v, want corrective pwm_max=100", events[1])
	}
	if events[0].Source != "daemon" || events[0].PassID != "pass-1" {
		t.Errorf("events[0] source/pass = %q/%q, want daemon/pass-1", events[0].Source, events[0].PassID)
	}
}

type lockingDevice struct {
	*mcutest.Device
	locks, unlocks int
	lockErr        error
}

func (l *lockingDevice) Lock(context.Context) error {
	l.locks++
	return l.lockErr
}

func (l *lockingDevice) Unlock() error {
	l.unlocks++
	return nil
}

func TestLocking(t *testing.T) {
	dev := &lockingDevice{Device: mcutest.New(addr)}
	client := mcu.NewClient(dev, addr, limits)
	ctx := context.Background()

	if _, err := client.ReadRegister(ctx, "pwm_min"); err != nil {
		t.Fatalf("ReadRegister() error = %v", err)
	}
	if err := client.WriteRegister(ctx, "brightness", 20); err != nil {
		t.Fatalf("WriteRegister() error = %v", err)
	}
	if dev.locks != 2 || dev.unlocks != 2 {
		t.Errorf("locks/unlocks = %d/%d, want 2/2 (write and self-check share one lock)", dev.locks, dev.unlocks)
	}

	dev.lockErr = errors.New("busy")
	if _, err := client.ReadRegister(ctx, "pwm_min"); !errors.Is(err, mcu.ErrBusIO) {
		t.Errorf("ReadRegister() with lock failure error = %v, want ErrBusIO", err)
	}
}

func TestCancelledContext(t *testing.T) {
	dev := mcutest.New(addr)
	client := mcu.NewClient(dev, addr, limits)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := client.ReadRegister(ctx, "brightness"); !errors.Is(err, context.Canceled) {
		t.Errorf("ReadRegister() error = %v, want context.Canceled", err)
	}
	if dev.Transfers() != 0 {
		t.Errorf("Transfers() = %d, want 0", dev.Transfers())
	}
}
