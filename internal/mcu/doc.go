// Package mcu talks to the display controller MCU that owns the panel
// brightness and PWM limits.
//
// The package has two halves:
//
//   - The command registry: a closed table mapping register names to
//     opcodes, split into a read and a write namespace because several
//     registers (brightness, volume, backlight, luxmode) use different
//     opcodes per direction.
//   - The Client: named register reads and writes over any
//     tinygo.org/x/drivers I2C implementation. Every write is followed by a
//     self-check of pwm_min and pwm_max that pulls either bound back inside
//     the configured limits, because some writes make the firmware reset
//     its PWM range.
//
// Errors:
//   - ErrUnknownCommand: name not in the requested namespace; no bus access happens
//   - ErrBusOpen: the adapter could not be opened (fatal at startup)
//   - ErrBusIO: a transfer failed (recoverable inside the reconcile loop)
//
// Usage:
//
//	client, err := mcu.Open(cfg.MCU, mcu.LimitsFromConfig(cfg.Thresholds), mcu.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	v, err := client.ReadRegister(ctx, "brightness")
package mcu
