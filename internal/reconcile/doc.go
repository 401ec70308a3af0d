// Package reconcile keeps the MCU's PWM bounds and brightness at their
// configured values.
//
// A pass reads pwm_min, pwm_max and brightness, writes back any PWM bound
// that differs from its configured value and, if either bound had drifted,
// resets brightness to the configured default once. A pass that finds
// nothing wrong performs no writes.
//
// Run repeats passes on a fixed interval until its context is cancelled.
// A pass failing with mcu.ErrBusIO is logged and retried on the next
// interval; any other failure stops the loop.
//
// State machine:
//
//	idle -> checking -> [correcting] -> sleeping -> checking ...
//	                                     \-> stopped (context done)
package reconcile
