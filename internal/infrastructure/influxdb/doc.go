// Package influxdb provides InfluxDB connectivity for mcuctrl.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, register telemetry, and health monitoring.
//
// # Measurements
//
//   - mcu_registers: one point per successful reconcile pass, with
//     pwm_min, pwm_max, brightness, diverged and corrections fields
//   - mcu_writes: one point per register write, tagged by register and
//     kind (primary or corrective)
//
// A client is bound to one MCU at Connect; its bus and address are default
// tags on every point.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, influxdb.Target{Bus: 1, Address: 0x2a})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WritePass(sample)
//
// # Error Handling
//
// Write operations are non-blocking. Rejected batches are passed to the
// SetOnError callback as they happen and summarised as ErrWriteFailed by
// the next Flush or Close. Connection and health check errors are returned
// directly.
package influxdb
