// Package config handles loading and validating mcuctrl configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of thresholds, lifecycle and logging settings
//   - Default value handling
//
// Any failure is reported as ErrLoad and is fatal at startup. Because the
// logger is configured from this package's output, load errors are printed
// to stderr by the caller rather than logged.
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token, API secret) should be
//     set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("/etc/mcuctrl/config.yaml")
//	if err != nil {
//	    fmt.Fprintln(os.Stderr, err)
//	    os.Exit(1)
//	}
//	fmt.Println(cfg.Thresholds.MaxPWM)
package config
