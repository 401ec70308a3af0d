// Package logging provides structured logging for mcuctrl.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the daemon and the CLI.
//
// # Features
//
//   - Size-based rotation of the log file via lumberjack
//   - Text output by default, JSON on request
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warning, error, critical)
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "error"     # debug, info, warning, error, critical
//	  format: "text"     # text, json
//	  output: "file"     # file, stdout, stderr
//	  file:
//	    path: /var/log/mcuctrl.log
//	    max_size: 102400 # bytes, rounded up to whole MiB
//	    max_backups: 5
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	defer logger.Close()
//	logger.Warn("pwm_min drifted", "observed", 10, "target", 0)
package logging
