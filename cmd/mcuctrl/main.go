// mcuctrl keeps an embedded display controller's PWM range and brightness
// within configured limits over SMBus.
//
// It runs either as one-shot register commands (read, write, check) or as a
// daemon that reconciles the thresholds on an interval and optionally
// publishes state to MQTT, InfluxDB, Prometheus and an HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	// Cancelled on Ctrl+C and SIGTERM; the daemon shuts down through it.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
