package daemon

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// Detach returns a Spawner that re-executes the current binary with args
// as a background service: a new session with no controlling terminal,
// working directory "/" and standard streams on /dev/null.
func Detach(args ...string) Spawner {
	return func(_ context.Context) (*os.Process, error) {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locating executable: %w", err)
		}

		devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", os.DevNull, err)
		}
		defer devNull.Close()

		// Not CommandContext: the instance must outlive the caller's context.
		cmd := exec.Command(exe, args...)
		cmd.Dir = "/"
		cmd.Stdin = devNull
		cmd.Stdout = devNull
		cmd.Stderr = devNull
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("starting %s: %w", exe, err)
		}
		// Reap early exits so liveness checks see them.
		go cmd.Wait() //nolint:errcheck // exit status is reported through the pidfile wait

		return cmd.Process, nil
	}
}

// PrepareDetached finishes detaching inside the spawned instance by
// clearing the inherited file-creation mask.
func PrepareDetached() {
	unix.Umask(0)
}
