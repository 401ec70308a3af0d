package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mcuctrl/internal/daemon"
)

// newManager builds the lifecycle manager. The spawned instance is this
// binary re-executed as "daemon run --detached" with an absolute config
// path, since the detached process runs from "/".
func (a *app) newManager() (*daemon.Manager, error) {
	configPath, err := filepath.Abs(a.configPath)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	m := daemon.NewManager(daemon.ConfigFrom(a.cfg.Daemon),
		daemon.Detach("--config", configPath, "daemon", "run", "--detached"))
	m.SetLogger(a.log.With("component", "daemon"))
	return m, nil
}

func newDaemonCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background reconciler",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Start the daemon in the background",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				m, err := a.newManager()
				if err != nil {
					return err
				}
				if err := m.Start(cmd.Context()); err != nil {
					return err
				}
				_, pid := m.Status()
				fmt.Fprintf(cmd.OutOrStdout(), "mcuctrl daemon started (pid %d)\n", pid)
				return nil
			},
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Stop the running daemon",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				m, err := a.newManager()
				if err != nil {
					return err
				}
				if err := m.Stop(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "mcuctrl daemon stopped")
				return nil
			},
		},
		&cobra.Command{
			Use:   "restart",
			Short: "Stop the daemon if running, then start it",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				m, err := a.newManager()
				if err != nil {
					return err
				}
				if err := m.Restart(cmd.Context()); err != nil {
					return err
				}
				_, pid := m.Status()
				fmt.Fprintf(cmd.OutOrStdout(), "mcuctrl daemon restarted (pid %d)\n", pid)
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Report whether the daemon is running",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				m, err := a.newManager()
				if err != nil {
					return err
				}
				status, pid := m.Status()
				if status == daemon.StatusRunning {
					fmt.Fprintf(cmd.OutOrStdout(), "running (pid %d)\n", pid)
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), status)
				return nil
			},
		},
		newRunCmd(a),
	)
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var detached bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the reconciler in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if detached {
				daemon.PrepareDetached()
			}
			m, err := a.newManager()
			if err != nil {
				return err
			}
			if err := m.Run(cmd.Context(), a.serve); err != nil {
				a.log.Critical("daemon exited", "error", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&detached, "detached", false, "finish detaching after a background start")
	_ = cmd.Flags().MarkHidden("detached") //nolint:errcheck // flag defined above
	return cmd
}
