package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mcuctrl/internal/mcu"
	"github.com/nerrad567/mcuctrl/internal/reconcile"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run one reconcile pass against the configured device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var mcuOpts []mcu.Option
			var recOpts []reconcile.Option
			store, err := a.openHistory(cmd.Context())
			if err != nil {
				a.log.Warn("history unavailable, pass will not be recorded", "error", err)
			} else if store != nil {
				defer store.Close()
				mcuOpts = append(mcuOpts, mcu.WithObserver(store.recorder))
				recOpts = append(recOpts, reconcile.WithObserver(store.recorder))
			}

			client, err := a.openMCU(a.cfg.MCU.Bus, uint16(a.cfg.MCU.Address), mcuOpts...)
			if err != nil {
				return err
			}
			defer client.Close()

			recOpts = append(recOpts, reconcile.WithLogger(a.log))
			rec := reconcile.New(client, reconcile.ConfigFrom(a.cfg.Thresholds), recOpts...)

			res, err := rec.Tick(cliContext(cmd.Context()))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pwm_min:    %s\n", mcu.FormatValue(res.Snapshot.PWMMin))
			fmt.Fprintf(out, "pwm_max:    %s\n", mcu.FormatValue(res.Snapshot.PWMMax))
			fmt.Fprintf(out, "brightness: %s\n", mcu.FormatValue(res.Snapshot.Brightness))
			if !res.Diverged {
				fmt.Fprintln(out, "Thresholds match configuration")
				return nil
			}
			for _, c := range res.Corrections {
				fmt.Fprintf(out, "Corrected %s: %s -> %s\n",
					c.Register, mcu.FormatValue(c.Observed), mcu.FormatValue(c.Target))
			}
			return nil
		},
	}
}
