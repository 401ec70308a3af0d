package main

import (
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mcuctrl/internal/mcu"
)

// target holds the explicit -b/-a flags of read and write.
type target struct {
	bus     int
	address string
}

func (t *target) bind(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&t.bus, "bus", "b", 0, "SMBus adapter number (required)")
	cmd.Flags().StringVarP(&t.address, "address", "a", "", "7-bit device address, decimal or 0x hex (required)")
	_ = cmd.MarkFlagRequired("bus")     //nolint:errcheck // flag defined above
	_ = cmd.MarkFlagRequired("address") //nolint:errcheck // flag defined above
}

func (t *target) resolve() (uint16, error) {
	if t.bus < 0 {
		return 0, fmt.Errorf("%w: bus %d must not be negative", mcu.ErrValueRange, t.bus)
	}
	return mcu.ParseAddress(t.address)
}

func newReadCmd(a *app) *cobra.Command {
	var t target
	cmd := &cobra.Command{
		Use:   "read <register>",
		Short: "Read one register",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdDef, err := mcu.Lookup(args[0], mcu.Read)
			if err != nil {
				a.log.Debug("unknown command", "register", args[0], "error", err)
				return err
			}
			address, err := t.resolve()
			if err != nil {
				return err
			}

			client, err := a.openMCU(t.bus, address)
			if err != nil {
				return err
			}
			defer client.Close()

			v, err := client.Read(cliContext(cmd.Context()), cmdDef)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Read %s: %s\n", cmdDef.Name, mcu.FormatValue(v))
			return nil
		},
	}
	t.bind(cmd)
	return cmd
}

func newWriteCmd(a *app) *cobra.Command {
	var t target
	cmd := &cobra.Command{
		Use:   "write <register> <value>",
		Short: "Write one register, then run the PWM self-check",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdDef, err := mcu.Lookup(args[0], mcu.Write)
			if err != nil {
				a.log.Debug("unknown command", "register", args[0], "error", err)
				return err
			}
			value, err := mcu.ParseValue(args[1])
			if err != nil {
				return err
			}
			address, err := t.resolve()
			if err != nil {
				return err
			}

			var opts []mcu.Option
			store, err := a.openHistory(cmd.Context())
			if err != nil {
				a.log.Warn("history unavailable, write will not be recorded", "error", err)
			} else if store != nil {
				defer store.Close()
				opts = append(opts, mcu.WithObserver(store.recorder))
			}

			client, err := a.openMCU(t.bus, address, opts...)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Write(cliContext(cmd.Context()), cmdDef, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %s\n", cmdDef.Name, mcu.FormatValue(value))
			return nil
		},
	}
	t.bind(cmd)
	return cmd
}

func newRegistersCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "registers",
		Short:       "List readable and writable registers",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "REGISTER\tREAD\tWRITE")

			names := map[string][2]string{}
			var order []string
			for i, access := range []mcu.Access{mcu.Read, mcu.Write} {
				for _, c := range mcu.Commands(access) {
					entry, seen := names[c.Name]
					if !seen {
						order = append(order, c.Name)
						entry = [2]string{"-", "-"}
					}
					entry[i] = fmt.Sprintf("0x%02x", byte(c.Opcode))
					names[c.Name] = entry
				}
			}
			slices.Sort(order)
			for _, name := range order {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", name, names[name][0], names[name][1])
			}
			return tw.Flush()
		},
	}
}
