package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/mcuctrl/internal/infrastructure/config"
	"github.com/nerrad567/mcuctrl/internal/infrastructure/logging"
	"github.com/nerrad567/mcuctrl/internal/mcu"
)

// skipConfig marks commands that run without loading the configuration.
const skipConfig = "skip-config"

// app carries state shared by every subcommand.
type app struct {
	configPath string
	cfg        *config.Config
	log        *logging.Logger
}

// openClient opens the MCU client. Tests replace it with a simulated device.
var openClient = func(cfg config.MCUConfig, limits mcu.Limits, opts ...mcu.Option) (*mcu.Client, error) {
	return mcu.Open(cfg, limits, opts...)
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "mcuctrl",
		Short:         "Enforce MCU PWM thresholds and brightness over SMBus",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipConfig] != "" {
				return nil
			}
			return a.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				a.log.Close() //nolint:errcheck // nothing left to report to
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"configuration file (default $MCUCTRL_CONFIG or "+config.DefaultPath+")")

	root.AddCommand(
		newReadCmd(a),
		newWriteCmd(a),
		newRegistersCmd(),
		newCheckCmd(a),
		newDaemonCmd(a),
		newHistoryCmd(a),
		newTokenCmd(a),
		newVersionCmd(),
	)
	return root
}

// load reads the configuration and builds the logger.
func (a *app) load() error {
	if a.configPath == "" {
		a.configPath = getConfigPath()
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logging.New(cfg.Logging, version)
	return nil
}

// getConfigPath returns the configuration file path.
// Uses MCUCTRL_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("MCUCTRL_CONFIG"); path != "" {
		return path
	}
	return config.DefaultPath
}

// openMCU opens a client for the device at bus/address using the
// configured transport settings and thresholds.
func (a *app) openMCU(bus int, address uint16, opts ...mcu.Option) (*mcu.Client, error) {
	mcuCfg := a.cfg.MCU
	mcuCfg.Bus = bus
	mcuCfg.Address = config.Address(address)

	opts = append([]mcu.Option{mcu.WithLogger(a.log)}, opts...)
	client, err := openClient(mcuCfg, mcu.LimitsFromConfig(a.cfg.Thresholds), opts...)
	if err != nil {
		a.log.Error("opening MCU failed", "bus", bus, "address", fmt.Sprintf("0x%02x", address), "error", err)
		return nil, err
	}
	return client, nil
}

// cliContext tags bus operations as requested from the command line.
func cliContext(ctx context.Context) context.Context {
	return mcu.WithSource(ctx, "cli")
}
