package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shizukutanaka/smartplug/internal/config"
	"github.com/shizukutanaka/smartplug/internal/controller"
	"github.com/shizukutanaka/smartplug/internal/kasa"
	"github.com/shizukutanaka/smartplug/internal/signals"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration, host signals and outlet states",
	Long: `Display the active configuration, the battery and monitored app state,
the decision the automation would take now, and the outlets reported by the
strip.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().Bool("offline", false, "Do not contact the strip")
}

func runStatus(cmd *cobra.Command, args []string) error {
	offline, _ := cmd.Flags().GetBool("offline")

	manager, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	out := cmd.OutOrStdout()
	cfg := manager.Get()
	printConfig(out, manager.Path(), cfg)

	ctx := cmd.Context()
	sig := signals.NewReader(logger).Read(ctx, cfg.Automation.MonitoredProcesses)
	fmt.Fprintln(out, "\nHost:")
	fmt.Fprintf(out, "  %s\n", formatInfo(controller.Info{
		BatteryPercent:   sig.Battery.Percent,
		Charging:         sig.Battery.Charging,
		BatteryAvailable: sig.BatteryAvailable,
		AppRunning:       sig.AppRunning,
	}))

	if offline {
		return nil
	}
	return printPlug(ctx, out, logger, cfg, sig)
}

func printConfig(out io.Writer, path string, cfg *config.Config) {
	fmt.Fprintln(out, "Configuration:")
	if info, err := os.Stat(path); err == nil {
		fmt.Fprintf(out, "  File             : %s (modified %s)\n", path, humanize.Time(info.ModTime()))
	} else {
		fmt.Fprintf(out, "  File             : %s (defaults)\n", path)
	}
	fmt.Fprintf(out, "  Plug             : %s outlet %d\n", cfg.Plug.IPAddress, cfg.Plug.OutletIndex)
	fmt.Fprintf(out, "  Battery threshold: %d%%\n", cfg.Automation.BatteryThreshold)
	fmt.Fprintf(out, "  Monitored apps   : %v\n", cfg.Automation.MonitoredProcesses)
	fmt.Fprintf(out, "  Poll interval    : %s\n", cfg.Automation.PollInterval)
}

func printPlug(ctx context.Context, out io.Writer, logger *zap.Logger, cfg *config.Config, sig signals.Signal) error {
	client := kasa.NewClient(logger, kasaOptions(cfg.Plug))
	plug, err := client.Discover(ctx, cfg.Plug.IPAddress)
	if err != nil {
		return err
	}
	defer plug.Close()

	fmt.Fprintf(out, "\nStrip %q at %s:\n", plug.Alias(), plug.Address())
	outlets := plug.Outlets()
	if len(outlets) == 0 {
		fmt.Fprintln(out, "  No child sockets detected. This may not be a power strip!")
		return nil
	}
	for _, o := range outlets {
		marker := " "
		if o.Index == cfg.Plug.OutletIndex {
			marker = "*"
		}
		fmt.Fprintf(out, " %s %d %-20s %s\n", marker, o.Index, o.Alias, controller.PowerOf(o.On))
	}

	current, err := plug.Outlet(cfg.Plug.OutletIndex)
	if err != nil {
		return err
	}
	d := controller.Decide(sig, cfg.Automation.BatteryThreshold, current.On)
	if d.Decided {
		fmt.Fprintf(out, "\nAutomation would keep outlet %d %s (%s)\n", current.Index, controller.PowerOf(d.On), d.Reason)
	} else {
		fmt.Fprintf(out, "\nAutomation would not decide now (%s)\n", d.Reason)
	}
	return nil
}
