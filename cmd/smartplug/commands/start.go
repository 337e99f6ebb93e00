package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shizukutanaka/smartplug/internal/autostart"
	"github.com/shizukutanaka/smartplug/internal/config"
	"github.com/shizukutanaka/smartplug/internal/controller"
	"github.com/shizukutanaka/smartplug/internal/kasa"
	"github.com/shizukutanaka/smartplug/internal/monitoring"
	"github.com/shizukutanaka/smartplug/internal/signals"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the controller",
	Long: `Run the controller in the foreground. Status messages and battery/app
information are printed as they change; type a command and press enter:

  m  start or stop monitoring
  t  toggle the outlet by hand
  s  show controller state
  q  quit

Examples:
  # Run and start monitoring right away
  smartplug start --monitor

  # Run without reading commands from stdin (for autostart)
  smartplug start --no-input`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().Bool("monitor", false, "Start monitoring immediately")
	startCmd.Flags().Bool("no-input", false, "Do not read commands from stdin")
}

func runStart(cmd *cobra.Command, args []string) error {
	monitorNow, _ := cmd.Flags().GetBool("monitor")
	noInput, _ := cmd.Flags().GetBool("no-input")

	manager, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := manager.StartWatcher(); err != nil {
		logger.Warn("Config hot reload unavailable", zap.Error(err))
	}
	defer manager.StopWatcher()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, quit := context.WithCancel(ctx)
	defer quit()

	cfg := manager.Get()
	client := kasa.NewClient(logger, kasaOptions(cfg.Plug))
	manager.OnChange(func(c *config.Config) {
		client.Reconfigure(kasaOptions(c.Plug))
	})

	events := controller.NewEventQueue(logger, 256)
	metrics := monitoring.NewMetrics()
	ctrl := controller.New(logger, manager, controller.KasaDevices(client), signals.NewReader(logger),
		controller.WithNotifier(events),
		controller.WithMetrics(metrics),
	)

	logger.Info("Starting smartplug",
		zap.String("version", Version),
		zap.String("config", manager.Path()),
		zap.String("plug", cfg.Plug.IPAddress),
		zap.Int("outlet", cfg.Plug.OutletIndex),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctrl.Run(gctx) })
	g.Go(func() error { return ctrl.StartDisplay(gctx) })
	if cfg.Metrics.Enabled {
		srv := monitoring.NewServer(logger, cfg.Metrics.ListenAddr, metrics, func() monitoring.Status {
			st := ctrl.State()
			return monitoring.Status{Monitoring: st.MonitoringEnabled, LastCommandAt: st.LastCommandAt}
		})
		g.Go(func() error { return srv.Start(gctx) })
	}

	var lines <-chan string
	if !noInput {
		lines = readLines(cmd.InOrStdin())
	}
	fe := newFrontEnd(cmd.OutOrStdout(), ctrl, quit)
	g.Go(func() error { return fe.run(gctx, events.Events(), lines) })

	if startMonitoring(logger, monitorNow, cfg) {
		ctrl.StartMonitoring()
	}

	err = g.Wait()
	logger.Info("smartplug stopped")
	return err
}

// startMonitoring decides whether monitoring begins at launch: when asked
// on the command line, when configured, or when launched through autostart
// registration.
func startMonitoring(logger *zap.Logger, flag bool, cfg *config.Config) bool {
	if flag || cfg.Automation.StartOnLaunch {
		return true
	}
	am, err := autostart.New(logger)
	if err != nil {
		logger.Debug("Autostart state unavailable", zap.Error(err))
		return false
	}
	enabled, err := am.Enabled()
	if err != nil {
		logger.Debug("Autostart state unavailable", zap.Error(err))
		return false
	}
	return enabled
}
