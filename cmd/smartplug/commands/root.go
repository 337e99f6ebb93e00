package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shizukutanaka/smartplug/internal/config"
	"github.com/shizukutanaka/smartplug/internal/kasa"
	"github.com/shizukutanaka/smartplug/internal/logging"
)

const Version = "1.0.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "smartplug",
	Short: "Battery and app driven smart power strip controller",
	Long: `smartplug switches one outlet of a TP-Link Kasa power strip on the local
network. The outlet is powered while the battery is low or a monitored
application is running, and switched off once the battery is full.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <user config dir>/smartplug/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// configPath resolves the config file location.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "smartplug", "config.yaml")
}

// setup loads the configuration and builds the logger it describes. The
// returned manager owns the configuration from then on.
func setup() (*config.Manager, *zap.Logger, error) {
	path := configPath()

	cfg, err := config.Load(path)
	if err == nil {
		err = config.NewEnvLoader(config.EnvPrefix).Load(cfg)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging, verbose)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	manager, err := config.NewManager(logger, path)
	if err != nil {
		logger.Sync()
		return nil, nil, err
	}
	return manager, logger, nil
}

func kasaOptions(plug config.PlugConfig) kasa.Options {
	return kasa.Options{
		Port:              plug.Port,
		DiscoveryTimeout:  plug.DiscoveryTimeout,
		CommandTimeout:    plug.CommandTimeout,
		SettleDelay:       plug.SettleDelay,
		RequestsPerSecond: plug.MaxRequestsPerSecond,
	}
}
