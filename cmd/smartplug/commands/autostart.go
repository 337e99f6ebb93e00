package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shizukutanaka/smartplug/internal/autostart"
)

// autostartCmd represents the autostart command
var autostartCmd = &cobra.Command{
	Use:   "autostart",
	Short: "Manage launch at login",
	Long: `Register or remove smartplug from the programs started at login. When
registered, 'smartplug start' begins monitoring as soon as it launches.`,
}

func init() {
	rootCmd.AddCommand(autostartCmd)

	autostartCmd.AddCommand(&cobra.Command{
		Use:   "enable",
		Short: "Start smartplug at login",
		RunE: withAutostart(func(cmd *cobra.Command, m autostart.Manager) error {
			if err := m.Enable(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Autostart enabled")
			return nil
		}),
	})
	autostartCmd.AddCommand(&cobra.Command{
		Use:   "disable",
		Short: "Stop starting smartplug at login",
		RunE: withAutostart(func(cmd *cobra.Command, m autostart.Manager) error {
			if err := m.Disable(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Autostart disabled")
			return nil
		}),
	})
	autostartCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether smartplug starts at login",
		RunE: withAutostart(func(cmd *cobra.Command, m autostart.Manager) error {
			enabled, err := m.Enabled()
			if err != nil {
				return err
			}
			state := "disabled"
			if enabled {
				state = "enabled"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Autostart %s\n", state)
			return nil
		}),
	})
}

func withAutostart(fn func(cmd *cobra.Command, m autostart.Manager) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		logger := zap.NewNop()
		if verbose {
			logger, _ = zap.NewDevelopment()
		}
		m, err := autostart.New(logger)
		if err != nil {
			return fmt.Errorf("autostart unavailable: %w", err)
		}
		return fn(cmd, m)
	}
}
