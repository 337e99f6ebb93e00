package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shizukutanaka/smartplug/internal/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the configuration file",
	Long: `Write config.yaml with default values. An existing file keeps its values
and gains any settings it is missing, unless --force resets it.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().Bool("force", false, "Overwrite existing configuration with defaults")
}

func runInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	path := configPath()
	out := cmd.OutOrStdout()

	cfg := config.DefaultConfig()
	_, statErr := os.Stat(path)
	exists := statErr == nil
	if exists && !force {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	if err := config.SaveConfig(cfg, path); err != nil {
		return err
	}

	if exists && !force {
		fmt.Fprintf(out, "Configuration updated: %s\n", path)
	} else {
		fmt.Fprintf(out, "Configuration written: %s\n", path)
	}
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. Set plug.ip_address and plug.outlet_index for your strip")
	fmt.Fprintln(out, "  2. Run 'smartplug status' to check the strip is reachable")
	fmt.Fprintln(out, "  3. Run 'smartplug start --monitor'")
	return nil
}
