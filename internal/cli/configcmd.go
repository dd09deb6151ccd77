package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tutu-network/govcore/internal/daemon"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Work with governd configuration files",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [PATH]",
	Short: "Validate a governd.toml file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath(cmd)
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("cannot read config: %w", err)
		}
		cfg, err := daemon.Load(path)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s is valid\n", path)
		return nil
	},
}
