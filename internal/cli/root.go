// Package cli implements the governd command-line interface.
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "governd",
	Short: "Adaptive governance core daemon",
	Long: `governd runs the adaptive governance core: a self-tuning control
loop that learns configuration values, model-selection policy, and cycle
cadence from outcome signals, with convergence detection and checkpoint
rollback.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", defaultConfigPath(), "Path to governd.toml")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "governd.toml"
	}
	return filepath.Join(home, ".govcore", "governd.toml")
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
