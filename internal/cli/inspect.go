package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tutu-network/govcore/internal/daemon"
	"github.com/tutu-network/govcore/internal/domain"
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(checkpointCmd)
	checkpointCmd.AddCommand(checkpointListCmd)
	checkpointCmd.AddCommand(checkpointRollbackCmd)
	rootCmd.AddCommand(tunerCmd)
	tunerCmd.AddCommand(tunerShowCmd)
}

// serverBase resolves the running instance's base URL from the config.
func serverBase(cmd *cobra.Command) (string, error) {
	cfg, err := daemon.Load(configPath(cmd))
	if err != nil {
		return "", err
	}
	if !cfg.Server.Enabled {
		return "", fmt.Errorf("the http server is disabled in the config; enable [server] to query a running instance")
	}
	return fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port), nil
}

func getAndPrint(url string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("is governd running? %w", err)
	}
	defer resp.Body.Close()
	return printBody(resp)
}

func printBody(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s: %s", resp.Status, body)
	}
	var pretty any
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Fprintln(os.Stdout, string(body))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}

// ─── status ─────────────────────────────────────────────────────────────────

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the governance core's current state",
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := serverBase(cmd)
		if err != nil {
			return err
		}
		return getAndPrint(base + "/api/governance/state")
	},
}

// ─── checkpoint ─────────────────────────────────────────────────────────────

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect and roll back retained checkpoints",
}

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List retained checkpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := serverBase(cmd)
		if err != nil {
			return err
		}
		return getAndPrint(base + "/api/governance/checkpoints")
	},
}

var checkpointRollbackCmd = &cobra.Command{
	Use:   "rollback CHECKPOINT_ID",
	Short: "Roll the system back to a retained checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		base, err := serverBase(cmd)
		if err != nil {
			return err
		}
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Post(base+"/api/governance/checkpoints/"+args[0]+"/rollback", "application/json", nil)
		if err != nil {
			return fmt.Errorf("is governd running? %w", err)
		}
		defer resp.Body.Close()
		return printBody(resp)
	},
}

// ─── tuner ──────────────────────────────────────────────────────────────────

var tunerCmd = &cobra.Command{
	Use:   "tuner",
	Short: "Inspect tuned hyperparameters",
}

var tunerShowCmd = &cobra.Command{
	Use:   "show [HYPERPARAMETER_ID]",
	Short: "Show one hyperparameter, or list all ids",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			for _, id := range domain.AllHyperparameterIds() {
				spec := domain.HyperparameterSpecs[id]
				fmt.Fprintf(os.Stdout, "%-36s default %-8.4g range [%g, %g]\n", id, spec.Default, spec.Lo, spec.Hi)
			}
			return nil
		}
		base, err := serverBase(cmd)
		if err != nil {
			return err
		}
		return getAndPrint(base + "/api/governance/tuner/" + args[0])
	},
}
