package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cameronsjo/berth/internal/daemon"
	"github.com/cameronsjo/berth/internal/ui"
)

var (
	statusAddr    string
	statusTimeout int
	statusJSON    bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running daemon",
	Long: `Show the lock table and loop state of a daemon started with
--metrics-addr. The address defaults to metrics_addr from the configuration.

Examples:
  berth status                  # Use metrics_addr from the config
  berth status --addr :9310     # Query a specific address
  berth status --json           # Raw JSON`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "daemon status address")
	statusCmd.Flags().IntVarP(&statusTimeout, "timeout", "t", 10, "timeout in seconds")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	addr := statusAddr
	if addr == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		addr = cfg.MetricsAddr
	}
	if addr == "" {
		return fmt.Errorf("no daemon address: pass --addr or set metrics_addr")
	}

	ctx, cancel := context.WithTimeout(cmdContext(cmd), time.Duration(statusTimeout)*time.Second)
	defer cancel()

	client := daemon.NewClient(addr)
	status, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("get daemon status: %w", err)
	}

	health, err := client.Health(ctx)
	if err != nil {
		ui.Warning("Could not get health info: %v", err)
	}

	if statusJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	printStatusHuman(status, health)
	return nil
}

func printStatusHuman(status *daemon.StatusResponse, health *daemon.HealthStatus) {
	ui.Header("=== berth daemon status ===")
	fmt.Println()

	if health != nil {
		healthColor := ui.Green
		healthIcon := "✓"
		if health.Status != "healthy" {
			healthColor = ui.Yellow
			healthIcon = "⚠"
		}
		healthColor.Printf("  %s Health: %s\n", healthIcon, health.Status)
		if health.LastError != "" {
			ui.Red.Printf("  ✗ Last Error: %s\n", health.LastError)
		}
	}
	fmt.Printf("    Uptime: %s\n", status.Uptime)
	fmt.Printf("    Cycles: %d\n", status.Cycles)

	if p := status.LastPublish; p != nil {
		if p.Error != "" {
			ui.Red.Printf("  ✗ Last publish: %s\n", p.Error)
		} else {
			fmt.Printf("    Last publish: %d file(s), %s, %s ago\n",
				p.Published, p.Size, time.Since(p.At).Round(time.Second))
		}
	}

	fmt.Println()
	ui.Blue.Println("--- Peers ---")
	for _, l := range status.Locations {
		if l.Error != "" {
			ui.Yellow.Printf("  ⚠ %s: %s\n", l.Location, l.Error)
			continue
		}
		ui.Green.Printf("  ✓ %s: %d record(s)\n", l.Location, l.Records)
	}

	fmt.Println()
	ui.Blue.Printf("--- Locks (%d) ---\n", len(status.Locks))
	for _, lk := range status.Locks {
		if lk.State == "locked" {
			ui.Green.Printf("  ⚓ %s (%s)\n", lk.Key, lk.HeldFor)
			continue
		}
		ui.Red.Printf("  ✗ %s: %s\n", lk.Key, lk.Error)
	}
	fmt.Println()
}
