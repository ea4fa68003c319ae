package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cameronsjo/berth/internal/daemon"
	"github.com/cameronsjo/berth/internal/ui"
)

// runCmd represents the run command.
var runCmd = &cobra.Command{
	Use:     "run",
	Aliases: []string{"daemon"},
	Short:   "Publish and reconcile until interrupted",
	Long: `Run the publish and reconcile loops in the foreground.

The publish loop writes this node's open files to <local_share>/<snapshot_name>
every generation_interval. The reconcile loop fetches every remote location's
snapshot every check_interval, locks local copies of files peers have open
and releases them once no peer reports them any more.

On SIGINT or SIGTERM both loops stop, every lock is released and the
process exits.

Endpoints (when --metrics-addr is set):
  /health        Health check (JSON status)
  /ready         Readiness check (200 after the first cycle, else 503)
  /status        Lock table and loop state (JSON)
  /metrics       Prometheus metrics`,
	RunE: runDaemon,
}

func init() {
	runCmd.Flags().String("metrics-addr", "", "serve health, status and metrics on this address, e.g. :9310")
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	generation, check, err := cfg.Schedules()
	if err != nil {
		return err
	}

	rec, err := newReconciler(cfg)
	if err != nil {
		return err
	}

	dcfg := daemon.DefaultConfig()
	dcfg.MetricsAddr = cfg.MetricsAddr
	dcfg.GenerationSchedule = generation
	dcfg.CheckSchedule = check
	dcfg.Version = version

	d, err := daemon.New(dcfg, newPublisher(cfg), rec)
	if err != nil {
		return err
	}

	ui.Info("Share: %s", cfg.LocalShare)
	ui.Info("Peers: %d remote location(s)", len(cfg.RemoteLocations))
	ui.Detail("Publish every %s, reconcile every %s", cfg.GenerationInterval, cfg.CheckInterval)

	return d.Run(cmdContext(cmd))
}
