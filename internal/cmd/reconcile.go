package cmd

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cameronsjo/berth/internal/reconcile"
	"github.com/cameronsjo/berth/internal/ui"
)

var reconcileHold bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one reconciliation cycle and exit",
	Long: `Fetch every remote snapshot once, lock the local files peers have open,
report what happened and release the locks again.

With --hold the locks are kept until SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileHold, "hold", false, "keep locks until interrupted")
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	rec, err := newReconciler(cfg)
	if err != nil {
		return err
	}
	defer rec.Close()

	report := rec.RunOnce(cmdContext(cmd))
	printReport(cmd.OutOrStdout(), report)

	if reconcileHold {
		ctx, stop := signal.NotifyContext(cmdContext(cmd), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ui.Info("Holding %d lock(s), press Ctrl+C to release", len(report.Acquired))
		<-ctx.Done()
	}

	return nil
}

func printReport(w io.Writer, report *reconcile.CycleReport) {
	fmt.Fprintf(w, "cycle %s\n", report.ID)
	for _, l := range report.Locations {
		if l.OK() {
			fmt.Fprintf(w, "  %s: %d record(s)\n", l.Location, l.Records)
		} else {
			fmt.Fprintf(w, "  %s: %s error: %v\n", l.Location, l.Kind, l.Err)
		}
	}
	for _, k := range report.Acquired {
		fmt.Fprintf(w, "  locked   %s\n", k)
	}
	for _, k := range report.Failed {
		fmt.Fprintf(w, "  failed   %s\n", k)
	}
	for _, k := range report.Released {
		fmt.Fprintf(w, "  released %s\n", k)
	}
}
