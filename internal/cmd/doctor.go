package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cameronsjo/berth/internal/preflight"
	"github.com/cameronsjo/berth/internal/ui"
)

// doctorCmd runs pre-flight checks.
var doctorCmd = &cobra.Command{
	Use:     "doctor",
	Aliases: []string{"checkup"},
	Short:   "Pre-flight checks",
	Long:    "Check the enumerator, the share root, the working folder, file locking and every remote location.",
	Args:    cobra.NoArgs,
	RunE:    runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ui.Blue.Println("Running pre-flight checks...")
	fmt.Println()

	checks := preflight.Run(preflight.Inputs{
		EnumeratorCommand: cfg.Enumerator.Command,
		LocalShare:        cfg.LocalShare,
		WorkingFolder:     cfg.WorkingFolder,
		SnapshotName:      cfg.SnapshotName,
		RemoteLocations:   cfg.RemoteLocations,
	})

	for _, c := range checks {
		switch {
		case c.OK && c.Detail != "":
			ui.Green.Printf("  * %s (%s)\n", c.Name, c.Detail)
		case c.OK:
			ui.Green.Printf("  * %s\n", c.Name)
		case c.Required:
			ui.Red.Printf("  x %s: %s\n", c.Name, c.Detail)
		default:
			ui.Yellow.Printf("  ! %s: %s\n", c.Name, c.Detail)
		}
	}

	warnings, errors := preflight.Summarize(checks)
	fmt.Println()
	fmt.Printf("%d passed, %d warnings, %d failed\n", len(checks)-len(warnings)-len(errors), len(warnings), len(errors))

	if len(errors) > 0 {
		return fmt.Errorf("%d pre-flight check(s) failed", len(errors))
	}
	return nil
}
