package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cameronsjo/berth/internal/ui"
	"github.com/cameronsjo/berth/internal/update"
)

var updateCmd = &cobra.Command{
	Use:     "update",
	Aliases: []string{"upgrade", "selfupdate"},
	Short:   "Update berth to the latest version",
	Long: `Update berth to the latest version from GitHub releases.

Stop a running daemon first: it holds file locks and, on Windows, its
binary cannot be replaced while it runs.

Examples:
  berth update           # Update to latest version
  berth update --check   # Check for updates without installing`,
	Args: cobra.NoArgs,
	RunE: runUpdate,
}

var checkOnly bool

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().BoolVar(&checkOnly, "check", false, "Only check for updates, don't install")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ui.Blue.Printf("Current version: %s (%s)\n", version, update.GetPlatformInfo())
	ui.Blue.Println("Checking for updates...")

	if checkOnly {
		release, available, err := update.CheckForUpdate(cmdContext(cmd), version)
		if err != nil {
			return fmt.Errorf("check for updates: %w", err)
		}
		if !available {
			ui.Success("You're running the latest version!")
			return nil
		}
		ui.Success("New version available: %s (released %s)", release.Version, release.PublishedAt)
		ui.Blue.Println("To update, run: berth update")
		printChangelog(release.Changelog)
		return nil
	}

	release, err := update.Update(cmdContext(cmd), version)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}
	if release == nil {
		ui.Success("You're already running the latest version!")
		return nil
	}

	ui.Success("Successfully updated to version %s!", release.Version)
	printChangelog(release.Changelog)
	ui.Blue.Println("Restart berth to use the new version.")
	return nil
}

// printChangelog prints the first lines of release notes.
func printChangelog(changelog string) {
	if changelog == "" {
		return
	}

	const maxLines = 10
	fmt.Println()
	ui.Yellow.Println("What's new:")
	lines := strings.Split(changelog, "\n")
	for i, line := range lines {
		if i == maxLines {
			fmt.Printf("  ... (%d more lines)\n", len(lines)-maxLines)
			break
		}
		fmt.Printf("  %s\n", line)
	}
	fmt.Println()
}
