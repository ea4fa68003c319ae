package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cameronsjo/berth/internal/lock"
)

var checkCmd = &cobra.Command{
	Use:   "check <file>...",
	Short: "Probe whether files are locked",
	Long: `Try to open each file exclusively and report whether something else
holds it. The probe never creates files and releases immediately.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	for _, path := range args {
		switch {
		case !fileExists(path):
			fmt.Fprintf(out, "missing   %s\n", path)
		case lock.IsLocked(path):
			fmt.Fprintf(out, "locked    %s\n", path)
		default:
			fmt.Fprintf(out, "unlocked  %s\n", path)
		}
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
