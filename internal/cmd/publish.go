package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish one snapshot and exit",
	Long: `Enumerate the files open on this node and write them to
<local_share>/<snapshot_name>, exactly as one iteration of the publish loop.`,
	Args: cobra.NoArgs,
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	result, err := newPublisher(cfg).Publish(cmdContext(cmd))
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "published %d of %d open file(s) to %s (%d excluded)\n",
		result.Published, result.Enumerated, result.Path, result.Excluded)
	return nil
}
