package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// resetRootCmd restores every flag of the command tree to its default so
// cobra state doesn't leak between tests.
func resetRootCmd(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetArgs([]string{})
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	resetFlags(rootCmd)
	cfgFile = ""
	return buf
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if f.Changed {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	c.SetContext(context.TODO())
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// executeCmd executes the root command with the given args and returns the output.
func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := resetRootCmd(t)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// writeConfig writes a berth.yaml into dir and returns its path.
func writeConfig(t *testing.T, dir string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, "berth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}
