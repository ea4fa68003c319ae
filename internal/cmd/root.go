// Package cmd provides the CLI commands for berth.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cameronsjo/berth/internal/config"
	"github.com/cameronsjo/berth/internal/ui"
)

const version = "0.1.0"

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "berth",
	Short: "Peer-to-peer advisory file locking for mirrored shares",
	Long: `berth - keep mirrored shares from being edited in two places at once

Every node publishes the files it has open in its shared folder to a
snapshot file, reads the snapshots of its peers, and holds an exclusive
lock on each local copy a peer is using until the peer lets go.

DAEMON
  run                   Publish and reconcile until interrupted
  status                Query a running daemon

ONE-SHOT
  publish               Publish one snapshot and exit
  reconcile             Run one reconciliation cycle and exit
  check <file>...       Probe whether files are locked

SETUP
  config init [path]    Write a starter configuration
  config show           Print the effective configuration
  doctor                Pre-flight checks
  update                Update berth to the latest release`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// flagBindings maps configuration keys to persistent flags.
var flagBindings = map[string]string{
	"local_share":    "local-share",
	"working_folder": "working-folder",
	"log.verbosity":  "verbosity",
	"log.file":       "log-file",
	"log.color":      "color",
	"metrics_addr":   "metrics-addr",
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.Error("%v", err)
		_ = ui.CloseLogFile()
		os.Exit(1)
	}
	_ = ui.CloseLogFile()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default: ./berth.yaml, then the user config dir)")
	flags.String("local-share", "", "root of the shared folder on this node")
	flags.String("working-folder", "", "folder for staging copies of peer snapshots")
	flags.IntP("verbosity", "v", 1, "log verbosity, 1 to 3")
	flags.String("log-file", "", "also write logs to this file")
	flags.String("color", "auto", "color output: auto, always or never")

	rootCmd.SetVersionTemplate("berth version {{.Version}}\n")
}

// loadConfig reads the configuration with the command's flags bound on top
// and applies its logging settings.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()
	for key, name := range flagBindings {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}

	setupLogging(cfg)
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	ui.SetVerbosity(cfg.Log.Verbosity)
	ui.ConfigureColor(cfg.Log.Color)
	if cfg.Log.File != "" {
		ui.SetLogFile(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups)
	}
}

// cmdContext returns the command's context or a background one.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
