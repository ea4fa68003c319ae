package cmd

import (
	"fmt"
	"os"

	"github.com/cameronsjo/berth/internal/config"
	"github.com/cameronsjo/berth/internal/enumerate"
	"github.com/cameronsjo/berth/internal/publish"
	"github.com/cameronsjo/berth/internal/reconcile"
	"github.com/cameronsjo/berth/internal/transport"
)

// newPublisher wires the publisher to the configured enumerator command.
func newPublisher(cfg *config.Config) *publish.Publisher {
	enum := enumerate.NewCommand(cfg.Enumerator.Command, cfg.Enumerator.Args, cfg.EnumerateTimeout)
	return publish.NewPublisher(publish.Config{
		LocalShare:   cfg.LocalShare,
		SnapshotName: cfg.SnapshotName,
		Exceptions:   cfg.Exceptions,
	}, enum)
}

// newReconciler wires the reconciler to the file-copy transport and
// prepares the working folder.
func newReconciler(cfg *config.Config) (*reconcile.Reconciler, error) {
	if err := os.MkdirAll(cfg.WorkingFolder, 0755); err != nil {
		return nil, fmt.Errorf("create working folder: %w", err)
	}

	return reconcile.NewReconciler(&reconcile.Config{
		LocalShare:      cfg.LocalShare,
		WorkingFolder:   cfg.WorkingFolder,
		SnapshotName:    cfg.SnapshotName,
		RemoteLocations: cfg.RemoteLocations,
		StagingName:     cfg.StagingName,
	}, reconcile.WithTransport(transport.NewFileCopy(cfg.FetchTimeout)))
}
