// Package transport moves a peer's published snapshot into local reach.
package transport

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cameronsjo/berth/internal/fileutil"
)

// Transport fetches the snapshot named snapshotName published at
// remoteLocation and stores it at dst.
type Transport interface {
	Fetch(ctx context.Context, remoteLocation, snapshotName, dst string) error
}

// FileCopy fetches snapshots by copying them from a mounted or UNC path.
type FileCopy struct {
	// Timeout bounds a single fetch. Zero means no timeout.
	Timeout time.Duration
}

// compile-time interface check.
var _ Transport = (*FileCopy)(nil)

// NewFileCopy creates a FileCopy transport.
func NewFileCopy(timeout time.Duration) *FileCopy {
	return &FileCopy{Timeout: timeout}
}

// Fetch copies <remoteLocation>/<snapshotName> to dst.
func (c *FileCopy) Fetch(ctx context.Context, remoteLocation, snapshotName, dst string) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	src := filepath.Join(remoteLocation, snapshotName)
	if err := fileutil.CopyFile(ctx, src, dst); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return nil
}
