// Package reconcile derives local file locks from the snapshots published by
// remote peers.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cameronsjo/berth/internal/lock"
	"github.com/cameronsjo/berth/internal/metrics"
	"github.com/cameronsjo/berth/internal/snapshot"
	"github.com/cameronsjo/berth/internal/transport"
	"github.com/cameronsjo/berth/internal/ui"
)

var (
	// ErrTransport indicates a remote snapshot could not be fetched.
	ErrTransport = errors.New("fetch remote snapshot")
	// ErrDecode indicates a staged snapshot could not be read.
	ErrDecode = errors.New("decode remote snapshot")
)

// Config holds the reconciliation configuration.
type Config struct {
	// LocalShare is the root every remote filename is resolved against.
	LocalShare string
	// WorkingFolder holds the staging copies of remote snapshots.
	WorkingFolder string
	// SnapshotName is the snapshot filename published by every peer.
	SnapshotName string
	// RemoteLocations are the peers' shared folders, in evaluation order.
	RemoteLocations []string
	// StagingName is the staging filename template.
	StagingName string
}

// Reconciler converges the lock table towards the union of the remote
// snapshots. RunOnce and Close must not be called concurrently; Status may
// be called from any goroutine.
type Reconciler struct {
	config    *Config
	transport transport.Transport
	table     *lock.Table
	now       func() time.Time

	staging map[string]string
	// trusted is the last successfully decoded key set per location, with
	// the time each key was last ingested.
	trusted map[string]map[string]time.Time

	mu          sync.Mutex
	cycles      int
	lastReport  *CycleReport
	lastSuccess map[string]time.Time
	entries     []lock.Entry
}

// ReconcilerOption is a functional option for configuring the Reconciler.
type ReconcilerOption func(*Reconciler)

// WithTransport sets the snapshot transport.
func WithTransport(t transport.Transport) ReconcilerOption {
	return func(r *Reconciler) {
		r.transport = t
	}
}

// WithTable sets the lock table.
func WithTable(t *lock.Table) ReconcilerOption {
	return func(r *Reconciler) {
		r.table = t
	}
}

// WithClock sets the clock used to stamp ingested records.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		r.now = now
	}
}

// NewReconciler creates a Reconciler. It fails when the staging template is
// invalid or two locations would share a staging file.
func NewReconciler(cfg *Config, opts ...ReconcilerOption) (*Reconciler, error) {
	staging, err := stagingNames(cfg.StagingName, cfg.SnapshotName, cfg.RemoteLocations)
	if err != nil {
		return nil, err
	}

	r := &Reconciler{
		config:      cfg,
		transport:   transport.NewFileCopy(0),
		table:       lock.NewTable(),
		now:         time.Now,
		staging:     staging,
		trusted:     make(map[string]map[string]time.Time),
		lastSuccess: make(map[string]time.Time),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// StagingPath returns the staging file used for location.
func (r *Reconciler) StagingPath(location string) string {
	return filepath.Join(r.config.WorkingFolder, r.staging[location])
}

// RunOnce runs one reconciliation cycle.
//
// Every location is fetched and decoded in order and new keys are locked as
// they are seen. Releases are deferred until all locations were evaluated:
// an entry survives while any location's latest trusted snapshot names it,
// where a location that failed this cycle keeps its previous snapshot.
func (r *Reconciler) RunOnce(ctx context.Context) *CycleReport {
	report := &CycleReport{
		ID:      uuid.NewString(),
		Started: r.now(),
	}
	start := time.Now()

	for _, loc := range r.config.RemoteLocations {
		if ctx.Err() != nil {
			// Unevaluated locations keep their trusted sets.
			report.Locations = append(report.Locations, LocationResult{
				Location: loc,
				Staging:  r.staging[loc],
				Records:  len(r.trusted[loc]),
				Kind:     KindTransport,
				Err:      fmt.Errorf("%w: %w", ErrTransport, ctx.Err()),
			})
			continue
		}
		report.Locations = append(report.Locations, r.evaluate(ctx, loc, report))
	}

	r.releaseStale(report)

	report.Duration = time.Since(start)
	metrics.CycleDuration.Observe(report.Duration.Seconds())
	r.publishStatus(report)

	return report
}

// evaluate fetches, decodes and locks one location.
func (r *Reconciler) evaluate(ctx context.Context, loc string, report *CycleReport) LocationResult {
	result := LocationResult{Location: loc, Staging: r.staging[loc]}
	stagingPath := r.StagingPath(loc)

	if err := r.transport.Fetch(ctx, loc, r.config.SnapshotName, stagingPath); err != nil {
		result.Kind = KindTransport
		result.Err = fmt.Errorf("%w: %w", ErrTransport, err)
		result.Records = len(r.trusted[loc])
		metrics.RecordFetch(loc, "transport_error")
		ui.Warning("Skipping %s: %v", loc, err)
		return result
	}

	records, err := r.decode(stagingPath)
	if err != nil {
		result.Kind = KindDecode
		result.Err = fmt.Errorf("%w: %w", ErrDecode, err)
		result.Records = len(r.trusted[loc])
		metrics.RecordFetch(loc, "decode_error")
		ui.Warning("Skipping %s: %v", loc, err)
		return result
	}
	metrics.RecordFetch(loc, "success")

	ingested := r.now()
	keys := make(map[string]time.Time, len(records))
	for i := range records {
		records[i].Timestamp = ingested

		key, ok := snapshot.Key(records[i].Filename, r.config.LocalShare)
		if !ok {
			continue
		}
		keys[key] = ingested

		if r.table.Has(key) {
			continue
		}
		entry := r.table.Acquire(key, records[i].Filename)
		if entry.State == lock.Locked {
			report.Acquired = append(report.Acquired, key)
			metrics.LockAcquireTotal.WithLabelValues("locked").Inc()
			ui.Anchor("Locked %s for %s (%s)", key, records[i].Hostname, records[i].OpenMode)
		} else {
			report.Failed = append(report.Failed, key)
			metrics.LockAcquireTotal.WithLabelValues("failed").Inc()
			ui.Warning("Could not lock %s: %v", key, entry.Err)
		}
	}

	r.trusted[loc] = keys
	result.Records = len(records)

	r.mu.Lock()
	r.lastSuccess[loc] = ingested
	r.mu.Unlock()

	ui.Detail("%s: %d record(s)", loc, len(records))
	return result
}

func (r *Reconciler) decode(path string) ([]snapshot.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return snapshot.Decode(f, r.config.LocalShare)
}

// releaseStale removes every entry no location's trusted set still names.
func (r *Reconciler) releaseStale(report *CycleReport) {
	keep := make(map[string]struct{})
	for _, loc := range r.config.RemoteLocations {
		for key := range r.trusted[loc] {
			keep[key] = struct{}{}
		}
	}

	for _, key := range r.table.Keys() {
		if _, ok := keep[key]; ok {
			continue
		}
		report.Released = append(report.Released, key)
		metrics.LockReleaseTotal.Inc()
		if err := r.table.Release(key); err != nil {
			report.ReleaseErrors = append(report.ReleaseErrors, err)
			ui.Warning("%v", err)
			continue
		}
		ui.Detail("Released %s", key)
	}
}

// publishStatus refreshes the view served by Status.
func (r *Reconciler) publishStatus(report *CycleReport) {
	entries := r.table.Entries()

	r.mu.Lock()
	r.cycles++
	r.lastReport = report
	r.entries = entries
	r.mu.Unlock()

	locked, failed := 0, 0
	for _, e := range entries {
		if e.State == lock.Locked {
			locked++
		} else {
			failed++
		}
	}
	metrics.SetLockEntries(locked, failed)
}

// Status returns the state after the last completed cycle.
func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	last := make(map[string]time.Time, len(r.lastSuccess))
	for k, v := range r.lastSuccess {
		last[k] = v
	}
	return Status{
		Cycles:      r.cycles,
		LastCycle:   r.lastReport,
		Entries:     append([]lock.Entry(nil), r.entries...),
		LastSuccess: last,
	}
}

// Close releases every lock held by the table.
func (r *Reconciler) Close() error {
	n := r.table.Len()
	err := r.table.ReleaseAll()

	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
	metrics.SetLockEntries(0, 0)

	if n > 0 {
		ui.Info("Released %d lock(s)", n)
	}
	return err
}
