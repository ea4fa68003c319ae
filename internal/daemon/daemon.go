// Package daemon runs the publish and reconcile loops until shutdown and
// serves health, status and metrics over HTTP.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/cameronsjo/berth/internal/metrics"
	"github.com/cameronsjo/berth/internal/publish"
	"github.com/cameronsjo/berth/internal/reconcile"
	"github.com/cameronsjo/berth/internal/ui"
)

// Config holds daemon configuration.
type Config struct {
	// MetricsAddr is the HTTP listen address; empty disables the server.
	MetricsAddr string
	// GenerationSchedule paces the publish loop.
	GenerationSchedule cron.Schedule
	// CheckSchedule paces the reconcile loop.
	CheckSchedule cron.Schedule
	// ShutdownTimeout bounds the HTTP server shutdown.
	ShutdownTimeout time.Duration
	// Version is reported on startup and in health responses.
	Version string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		GenerationSchedule: cron.Every(10 * time.Second),
		CheckSchedule:      cron.Every(10 * time.Second),
		ShutdownTimeout:    10 * time.Second,
		Version:            "dev",
	}
}

// Publisher publishes the local snapshot.
type Publisher interface {
	Publish(ctx context.Context) (*publish.Result, error)
}

// Reconciler converges local locks with the remote snapshots.
type Reconciler interface {
	RunOnce(ctx context.Context) *reconcile.CycleReport
	Status() reconcile.Status
	Close() error
}

// Compile-time interface verification.
var (
	_ Publisher  = (*publish.Publisher)(nil)
	_ Reconciler = (*reconcile.Reconciler)(nil)
)

// publishState is the outcome of the last publish attempt.
type publishState struct {
	at     time.Time
	result *publish.Result
	size   int64
	err    error
}

// Daemon owns the two loops and the status server.
type Daemon struct {
	config     *Config
	publisher  Publisher
	reconciler Reconciler
	server     *Server
	started    time.Time

	ready   bool
	readyMu sync.RWMutex

	lastPublish publishState
	publishMu   sync.RWMutex
}

// New creates a new Daemon.
func New(cfg *Config, p Publisher, r Reconciler) (*Daemon, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.GenerationSchedule == nil || cfg.CheckSchedule == nil {
		return nil, errors.New("daemon: both loop schedules are required")
	}
	if p == nil || r == nil {
		return nil, errors.New("daemon: publisher and reconciler are required")
	}

	d := &Daemon{
		config:     cfg,
		publisher:  p,
		reconciler: r,
		started:    time.Now(),
	}
	d.server = NewServer(d)

	return d, nil
}

// Run starts both loops and blocks until ctx is cancelled, SIGINT or
// SIGTERM arrives, or the HTTP server fails. Both loops are joined before
// every lock is released; the HTTP server stops last.
func (d *Daemon) Run(ctx context.Context) error {
	ui.Header("=== berth %s starting ===", d.config.Version)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	serving := false
	if d.config.MetricsAddr != "" {
		ln, err := net.Listen("tcp", d.config.MetricsAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", d.config.MetricsAddr, err)
		}
		serving = true
		ui.Info("HTTP server listening on %s", ln.Addr())
		go func() {
			if err := d.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				cancel(fmt.Errorf("HTTP server: %w", err))
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runLoop(gctx, d.config.GenerationSchedule, d.runPublish)
	})
	g.Go(func() error {
		return runLoop(gctx, d.config.CheckSchedule, d.runReconcile)
	})

	ui.Success("Daemon running")
	loopErr := g.Wait()

	// Only a server failure cancels with a cause of its own.
	var serverErr error
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) && !errors.Is(cause, context.DeadlineExceeded) {
		serverErr = cause
		ui.Error("Stopping: %v", cause)
	} else {
		ui.Warning("Shutting down...")
	}

	return errors.Join(loopErr, serverErr, d.shutdown(serving))
}

// shutdown releases every lock, then stops the HTTP server.
func (d *Daemon) shutdown(serving bool) error {
	d.setReady(false)

	var errs []error
	if err := d.reconciler.Close(); err != nil {
		ui.Warning("Releasing locks: %v", err)
		errs = append(errs, err)
	}

	if serving {
		ctx, cancel := context.WithTimeout(context.Background(), d.config.ShutdownTimeout)
		defer cancel()
		if err := d.server.Shutdown(ctx); err != nil {
			ui.Warning("HTTP server shutdown: %v", err)
		}
	}

	ui.Success("Shutdown complete")
	return errors.Join(errs...)
}

// runLoop runs fn, then sleeps until the schedule's next activation, until
// ctx is done. fn is never run concurrently with itself.
func runLoop(ctx context.Context, sched cron.Schedule, fn func(context.Context)) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		fn(ctx)

		wait := time.Until(sched.Next(time.Now()))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// runPublish runs one publish attempt and records its outcome.
func (d *Daemon) runPublish(ctx context.Context) {
	result, err := d.publisher.Publish(ctx)

	state := publishState{at: time.Now(), result: result, err: err}
	if err != nil {
		metrics.PublishTotal.WithLabelValues("failure").Inc()
		ui.Error("Publish failed: %v", err)
	} else {
		metrics.PublishTotal.WithLabelValues("success").Inc()
		metrics.PublishedRecords.Set(float64(result.Published))
		if info, statErr := os.Stat(result.Path); statErr == nil {
			state.size = info.Size()
		}
		ui.Snapshot("Published %d of %d open file(s) to %s", result.Published, result.Enumerated, result.Path)
	}

	d.publishMu.Lock()
	d.lastPublish = state
	d.publishMu.Unlock()
}

// runReconcile runs one reconciliation cycle and logs a summary.
func (d *Daemon) runReconcile(ctx context.Context) {
	report := d.reconciler.RunOnce(ctx)

	if len(report.Acquired) > 0 || len(report.Released) > 0 || len(report.Failed) > 0 {
		ui.Info("Cycle %s: %d locked, %d failed, %d released in %s",
			shortID(report.ID), len(report.Acquired), len(report.Failed), len(report.Released),
			report.Duration.Round(time.Millisecond))
	} else {
		ui.Trace("Cycle %s: no changes", shortID(report.ID))
	}
	if n := report.FailedLocations(); n > 0 {
		ui.Warning("%d of %d remote location(s) unavailable, keeping their previous locks", n, len(report.Locations))
	}

	d.setReady(true)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// IsReady reports whether a reconciliation cycle has completed.
func (d *Daemon) IsReady() bool {
	d.readyMu.RLock()
	defer d.readyMu.RUnlock()
	return d.ready
}

func (d *Daemon) setReady(ready bool) {
	d.readyMu.Lock()
	defer d.readyMu.Unlock()
	d.ready = ready
}

// LastPublish returns the time and error of the last publish attempt.
func (d *Daemon) LastPublish() (time.Time, error) {
	d.publishMu.RLock()
	defer d.publishMu.RUnlock()
	return d.lastPublish.at, d.lastPublish.err
}

// HealthStatus returns the daemon health. The daemon is degraded while
// the last publish failed or every remote location failed last cycle.
func (d *Daemon) HealthStatus() HealthStatus {
	lastPublish, publishErr := d.LastPublish()
	rs := d.reconciler.Status()

	status := HealthStatus{
		Status:      "healthy",
		Version:     d.config.Version,
		Ready:       d.IsReady(),
		LastPublish: lastPublish,
		Uptime:      time.Since(d.started),
	}
	if rs.LastCycle != nil {
		status.LastReconcile = rs.LastCycle.Started
	}

	if publishErr != nil {
		status.Status = "degraded"
		status.LastError = publishErr.Error()
	} else if c := rs.LastCycle; c != nil && len(c.Locations) > 0 && c.FailedLocations() == len(c.Locations) {
		status.Status = "degraded"
		status.LastError = "no remote location reachable"
	}

	return status
}

// HealthStatus represents the daemon health.
type HealthStatus struct {
	Status        string        `json:"status"`
	Version       string        `json:"version,omitempty"`
	Ready         bool          `json:"ready"`
	LastPublish   time.Time     `json:"last_publish,omitempty"`
	LastReconcile time.Time     `json:"last_reconcile,omitempty"`
	LastError     string        `json:"last_error,omitempty"`
	Uptime        time.Duration `json:"uptime"`
}
