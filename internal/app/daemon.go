package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// SweepDaemon runs the sweep on a cron schedule and serves the metrics
// endpoint until its context is cancelled.
type SweepDaemon struct {
	app      *ReaperApp
	schedule string
	listen   string

	cron    *cron.Cron
	server  *http.Server
	mu      sync.Mutex
	running bool
}

// NewSweepDaemon creates a daemon for the app's sweep schedule and metrics
// listen address.
func NewSweepDaemon(a *ReaperApp) *SweepDaemon {
	return &SweepDaemon{
		app:      a,
		schedule: a.cfg.Sweep.Schedule,
		listen:   a.cfg.Metrics.Listen,
		cron:     cron.New(),
	}
}

// Start schedules the sweep and, when configured, starts the metrics server.
// The schedule is a standard 5-field cron expression.
func (d *SweepDaemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("sweep daemon already running")
	}
	if _, err := cron.ParseStandard(d.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", d.schedule, err)
	}

	// Ticks that arrive while a sweep is still running are skipped.
	job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		d.runSweep(ctx)
	}))
	if _, err := d.cron.AddJob(d.schedule, job); err != nil {
		return fmt.Errorf("scheduling sweep: %w", err)
	}

	if d.listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", d.app.recorder.Handler())
		d.server = &http.Server{Addr: d.listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.app.logger.Error("metrics server failed", "listen", d.listen, "error", err)
			}
		}()
	}

	d.cron.Start()
	d.running = true
	d.app.logger.Info("sweep daemon started",
		"schedule", d.schedule,
		"concurrency", d.app.cfg.Sweep.Concurrency,
		"lock", d.app.cfg.Sweep.Lock.Type,
		"metrics_listen", d.listen,
	)
	return nil
}

// Run starts the daemon and blocks until ctx is cancelled.
func (d *SweepDaemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	d.Stop()
	return nil
}

// runSweep runs one scheduled sweep under its own Operation, so one failed
// run does not mark the daemon as failed.
func (d *SweepDaemon) runSweep(ctx context.Context) *Operation {
	op := NewOperation("scheduled sweep", d.app.clock.Now())
	result, err := d.app.sweep(ctx, time.Time{}, op)
	if err != nil {
		d.app.logger.Error("scheduled sweep failed", "error", err)
		return op
	}
	if result.Due == 0 {
		d.app.logger.Debug("scheduled sweep found nothing due")
	}
	d.app.logger.Debug("scheduled sweep finished",
		"status", op.Status,
		"elapsed", d.app.clock.Now().Sub(op.StartedAt),
	)
	return op
}

// Stop stops scheduling, waits for a running sweep to finish and shuts down
// the metrics server.
func (d *SweepDaemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return
	}
	<-d.cron.Stop().Done()
	if d.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			d.app.logger.Warn("metrics server shutdown failed", "error", err)
		}
	}
	d.running = false
	d.app.logger.Info("sweep daemon stopped")
}

// NextRun returns the next scheduled sweep time, or nil when not running.
func (d *SweepDaemon) NextRun() *time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries := d.cron.Entries()
	if !d.running || len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
