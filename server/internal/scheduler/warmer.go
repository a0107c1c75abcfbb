package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pikaboard/pikausage/internal/model"
)

// Refresher recomputes the usage report
type Refresher interface {
	Refresh(ctx context.Context) (*model.UsageReport, error)
}

// Warmer recomputes the report on a cron schedule so that requests are served
// from a warm cache. Runs that overlap a still-running one are skipped.
type Warmer struct {
	svc      Refresher
	schedule string
	cron     *cron.Cron
	mu       sync.Mutex
	logger   *slog.Logger
	running  bool
}

// NewWarmer creates a cache warmer. An empty schedule disables it.
func NewWarmer(svc Refresher, schedule string, logger *slog.Logger) *Warmer {
	return &Warmer{
		svc:      svc,
		schedule: schedule,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:   logger.With("component", "scheduler.warmer"),
	}
}

// Start schedules the warmer and runs one warm-up immediately.
// The warmer stops when ctx is cancelled.
//
// Schedules use standard cron syntax or descriptors:
//   - "@every 5m"   - Every five minutes
//   - "*/10 * * * *" - Every ten minutes on the clock
func (w *Warmer) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.schedule == "" {
		w.logger.Info("warm schedule not configured, skipping warmer")
		return nil
	}

	if _, err := cron.ParseStandard(w.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", w.schedule, err)
	}

	if _, err := w.cron.AddFunc(w.schedule, func() {
		w.warm(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule warmer: %w", err)
	}

	w.cron.Start()
	w.running = true
	w.logger.Info("cache warmer started", "schedule", w.schedule)

	go w.warm(ctx)
	go func() {
		<-ctx.Done()
		w.Stop()
	}()

	return nil
}

func (w *Warmer) warm(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	report, err := w.svc.Refresh(ctx)
	if err != nil {
		w.logger.Error("cache warm-up failed", "error", err)
		return
	}
	w.logger.Debug("cache warmed",
		"duration", time.Since(start),
		"sessions", report.Total.Sessions,
	)
}

// Stop stops the warmer and waits for a running warm-up to finish
func (w *Warmer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		<-w.cron.Stop().Done()
		w.running = false
		w.logger.Info("cache warmer stopped")
	}
}

// IsRunning returns true if the warmer is scheduled
func (w *Warmer) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.running
}

// NextRun returns the next scheduled warm-up time
func (w *Warmer) NextRun() *time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries := w.cron.Entries()
	if len(entries) == 0 {
		return nil
	}

	next := entries[0].Next
	return &next
}
