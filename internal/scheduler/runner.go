// Package scheduler runs the periodic maintenance jobs of the gateway.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

type Job func(ctx context.Context) error

type Runner struct {
	cron    *cron.Cron
	logger  *slog.Logger
	baseCtx context.Context
}

func New(baseCtx context.Context, logger *slog.Logger) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Every schedules job at a fixed interval. A run that is still going when the
// next tick fires causes that tick to be skipped.
func (r *Runner) Every(name string, interval time.Duration, job Job) (cron.EntryID, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("schedule %s: interval must be > 0", name)
	}
	return r.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() { r.run(name, job) })
}

func (r *Runner) run(name string, job Job) {
	start := time.Now()
	if err := job(r.baseCtx); err != nil {
		r.logger.WarnContext(r.baseCtx, "scheduled job failed", "job", name, "error", err)
		return
	}
	r.logger.DebugContext(r.baseCtx, "scheduled job finished", "job", name, "duration_ms", time.Since(start).Milliseconds())
}

func (r *Runner) Len() int { return len(r.cron.Entries()) }

func (r *Runner) Start() {
	r.logger.Info("scheduler started", "jobs", r.Len())
	r.cron.Start()
}

// Stop waits for running jobs to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("scheduler stopped")
}
