// Package schedule starts recurring discovery runs from cron entries.
package schedule

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mathiasgse/screenfree/internal/config"
	"github.com/mathiasgse/screenfree/internal/discovery"
)

// RunStarter launches a background discovery run.
type RunStarter interface {
	Start(ctx context.Context, opts discovery.RunOptions) (string, error)
}

// Scheduler wraps robfig/cron. Ticks only start runs, so overlapping runs
// are possible and harmless: the upsert lock serializes candidate writes.
type Scheduler struct {
	cron   *cron.Cron
	runner RunStarter
}

// New creates a Scheduler with one job per entry.
func New(ctx context.Context, runner RunStarter, entries []config.ScheduleEntry) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(cron.WithLogger(zapLogger{zap.L().Sugar()})),
		runner: runner,
	}
	for i, e := range entries {
		opts := discovery.RunOptions{Preset: e.Preset, Country: e.Country, Limit: e.Limit}
		if _, err := s.cron.AddFunc(e.Spec, func() { s.fire(ctx, opts) }); err != nil {
			return nil, eris.Wrapf(err, "schedule: entry %d spec %q", i, e.Spec)
		}
	}
	return s, nil
}

// Start begins ticking in the background.
func (s *Scheduler) Start() {
	zap.L().Info("scheduler started", zap.Int("entries", len(s.cron.Entries())))
	s.cron.Start()
}

// Stop halts ticking. Runs already started keep going.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	zap.L().Info("scheduler stopped")
}

func (s *Scheduler) fire(ctx context.Context, opts discovery.RunOptions) {
	log := zap.L().With(zap.String("preset", opts.Preset), zap.String("country", opts.Country))
	id, err := s.runner.Start(ctx, opts)
	if err != nil {
		log.Error("scheduled run failed to start", zap.Error(err))
		return
	}
	log.Info("scheduled run started", zap.String("run_id", id))
}

// zapLogger adapts zap to cron.Logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

func (l zapLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw("cron: "+msg, keysAndValues...)
}

func (l zapLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
