package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mathiasgse/screenfree/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker watches recent discovery runs and reports failing or stuck ones.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	log       *zap.Logger
}

// NewChecker wires a run health checker from a collector and an alerter.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		log:       zap.L().With(zap.String("component", "run_health")),
	}
}

func (c *Checker) interval() time.Duration {
	if c.cfg.CheckIntervalSecs <= 0 {
		return defaultCheckInterval
	}
	return time.Duration(c.cfg.CheckIntervalSecs) * time.Second
}

// Run inspects run health once on start and then on every tick until ctx is
// cancelled.
func (c *Checker) Run(ctx context.Context) {
	every := c.interval()
	c.log.Info("watching discovery runs",
		zap.Duration("every", every),
		zap.Int("window_hours", c.cfg.LookbackWindowHours),
		zap.Int("stale_after_minutes", c.cfg.StaleRunMinutes),
	)
	c.Check(ctx)

	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-tick.C:
			c.Check(ctx)
		case <-ctx.Done():
			c.log.Info("stopped watching discovery runs")
			return
		}
	}
}

// Check evaluates the current window and posts any alerts to the webhook.
func (c *Checker) Check(ctx context.Context) []Alert {
	if ctx.Err() != nil {
		return nil
	}
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		c.log.Error("run health: list runs", zap.Error(err))
		return nil
	}

	alerts := c.alerter.Evaluate(snap)
	fields := []zap.Field{
		zap.Int("runs", snap.RunsTotal),
		zap.Int("failed", snap.RunsFailed),
		zap.Int("stale", len(snap.StaleRuns)),
		zap.Float64("fail_rate", snap.FailRate),
	}
	if len(alerts) == 0 {
		c.log.Debug("discovery runs healthy", fields...)
		return nil
	}
	for _, a := range alerts {
		c.log.Warn(a.Message, zap.String("alert", string(a.Type)), zap.String("severity", a.Severity))
	}

	delivered := c.alerter.SendAlerts(ctx, alerts)
	c.log.Info("discovery runs unhealthy", append(fields, zap.Int("alerts", len(alerts)), zap.Int("delivered", delivered))...)
	return alerts
}
