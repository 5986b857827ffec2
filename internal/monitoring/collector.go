// Package monitoring watches discovery run health and posts alerts to a
// webhook when failure rates climb or runs stop making progress.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/mathiasgse/screenfree/internal/model"
)

// runWindow is how many recent runs one collection inspects.
const runWindow = 500

// MetricsSnapshot holds a point-in-time view of run health.
type MetricsSnapshot struct {
	// Runs started within the lookback window.
	RunsTotal     int     `json:"runs_total"`
	RunsCompleted int     `json:"runs_completed"`
	RunsFailed    int     `json:"runs_failed"`
	RunsRunning   int     `json:"runs_running"`
	FailRate      float64 `json:"fail_rate"`

	// StaleRuns lists running runs that started before the stale cutoff.
	StaleRuns []string `json:"stale_runs,omitempty"`

	CandidatesFound int `json:"candidates_found"`
	NewCandidates   int `json:"new_candidates"`
	ItemErrors      int `json:"item_errors"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the slice of the store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
}

// Collector gathers run metrics from the store.
type Collector struct {
	runs       RunLister
	staleAfter time.Duration
	now        func() time.Time
}

// NewCollector creates a collector. Running runs older than staleAfter are
// reported as stale.
func NewCollector(runs RunLister, staleAfter time.Duration) *Collector {
	return &Collector{runs: runs, staleAfter: staleAfter, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.runs.ListRuns(ctx, runWindow)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	staleCutoff := now.Add(-c.staleAfter)

	for _, r := range runs {
		if r.Status == model.RunRunning && c.staleAfter > 0 && r.StartedAt.Before(staleCutoff) {
			snap.StaleRuns = append(snap.StaleRuns, r.ID)
		}
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunCompleted:
			snap.RunsCompleted++
		case model.RunFailed:
			snap.RunsFailed++
		case model.RunRunning:
			snap.RunsRunning++
		}
		snap.CandidatesFound += r.Stats.CandidatesFound
		snap.NewCandidates += r.Stats.NewCandidates
		snap.ItemErrors += r.Stats.ErrorCount
	}

	if finished := snap.RunsCompleted + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	return snap, nil
}
