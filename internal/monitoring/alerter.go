package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mathiasgse/screenfree/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate  AlertType = "run_failure_rate"
	AlertStaleRun        AlertType = "stale_run"
	AlertNoNewCandidates AlertType = "no_new_candidates"
)

// minFinishedRuns is the sample size below which run-ratio rules stay quiet.
const minFinishedRuns = 3

// Alert is one breached threshold.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// webhookPayload carries a Slack-compatible text line next to the alert.
type webhookPayload struct {
	Text string `json:"text"`
	Alert
}

type rule func(cfg config.MonitoringConfig, snap *MetricsSnapshot) *Alert

var rules = []rule{failureRateRule, staleRunRule, noNewCandidatesRule}

// Alerter turns snapshots into alerts and posts them to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates an Alerter.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

// Evaluate applies every rule to snap.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	now := time.Now().UTC()
	var alerts []Alert
	for _, r := range rules {
		if alert := r(a.cfg, snap); alert != nil {
			alert.Timestamp = now
			alerts = append(alerts, *alert)
		}
	}
	return alerts
}

func failureRateRule(cfg config.MonitoringConfig, snap *MetricsSnapshot) *Alert {
	finished := snap.RunsCompleted + snap.RunsFailed
	if finished < minFinishedRuns || snap.FailRate <= cfg.FailureRateThreshold {
		return nil
	}
	return &Alert{
		Type:     AlertRunFailureRate,
		Severity: "high",
		Message: fmt.Sprintf("Run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
			snap.FailRate*100, cfg.FailureRateThreshold*100, snap.RunsFailed, finished, snap.LookbackHours),
		Details: map[string]any{
			"fail_rate": snap.FailRate,
			"threshold": cfg.FailureRateThreshold,
			"failed":    snap.RunsFailed,
			"finished":  finished,
		},
	}
}

func staleRunRule(cfg config.MonitoringConfig, snap *MetricsSnapshot) *Alert {
	if len(snap.StaleRuns) == 0 {
		return nil
	}
	return &Alert{
		Type:     AlertStaleRun,
		Severity: "high",
		Message: fmt.Sprintf("%d run(s) still running after %dm: %s",
			len(snap.StaleRuns), cfg.StaleRunMinutes, strings.Join(snap.StaleRuns, ", ")),
		Details: map[string]any{"run_ids": snap.StaleRuns},
	}
}

func noNewCandidatesRule(_ config.MonitoringConfig, snap *MetricsSnapshot) *Alert {
	if snap.RunsCompleted < minFinishedRuns || snap.NewCandidates > 0 {
		return nil
	}
	return &Alert{
		Type:     AlertNoNewCandidates,
		Severity: "low",
		Message: fmt.Sprintf("%d completed run(s) in last %dh found no new candidates (%d found, %d item errors)",
			snap.RunsCompleted, snap.LookbackHours, snap.CandidatesFound, snap.ItemErrors),
		Details: map[string]any{
			"completed":        snap.RunsCompleted,
			"candidates_found": snap.CandidatesFound,
			"item_errors":      snap.ItemErrors,
		},
	}
}

// SendAlerts posts each alert to the webhook and returns how many were
// accepted. Without a webhook URL nothing is sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" {
		return 0
	}
	sent := 0
	for _, alert := range alerts {
		if err := a.post(ctx, alert); err != nil {
			zap.L().Error("monitoring: send alert", zap.String("type", string(alert.Type)), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(webhookPayload{
		Text:  fmt.Sprintf("[screenfree %s] %s", alert.Severity, alert.Message),
		Alert: alert,
	})
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: post webhook")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 300 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
