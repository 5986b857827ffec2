package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathiasgse/screenfree/internal/config"
)

var testMonitoringConfig = config.MonitoringConfig{
	FailureRateThreshold: 0.25,
	StaleRunMinutes:      120,
	LookbackWindowHours:  24,
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	snap := &MetricsSnapshot{
		RunsTotal:     10,
		RunsCompleted: 9,
		RunsFailed:    1,
		FailRate:      0.1,
		NewCandidates: 12,
		LookbackHours: 24,
	}
	assert.Empty(t, NewAlerter(testMonitoringConfig).Evaluate(snap))
}

func TestAlerter_Evaluate_FailureRate(t *testing.T) {
	snap := &MetricsSnapshot{
		RunsCompleted: 2,
		RunsFailed:    2,
		FailRate:      0.5,
		NewCandidates: 3,
		LookbackHours: 24,
	}

	alerts := NewAlerter(testMonitoringConfig).Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertRunFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "50.0%")
}

func TestAlerter_Evaluate_FailureRateNeedsSample(t *testing.T) {
	snap := &MetricsSnapshot{RunsFailed: 2, FailRate: 1}
	assert.Empty(t, NewAlerter(testMonitoringConfig).Evaluate(snap))
}

func TestAlerter_Evaluate_StaleRuns(t *testing.T) {
	snap := &MetricsSnapshot{StaleRuns: []string{"r1", "r2"}}

	alerts := NewAlerter(testMonitoringConfig).Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertStaleRun, alerts[0].Type)
	assert.Equal(t, "2 run(s) still running after 120m: r1, r2", alerts[0].Message)
}

func TestAlerter_Evaluate_NoNewCandidates(t *testing.T) {
	snap := &MetricsSnapshot{RunsCompleted: 3, CandidatesFound: 40, ItemErrors: 2, LookbackHours: 24}

	alerts := NewAlerter(testMonitoringConfig).Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertNoNewCandidates, alerts[0].Type)
	assert.Equal(t, "low", alerts[0].Severity)
}

func TestAlerter_SendAlerts(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var p webhookPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, AlertStaleRun, p.Type)
		assert.True(t, strings.HasPrefix(p.Text, "[screenfree high] "))
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testMonitoringConfig
	cfg.WebhookURL = srv.URL
	sent := NewAlerter(cfg).SendAlerts(context.Background(), []Alert{
		{Type: AlertStaleRun, Severity: "high", Message: "a"},
		{Type: AlertStaleRun, Severity: "high", Message: "b"},
	})

	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_WebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testMonitoringConfig
	cfg.WebhookURL = srv.URL
	sent := NewAlerter(cfg).SendAlerts(context.Background(), []Alert{{Type: AlertStaleRun}})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_NoWebhook(t *testing.T) {
	sent := NewAlerter(testMonitoringConfig).SendAlerts(context.Background(), []Alert{{Type: AlertStaleRun}})
	assert.Equal(t, 0, sent)
}
