// Package monitoring evaluates batch and dispatch outcomes against
// thresholds and posts alerts to a webhook.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/pipeline"
	"github.com/sells-group/outreach-cli/internal/schedule"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertBatchFailureRate AlertType = "batch_failure_rate"
	AlertDispatchFailure  AlertType = "dispatch_failure"
	AlertScheduleBacklog  AlertType = "schedule_backlog"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates outcomes against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	now    func() time.Time
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Evaluate checks a batch result. A failure-rate alert needs at least
// MinLeads processed leads.
func (a *Alerter) Evaluate(res *pipeline.BatchResult) []Alert {
	if res == nil {
		return nil
	}
	processed := res.Processed()
	if processed == 0 || processed < a.cfg.MinLeads {
		return nil
	}
	rate := float64(len(res.Failed)) / float64(processed)
	if rate <= a.cfg.FailureRateThreshold {
		return nil
	}

	stages := make(map[string]int)
	for _, f := range res.Failed {
		stages[f.Stage]++
	}
	return []Alert{{
		Type:     AlertBatchFailureRate,
		Severity: "high",
		Message: fmt.Sprintf(
			"Batch failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d processed)",
			rate*100, a.cfg.FailureRateThreshold*100, len(res.Failed), processed,
		),
		Details: map[string]any{
			"failure_rate": rate,
			"threshold":    a.cfg.FailureRateThreshold,
			"failed":       len(res.Failed),
			"processed":    processed,
			"stages":       stages,
		},
		Timestamp: a.now().UTC(),
	}}
}

// EvaluateTick alerts when every send of a dispatch tick failed.
func (a *Alerter) EvaluateTick(res schedule.TickResult) []Alert {
	if len(res.Failed) == 0 || len(res.Sent) > 0 {
		return nil
	}
	emails := make([]string, 0, len(res.Failed))
	for _, d := range res.Failed {
		emails = append(emails, d.Email)
	}
	return []Alert{{
		Type:     AlertDispatchFailure,
		Severity: "high",
		Message:  fmt.Sprintf("All %d sends dated %s failed", len(res.Failed), res.Date),
		Details: map[string]any{
			"date":   res.Date,
			"emails": emails,
			"error":  res.Failed[0].Error,
		},
		Timestamp: a.now().UTC(),
	}}
}

// EvaluateSnapshot alerts on active entries whose sends are overdue.
func (a *Alerter) EvaluateSnapshot(snap *Snapshot) []Alert {
	if snap == nil || snap.Overdue == 0 {
		return nil
	}
	return []Alert{{
		Type:     AlertScheduleBacklog,
		Severity: "medium",
		Message:  fmt.Sprintf("%d active schedule(s) have unsent emails dated before %s", snap.Overdue, snap.Date),
		Details: map[string]any{
			"overdue": snap.Overdue,
			"active":  snap.Active,
		},
		Timestamp: a.now().UTC(),
	}}
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// BatchHook returns a pipeline OnBatch callback that evaluates and sends.
func (a *Alerter) BatchHook(ctx context.Context) func(*pipeline.BatchResult) {
	return func(res *pipeline.BatchResult) {
		if alerts := a.Evaluate(res); len(alerts) > 0 {
			a.SendAlerts(context.WithoutCancel(ctx), alerts)
		}
	}
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
