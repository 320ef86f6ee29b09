package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Rilosupriyatno/microts/internal/model"
)

const (
	maxAlertHistory    = 100
	webhookSendTimeout = 10 * time.Second
)

// AlertService ingests Prometheus Alertmanager webhook payloads, keeps a
// bounded in-memory history, and optionally forwards notifications to an
// external webhook. Forwarding is throttled so an alert storm cannot flood
// the notification channel.
type AlertService struct {
	webhookURL string
	client     *http.Client
	throttle   *rate.Limiter

	mu      sync.Mutex
	history []model.AlertRecord
}

func NewAlertService(webhookURL string) *AlertService {
	return &AlertService{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 5 * time.Second},
		// At most one outbound notification per second, small burst.
		throttle: rate.NewLimiter(rate.Every(time.Second), 5),
		history:  make([]model.AlertRecord, 0, maxAlertHistory),
	}
}

// Process records every alert in the payload and notifies for each.
func (s *AlertService) Process(ctx context.Context, payload model.AlertmanagerPayload) []model.AlertRecord {
	records := make([]model.AlertRecord, 0, len(payload.Alerts))

	for _, alert := range payload.Alerts {
		record := model.AlertRecord{
			ID:         "alert_" + uuid.NewString(),
			ReceivedAt: time.Now().UTC(),
			Status:     alert.Status,
			Severity:   severityFromLabels(alert.Labels),
			AlertName:  alertName(alert.Labels),
			Summary:    alert.Annotations["summary"],
			Labels:     alert.Labels,
		}

		records = append(records, record)
		s.addToHistory(record)
		s.notify(record)
	}

	return records
}

func (s *AlertService) History(limit int) []model.AlertRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}

	// Most recent first.
	out := make([]model.AlertRecord, 0, limit)
	for i := len(s.history) - 1; i >= len(s.history)-limit; i-- {
		out = append(out, s.history[i])
	}
	return out
}

func (s *AlertService) Stats() model.AlertStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := model.AlertStats{
		Total: len(s.history),
		BySeverity: map[model.AlertSeverity]int{
			model.SeverityCritical: 0,
			model.SeverityWarning:  0,
			model.SeverityInfo:     0,
		},
	}

	for _, record := range s.history {
		if record.Status == "firing" {
			stats.Firing++
		} else {
			stats.Resolved++
		}
		stats.BySeverity[record.Severity]++
	}

	return stats
}

func (s *AlertService) addToHistory(record model.AlertRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.history) >= maxAlertHistory {
		s.history = s.history[1:]
	}
	s.history = append(s.history, record)
}

func (s *AlertService) notify(record model.AlertRecord) {
	logAttrs := []any{
		"alert_id", record.ID,
		"alert_name", record.AlertName,
		"status", record.Status,
		"severity", record.Severity,
		"summary", record.Summary,
	}

	switch record.Severity {
	case model.SeverityCritical:
		slog.Error("alert received", logAttrs...)
	case model.SeverityWarning:
		slog.Warn("alert received", logAttrs...)
	default:
		slog.Info("alert received", logAttrs...)
	}

	if s.webhookURL == "" {
		return
	}

	if !s.throttle.Allow() {
		slog.Warn("alert notification throttled", "alert_id", record.ID)
		return
	}

	go func() {
		// The inbound request finishes as soon as Process returns, so the
		// send runs on its own deadline, not the request context.
		sendCtx, cancel := context.WithTimeout(context.Background(), webhookSendTimeout)
		defer cancel()

		if err := s.sendWebhook(sendCtx, record); err != nil {
			slog.Error("failed to send alert webhook", "alert_id", record.ID, "error", err)
		}
	}()
}

func (s *AlertService) sendWebhook(ctx context.Context, record model.AlertRecord) error {
	message := map[string]any{
		"text": fmt.Sprintf("[%s] %s - %s", strings.ToUpper(string(record.Severity)),
			record.AlertName, strings.ToUpper(record.Status)),
		"summary": record.Summary,
	}

	body, err := json.Marshal(message)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func severityFromLabels(labels map[string]string) model.AlertSeverity {
	switch strings.ToLower(labels["severity"]) {
	case "critical":
		return model.SeverityCritical
	case "info":
		return model.SeverityInfo
	default:
		return model.SeverityWarning
	}
}

func alertName(labels map[string]string) string {
	if name := labels["alertname"]; name != "" {
		return name
	}
	return "Unknown"
}
