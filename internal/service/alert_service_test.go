package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rilosupriyatno/microts/internal/model"
)

func firingAlert(name string, severity string) model.Alert {
	labels := map[string]string{"alertname": name}
	if severity != "" {
		labels["severity"] = severity
	}
	return model.Alert{
		Status:      "firing",
		Labels:      labels,
		Annotations: map[string]string{"summary": name + " summary"},
	}
}

func TestProcessRecordsAlerts(t *testing.T) {
	t.Parallel()

	svc := NewAlertService("")

	records := svc.Process(context.Background(), model.AlertmanagerPayload{
		Status: "firing",
		Alerts: []model.Alert{
			firingAlert("HighErrorRate", "critical"),
			firingAlert("DiskFilling", "info"),
		},
	})

	require.Len(t, records, 2)
	assert.Equal(t, "HighErrorRate", records[0].AlertName)
	assert.Equal(t, model.SeverityCritical, records[0].Severity)
	assert.Equal(t, model.SeverityInfo, records[1].Severity)
	assert.NotEmpty(t, records[0].ID)
	assert.NotEqual(t, records[0].ID, records[1].ID)
}

func TestSeverityDefaultsToWarning(t *testing.T) {
	t.Parallel()

	svc := NewAlertService("")

	records := svc.Process(context.Background(), model.AlertmanagerPayload{
		Alerts: []model.Alert{firingAlert("NoSeverity", "")},
	})

	require.Len(t, records, 1)
	assert.Equal(t, model.SeverityWarning, records[0].Severity)
}

func TestUnnamedAlert(t *testing.T) {
	t.Parallel()

	svc := NewAlertService("")

	records := svc.Process(context.Background(), model.AlertmanagerPayload{
		Alerts: []model.Alert{{Status: "firing", Labels: map[string]string{}}},
	})

	require.Len(t, records, 1)
	assert.Equal(t, "Unknown", records[0].AlertName)
}

func TestHistoryMostRecentFirstAndBounded(t *testing.T) {
	t.Parallel()

	svc := NewAlertService("")
	ctx := context.Background()

	for i := 0; i < maxAlertHistory+10; i++ {
		svc.Process(ctx, model.AlertmanagerPayload{
			Alerts: []model.Alert{firingAlert(fmt.Sprintf("Alert%d", i), "info")},
		})
	}

	history := svc.History(0)
	require.Len(t, history, maxAlertHistory)
	assert.Equal(t, fmt.Sprintf("Alert%d", maxAlertHistory+9), history[0].AlertName)

	limited := svc.History(5)
	require.Len(t, limited, 5)
	assert.Equal(t, history[0].AlertName, limited[0].AlertName)
}

func TestWebhookDeliveredAfterRequestContextEnds(t *testing.T) {
	t.Parallel()

	delivered := make(chan string, 1)
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Slow receiver: the inbound HTTP request that triggered the alert
		// is long gone by the time this responds.
		time.Sleep(100 * time.Millisecond)
		body, _ := io.ReadAll(r.Body)
		delivered <- string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer receiver.Close()

	svc := NewAlertService(receiver.URL)

	ctx, cancel := context.WithCancel(context.Background())
	svc.Process(ctx, model.AlertmanagerPayload{
		Status: "firing",
		Alerts: []model.Alert{firingAlert("CircuitOpen", "critical")},
	})
	cancel()

	select {
	case body := <-delivered:
		assert.Contains(t, body, "CircuitOpen")
		assert.Contains(t, body, "CRITICAL")
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was not delivered")
	}
}

func TestStats(t *testing.T) {
	t.Parallel()

	svc := NewAlertService("")
	ctx := context.Background()

	svc.Process(ctx, model.AlertmanagerPayload{
		Alerts: []model.Alert{
			firingAlert("A", "critical"),
			firingAlert("B", "warning"),
			{
				Status: "resolved",
				Labels: map[string]string{"alertname": "C", "severity": "critical"},
			},
		},
	})

	stats := svc.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Firing)
	assert.Equal(t, 1, stats.Resolved)
	assert.Equal(t, 2, stats.BySeverity[model.SeverityCritical])
	assert.Equal(t, 1, stats.BySeverity[model.SeverityWarning])
}
