package model

import "time"

type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityWarning  AlertSeverity = "warning"
	SeverityInfo     AlertSeverity = "info"
)

// AlertmanagerPayload is the Prometheus Alertmanager webhook body.
type AlertmanagerPayload struct {
	Version           string            `json:"version"`
	GroupKey          string            `json:"groupKey"`
	Status            string            `json:"status"`
	Receiver          string            `json:"receiver"`
	GroupLabels       map[string]string `json:"groupLabels"`
	CommonLabels      map[string]string `json:"commonLabels"`
	CommonAnnotations map[string]string `json:"commonAnnotations"`
	ExternalURL       string            `json:"externalURL"`
	Alerts            []Alert           `json:"alerts"`
}

type Alert struct {
	Status       string            `json:"status"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     time.Time         `json:"startsAt"`
	EndsAt       time.Time         `json:"endsAt"`
	GeneratorURL string            `json:"generatorURL"`
	Fingerprint  string            `json:"fingerprint"`
}

// AlertRecord is the internal history entry kept per received alert.
type AlertRecord struct {
	ID         string            `json:"id"`
	ReceivedAt time.Time         `json:"received_at"`
	Status     string            `json:"status"`
	Severity   AlertSeverity     `json:"severity"`
	AlertName  string            `json:"alert_name"`
	Summary    string            `json:"summary"`
	Labels     map[string]string `json:"labels"`
}

type AlertStats struct {
	Total      int                   `json:"total"`
	Firing     int                   `json:"firing"`
	Resolved   int                   `json:"resolved"`
	BySeverity map[AlertSeverity]int `json:"by_severity"`
}
