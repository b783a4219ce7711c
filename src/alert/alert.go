// Package alert delivers one-shot "batch failed" notifications to an
// operator channel. Delivery is best-effort: errors are logged, never
// surfaced, never retried.
package alert

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Notifier is the one-way alert sink.
type Notifier interface {
	Notify(taskBatchName string)
}

// Config holds alert sink configuration.
type Config struct {
	WebhookURL string `yaml:"webhook_url"` // empty disables the webhook
	Timeout    int    `yaml:"timeout"`     // seconds, default 5
}

// payload is the webhook body.
type payload struct {
	Event     string `json:"event"`
	BatchName string `json:"batch_name"`
	Time      string `json:"time"`
}

// WebhookNotifier POSTs a JSON alert to a configured webhook.
type WebhookNotifier struct {
	url    string
	client *http.Client
	log    *slog.Logger
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(cfg *Config, log *slog.Logger) *WebhookNotifier {
	timeout := 5 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return &WebhookNotifier{
		url:    cfg.WebhookURL,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// Notify posts the alert. Failures are logged and dropped.
func (n *WebhookNotifier) Notify(taskBatchName string) {
	n.log.Warn("batch alert", "batch", taskBatchName)
	if n.url == "" {
		return
	}

	body, err := json.Marshal(payload{
		Event:     "batch_failed",
		BatchName: taskBatchName,
		Time:      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		n.log.Error("alert marshal failed", "batch", taskBatchName, "error", err)
		return
	}

	resp, err := n.client.Post(n.url, "application/json", bytes.NewReader(body))
	if err != nil {
		n.log.Error("alert delivery failed", "batch", taskBatchName, "error", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.log.Error("alert delivery rejected", "batch", taskBatchName, "status", resp.StatusCode)
	}
}

// LogNotifier only logs and makes no network call. The CLI does not use it;
// it wires WebhookNotifier, which also only logs when no URL is set.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify logs the alert.
func (n *LogNotifier) Notify(taskBatchName string) {
	n.log.Warn("batch alert", "batch", taskBatchName)
}
