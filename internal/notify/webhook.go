// Package notify implements the external notification transport contract
// (spec §6): POST {ALERT_WEBHOOK_URL} with the alert payload. A non-2xx
// response is returned to the caller as an error. This package does not
// retry, and the AlertEvaluator logs a failed send without retrying it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/InjectiveLabs/suplog"
)

// Payload is the body POSTed to ALERT_WEBHOOK_URL.
type Payload struct {
	AlertID   string    `json:"alertId"`
	Severity  string    `json:"severity"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Protocol  string    `json:"protocol"`
	Chain     string    `json:"chain"`
	Timestamp time.Time `json:"timestamp"`
}

// Sender is the notification transport contract consumed by the alert
// evaluator.
type Sender interface {
	Send(ctx context.Context, channel string, payload Payload) error
}

// WebhookSender posts to a single configured URL regardless of channel;
// channel routing to email/telegram/slack/pagerduty transports is an
// external collaborator concern per spec §1.
type WebhookSender struct {
	url    string
	http   *http.Client
	logger log.Logger
}

func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{
		url:    url,
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: log.WithFields(log.Fields{"svc": "notify"}),
	}
}

func (w *WebhookSender) Send(ctx context.Context, channel string, payload Payload) error {
	if w.url == "" {
		w.logger.Debugln("ALERT_WEBHOOK_URL not configured, skipping notification")
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}
	return nil
}

// NoopSender discards notifications; used when ALERT_WEBHOOK_URL is unset.
type NoopSender struct{}

func (NoopSender) Send(ctx context.Context, channel string, payload Payload) error { return nil }
