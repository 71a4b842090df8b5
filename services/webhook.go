package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"meetinglight/models"

	"go.uber.org/zap"
)

const (
	webhookEventConnection = "connection"
	webhookEventState      = "state"
)

// WebhookNotifier posts connection and device state events as JSON
type WebhookNotifier struct {
	logger     *zap.Logger
	url        string
	host       string
	httpClient *http.Client
}

// WebhookPayload is the JSON body sent for every event. Connection fields
// are set for connection events, capability fields for state events.
type WebhookPayload struct {
	Event      string    `json:"event"`
	Host       string    `json:"host"`
	Connected  *bool     `json:"connected,omitempty"`
	Message    string    `json:"message,omitempty"`
	Capability string    `json:"capability,omitempty"`
	Active     *bool     `json:"active,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(logger *zap.Logger, url, host string) *WebhookNotifier {
	return &WebhookNotifier{
		logger: logger,
		url:    url,
		host:   host,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (h *WebhookNotifier) Name() string {
	return "webhook"
}

func (h *WebhookNotifier) NotifyConnection(ctx context.Context, event models.ConnectionStatusEvent) error {
	connected := event.Connected
	return h.post(ctx, WebhookPayload{
		Event:     webhookEventConnection,
		Host:      h.host,
		Connected: &connected,
		Message:   event.Message,
		Timestamp: event.Timestamp,
	})
}

func (h *WebhookNotifier) NotifyState(ctx context.Context, host string, event models.StateChangeEvent) error {
	active := event.Active
	return h.post(ctx, WebhookPayload{
		Event:      webhookEventState,
		Host:       host,
		Capability: string(event.Capability),
		Active:     &active,
		Timestamp:  event.Timestamp,
	})
}

// post sends one payload via HTTP POST
func (h *WebhookNotifier) post(ctx context.Context, payload WebhookPayload) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "HA-MeetingLight/1.0")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		h.logger.Debug("Webhook delivered",
			zap.String("event", payload.Event),
			zap.Int("status_code", resp.StatusCode),
		)
		return nil
	}

	h.logger.Error("Webhook returned error",
		zap.String("event", payload.Event),
		zap.Int("status_code", resp.StatusCode),
		zap.String("status", resp.Status),
	)
	return fmt.Errorf("webhook error: %s", resp.Status)
}
