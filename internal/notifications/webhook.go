package notifications

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// WebhookPayload is the body posted to generic webhook endpoints for
// rollout events.
type WebhookPayload struct {
	EventType string         `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Summary   string         `json:"summary"`
	Severity  string         `json:"severity"`
	Details   map[string]any `json:"details,omitempty"`
}

// WebhookSender posts rollout events to generic webhooks with HMAC signing
// and exponential-backoff retry. Auto-rollback notifications must not be
// lost to a transient receiver hiccup.
type WebhookSender struct {
	client      *http.Client
	logger      zerolog.Logger
	maxAttempts int
	validateURL func(string) error
}

// NewWebhookSender creates a webhook sender with SSRF-safe dialing.
func NewWebhookSender(logger zerolog.Logger) *WebhookSender {
	return &WebhookSender{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: ValidatingDialer(),
			},
		},
		logger:      logger.With().Str("component", "webhook_sender").Logger(),
		maxAttempts: 3,
		validateURL: func(u string) error {
			return ValidateWebhookURL(u, false)
		},
	}
}

// Send delivers the payload, retrying transient failures. When secret is
// non-empty the body is signed with HMAC-SHA256 so receivers can verify
// the event came from the rollout server.
func (w *WebhookSender) Send(ctx context.Context, url string, payload WebhookPayload, secret string) error {
	if err := w.validateURL(url); err != nil {
		return fmt.Errorf("webhook URL blocked: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	backoff := time.Second
	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			w.logger.Debug().Int("attempt", attempt).Str("event", payload.EventType).Msg("retrying webhook")
		}

		if lastErr = w.post(ctx, url, body, secret); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("webhook failed after %d attempts: %w", w.maxAttempts, lastErr)
}

func (w *WebhookSender) post(ctx context.Context, url string, body []byte, secret string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-ContribInfo-Signature", signPayload(body, secret))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	w.logger.Info().Int("status", resp.StatusCode).Msg("webhook notification sent")
	return nil
}

func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
