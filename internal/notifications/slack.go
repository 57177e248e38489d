package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// NotificationMessage is a channel-agnostic rollout event notification.
type NotificationMessage struct {
	Title     string
	Body      string
	EventType string
	Severity  string
}

// SlackSender sends rollout notifications to a Slack incoming webhook.
type SlackSender struct {
	client *http.Client
	logger zerolog.Logger
}

// NewSlackSender creates a new Slack sender with SSRF-safe dialing.
func NewSlackSender(logger zerolog.Logger) *SlackSender {
	return &SlackSender{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: ValidatingDialer(),
			},
		},
		logger: logger.With().Str("component", "slack_sender").Logger(),
	}
}

type slackMessage struct {
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// severityColor maps an event severity to a Slack attachment color.
func severityColor(severity string) string {
	switch severity {
	case "critical", "error":
		return "#dc2626"
	case "warning":
		return "#f59e0b"
	default:
		return "#22c55e"
	}
}

// Send posts the message to the given Slack webhook URL.
func (s *SlackSender) Send(ctx context.Context, webhookURL string, msg NotificationMessage) error {
	payload := slackMessage{
		Attachments: []slackAttachment{
			{
				Color: severityColor(msg.Severity),
				Blocks: []slackBlock{
					{Type: "header", Text: &slackText{Type: "plain_text", Text: msg.Title}},
					{Type: "section", Text: &slackText{Type: "mrkdwn", Text: msg.Body}},
				},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("slack API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	s.logger.Debug().
		Str("event_type", msg.EventType).
		Msg("slack notification sent")

	return nil
}
