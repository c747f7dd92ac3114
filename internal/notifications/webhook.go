// Package notifications posts a message to a chat or generic webhook when an
// ingestion run finishes.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/JustinTDCT/CineHub/internal/ingest"
	"github.com/JustinTDCT/CineHub/internal/logger"
)

const (
	ChannelGeneric = "generic"
	ChannelDiscord = "discord"
	ChannelSlack   = "slack"
)

// WebhookSender implements ingest.ProgressSink. Only terminal states are sent.
type WebhookSender struct {
	url     string
	channel string
	client  *http.Client
	now     func() time.Time
}

func NewWebhookSender(url, channel string) (*WebhookSender, error) {
	switch channel {
	case "":
		channel = ChannelGeneric
	case ChannelGeneric, ChannelDiscord, ChannelSlack:
	default:
		return nil, fmt.Errorf("unknown webhook channel %q", channel)
	}
	return &WebhookSender{
		url:     url,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
	}, nil
}

func (w *WebhookSender) Report(ctx context.Context, p ingest.Progress) {
	if p.State == ingest.StateRunning {
		return
	}
	title, message := summarize(p)
	if err := w.Send(ctx, title, message); err != nil {
		logger.Warn("ingest webhook failed", "kind", p.Kind, "run_id", p.RunID, "error", err)
	}
}

func summarize(p ingest.Progress) (string, string) {
	title := fmt.Sprintf("CineHub %s ingestion %s", p.Kind, p.State)
	message := fmt.Sprintf("%d reconciled, %d skipped, %d failed over %d/%d pages",
		p.Reconciled, p.Skipped, p.Failed, p.Page, p.Pages)
	if p.Error != "" {
		message += ": " + p.Error
	}
	return title, message
}

func (w *WebhookSender) Send(ctx context.Context, title, message string) error {
	switch w.channel {
	case ChannelDiscord:
		return w.postJSON(ctx, map[string]interface{}{
			"embeds": []map[string]interface{}{{
				"title":       title,
				"description": message,
				"timestamp":   w.now().UTC().Format(time.RFC3339),
			}},
		})
	case ChannelSlack:
		return w.postJSON(ctx, map[string]interface{}{
			"blocks": []map[string]interface{}{
				{"type": "header", "text": map[string]string{"type": "plain_text", "text": title}},
				{"type": "section", "text": map[string]string{"type": "mrkdwn", "text": message}},
			},
		})
	default:
		return w.postJSON(ctx, map[string]interface{}{
			"title":     title,
			"message":   message,
			"source":    "cinehub",
			"timestamp": w.now().UTC().Format(time.RFC3339),
		})
	}
}

func (w *WebhookSender) postJSON(ctx context.Context, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
