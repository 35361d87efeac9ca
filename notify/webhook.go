package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultWebhookTimeout bounds a single webhook delivery.
	DefaultWebhookTimeout = 10 * time.Second

	// maxWebhookErrorBodySize limits how much of a failed response is kept.
	maxWebhookErrorBodySize = 4096
)

// WebhookNotifier POSTs each inquiry as JSON to a URL.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWebhookNotifier creates a webhook notifier. A zero timeout uses
// DefaultWebhookTimeout.
func NewWebhookNotifier(url string, timeout time.Duration, logger *slog.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookNotifier{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Notify implements Notifier.
func (w *WebhookNotifier) Notify(ctx context.Context, in Inquiry) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal inquiry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxWebhookErrorBodySize))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	w.logger.Debug("Inquiry delivered to webhook", "id", in.ID, "status", resp.StatusCode)
	return nil
}

// Close implements Notifier.
func (w *WebhookNotifier) Close() error {
	w.httpClient.CloseIdleConnections()
	return nil
}
