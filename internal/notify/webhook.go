package notify

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// WebhookNotifier POSTs events to an external endpoint. Delivery runs in a
// background goroutine with its own timeout so the pipeline never waits on
// the consumer.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhookNotifier creates a webhook-backed notifier.
func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Emit delivers the event asynchronously. Failures are logged and dropped.
func (n *WebhookNotifier) Emit(_ context.Context, event Event) {
	go n.deliver(event)
}

func (n *WebhookNotifier) deliver(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("webhook-encode-failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		n.logger.Error("webhook-request-failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		EventsDroppedTotal.Inc()
		n.logger.Warn("webhook-delivery-failed",
			zap.String("order_id", event.OrderID),
			zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		EventsDroppedTotal.Inc()
		n.logger.Warn("webhook-rejected",
			zap.String("order_id", event.OrderID),
			zap.Int("status", resp.StatusCode))
		return
	}

	EventsEmittedTotal.WithLabelValues("webhook").Inc()
}
