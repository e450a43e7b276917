package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// WebhookNotifier POSTs events as JSON to a URL
type WebhookNotifier struct {
	url     string
	headers map[string]string
	client  *http.Client
	policy  *policy
}

// WebhookOption is a functional option for WebhookNotifier
type WebhookOption func(*WebhookNotifier)

// WithWebhookHeader adds a header to every delivery
func WithWebhookHeader(key, value string) WebhookOption {
	return func(w *WebhookNotifier) {
		w.headers[key] = value
	}
}

// WithWebhookNotifyOn sets which events are delivered
func WithWebhookNotifyOn(on NotifyOn) WebhookOption {
	return func(w *WebhookNotifier) {
		w.policy = newPolicy(on)
	}
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(url string, opts ...WebhookOption) *WebhookNotifier {
	w := &WebhookNotifier{
		url:     url,
		headers: make(map[string]string),
		client:  &http.Client{Timeout: 10 * time.Second},
		policy:  newPolicy(NotifyAlways),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name returns the name of the notifier
func (w *WebhookNotifier) Name() string {
	return "webhook"
}

type webhookPayload struct {
	SessionID string `json:"sessionId,omitempty"`
	*Event
}

func (w *WebhookNotifier) Notify(ctx context.Context, event *Event, sessionID string) error {
	if !w.policy.allow(event) {
		return nil
	}
	data, err := json.Marshal(webhookPayload{SessionID: sessionID, Event: event})
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}
	return postJSON(ctx, w.client, w.url, w.headers, data)
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to deliver notification")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return errors.Errorf("webhook returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
