package incident

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/go-resty/resty/v2"
)

// Notification is one message bound for an incident channel.
type Notification struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

// PostResult reports the outcome of posting a notification.
type PostResult struct {
	MessageID string `json:"message_id"`
	Success   bool   `json:"success"`
}

// Notifier posts incident notifications to a chat channel.
type Notifier interface {
	Post(ctx context.Context, n Notification) (PostResult, error)
}

// SimulatedNotifier fabricates message ids locally, standing in for a real
// chat system during demos and tests.
type SimulatedNotifier struct{}

func (SimulatedNotifier) Post(_ context.Context, n Notification) (PostResult, error) {
	h := fnv.New32a()
	h.Write([]byte(n.Channel))
	h.Write([]byte(n.Text))
	return PostResult{
		MessageID: fmt.Sprintf("msg-%d", h.Sum32()%100000),
		Success:   true,
	}, nil
}

// WebhookNotifier posts notifications to an incoming-webhook URL.
type WebhookNotifier struct {
	client *resty.Client
	url    string
}

func NewWebhookNotifier(webhookURL string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		client: resty.New().
			SetTimeout(timeout).
			SetRetryCount(2).
			SetRetryWaitTime(200 * time.Millisecond),
		url: webhookURL,
	}
}

func (w *WebhookNotifier) Post(ctx context.Context, n Notification) (PostResult, error) {
	var posted struct {
		MessageID string `json:"message_id"`
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(n).
		SetResult(&posted).
		Post(w.url)
	if err != nil {
		return PostResult{}, fmt.Errorf("post notification: %w", err)
	}
	if resp.IsError() {
		return PostResult{Success: false}, fmt.Errorf("post notification: unexpected status %s", resp.Status())
	}

	id := posted.MessageID
	if id == "" {
		id = fmt.Sprintf("msg-%d", time.Now().UnixMilli())
	}
	return PostResult{MessageID: id, Success: true}, nil
}
