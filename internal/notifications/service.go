package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"feedrelay/internal/config"
)

const userAgent = "feedrelay/0.1"

// Event identifies an alert kind.
type Event string

const (
	EventDeliveryCompleted Event = "delivery_completed"
	EventDeliveryFailed    Event = "delivery_failed"
	EventActionCompleted   Event = "action_completed"
	EventActionFailed      Event = "action_failed"
	EventError             Event = "error"
	EventTest              Event = "test"
)

// Payload carries the values an event message is rendered from.
type Payload map[string]string

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op one when no topic is
// configured.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	endpoint := topic
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		endpoint = strings.TrimRight(cfg.Notifications.NtfyServer, "/") + "/" + topic
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:   endpoint,
		client:     &http.Client{Timeout: timeout},
		deliveries: cfg.Notifications.Deliveries,
		actions:    cfg.Notifications.Actions,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	deliveries bool
	actions    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.render(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) render(event Event, p Payload) (message, bool) {
	title := strings.TrimSpace(p["title"])
	if title == "" {
		title = "untitled item"
	}
	switch event {
	case EventDeliveryCompleted:
		if !n.deliveries {
			return message{}, false
		}
		body := "✅ Delivered: " + title
		if summary := strings.TrimSpace(p["summary"]); summary != "" {
			body += "\n" + summary
		}
		return message{title: "FeedRelay - Delivered", body: body, tags: []string{"feedrelay", "delivery", "completed"}}, true
	case EventDeliveryFailed:
		return message{
			title:    "FeedRelay - Delivery Failed",
			body:     fmt.Sprintf("❌ Delivery failed: %s: %s", title, valueOr(p["error"], "unknown error")),
			tags:     []string{"feedrelay", "delivery", "failed"},
			priority: "high",
		}, true
	case EventActionCompleted:
		if !n.actions {
			return message{}, false
		}
		return message{
			title: "FeedRelay - Action Complete",
			body:  fmt.Sprintf("%s finished for %s", valueOr(p["action"], "action"), title),
			tags:  []string{"feedrelay", "action", "completed"},
		}, true
	case EventActionFailed:
		if !n.actions {
			return message{}, false
		}
		return message{
			title: "FeedRelay - Action Failed",
			body:  fmt.Sprintf("⚠️ %s failed for %s: %s", valueOr(p["action"], "action"), title, valueOr(p["error"], "unknown error")),
			tags:  []string{"feedrelay", "action", "failed"},
		}, true
	case EventError:
		body := "❌ Error"
		if label := strings.TrimSpace(p["context"]); label != "" {
			body += " with " + label
		}
		body += ": " + valueOr(p["error"], "unknown")
		return message{title: "FeedRelay - Error", body: body, tags: []string{"feedrelay", "error", "alert"}, priority: "high"}, true
	case EventTest:
		return message{title: "FeedRelay - Test", body: "🧪 Notification system test", tags: []string{"feedrelay", "test"}, priority: "low"}, true
	}
	return message{}, false
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" {
		req.Header.Set("Priority", msg.priority)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func valueOr(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
