package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vocalsplit/internal/config"
)

const userAgent = "vocalsplit/0.1.0"

// Service defines the notification surface used by the daemon and CLI.
type Service interface {
	NotifyJobCompleted(ctx context.Context, filename, resultPath string, elapsed time.Duration) error
	NotifyJobFailed(ctx context.Context, filename, message string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, filename, resultPath string, elapsed time.Duration) error {
	filename = strings.TrimSpace(filename)
	message := fmt.Sprintf("🎤 Vocals ready: %s", filename)
	if elapsed = elapsed.Round(time.Second); elapsed > 0 {
		message = fmt.Sprintf("%s (%s)", message, elapsed)
	}
	if resultPath = strings.TrimSpace(resultPath); resultPath != "" {
		message = fmt.Sprintf("%s\nFile: %s", message, resultPath)
	}
	return n.send(ctx, payload{
		title:   "vocalsplit - Complete",
		message: message,
		tags:    []string{"vocalsplit", "job", "completed"},
	})
}

func (n *ntfyService) NotifyJobFailed(ctx context.Context, filename, message string) error {
	var builder strings.Builder
	builder.WriteString("❌ Failed")
	if filename = strings.TrimSpace(filename); filename != "" {
		builder.WriteString(": ")
		builder.WriteString(filename)
	}
	if message = strings.TrimSpace(message); message != "" {
		builder.WriteString("\n")
		builder.WriteString(message)
	}
	return n.send(ctx, payload{
		title:    "vocalsplit - Error",
		message:  builder.String(),
		tags:     []string{"vocalsplit", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "vocalsplit - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"vocalsplit", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
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

type noopService struct{}

func (noopService) NotifyJobCompleted(context.Context, string, string, time.Duration) error {
	return nil
}
func (noopService) NotifyJobFailed(context.Context, string, string) error { return nil }
func (noopService) TestNotification(context.Context) error                { return nil }
