// Package notify sends push notifications about recycle events.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dreamsxin/memrecycle/types"
)

const userAgent = "memrecycle/1.0"

// Notifier receives recycle events
type Notifier interface {
	Notify(ctx context.Context, event *types.RecycleEvent) error
}

// New builds an ntfy notifier for topic. An empty topic returns a notifier that does nothing.
func New(topic string, timeout time.Duration) Notifier {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Noop{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Ntfy{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

// Noop discards every event
type Noop struct{}

// Notify does nothing
func (Noop) Notify(context.Context, *types.RecycleEvent) error { return nil }

// Ntfy posts events to an ntfy topic URL
type Ntfy struct {
	endpoint string
	client   *http.Client
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

// Notify publishes the event
func (n *Ntfy) Notify(ctx context.Context, event *types.RecycleEvent) error {
	if event == nil {
		return nil
	}
	return n.send(ctx, format(event))
}

func format(e *types.RecycleEvent) payload {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (pid %d) was using %d mb", e.ProcessName, e.PID, e.SampleMB)
	if e.Trigger == types.TriggerManual {
		b.WriteString(", recycled on request")
	} else {
		fmt.Fprintf(&b, ", over the %d mb limit", e.ThresholdMB)
	}

	if e.Failed() {
		fmt.Fprintf(&b, "\nError: %s", strings.TrimSpace(e.Err))
		return payload{
			title:    "memrecycle - Recycle Failed",
			message:  b.String(),
			tags:     []string{"memrecycle", "recycle", "error"},
			priority: "high",
		}
	}

	fmt.Fprintf(&b, "\nRestarted as pid %d", e.NewPID)
	if e.Forced {
		b.WriteString(" after a forced kill")
	}
	return payload{
		title:   "memrecycle - Process Recycled",
		message: b.String(),
		tags:    []string{"memrecycle", "recycle", e.Trigger.String()},
	}
}

func (n *Ntfy) send(ctx context.Context, data payload) error {
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
	if data.priority != "" {
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
