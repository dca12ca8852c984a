package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/terrorobe/cubscrape-sub001/pkg/resolve"
)

const (
	colorRebuild = 0x2E8B57
	colorFailure = 0xCC3333
)

// Discord sends notifications via Discord webhook.
type Discord struct {
	client     *http.Client
	webhookURL string
}

// NewDiscord creates a new Discord notifier.
func NewDiscord(webhookURL string) *Discord {
	return &Discord{
		client:     &http.Client{Timeout: 10 * time.Second},
		webhookURL: webhookURL,
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Send(ctx context.Context, n *Notification) error {
	description := n.Body
	lines := n.fetchLines(func(r resolve.FetchRequest) string {
		return fmt.Sprintf("• `%s` %s", r.Key, r.Reason)
	})
	if len(lines) > 0 {
		description += "\n\n" + joinLines(lines)
	}

	color := colorRebuild
	if n.Kind == KindFailure {
		color = colorFailure
	}
	embed := map[string]any{
		"title":       n.Title,
		"description": description,
		"color":       color,
		"timestamp":   n.BuiltAt.Format(time.RFC3339),
	}
	if n.SnapshotID != "" {
		embed["footer"] = map[string]any{"text": "snapshot " + n.SnapshotID}
	}

	payload := map[string]any{
		"embeds": []map[string]any{embed},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook status %d", resp.StatusCode)
	}

	return nil
}
