package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	settlement "retail-settlement/internal/settlement/domain"
)

// WebhookNotifier posts failed-run alerts to a chat webhook.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

// NewWebhookNotifier constructs a notifier.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// NotifyRunFailed sends the alert for a failed run.
func (n *WebhookNotifier) NotifyRunFailed(ctx context.Context, run settlement.SettlementRun) error {
	return n.Notify(ctx, AlertFromRun(run))
}

// Notify sends an alert to the webhook.
func (n *WebhookNotifier) Notify(ctx context.Context, msg AlertMessage) error {
	if n == nil || n.url == "" {
		return errors.New("webhook notifier: empty url")
	}
	body, err := json.Marshal(webhookPayload{
		MsgType: "text",
		Text:    webhookText{Content: formatAlertMessage(msg)},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook notifier: status %d", resp.StatusCode)
	}
	return nil
}

func formatAlertMessage(msg AlertMessage) string {
	var b strings.Builder
	b.WriteString("[Settlement Failed]\n")
	fmt.Fprintf(&b, "Metering point: %s\n", msg.MeteringPointID)
	if msg.GridArea != "" {
		fmt.Fprintf(&b, "Grid area: %s\n", msg.GridArea)
	}
	fmt.Fprintf(&b, "Period: %s .. %s\n", msg.PeriodStart, msg.PeriodEnd)
	if msg.RunID != "" {
		fmt.Fprintf(&b, "Run: %s (v%d)\n", msg.RunID, msg.Version)
	}
	if msg.ErrorDetail != "" {
		fmt.Fprintf(&b, "Error: %s\n", msg.ErrorDetail)
	}
	return strings.TrimSpace(b.String())
}
