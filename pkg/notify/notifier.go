// Package notify defines the notification transport boundary. The
// engine treats delivery as fire-and-forget-with-retry: failures are
// recorded per contact, never propagated as fatal.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vitalwatch-io/vw-alert-engine/pkg/models"
)

// Notifier delivers an emergency summary to a single contact
type Notifier interface {
	Notify(ctx context.Context, contact models.Contact, summary string, locationLink string) error
}

// Delivery retry bounds. Retries are capped so a dead contact endpoint
// cannot stall an escalation.
const (
	maxAttempts = 3
	baseBackoff = 500 * time.Millisecond
)

// WebhookNotifier posts the summary to each contact's webhook URL.
// Concrete channels (SMS, push, email) hang off the webhook receiver.
type WebhookNotifier struct {
	client *http.Client
}

// NewWebhookNotifier constructs a webhook notifier with a bounded
// per-request timeout.
func NewWebhookNotifier() *WebhookNotifier {
	return &WebhookNotifier{
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookPayload struct {
	Contact      string `json:"contact"`
	Role         string `json:"role"`
	Summary      string `json:"summary"`
	LocationLink string `json:"locationLink,omitempty"`
}

// Notify delivers the summary with bounded retry and backoff
func (n *WebhookNotifier) Notify(ctx context.Context, contact models.Contact, summary string, locationLink string) error {
	if contact.WebhookURL == "" {
		return &models.NotificationFailure{
			Contact: contact.Name,
			Err:     fmt.Errorf("no webhook URL configured"),
		}
	}

	body, err := json.Marshal(webhookPayload{
		Contact:      contact.Name,
		Role:         string(contact.Role),
		Summary:      summary,
		LocationLink: locationLink,
	})
	if err != nil {
		return &models.NotificationFailure{Contact: contact.Name, Err: err}
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return &models.NotificationFailure{Contact: contact.Name, Err: ctx.Err()}
			case <-time.After(baseBackoff * time.Duration(1<<uint(attempt-2))):
			}
		}

		lastErr = n.post(ctx, contact.WebhookURL, body)
		if lastErr == nil {
			return nil
		}
		logrus.Warnf("Notification attempt %d/%d for contact %s failed: %v",
			attempt, maxAttempts, contact.Name, lastErr)
	}

	return &models.NotificationFailure{Contact: contact.Name, Err: lastErr}
}

func (n *WebhookNotifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
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
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
