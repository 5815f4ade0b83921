package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/randalmurphal/conductor/event"
	conhttp "github.com/randalmurphal/conductor/http"
)

// =============================================================================
// WebhookNotifier
// =============================================================================

// WebhookNotifier posts events as JSON to a generic HTTP endpoint. Transient
// failures (network errors, 429, 5xx) are retried by the underlying client.
type WebhookNotifier struct {
	URL     string
	Headers map[string]string
	Client  *conhttp.Client
}

// NewWebhookNotifier creates a webhook notifier. Headers are applied to
// every request, typically for authentication.
func NewWebhookNotifier(url string, headers map[string]string) *WebhookNotifier {
	return &WebhookNotifier{
		URL:     url,
		Headers: headers,
		Client: conhttp.NewClient(conhttp.ClientConfig{
			BaseURL:     url,
			ServiceName: "webhook",
			Client:      &http.Client{Timeout: 10 * time.Second},
			BeforeRequest: func(req *http.Request) {
				for k, v := range headers {
					req.Header.Set(k, v)
				}
			},
		}),
	}
}

// webhookEnvelope is the posted body: the event with its derived severity.
type webhookEnvelope struct {
	event.Event
	Severity Severity `json:"severity"`
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, ev event.Event) error {
	body := webhookEnvelope{Event: ev, Severity: SeverityFor(ev.Type)}
	if err := n.Client.Post(ctx, "", body, nil); err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	return nil
}
