package notify

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/randalmurphal/conductor/event"
	conhttp "github.com/randalmurphal/conductor/http"
)

// =============================================================================
// SlackNotifier
// =============================================================================

// SlackNotifier sends notifications to a Slack incoming webhook.
type SlackNotifier struct {
	WebhookURL string
	Channel    string
	Username   string
	Client     *conhttp.Client
}

// NewSlackNotifier creates a Slack webhook notifier.
func NewSlackNotifier(webhookURL string, opts ...SlackOption) *SlackNotifier {
	n := &SlackNotifier{
		WebhookURL: webhookURL,
		Username:   "conductor",
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.Client == nil {
		n.Client = conhttp.NewClient(conhttp.ClientConfig{
			BaseURL:     webhookURL,
			ServiceName: "slack",
			Client:      &http.Client{Timeout: 10 * time.Second},
		})
	}
	return n
}

// SlackOption configures SlackNotifier.
type SlackOption func(*SlackNotifier)

// WithSlackChannel sets the channel to post to.
func WithSlackChannel(channel string) SlackOption {
	return func(n *SlackNotifier) { n.Channel = channel }
}

// WithSlackUsername sets the bot username.
func WithSlackUsername(username string) SlackOption {
	return func(n *SlackNotifier) { n.Username = username }
}

// WithSlackClient overrides the HTTP client, for custom retry or timeout
// policies.
func WithSlackClient(client *conhttp.Client) SlackOption {
	return func(n *SlackNotifier) { n.Client = client }
}

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, ev event.Event) error {
	var ts int64
	if !ev.Time.IsZero() {
		ts = ev.Time.Unix()
	}

	payload := slackPayload{
		Username: n.Username,
		Channel:  n.Channel,
		Attachments: []slackAttachment{
			{
				Color:     colorForSeverity(SeverityFor(ev.Type)),
				Title:     fmt.Sprintf("%s %s", emojiForType(ev.Type), ev.Type),
				Text:      ev.Message,
				Footer:    fmt.Sprintf("Workflow: %s | Agent: %s", ev.WorkflowID, ev.Agent),
				Timestamp: ts,
				Fields:    fieldsFromData(ev.Data),
			},
		},
	}

	if err := n.Client.Post(ctx, "", payload, nil); err != nil {
		return fmt.Errorf("send slack message: %w", err)
	}
	return nil
}

func emojiForType(t event.Type) string {
	switch t {
	case event.TypeWorkflowCreated:
		return "\U0001F680"
	case event.TypeWorkflowCompleted:
		return "✅"
	case event.TypeWorkflowFailed:
		return "❌"
	case event.TypeWorkflowCancelled:
		return "\U0001F6D1"
	case event.TypePRCreated:
		return "\U0001F517"
	case event.TypeApprovalRequired:
		return "\U0001F440"
	case event.TypeBlocked:
		return "⚠️"
	case event.TypeBatchStarted:
		return "▶️"
	case event.TypeBatchComplete:
		return "✓"
	default:
		return "\U0001F4E2"
	}
}

func colorForSeverity(severity Severity) string {
	switch severity {
	case SeverityError:
		return "danger"
	case SeverityWarning:
		return "warning"
	default:
		return "good"
	}
}

func fieldsFromData(data map[string]any) []slackField {
	if len(data) == 0 {
		return nil
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]slackField, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, slackField{
			Title: k,
			Value: fmt.Sprintf("%v", data[k]),
			Short: true,
		})
	}
	return fields
}

// Slack webhook payload types
type slackPayload struct {
	Username    string            `json:"username,omitempty"`
	Channel     string            `json:"channel,omitempty"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color     string       `json:"color,omitempty"`
	Title     string       `json:"title"`
	Text      string       `json:"text"`
	Footer    string       `json:"footer,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
	Fields    []slackField `json:"fields,omitempty"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}
