package notify

import (
	"context"
	"log/slog"

	"github.com/randalmurphal/conductor/event"
)

// =============================================================================
// MultiNotifier
// =============================================================================

// MultiNotifier fans one event out to several notifiers.
type MultiNotifier struct {
	Notifiers []Notifier
	Logger    *slog.Logger
}

// NewMultiNotifier creates a notifier that fans out to multiple notifiers.
// A failing notifier is logged and does not stop delivery to the others.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{
		Notifiers: notifiers,
		Logger:    slog.Default(),
	}
}

// Notify implements Notifier. Every notifier is attempted; the last error
// is returned.
func (n *MultiNotifier) Notify(ctx context.Context, ev event.Event) error {
	var lastErr error
	for _, notifier := range n.Notifiers {
		if err := notifier.Notify(ctx, ev); err != nil {
			lastErr = err
			if n.Logger != nil {
				n.Logger.Warn("notifier failed",
					"error", err,
					"event_type", ev.Type,
				)
			}
		}
	}
	return lastErr
}

// =============================================================================
// NopNotifier
// =============================================================================

// NopNotifier discards all notifications.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(ctx context.Context, ev event.Event) error {
	return nil
}
