// Package notify pushes workflow events to external channels.
//
// A Notifier delivers a single event:
//   - SlackNotifier: Slack incoming webhook with color and emoji per event
//   - WebhookNotifier: JSON POST to a generic endpoint, with retries
//   - LogNotifier: slog output at a level matching the event severity
//   - MultiNotifier: fan-out to several notifiers
//   - NopNotifier: discards everything
//
// A Bridge connects a notifier to the event bus. It subscribes to the live
// stream and forwards the decision points (approval required, blocked) and
// outcomes (completed, failed, cancelled, PR created); everything else
// stays in the event log.
//
//	sink := notify.NewMultiNotifier(
//	    notify.NewSlackNotifier(webhookURL, notify.WithSlackChannel("#builds")),
//	    notify.NewLogNotifier(nil),
//	)
//	bridge := notify.NewBridge(bus, sink)
//	if err := bridge.Start(); err != nil {
//	    return err
//	}
//	defer bridge.Close()
package notify
