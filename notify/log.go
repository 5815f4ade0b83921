package notify

import (
	"context"
	"log/slog"

	"github.com/randalmurphal/conductor/event"
)

// =============================================================================
// LogNotifier
// =============================================================================

// LogNotifier writes notifications to a slog logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs to the given logger.
// If logger is nil, uses the default slog logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{Logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, ev event.Event) error {
	level := slog.LevelInfo
	switch SeverityFor(ev.Type) {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityError:
		level = slog.LevelError
	}

	n.Logger.Log(ctx, level, ev.Message,
		"type", ev.Type,
		"workflow_id", ev.WorkflowID,
		"agent", ev.Agent,
		"seq", ev.Seq,
		"data", ev.Data,
	)
	return nil
}
