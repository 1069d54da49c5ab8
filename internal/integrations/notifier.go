package integrations

import (
	"context"
	"log/slog"

	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
)

// LogNotifier delivers notifications to the structured log. It is the default
// channel until a mail or chat integration is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notifier")}
}

func (n *LogNotifier) Notify(ctx context.Context, msg domain.Notification) error {
	n.logger.InfoContext(ctx, "Notification",
		"template", msg.Template,
		"targets", msg.Targets,
		"instanceId", msg.InstanceID,
		"data", msg.Data)
	return nil
}
