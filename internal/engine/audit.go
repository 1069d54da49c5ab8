package engine

import (
	"context"
	"log/slog"

	"github.com/RealZimboGuy/govflow/pkg/govflow/core"
	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
	"github.com/google/uuid"
)

// recordEvent writes ev to the audit sink and reports whether it was new.
// Sink failures are logged and never fail the calling operation.
func recordEvent(ctx context.Context, sink AuditSink, clock core.Clock, ev domain.AuditEvent) bool {
	if sink == nil {
		return false
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Created.IsZero() {
		ev.Created = clock.Now().UTC()
	}
	recorded, err := sink.RecordEvent(ctx, ev)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to record audit event", "type", ev.Type, "key", ev.IdempotencyKey, "error", err)
		return false
	}
	return recorded
}
