package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/RealZimboGuy/govflow/internal/config"
	"github.com/RealZimboGuy/govflow/pkg/govflow/core"
	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
)

// SLAMonitor polls active instances and raises SLA warnings and breaches once per state visit.
type SLAMonitor struct {
	engine   *Engine
	clock    core.Clock
	interval time.Duration
	batch    int
}

func NewSLAMonitor(engine *Engine, clock core.Clock) *SLAMonitor {
	batch := config.GetSystemSettingInteger(config.ENGINE_SLA_BATCH_SIZE)
	if batch <= 0 {
		batch = 500
	}
	return &SLAMonitor{
		engine:   engine,
		clock:    clock,
		interval: config.GetSystemSettingDuration(config.ENGINE_SLA_CHECK_INTERVAL, time.Minute),
		batch:    batch,
	}
}

// Start blocks, checking every interval until ctx is cancelled.
func (m *SLAMonitor) Start(ctx context.Context) {
	slog.InfoContext(ctx, "SLA monitor started", "interval", m.interval, "batch", m.batch)
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "SLA monitor stopping due to context cancel")
			return
		case <-m.clock.After(m.interval):
			if _, err := m.CheckOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "SLA check failed", "error", err)
			}
		}
	}
}

// CheckOnce pages through every active instance, batch instances at a time,
// and returns how many SLA events fired.
func (m *SLAMonitor) CheckOnce(ctx context.Context) (int, error) {
	fired := 0
	filter := domain.InstanceFilter{Status: domain.StatusActive, Limit: m.batch}
	for {
		page, err := m.engine.instances.Search(ctx, filter)
		if err != nil {
			return fired, err
		}
		for i := range page {
			fired += m.check(ctx, &page[i])
		}
		if len(page) < m.batch {
			return fired, nil
		}
		if err := ctx.Err(); err != nil {
			return fired, err
		}
		filter.After = domain.CursorOf(&page[len(page)-1])
	}
}

// check raises the thresholds inst has crossed in its current state.
func (m *SLAMonitor) check(ctx context.Context, inst *domain.WorkflowInstance) int {
	def, err := m.engine.definitionOf(ctx, "CheckSLA", inst)
	if err != nil {
		slog.ErrorContext(ctx, "Cannot resolve definition for SLA check", "instance", inst.ID, "error", err)
		return 0
	}
	state, ok := def.State(inst.CurrentState)
	if !ok || state.SLA == nil {
		return 0
	}
	sla := state.SLA
	hours := core.HoursSince(m.clock, inst.StateEnteredAt)

	fired := 0
	if sla.WarningAtHours > 0 && hours >= sla.WarningAtHours {
		if m.fire(ctx, inst, state, domain.AuditSLAWarning, domain.TriggerSLAWarning, []string{"assignee"}, hours) {
			fired++
		}
	}
	if hours >= sla.MaxDurationHours {
		targets := sla.EscalateTo
		if len(targets) == 0 {
			targets = []string{"assignee"}
		}
		if m.fire(ctx, inst, state, domain.AuditSLABreach, domain.TriggerSLABreach, targets, hours) {
			fired++
		}
	}
	return fired
}

// fire records the SLA event and, only when it is new, notifies and runs automations.
func (m *SLAMonitor) fire(ctx context.Context, inst *domain.WorkflowInstance, state *domain.WorkflowState,
	event string, trigger domain.AutomationTrigger, targets []string, hours float64) bool {

	key := fmt.Sprintf("%s:%s:%s:%d", event, inst.ID, state.ID, inst.StateVisit)
	recorded := recordEvent(ctx, m.engine.audit, m.clock, domain.AuditEvent{
		Type:           event,
		Actor:          SystemActor,
		InstanceID:     inst.ID,
		DefinitionID:   inst.DefinitionID,
		IdempotencyKey: key,
		Payload:        map[string]any{"state": state.ID, "hoursInState": hours},
	})
	if !recorded {
		return false
	}
	slog.WarnContext(ctx, "SLA threshold reached", "event", event, "instance", inst.ID, "state", state.ID, "hours", hours)

	_, err := m.engine.applySystemChange(ctx, inst.ID, state.ID, func(c *change) {
		c.notify(targets, event)
		c.applyAutomations(trigger, state.ID)
	})
	if err != nil {
		slog.ErrorContext(ctx, "SLA automations failed", "event", event, "instance", inst.ID, "error", err)
	}
	return true
}
