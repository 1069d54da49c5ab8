package engine

import (
	"context"
	"testing"
	"time"

	"github.com/RealZimboGuy/govflow/internal/config"
	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slaFlow() domain.WorkflowDefinition {
	def := approvalFlow()
	def.States[1].SLA = &domain.StateSLA{MaxDurationHours: 48, WarningAtHours: 24, EscalateTo: []string{"role:director"}}
	def.Automations = []domain.WorkflowAutomation{
		{ID: "escalate", Trigger: domain.TriggerSLABreach, State: "review", Actions: domain.Actions{domain.AssignAction{User: "dave"}}},
	}
	return def
}

func TestSLAMonitor_FiresOncePerStateVisit(t *testing.T) {
	h := newHarness(t)
	def := h.publish(t, slaFlow())
	inst := h.start(t, def, map[string]any{"title": "Slow review"})
	ctx := context.Background()
	_, err := h.engine.ExecuteTransition(ctx, TransitionRequest{User: "alice", InstanceID: inst.ID, TransitionID: "submit"})
	require.NoError(t, err)
	monitor := NewSLAMonitor(h.engine, h.clock)
	sent := len(h.notifier.sent)

	fired, err := monitor.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, fired)

	h.clock.Add(25 * time.Hour)
	fired, err = monitor.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	require.Len(t, h.notifier.sent, sent+1)
	warning := h.notifier.sent[sent]
	assert.Equal(t, domain.AuditSLAWarning, warning.Template)
	assert.Equal(t, []string{"committee:ethics"}, warning.Targets)

	fired, err = monitor.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, fired, "a recorded warning is not raised again")

	h.clock.Add(24 * time.Hour)
	fired, err = monitor.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	breach := h.notifier.sent[len(h.notifier.sent)-1]
	assert.Equal(t, domain.AuditSLABreach, breach.Template)
	assert.Equal(t, []string{"role:director"}, breach.Targets)

	stored, err := h.instances.FindByID(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "dave", stored.AssignedTo, "breach automation reassigns")

	// a new visit to the state re-arms the SLA
	_, err = h.engine.ExecuteTransition(ctx, TransitionRequest{User: "bob", InstanceID: inst.ID, TransitionID: "reject", Comment: "rework"})
	require.NoError(t, err)
	_, err = h.engine.ExecuteTransition(ctx, TransitionRequest{User: "alice", InstanceID: inst.ID, TransitionID: "submit"})
	require.NoError(t, err)
	h.clock.Add(25 * time.Hour)
	fired, err = monitor.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	assert.Len(t, h.audit.ofType(domain.AuditSLAWarning), 2)
}

func TestSLAMonitor_StartPollsUntilCancelled(t *testing.T) {
	h := newHarness(t)
	def := h.publish(t, slaFlow())
	inst := h.start(t, def, map[string]any{"title": "Polled"})
	_, err := h.engine.ExecuteTransition(context.Background(), TransitionRequest{User: "alice", InstanceID: inst.ID, TransitionID: "submit"})
	require.NoError(t, err)
	h.clock.Add(30 * time.Hour)

	monitor := NewSLAMonitor(h.engine, h.clock)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		monitor.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return h.clock.Pending() == 1 }, time.Second, time.Millisecond)
	h.clock.Add(time.Minute)
	require.Eventually(t, func() bool { return len(h.audit.ofType(domain.AuditSLAWarning)) == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}

func TestSLAMonitor_ChecksEveryBatch(t *testing.T) {
	h := newHarness(t)
	config.Set(config.ENGINE_SLA_BATCH_SIZE, 2)
	def := h.publish(t, slaFlow())
	ctx := context.Background()
	ids := map[string]bool{}
	for _, title := range []string{"First", "Second", "Third"} {
		inst := h.start(t, def, map[string]any{"title": title})
		_, err := h.engine.ExecuteTransition(ctx, TransitionRequest{User: "alice", InstanceID: inst.ID, TransitionID: "submit"})
		require.NoError(t, err)
		ids[inst.ID] = true
	}
	monitor := NewSLAMonitor(h.engine, h.clock)

	h.clock.Add(25 * time.Hour)
	fired, err := monitor.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, fired)
	warned := map[string]bool{}
	for _, ev := range h.audit.ofType(domain.AuditSLAWarning) {
		warned[ev.InstanceID] = true
	}
	assert.Equal(t, ids, warned)

	fired, err = monitor.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, fired)
}

func TestSLAMonitor_QuickRevisitIsArmedAgain(t *testing.T) {
	h := newHarness(t)
	flow := slaFlow()
	flow.States[1].SLA = &domain.StateSLA{MaxDurationHours: 48, WarningAtHours: 0.0001}
	def := h.publish(t, flow)
	inst := h.start(t, def, map[string]any{"title": "Bounced"})
	ctx := context.Background()
	monitor := NewSLAMonitor(h.engine, h.clock)

	_, err := h.engine.ExecuteTransition(ctx, TransitionRequest{User: "alice", InstanceID: inst.ID, TransitionID: "submit"})
	require.NoError(t, err)
	h.clock.Add(500 * time.Millisecond)
	fired, err := monitor.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	// back to draft and into review again within the same second
	_, err = h.engine.ExecuteTransition(ctx, TransitionRequest{User: "bob", InstanceID: inst.ID, TransitionID: "reject", Comment: "typo"})
	require.NoError(t, err)
	_, err = h.engine.ExecuteTransition(ctx, TransitionRequest{User: "alice", InstanceID: inst.ID, TransitionID: "submit"})
	require.NoError(t, err)
	h.clock.Add(400 * time.Millisecond)
	fired, err = monitor.CheckOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)
	assert.Len(t, h.audit.ofType(domain.AuditSLAWarning), 2)
}
