package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/RealZimboGuy/govflow/pkg/govflow/core"
	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
	"github.com/google/uuid"
)

// ActionRunner executes transition, state and automation actions. Every action is
// isolated: a failure is logged, audited and reported but never stops the others.
type ActionRunner struct {
	notifier  Notifier
	documents DocumentService
	webhooks  WebhookClient
	audit     AuditSink
	clock     core.Clock
}

func NewActionRunner(notifier Notifier, documents DocumentService, webhooks WebhookClient, audit AuditSink, clock core.Clock) *ActionRunner {
	return &ActionRunner{notifier: notifier, documents: documents, webhooks: webhooks, audit: audit, clock: clock}
}

// change is what one read-modify-write attempt produces. Local actions have
// already been applied to next; external ones wait until the write succeeded.
type change struct {
	def      *domain.WorkflowDefinition
	next     *domain.WorkflowInstance
	history  []domain.HistoryEntry
	results  []domain.ActionResult
	failures []failedAction
	external []domain.Action
}

type failedAction struct {
	action domain.Action
	err    error
}

func newChange(def *domain.WorkflowDefinition, next *domain.WorkflowInstance) *change {
	return &change{def: def, next: next}
}

// apply runs local actions against the pending instance and queues the rest.
func (c *change) apply(actions domain.Actions) {
	for _, a := range actions {
		if a == nil {
			continue
		}
		if !a.Local() {
			c.external = append(c.external, a)
			continue
		}
		err := c.applyLocal(a)
		c.results = append(c.results, result(a, err))
		if err != nil {
			c.failures = append(c.failures, failedAction{action: a, err: err})
		}
	}
}

func (c *change) applyAutomations(trigger domain.AutomationTrigger, target string) {
	for _, auto := range c.def.AutomationsFor(trigger, target) {
		c.apply(auto.Actions)
	}
}

func (c *change) applyLocal(a domain.Action) error {
	switch act := a.(type) {
	case domain.AssignAction:
		if act.User != "" {
			c.next.AssignedTo = act.User
		}
		if act.Committee != "" {
			c.next.AssignedCommittee = act.Committee
		}
	case domain.UpdateFieldAction:
		if _, ok := c.def.Field(act.Field); !ok {
			return fmt.Errorf("unknown field %q", act.Field)
		}
		c.next.FieldValues[act.Field] = act.Value
	default:
		return fmt.Errorf("action %s is not local", a.Kind())
	}
	return nil
}

func (c *change) notify(targets []string, template string) {
	c.external = append(c.external, domain.NotifyAction{Targets: targets, Template: template})
}

// Finish dispatches the queued external actions for a persisted change and
// reports every failure. It returns the results of all actions of the change.
func (r *ActionRunner) Finish(ctx context.Context, actor string, c *change) []domain.ActionResult {
	results := c.results
	for _, f := range c.failures {
		r.reportFailure(ctx, actor, c.next, f.action, f.err)
	}
	for _, a := range c.external {
		err := r.dispatch(ctx, actor, c.def, c.next, a, len(results))
		results = append(results, result(a, err))
		if err != nil {
			r.reportFailure(ctx, actor, c.next, a, err)
		}
	}
	return results
}

func (r *ActionRunner) dispatch(ctx context.Context, actor string, def *domain.WorkflowDefinition, inst *domain.WorkflowInstance, a domain.Action, index int) error {
	switch act := a.(type) {
	case domain.NotifyAction:
		if r.notifier == nil {
			return errors.New("no notifier configured")
		}
		targets := resolveTargets(act.Targets, inst)
		if len(targets) == 0 {
			return errors.New("no notification targets resolved")
		}
		return r.notifier.Notify(ctx, domain.Notification{
			Targets:    targets,
			Template:   act.Template,
			InstanceID: inst.ID,
			Data:       snapshot(def, inst),
		})
	case domain.DocumentAction:
		if inst.DocumentRef == nil {
			return errors.New("instance has no document")
		}
		if r.documents == nil {
			return errors.New("no document service configured")
		}
		return r.documents.UpdateDocumentState(ctx, *inst.DocumentRef, act.State, actor)
	case domain.WebhookAction:
		if r.webhooks == nil {
			return errors.New("no webhook client configured")
		}
		return r.webhooks.Send(ctx, act, snapshot(def, inst))
	case domain.AuditAction:
		recordEvent(ctx, r.audit, r.clock, domain.AuditEvent{
			Type:           act.Event,
			Actor:          actor,
			InstanceID:     inst.ID,
			DefinitionID:   inst.DefinitionID,
			IdempotencyKey: fmt.Sprintf("%s:%s:%d:%d", act.Event, inst.ID, inst.Version, index),
			Payload:        map[string]any{"state": inst.CurrentState},
		})
		return nil
	}
	return fmt.Errorf("unsupported action %s", a.Kind())
}

func (r *ActionRunner) reportFailure(ctx context.Context, actor string, inst *domain.WorkflowInstance, a domain.Action, err error) {
	slog.WarnContext(ctx, "Workflow action failed", "instance", inst.ID, "action", a.Kind(), "error", err)
	recordEvent(ctx, r.audit, r.clock, domain.AuditEvent{
		Type:           domain.AuditActionFailed,
		Actor:          actor,
		InstanceID:     inst.ID,
		DefinitionID:   inst.DefinitionID,
		IdempotencyKey: domain.AuditActionFailed + ":" + uuid.NewString(),
		Payload:        map[string]any{"action": a.Kind(), "error": err.Error(), "state": inst.CurrentState},
	})
}

func result(a domain.Action, err error) domain.ActionResult {
	res := domain.ActionResult{Kind: a.Kind(), OK: err == nil}
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// resolveTargets expands the symbolic targets assignee, creator and committee.
// Other targets such as role:clerk or user:alice pass through unchanged.
func resolveTargets(targets []string, inst *domain.WorkflowInstance) []string {
	var out []string
	add := func(t string) {
		if t != "" && !contains(out, t) {
			out = append(out, t)
		}
	}
	for _, t := range targets {
		switch t {
		case "assignee":
			if inst.AssignedTo != "" {
				add("user:" + inst.AssignedTo)
			} else if c := instanceCommittee(inst); c != "" {
				add("committee:" + c)
			}
		case "creator":
			if inst.CreatedBy != "" {
				add("user:" + inst.CreatedBy)
			}
		case "committee":
			if c := instanceCommittee(inst); c != "" {
				add("committee:" + c)
			}
		default:
			add(t)
		}
	}
	return out
}

// snapshot is the instance view handed to notification templates and webhooks.
func snapshot(def *domain.WorkflowDefinition, inst *domain.WorkflowInstance) map[string]any {
	data := map[string]any{
		"instanceId":   inst.ID,
		"definitionId": inst.DefinitionID,
		"state":        inst.CurrentState,
		"status":       inst.Status,
		"fields":       inst.FieldValues,
		"assignedTo":   inst.AssignedTo,
		"version":      inst.Version,
	}
	if def != nil {
		data["definitionKey"] = def.Key
		data["definitionName"] = def.Name
		if s, ok := def.State(inst.CurrentState); ok {
			data["stateLabel"] = s.Label
		}
	}
	if inst.DocumentRef != nil {
		data["documentId"] = inst.DocumentRef.ID
	}
	return data
}
