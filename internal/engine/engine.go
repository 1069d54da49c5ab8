package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/RealZimboGuy/govflow/internal/config"
	"github.com/RealZimboGuy/govflow/pkg/govflow/core"
	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
	"github.com/google/uuid"
)

// SystemActor is recorded for changes the engine makes on its own, such as SLA automations.
const SystemActor = "system"

type StartRequest struct {
	User         string
	DefinitionID string
	Fields       map[string]any
	DocumentRef  *domain.DocumentRef
	Committee    string
}

type TransitionRequest struct {
	User         string
	InstanceID   string
	TransitionID string
	Comment      string
	Attachments  []domain.Attachment
}

type FieldUpdateRequest struct {
	User       string
	InstanceID string
	Values     map[string]any
}

// ExecutionResult is the instance after a change plus the outcome of every action it ran.
type ExecutionResult struct {
	Instance *domain.WorkflowInstance `json:"instance"`
	Actions  []domain.ActionResult    `json:"actions,omitempty"`
}

// Engine owns the lifecycle of workflow instances.
type Engine struct {
	definitions *DefinitionStore
	instances   InstanceRepo
	votes       VoteRepo
	audit       AuditSink
	access      AccessControl
	members     MembershipDirectory
	actions     *ActionRunner
	clock       core.Clock
	retries     int
}

func NewEngine(definitions *DefinitionStore, instances InstanceRepo, votes VoteRepo, audit AuditSink,
	access AccessControl, members MembershipDirectory, actions *ActionRunner, clock core.Clock) *Engine {

	retries := config.GetSystemSettingInteger(config.ENGINE_CONFLICT_RETRIES)
	if retries < 1 {
		retries = 1
	}
	return &Engine{
		definitions: definitions,
		instances:   instances,
		votes:       votes,
		audit:       audit,
		access:      access,
		members:     members,
		actions:     actions,
		clock:       clock,
		retries:     retries,
	}
}

// StartWorkflow creates an instance of an active definition in its initial state.
func (e *Engine) StartWorkflow(ctx context.Context, req StartRequest) (*ExecutionResult, error) {
	const op = "StartWorkflow"
	def, err := e.definitions.Get(ctx, req.DefinitionID)
	if err != nil {
		return nil, err
	}
	if !def.IsActive {
		return nil, domain.NewError(domain.ErrNotFound, op, "definition %s is not active", def.ID)
	}
	initial, ok := def.InitialState()
	if !ok {
		return nil, domain.NewError(domain.ErrInvariantViolation, op, "definition %s has no initial state", def.ID)
	}

	perms, err := e.access.GetUserPermissions(ctx, req.User)
	if err != nil {
		return nil, err
	}
	if !perms.AccessLevel.AtLeast(def.Settings.StartAccessLevel) {
		return nil, domain.NewError(domain.ErrForbidden, op, "starting %s requires access level %s", def.Key, def.Settings.StartAccessLevel)
	}

	violations := checkDocument(def, req.DocumentRef)
	violations = append(violations, validateStartFields(def, initial.ID, req.Fields)...)
	if len(violations) > 0 {
		return nil, domain.NewValidationError(op, "invalid workflow start", violations)
	}

	now := e.clock.Now().UTC()
	fields := make(map[string]any, len(req.Fields))
	for k, v := range req.Fields {
		fields[k] = v
	}
	inst := &domain.WorkflowInstance{
		ID:                uuid.NewString(),
		DefinitionID:      def.ID,
		DefinitionVersion: def.Version,
		CurrentState:      initial.ID,
		StateEnteredAt:    now,
		StateVisit:        1,
		FieldValues:       fields,
		DocumentRef:       req.DocumentRef,
		Committee:         req.Committee,
		Status:            domain.StatusActive,
		CreatedBy:         req.User,
		Created:           now,
		Modified:          now,
	}

	c := newChange(def, inst)
	c.history = append(c.history, e.entry(inst, domain.HistoryStarted, req.User, func(h *domain.HistoryEntry) {
		h.ToState = initial.ID
	}))
	c.apply(initial.OnEnter)
	c.applyAutomations(domain.TriggerStateEntered, initial.ID)
	if initial.IsFinal {
		inst.Status = domain.StatusCompleted
	}

	if err := e.instances.Create(ctx, inst, c.history); err != nil {
		return nil, err
	}
	results := e.actions.Finish(ctx, req.User, c)
	recordEvent(ctx, e.audit, e.clock, domain.AuditEvent{
		Type:           domain.AuditInstanceStarted,
		Actor:          req.User,
		InstanceID:     inst.ID,
		DefinitionID:   def.ID,
		IdempotencyKey: domain.AuditInstanceStarted + ":" + inst.ID,
		Payload:        map[string]any{"state": inst.CurrentState, "definitionVersion": def.Version},
	})
	slog.InfoContext(ctx, "Workflow started", "instance", inst.ID, "definition", def.Key, "state", inst.CurrentState, "user", req.User)
	return &ExecutionResult{Instance: inst, Actions: results}, nil
}

// ExecuteTransition moves an instance along one transition. A vote-gated transition
// returns ErrVotingRequired until a vote for the current state visit has passed.
func (e *Engine) ExecuteTransition(ctx context.Context, req TransitionRequest) (*ExecutionResult, error) {
	return e.transition(ctx, req, false)
}

// transition runs the full guard chain; voteDecided skips the vote gate when the
// vote subsystem calls on behalf of the deciding voter.
func (e *Engine) transition(ctx context.Context, req TransitionRequest, voteDecided bool) (*ExecutionResult, error) {
	const op = "ExecuteTransition"
	var out *ExecutionResult
	err := e.withRetry(ctx, op, func() error {
		inst, err := e.instances.FindByID(ctx, req.InstanceID)
		if err != nil {
			return err
		}
		if inst.Status != domain.StatusActive {
			return domain.NewError(domain.ErrInvalidState, op, "instance %s is %s", inst.ID, inst.Status)
		}
		def, err := e.definitionOf(ctx, op, inst)
		if err != nil {
			return err
		}
		tr, ok := def.Transition(req.TransitionID, inst.CurrentState)
		if !ok {
			return domain.NewError(domain.ErrInvalidTransition, op, "transition %s is not available from state %s", req.TransitionID, inst.CurrentState)
		}

		perms, err := e.access.GetUserPermissions(ctx, req.User)
		if err != nil {
			return err
		}
		if err := authorize(op, perms, tr, inst); err != nil {
			return err
		}
		if err := checkConditions(op, e.clock, perms, tr, inst); err != nil {
			return err
		}
		if tr.RequiresComment && req.Comment == "" {
			return domain.NewError(domain.ErrCommentRequired, op, "transition %s requires a comment", tr.ID)
		}
		if tr.RequiresAttachments && len(req.Attachments) < tr.MinAttachments {
			return domain.NewError(domain.ErrAttachmentsRequired, op, "transition %s requires at least %d attachments", tr.ID, tr.MinAttachments)
		}
		if tr.RequiresVote && !voteDecided {
			if err := e.checkVotePassed(ctx, op, inst, tr); err != nil {
				return err
			}
		}

		target, ok := def.State(tr.To)
		if !ok {
			return e.markError(ctx, op, inst, fmt.Sprintf("transition %s targets unknown state %s", tr.ID, tr.To))
		}

		now := e.clock.Now().UTC()
		next := inst.Clone()
		c := newChange(def, next)
		if source, ok := def.State(inst.CurrentState); ok {
			c.apply(source.OnExit)
		}
		c.apply(tr.Actions)

		next.CurrentState = target.ID
		next.StateEnteredAt = now
		next.StateVisit = inst.StateVisit + 1
		c.history = append(c.history, e.entry(next, domain.HistoryTransition, req.User, func(h *domain.HistoryEntry) {
			h.FromState = inst.CurrentState
			h.ToState = target.ID
			h.TransitionID = tr.ID
			h.Comment = req.Comment
		}))

		c.apply(target.OnEnter)
		c.applyAutomations(domain.TriggerStateEntered, target.ID)
		if target.IsFinal {
			next.Status = domain.StatusCompleted
		}
		if def.Settings.NotifyOnTransition {
			c.notify([]string{"assignee", "creator"}, "transition")
		}
		if target.IsFinal && def.Settings.NotifyOnComplete {
			c.notify([]string{"creator"}, "completed")
		}

		if err := e.instances.Update(ctx, next, inst.Version, c.history); err != nil {
			return err
		}

		results := e.actions.Finish(ctx, req.User, c)
		recordEvent(ctx, e.audit, e.clock, domain.AuditEvent{
			Type:           domain.AuditInstanceTransitioned,
			Actor:          req.User,
			InstanceID:     next.ID,
			DefinitionID:   def.ID,
			IdempotencyKey: fmt.Sprintf("%s:%s:%d", domain.AuditInstanceTransitioned, next.ID, next.Version),
			Payload:        map[string]any{"transition": tr.ID, "from": inst.CurrentState, "to": target.ID, "status": next.Status},
		})
		slog.InfoContext(ctx, "Workflow transitioned", "instance", next.ID, "transition", tr.ID,
			"from", inst.CurrentState, "to", target.ID, "user", req.User)
		out = &ExecutionResult{Instance: next, Actions: results}
		return nil
	})
	return out, err
}

func (e *Engine) checkVotePassed(ctx context.Context, op string, inst *domain.WorkflowInstance, tr *domain.WorkflowTransition) error {
	box, err := e.votes.Find(ctx, inst.ID, tr.ID, inst.StateVisit)
	if err != nil {
		return err
	}
	switch {
	case box == nil || box.Status == domain.VotePending:
		return domain.NewError(domain.ErrVotingRequired, op, "transition %s requires a vote", tr.ID)
	case box.Status == domain.VoteFailed:
		return domain.NewError(domain.ErrInvalidState, op, "vote on transition %s failed", tr.ID)
	}
	return nil
}

// markError moves an instance whose definition is broken into the error status.
func (e *Engine) markError(ctx context.Context, op string, inst *domain.WorkflowInstance, reason string) error {
	broken := inst.Clone()
	broken.Status = domain.StatusError
	if err := e.instances.Update(ctx, broken, inst.Version, nil); err != nil {
		return err
	}
	recordEvent(ctx, e.audit, e.clock, domain.AuditEvent{
		Type:           domain.AuditInstanceError,
		Actor:          SystemActor,
		InstanceID:     inst.ID,
		DefinitionID:   inst.DefinitionID,
		IdempotencyKey: fmt.Sprintf("%s:%s:%d", domain.AuditInstanceError, inst.ID, broken.Version),
		Payload:        map[string]any{"reason": reason, "state": inst.CurrentState},
	})
	slog.ErrorContext(ctx, "Workflow instance moved to error", "instance", inst.ID, "reason", reason)
	return domain.NewError(domain.ErrInvariantViolation, op, "%s", reason)
}

// UpdateFieldValues applies a partial update of field values in the current state.
// Every violation is reported at once and nothing is written when there is any.
func (e *Engine) UpdateFieldValues(ctx context.Context, req FieldUpdateRequest) (*ExecutionResult, error) {
	const op = "UpdateFieldValues"
	var out *ExecutionResult
	err := e.withRetry(ctx, op, func() error {
		inst, err := e.instances.FindByID(ctx, req.InstanceID)
		if err != nil {
			return err
		}
		if inst.Status != domain.StatusActive {
			return domain.NewError(domain.ErrInvalidState, op, "instance %s is %s", inst.ID, inst.Status)
		}
		if err := e.requireCapability(ctx, op, req.User, inst, "update"); err != nil {
			return err
		}
		def, err := e.definitionOf(ctx, op, inst)
		if err != nil {
			return err
		}
		if violations := validateFieldUpdate(def, inst.CurrentState, req.Values); len(violations) > 0 {
			return domain.NewValidationError(op, "invalid field values", violations)
		}

		next := inst.Clone()
		c := newChange(def, next)
		var changed []string
		for _, name := range sortedKeys(req.Values) {
			old := inst.FieldValues[name]
			v := req.Values[name]
			if fieldEqual(old, v) {
				continue
			}
			next.FieldValues[name] = v
			changed = append(changed, name)
			c.history = append(c.history, e.entry(next, domain.HistoryFieldChange, req.User, func(h *domain.HistoryEntry) {
				h.Field = name
				h.OldValue = old
				h.NewValue = v
			}))
		}
		if len(changed) == 0 {
			out = &ExecutionResult{Instance: inst}
			return nil
		}
		for _, name := range changed {
			c.applyAutomations(domain.TriggerFieldChanged, name)
		}

		if err := e.instances.Update(ctx, next, inst.Version, c.history); err != nil {
			return err
		}
		results := e.actions.Finish(ctx, req.User, c)

		payload := map[string]any{"fields": changed}
		if def.Settings.AuditFieldChanges {
			diff := map[string]any{}
			for _, name := range changed {
				diff[name] = map[string]any{"old": inst.FieldValues[name], "new": next.FieldValues[name]}
			}
			payload["changes"] = diff
		}
		recordEvent(ctx, e.audit, e.clock, domain.AuditEvent{
			Type:           domain.AuditInstanceFieldsUpdated,
			Actor:          req.User,
			InstanceID:     next.ID,
			DefinitionID:   def.ID,
			IdempotencyKey: fmt.Sprintf("%s:%s:%d", domain.AuditInstanceFieldsUpdated, next.ID, next.Version),
			Payload:        payload,
		})
		slog.InfoContext(ctx, "Workflow fields updated", "instance", next.ID, "fields", changed, "user", req.User)
		out = &ExecutionResult{Instance: next, Actions: results}
		return nil
	})
	return out, err
}

// CancelInstance stops an active instance. Cancelling a terminal instance returns it unchanged.
func (e *Engine) CancelInstance(ctx context.Context, user, instanceID, reason string) (*domain.WorkflowInstance, error) {
	const op = "CancelInstance"
	var out *domain.WorkflowInstance
	err := e.withRetry(ctx, op, func() error {
		inst, err := e.instances.FindByID(ctx, instanceID)
		if err != nil {
			return err
		}
		if inst.Status.Terminal() {
			out = inst
			return nil
		}
		if err := e.requireCapability(ctx, op, user, inst, "cancel"); err != nil {
			return err
		}

		next := inst.Clone()
		next.Status = domain.StatusCancelled
		history := []domain.HistoryEntry{e.entry(next, domain.HistoryCancelled, user, func(h *domain.HistoryEntry) {
			h.FromState = inst.CurrentState
			h.Comment = reason
		})}
		if err := e.instances.Update(ctx, next, inst.Version, history); err != nil {
			return err
		}
		recordEvent(ctx, e.audit, e.clock, domain.AuditEvent{
			Type:           domain.AuditInstanceCancelled,
			Actor:          user,
			InstanceID:     next.ID,
			DefinitionID:   next.DefinitionID,
			IdempotencyKey: domain.AuditInstanceCancelled + ":" + next.ID,
			Payload:        map[string]any{"reason": reason, "state": next.CurrentState},
		})
		slog.InfoContext(ctx, "Workflow cancelled", "instance", next.ID, "user", user)
		out = next
		return nil
	})
	return out, err
}

// applySystemChange runs engine initiated actions against an instance that is still
// active in state. Local actions are persisted before the external ones dispatch.
func (e *Engine) applySystemChange(ctx context.Context, instanceID, state string, build func(c *change)) ([]domain.ActionResult, error) {
	const op = "ApplySystemChange"
	var results []domain.ActionResult
	err := e.withRetry(ctx, op, func() error {
		inst, err := e.instances.FindByID(ctx, instanceID)
		if err != nil {
			return err
		}
		if inst.Status != domain.StatusActive || inst.CurrentState != state {
			return nil
		}
		def, err := e.definitionOf(ctx, op, inst)
		if err != nil {
			return err
		}
		next := inst.Clone()
		c := newChange(def, next)
		build(c)
		if len(c.results) > 0 {
			if err := e.instances.Update(ctx, next, inst.Version, nil); err != nil {
				return err
			}
		}
		results = e.actions.Finish(ctx, SystemActor, c)
		return nil
	})
	return results, err
}

// GetInstance returns the instance with its full history.
func (e *Engine) GetInstance(ctx context.Context, user, instanceID string) (*domain.WorkflowInstance, error) {
	const op = "GetInstance"
	inst, err := e.instances.FindByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if err := e.requireView(ctx, op, user, inst); err != nil {
		return nil, err
	}
	history, err := e.instances.FindHistory(ctx, inst.ID)
	if err != nil {
		return nil, err
	}
	inst.History = history
	return inst, nil
}

// ListInstances returns the instances matching filter that user may view. Hidden
// instances are dropped after paging, so a page can hold fewer than filter.Limit.
func (e *Engine) ListInstances(ctx context.Context, user string, filter domain.InstanceFilter) ([]domain.WorkflowInstance, error) {
	const op = "ListInstances"
	list, err := e.instances.Search(ctx, filter)
	if err != nil {
		return nil, err
	}
	viewable := map[string]bool{}
	visible := make([]domain.WorkflowInstance, 0, len(list))
	for i := range list {
		inst := &list[i]
		ok, seen := viewable[inst.DefinitionID]
		if !seen {
			err := e.requireView(ctx, op, user, inst)
			if err != nil && !errors.Is(err, domain.Forbidden) {
				return nil, err
			}
			ok = err == nil
			viewable[inst.DefinitionID] = ok
		}
		if ok {
			visible = append(visible, *inst)
		}
	}
	return visible, nil
}

func (e *Engine) GetHistory(ctx context.Context, user, instanceID string) ([]domain.HistoryEntry, error) {
	inst, err := e.GetInstance(ctx, user, instanceID)
	if err != nil {
		return nil, err
	}
	return inst.History, nil
}

func (e *Engine) requireView(ctx context.Context, op, user string, inst *domain.WorkflowInstance) error {
	def, err := e.definitionOf(ctx, op, inst)
	if err != nil {
		return err
	}
	if def.Settings.ViewAccessLevel == "" {
		return nil
	}
	perms, err := e.access.GetUserPermissions(ctx, user)
	if err != nil {
		return err
	}
	if !perms.AccessLevel.AtLeast(def.Settings.ViewAccessLevel) {
		return domain.NewError(domain.ErrForbidden, op, "viewing %s requires access level %s", def.Key, def.Settings.ViewAccessLevel)
	}
	return nil
}

func (e *Engine) requireCapability(ctx context.Context, op, user string, inst *domain.WorkflowInstance, action string) error {
	ok, err := e.access.CanAccessResource(ctx, user, "instance:"+inst.ID, action)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NewError(domain.ErrForbidden, op, "user %s may not %s instance %s", user, action, inst.ID)
	}
	return nil
}

// definitionOf resolves the definition version an instance runs on. A missing
// definition for an existing instance is an invariant violation.
func (e *Engine) definitionOf(ctx context.Context, op string, inst *domain.WorkflowInstance) (*domain.WorkflowDefinition, error) {
	def, err := e.definitions.Get(ctx, inst.DefinitionID)
	if errors.Is(err, domain.NotFound) {
		return nil, domain.Wrap(err, domain.ErrInvariantViolation, op, "definition of instance "+inst.ID+" is missing")
	}
	return def, err
}

// withRetry repeats a read-modify-write cycle while it loses optimistic concurrency races.
func (e *Engine) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= e.retries; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, domain.VersionConflict) {
			return err
		}
		slog.DebugContext(ctx, "Version conflict, retrying", "op", op, "attempt", attempt)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

func (e *Engine) entry(inst *domain.WorkflowInstance, kind domain.HistoryType, actor string, fill func(*domain.HistoryEntry)) domain.HistoryEntry {
	h := domain.HistoryEntry{
		InstanceID: inst.ID,
		Type:       kind,
		Actor:      actor,
		Timestamp:  e.clock.Now().UTC(),
	}
	if fill != nil {
		fill(&h)
	}
	return h
}

func checkDocument(def *domain.WorkflowDefinition, ref *domain.DocumentRef) []domain.Violation {
	if ref == nil {
		if def.Settings.RequireDocument {
			return []domain.Violation{{Field: "documentRef", Message: "a document is required"}}
		}
		return nil
	}
	if ref.ID == "" {
		return []domain.Violation{{Field: "documentRef.id", Message: "is required"}}
	}
	if allowed := def.Settings.AllowedDocumentTypes; len(allowed) > 0 && !contains(allowed, ref.Type) {
		return []domain.Violation{{Field: "documentRef.type", Message: fmt.Sprintf("document type %q is not allowed", ref.Type)}}
	}
	return nil
}

func fieldEqual(a, b any) bool {
	if domain.IsEmptyValue(a) && domain.IsEmptyValue(b) {
		return true
	}
	return reflect.DeepEqual(a, b)
}
