package domain

import (
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	ActionNotify      = "notify"
	ActionAssign      = "assign"
	ActionUpdateField = "updateField"
	ActionDocument    = "document"
	ActionWebhook     = "webhook"
	ActionAudit       = "audit"
)

// Action is a side effect run on state entry, state exit or transition.
// The set of implementations is closed.
type Action interface {
	Kind() string
	// Local reports whether the action only mutates the instance record.
	Local() bool
	validate() []string
}

// NotifyAction sends a templated notification to users, roles or committees.
type NotifyAction struct {
	Targets  []string `json:"targets"`
	Template string   `json:"template"`
}

func (NotifyAction) Kind() string { return ActionNotify }
func (NotifyAction) Local() bool  { return false }
func (a NotifyAction) validate() []string {
	var problems []string
	if len(a.Targets) == 0 {
		problems = append(problems, "notify action requires targets")
	}
	if a.Template == "" {
		problems = append(problems, "notify action requires a template")
	}
	return problems
}

// AssignAction sets the assignee and/or committee of the instance.
type AssignAction struct {
	User      string `json:"user,omitempty"`
	Committee string `json:"committee,omitempty"`
}

func (AssignAction) Kind() string { return ActionAssign }
func (AssignAction) Local() bool  { return true }
func (a AssignAction) validate() []string {
	if a.User == "" && a.Committee == "" {
		return []string{"assign action requires a user or committee"}
	}
	return nil
}

// UpdateFieldAction writes a fixed value into a field.
type UpdateFieldAction struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

func (UpdateFieldAction) Kind() string { return ActionUpdateField }
func (UpdateFieldAction) Local() bool  { return true }
func (a UpdateFieldAction) validate() []string {
	if a.Field == "" {
		return []string{"updateField action requires a field"}
	}
	return nil
}

// DocumentAction pushes a new state for the linked document to the document service.
type DocumentAction struct {
	State string `json:"state"`
}

func (DocumentAction) Kind() string { return ActionDocument }
func (DocumentAction) Local() bool  { return false }
func (a DocumentAction) validate() []string {
	if a.State == "" {
		return []string{"document action requires a state"}
	}
	return nil
}

// WebhookAction posts an instance snapshot to an external URL.
type WebhookAction struct {
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

func (WebhookAction) Kind() string { return ActionWebhook }
func (WebhookAction) Local() bool  { return false }
func (a WebhookAction) validate() []string {
	var problems []string
	if a.URL == "" {
		problems = append(problems, "webhook action requires a url")
	}
	switch a.Method {
	case "", http.MethodPost, http.MethodPut:
	default:
		problems = append(problems, fmt.Sprintf("webhook method %q not supported", a.Method))
	}
	return problems
}

// AuditAction records a named audit event.
type AuditAction struct {
	Event string `json:"event"`
}

func (AuditAction) Kind() string { return ActionAudit }
func (AuditAction) Local() bool  { return false }
func (a AuditAction) validate() []string {
	if a.Event == "" {
		return []string{"audit action requires an event"}
	}
	return nil
}

// ActionResult is the outcome of one executed action.
type ActionResult struct {
	Kind  string `json:"kind"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Actions is an ordered list of actions encoded with a "type" discriminator.
type Actions []Action

func (as Actions) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(as))
	for _, a := range as {
		raw, err := marshalTagged(a.Kind(), a)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

func (as *Actions) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	list := make(Actions, 0, len(raws))
	for i, raw := range raws {
		kind, err := peekType(raw)
		if err != nil {
			return fmt.Errorf("action[%d]: %w", i, err)
		}
		var a Action
		switch kind {
		case ActionNotify:
			var v NotifyAction
			err = decodeTagged(raw, &v)
			a = v
		case ActionAssign:
			var v AssignAction
			err = decodeTagged(raw, &v)
			a = v
		case ActionUpdateField:
			var v UpdateFieldAction
			err = decodeTagged(raw, &v)
			a = v
		case ActionDocument:
			var v DocumentAction
			err = decodeTagged(raw, &v)
			a = v
		case ActionWebhook:
			var v WebhookAction
			err = decodeTagged(raw, &v)
			a = v
		case ActionAudit:
			var v AuditAction
			err = decodeTagged(raw, &v)
			a = v
		default:
			return fmt.Errorf("action[%d]: unknown type %q", i, kind)
		}
		if err != nil {
			return fmt.Errorf("action[%d]: %w", i, err)
		}
		list = append(list, a)
	}
	*as = list
	return nil
}
