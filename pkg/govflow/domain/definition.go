package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type FieldType string

const (
	FieldText        FieldType = "text"
	FieldNumber      FieldType = "number"
	FieldDate        FieldType = "date"
	FieldBoolean     FieldType = "boolean"
	FieldSelect      FieldType = "select"
	FieldMultiSelect FieldType = "multiselect"
	FieldDocument    FieldType = "document"
	FieldUser        FieldType = "user"
)

func (t FieldType) Valid() bool {
	switch t {
	case FieldText, FieldNumber, FieldDate, FieldBoolean, FieldSelect, FieldMultiSelect, FieldDocument, FieldUser:
		return true
	}
	return false
}

type VoteType string

const (
	VoteSimpleMajority VoteType = "simple-majority"
	VoteTwoThirds      VoteType = "two-thirds"
	VoteUnanimous      VoteType = "unanimous"
)

func (v VoteType) Valid() bool {
	switch v {
	case VoteSimpleMajority, VoteTwoThirds, VoteUnanimous:
		return true
	}
	return false
}

type AutomationTrigger string

const (
	TriggerStateEntered AutomationTrigger = "stateEntered"
	TriggerFieldChanged AutomationTrigger = "fieldChanged"
	TriggerSLAWarning   AutomationTrigger = "slaWarning"
	TriggerSLABreach    AutomationTrigger = "slaBreach"
)

// WorkflowDefinition is a versioned, immutable-once-published process template.
type WorkflowDefinition struct {
	ID              string               `json:"id"`
	Key             string               `json:"key"`
	Name            string               `json:"name"`
	Description     string               `json:"description,omitempty"`
	Version         int                  `json:"version"`
	IsActive        bool                 `json:"isActive"`
	IsLatest        bool                 `json:"isLatest"`
	States          []WorkflowState      `json:"states"`
	Transitions     []WorkflowTransition `json:"transitions"`
	Fields          []WorkflowField      `json:"fields,omitempty"`
	AssignmentRules []AssignmentRule     `json:"assignmentRules,omitempty"`
	Automations     []WorkflowAutomation `json:"automations,omitempty"`
	Settings        WorkflowSettings     `json:"settings"`
	CreatedBy       string               `json:"createdBy,omitempty"`
	Created         time.Time            `json:"created"`
}

type WorkflowState struct {
	ID             string    `json:"id"`
	Label          string    `json:"label"`
	Description    string    `json:"description,omitempty"`
	Color          string    `json:"color,omitempty"`
	IsInitial      bool      `json:"isInitial,omitempty"`
	IsFinal        bool      `json:"isFinal,omitempty"`
	AllowedActions []string  `json:"allowedActions,omitempty"`
	OnEnter        Actions   `json:"onEnter,omitempty"`
	OnExit         Actions   `json:"onExit,omitempty"`
	SLA            *StateSLA `json:"sla,omitempty"`
}

// StateSLA is measured from the time the state was entered.
type StateSLA struct {
	MaxDurationHours float64  `json:"maxDurationHours"`
	WarningAtHours   float64  `json:"warningAtHours,omitempty"`
	EscalateTo       []string `json:"escalateTo,omitempty"`
}

// TransitionPermission is the authorization predicate of a transition.
// An empty permission allows any authenticated user.
type TransitionPermission struct {
	Roles                  []string    `json:"roles,omitempty"`
	MinAccessLevel         AccessLevel `json:"minAccessLevel,omitempty"`
	RequireCommitteeMember bool        `json:"requireCommitteeMember,omitempty"`
}

type WorkflowTransition struct {
	ID                  string               `json:"id"`
	Label               string               `json:"label"`
	From                string               `json:"from"`
	To                  string               `json:"to"`
	Permission          TransitionPermission `json:"permission"`
	Conditions          Conditions           `json:"conditions,omitempty"`
	RequiresComment     bool                 `json:"requiresComment,omitempty"`
	RequiresVote        bool                 `json:"requiresVote,omitempty"`
	VoteType            VoteType             `json:"voteType,omitempty"`
	Quorum              int                  `json:"quorum,omitempty"`
	RequiresAttachments bool                 `json:"requiresAttachments,omitempty"`
	MinAttachments      int                  `json:"minAttachments,omitempty"`
	Actions             Actions              `json:"actions,omitempty"`
}

type FieldValidation struct {
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Pattern string   `json:"pattern,omitempty"`
	Options []string `json:"options,omitempty"`
}

type WorkflowField struct {
	Name             string           `json:"name"`
	Label            string           `json:"label"`
	Type             FieldType        `json:"type"`
	Required         bool             `json:"required,omitempty"`
	Validation       *FieldValidation `json:"validation,omitempty"`
	VisibleInStates  []string         `json:"visibleInStates,omitempty"`
	EditableInStates []string         `json:"editableInStates,omitempty"`
	RequiredInStates []string         `json:"requiredInStates,omitempty"`
}

// RequiredIn reports whether the field must hold a value while the instance is in state.
func (f WorkflowField) RequiredIn(state string) bool {
	if len(f.RequiredInStates) > 0 {
		return contains(f.RequiredInStates, state)
	}
	return f.Required
}

// EditableIn reports whether the field may be written while the instance is in state.
func (f WorkflowField) EditableIn(state string) bool {
	return len(f.EditableInStates) == 0 || contains(f.EditableInStates, state)
}

// CustomFieldPredicate is a field comparison used by assignment rules.
type CustomFieldPredicate struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

// AssignmentRule maps runtime context to a definition for routing.
type AssignmentRule struct {
	ID                 string                 `json:"id"`
	DocumentTypes      []string               `json:"documentTypes,omitempty"`
	DocumentCategories []string               `json:"documentCategories,omitempty"`
	Committees         []string               `json:"committees,omitempty"`
	Tags               []string               `json:"tags,omitempty"`
	CustomFields       []CustomFieldPredicate `json:"customFields,omitempty"`
	Priority           int                    `json:"priority"`
	AutoStart          bool                   `json:"autoStart,omitempty"`
}

type WorkflowAutomation struct {
	ID      string            `json:"id"`
	Trigger AutomationTrigger `json:"trigger"`
	State   string            `json:"state,omitempty"`
	Field   string            `json:"field,omitempty"`
	Actions Actions           `json:"actions"`
}

type WorkflowSettings struct {
	StartAccessLevel     AccessLevel `json:"startAccessLevel,omitempty"`
	ViewAccessLevel      AccessLevel `json:"viewAccessLevel,omitempty"`
	RequireDocument      bool        `json:"requireDocument,omitempty"`
	AllowedDocumentTypes []string    `json:"allowedDocumentTypes,omitempty"`
	NotifyOnTransition   bool        `json:"notifyOnTransition,omitempty"`
	NotifyOnComplete     bool        `json:"notifyOnComplete,omitempty"`
	AuditFieldChanges    bool        `json:"auditFieldChanges,omitempty"`
}

func (d *WorkflowDefinition) InitialState() (*WorkflowState, bool) {
	for i := range d.States {
		if d.States[i].IsInitial {
			return &d.States[i], true
		}
	}
	return nil, false
}

func (d *WorkflowDefinition) State(id string) (*WorkflowState, bool) {
	for i := range d.States {
		if d.States[i].ID == id {
			return &d.States[i], true
		}
	}
	return nil, false
}

// Transition finds a transition by id that leaves the given state.
func (d *WorkflowDefinition) Transition(id, from string) (*WorkflowTransition, bool) {
	for i := range d.Transitions {
		if d.Transitions[i].ID == id && d.Transitions[i].From == from {
			return &d.Transitions[i], true
		}
	}
	return nil, false
}

func (d *WorkflowDefinition) Field(name string) (*WorkflowField, bool) {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return &d.Fields[i], true
		}
	}
	return nil, false
}

// AutomationsFor returns automations whose trigger and target match.
func (d *WorkflowDefinition) AutomationsFor(trigger AutomationTrigger, target string) []WorkflowAutomation {
	var out []WorkflowAutomation
	for _, a := range d.Automations {
		if a.Trigger != trigger {
			continue
		}
		switch trigger {
		case TriggerFieldChanged:
			if a.Field == target {
				out = append(out, a)
			}
		default:
			if a.State == "" || a.State == target {
				out = append(out, a)
			}
		}
	}
	return out
}

// Normalize fills defaults that are implied by the definition content.
func (d *WorkflowDefinition) Normalize() {
	d.Key = strings.TrimSpace(d.Key)
	if d.Key == "" {
		d.Key = slug(d.Name)
	}
	for i := range d.Transitions {
		t := &d.Transitions[i]
		if t.RequiresVote && t.VoteType == "" {
			t.VoteType = VoteSimpleMajority
		}
		if t.RequiresAttachments && t.MinAttachments == 0 {
			t.MinAttachments = 1
		}
	}
}

// Validate returns every structural problem of the definition.
func (d *WorkflowDefinition) Validate() []Violation {
	var out []Violation
	add := func(field, format string, args ...any) {
		out = append(out, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(d.Name) == "" {
		add("name", "name is required")
	}
	if len(d.States) == 0 {
		add("states", "at least one state is required")
	}

	states := map[string]bool{}
	initial, final := 0, 0
	for i, s := range d.States {
		path := fmt.Sprintf("states[%d]", i)
		if s.ID == "" {
			add(path+".id", "state id is required")
			continue
		}
		if states[s.ID] {
			add(path+".id", "duplicate state id %q", s.ID)
		}
		states[s.ID] = true
		if s.IsInitial {
			initial++
		}
		if s.IsFinal {
			final++
		}
		addActionProblems(&out, path+".onEnter", s.OnEnter)
		addActionProblems(&out, path+".onExit", s.OnExit)
		if s.SLA != nil {
			if s.SLA.MaxDurationHours <= 0 {
				add(path+".sla.maxDurationHours", "must be positive")
			}
			if s.SLA.WarningAtHours < 0 || s.SLA.WarningAtHours > s.SLA.MaxDurationHours {
				add(path+".sla.warningAtHours", "must be between 0 and maxDurationHours")
			}
		}
	}
	if len(d.States) > 0 {
		if initial == 0 {
			add("states", "exactly one initial state is required, found none")
		} else if initial > 1 {
			add("states", "exactly one initial state is required, found %d", initial)
		}
		if final == 0 {
			add("states", "at least one final state is required")
		}
	}

	transitions := map[string]bool{}
	for i, t := range d.Transitions {
		path := fmt.Sprintf("transitions[%d]", i)
		if t.ID == "" {
			add(path+".id", "transition id is required")
		} else {
			// the same id may leave different states, but not the same one twice
			key := t.ID + "\x00" + t.From
			if transitions[key] {
				add(path+".id", "duplicate transition id %q from state %q", t.ID, t.From)
			}
			transitions[key] = true
		}
		if !states[t.From] {
			add(path+".from", "unknown state %q", t.From)
		}
		if !states[t.To] {
			add(path+".to", "unknown state %q", t.To)
		}
		if t.RequiresVote && !t.VoteType.Valid() {
			add(path+".voteType", "unknown vote type %q", t.VoteType)
		}
		if t.Quorum < 0 {
			add(path+".quorum", "must not be negative")
		}
		if t.MinAttachments < 0 {
			add(path+".minAttachments", "must not be negative")
		}
		if t.Permission.MinAccessLevel != "" && !t.Permission.MinAccessLevel.Valid() {
			add(path+".permission.minAccessLevel", "unknown access level %q", t.Permission.MinAccessLevel)
		}
		for j, c := range t.Conditions {
			for _, p := range c.validate() {
				add(fmt.Sprintf("%s.conditions[%d]", path, j), "%s", p)
			}
		}
		addActionProblems(&out, path+".actions", t.Actions)
	}

	fields := map[string]bool{}
	for i, f := range d.Fields {
		path := fmt.Sprintf("fields[%d]", i)
		if f.Name == "" {
			add(path+".name", "field name is required")
		} else if fields[f.Name] {
			add(path+".name", "duplicate field %q", f.Name)
		}
		fields[f.Name] = true
		if !f.Type.Valid() {
			add(path+".type", "invalid field type %q", f.Type)
		}
		if v := f.Validation; v != nil {
			if v.Pattern != "" {
				if _, err := regexp.Compile(v.Pattern); err != nil {
					add(path+".validation.pattern", "invalid pattern: %v", err)
				}
			}
			if v.Min != nil && v.Max != nil && *v.Min > *v.Max {
				add(path+".validation", "min is greater than max")
			}
		}
		for _, group := range [][]string{f.VisibleInStates, f.EditableInStates, f.RequiredInStates} {
			for _, s := range group {
				if !states[s] {
					add(path, "references unknown state %q", s)
				}
			}
		}
	}

	for i, c := range d.Transitions {
		for j, cond := range c.Conditions {
			if fc, ok := cond.(FieldCondition); ok && fc.Field != "" && !fields[fc.Field] {
				add(fmt.Sprintf("transitions[%d].conditions[%d]", i, j), "unknown field %q", fc.Field)
			}
		}
	}

	rules := map[string]bool{}
	for i, r := range d.AssignmentRules {
		path := fmt.Sprintf("assignmentRules[%d]", i)
		if r.ID != "" {
			if rules[r.ID] {
				add(path+".id", "duplicate rule id %q", r.ID)
			}
			rules[r.ID] = true
		}
		for j, p := range r.CustomFields {
			if p.Field == "" {
				add(fmt.Sprintf("%s.customFields[%d]", path, j), "predicate requires a field")
			}
			if !p.Operator.Valid() {
				add(fmt.Sprintf("%s.customFields[%d]", path, j), "unknown operator %q", p.Operator)
			}
		}
	}

	for i, a := range d.Automations {
		path := fmt.Sprintf("automations[%d]", i)
		switch a.Trigger {
		case TriggerStateEntered, TriggerSLAWarning, TriggerSLABreach:
			if a.State != "" && !states[a.State] {
				add(path+".state", "unknown state %q", a.State)
			}
		case TriggerFieldChanged:
			if !fields[a.Field] {
				add(path+".field", "unknown field %q", a.Field)
			}
		default:
			add(path+".trigger", "unknown trigger %q", a.Trigger)
		}
		if len(a.Actions) == 0 {
			add(path+".actions", "at least one action is required")
		}
		addActionProblems(&out, path+".actions", a.Actions)
	}

	if lvl := d.Settings.StartAccessLevel; lvl != "" && !lvl.Valid() {
		add("settings.startAccessLevel", "unknown access level %q", lvl)
	}
	if lvl := d.Settings.ViewAccessLevel; lvl != "" && !lvl.Valid() {
		add("settings.viewAccessLevel", "unknown access level %q", lvl)
	}
	return out
}

func addActionProblems(out *[]Violation, path string, actions Actions) {
	for i, a := range actions {
		if a == nil {
			*out = append(*out, Violation{Field: fmt.Sprintf("%s[%d]", path, i), Message: "action is empty"})
			continue
		}
		for _, p := range a.validate() {
			*out = append(*out, Violation{Field: fmt.Sprintf("%s[%d]", path, i), Message: p})
		}
	}
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
