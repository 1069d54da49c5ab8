package domain

import "time"

type InstanceStatus string

const (
	StatusActive    InstanceStatus = "active"
	StatusCompleted InstanceStatus = "completed"
	StatusCancelled InstanceStatus = "cancelled"
	StatusError     InstanceStatus = "error"
)

func (s InstanceStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusError
}

// DocumentRef links an instance to a document held by the document service.
type DocumentRef struct {
	ID       string `json:"id"`
	Type     string `json:"type,omitempty"`
	Category string `json:"category,omitempty"`
}

// WorkflowInstance is one running execution of a definition version.
type WorkflowInstance struct {
	ID                string         `json:"id"`
	DefinitionID      string         `json:"definitionId"`
	DefinitionVersion int            `json:"definitionVersion"`
	CurrentState      string         `json:"currentState"`
	StateEnteredAt    time.Time      `json:"stateEnteredAt"`
	StateVisit        int            `json:"stateVisit"` // incremented on every state entry
	FieldValues       map[string]any `json:"fieldValues"`
	DocumentRef       *DocumentRef   `json:"documentRef,omitempty"`
	Committee         string         `json:"committee,omitempty"`
	AssignedTo        string         `json:"assignedTo,omitempty"`
	AssignedCommittee string         `json:"assignedCommittee,omitempty"`
	Status            InstanceStatus `json:"status"`
	CreatedBy         string         `json:"createdBy"`
	Created           time.Time      `json:"created"`
	Modified          time.Time      `json:"modified"`
	Version           int64          `json:"version"`
	History           []HistoryEntry `json:"history,omitempty"`
}

// Clone returns a copy that can be mutated without touching the original field map.
func (w *WorkflowInstance) Clone() *WorkflowInstance {
	c := *w
	c.FieldValues = make(map[string]any, len(w.FieldValues))
	for k, v := range w.FieldValues {
		c.FieldValues[k] = v
	}
	if w.DocumentRef != nil {
		ref := *w.DocumentRef
		c.DocumentRef = &ref
	}
	c.History = append([]HistoryEntry(nil), w.History...)
	return &c
}

type HistoryType string

const (
	HistoryStarted     HistoryType = "started"
	HistoryTransition  HistoryType = "transition"
	HistoryFieldChange HistoryType = "field_change"
	HistoryComment     HistoryType = "comment"
	HistoryVote        HistoryType = "vote"
	HistoryCancelled   HistoryType = "cancelled"
)

// HistoryEntry is one append-only record of what happened to an instance.
type HistoryEntry struct {
	ID           string      `json:"id"`
	InstanceID   string      `json:"instanceId"`
	Sequence     int64       `json:"sequence"`
	Type         HistoryType `json:"type"`
	Actor        string      `json:"actor"`
	FromState    string      `json:"fromState,omitempty"`
	ToState      string      `json:"toState,omitempty"`
	TransitionID string      `json:"transitionId,omitempty"`
	Field        string      `json:"field,omitempty"`
	OldValue     any         `json:"oldValue,omitempty"`
	NewValue     any         `json:"newValue,omitempty"`
	Comment      string      `json:"comment,omitempty"`
	Vote         VoteChoice  `json:"vote,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// InstanceFilter narrows ListInstances; empty members match everything.
type InstanceFilter struct {
	DefinitionID string
	Status       InstanceStatus
	Limit        int
	// After resumes the (created, id) listing order past a previous page.
	After *InstanceCursor
}

// InstanceCursor is a keyset position in the listing order.
type InstanceCursor struct {
	Created time.Time `json:"created"`
	ID      string    `json:"id"`
}

// CursorOf returns the position just past inst.
func CursorOf(inst *WorkflowInstance) *InstanceCursor {
	return &InstanceCursor{Created: inst.Created, ID: inst.ID}
}

// Attachment is a file reference supplied with a transition.
type Attachment struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}
