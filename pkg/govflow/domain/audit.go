package domain

import "time"

// Audit event types emitted by the engine.
const (
	AuditDefinitionCreated     = "definition.created"
	AuditDefinitionDeactivated = "definition.deactivated"
	AuditInstanceStarted       = "instance.started"
	AuditInstanceTransitioned  = "instance.transitioned"
	AuditInstanceFieldsUpdated = "instance.fields_updated"
	AuditInstanceCancelled     = "instance.cancelled"
	AuditInstanceError         = "instance.error"
	AuditVoteCast              = "vote.cast"
	AuditVoteDecided           = "vote.decided"
	AuditActionFailed          = "action.failed"
	AuditSLAWarning            = "sla.warning"
	AuditSLABreach             = "sla.breach"
)

// AuditEvent is one record for the audit sink. IdempotencyKey deduplicates repeated emission.
type AuditEvent struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Actor          string         `json:"actor"`
	InstanceID     string         `json:"instanceId,omitempty"`
	DefinitionID   string         `json:"definitionId,omitempty"`
	IdempotencyKey string         `json:"idempotencyKey"`
	Payload        map[string]any `json:"payload,omitempty"`
	Created        time.Time      `json:"created"`
}

// Notification is handed to the notifier by notify actions and the SLA monitor.
type Notification struct {
	Targets    []string       `json:"targets"`
	Template   string         `json:"template"`
	InstanceID string         `json:"instanceId"`
	Data       map[string]any `json:"data,omitempty"`
}
