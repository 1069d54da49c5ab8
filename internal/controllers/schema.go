package controllers

import (
	"reflect"
	"sync"

	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
	"github.com/invopop/jsonschema"
)

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
)

var (
	actionsType    = reflect.TypeOf(domain.Actions{})
	conditionsType = reflect.TypeOf(domain.Conditions{})
)

// Payload types of the action and condition sum types, keyed by discriminator.
var (
	actionPayloads = map[string]any{
		domain.ActionNotify:      domain.NotifyAction{},
		domain.ActionAssign:      domain.AssignAction{},
		domain.ActionUpdateField: domain.UpdateFieldAction{},
		domain.ActionDocument:    domain.DocumentAction{},
		domain.ActionWebhook:     domain.WebhookAction{},
		domain.ActionAudit:       domain.AuditAction{},
	}
	conditionPayloads = map[string]any{
		domain.ConditionField:       domain.FieldCondition{},
		domain.ConditionRole:        domain.RoleCondition{},
		domain.ConditionTimeInState: domain.TimeInStateCondition{},
	}
	actionKinds    = []string{domain.ActionNotify, domain.ActionAssign, domain.ActionUpdateField, domain.ActionDocument, domain.ActionWebhook, domain.ActionAudit}
	conditionKinds = []string{domain.ConditionField, domain.ConditionRole, domain.ConditionTimeInState}
)

// DefinitionSchema returns the JSON schema of a workflow definition document.
func DefinitionSchema() *jsonschema.Schema {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			ExpandedStruct: true,
			DoNotReference: true,
			Mapper:         mapTaggedLists,
		}
		schema = r.Reflect(&domain.WorkflowDefinition{})
		schema.Title = "govflow workflow definition"
	})
	return schema
}

func mapTaggedLists(t reflect.Type) *jsonschema.Schema {
	switch t {
	case actionsType:
		return taggedList(actionKinds, actionPayloads)
	case conditionsType:
		return taggedList(conditionKinds, conditionPayloads)
	}
	return nil
}

func taggedList(kinds []string, payloads map[string]any) *jsonschema.Schema {
	r := &jsonschema.Reflector{ExpandedStruct: true, DoNotReference: true}
	variants := make([]*jsonschema.Schema, 0, len(kinds))
	for _, kind := range kinds {
		s := r.Reflect(payloads[kind])
		s.Version = ""
		s.Properties.Set("type", &jsonschema.Schema{Type: "string", Const: kind})
		s.Required = append([]string{"type"}, s.Required...)
		variants = append(variants, s)
	}
	return &jsonschema.Schema{
		Type:  "array",
		Items: &jsonschema.Schema{OneOf: variants},
	}
}
