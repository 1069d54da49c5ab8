package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Operator is a comparison used by field conditions and custom-field predicates.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
	OpContains    Operator = "contains"
	OpIn          Operator = "in"
	OpIsEmpty     Operator = "isEmpty"
	OpIsNotEmpty  Operator = "isNotEmpty"
)

func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpContains, OpIn, OpIsEmpty, OpIsNotEmpty:
		return true
	}
	return false
}

const (
	ConditionField       = "field"
	ConditionRole        = "role"
	ConditionTimeInState = "timeInState"
)

// Condition is a guard on a transition. The set of implementations is closed.
type Condition interface {
	Kind() string
	Describe() string
	validate() []string
}

// FieldCondition compares a field value with an operand.
type FieldCondition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

func (c FieldCondition) Kind() string { return ConditionField }

func (c FieldCondition) Describe() string {
	if c.Operator == OpIsEmpty || c.Operator == OpIsNotEmpty {
		return fmt.Sprintf("field %s %s", c.Field, c.Operator)
	}
	return fmt.Sprintf("field %s %s %v", c.Field, c.Operator, c.Value)
}

func (c FieldCondition) validate() []string {
	var problems []string
	if c.Field == "" {
		problems = append(problems, "field condition requires a field")
	}
	if !c.Operator.Valid() {
		problems = append(problems, fmt.Sprintf("unknown operator %q", c.Operator))
	}
	return problems
}

// RoleCondition requires the acting user to hold one of the roles.
type RoleCondition struct {
	Roles []string `json:"roles"`
}

func (c RoleCondition) Kind() string { return ConditionRole }

func (c RoleCondition) Describe() string {
	return "role in [" + strings.Join(c.Roles, ", ") + "]"
}

func (c RoleCondition) validate() []string {
	if len(c.Roles) == 0 {
		return []string{"role condition requires at least one role"}
	}
	return nil
}

// TimeInStateCondition bounds the hours elapsed since the instance entered its state.
type TimeInStateCondition struct {
	MinHours *float64 `json:"minHours,omitempty"`
	MaxHours *float64 `json:"maxHours,omitempty"`
}

func (c TimeInStateCondition) Kind() string { return ConditionTimeInState }

func (c TimeInStateCondition) Describe() string {
	var parts []string
	if c.MinHours != nil {
		parts = append(parts, fmt.Sprintf(">= %gh", *c.MinHours))
	}
	if c.MaxHours != nil {
		parts = append(parts, fmt.Sprintf("<= %gh", *c.MaxHours))
	}
	return "time in state " + strings.Join(parts, " and ")
}

func (c TimeInStateCondition) validate() []string {
	if c.MinHours == nil && c.MaxHours == nil {
		return []string{"timeInState condition requires minHours or maxHours"}
	}
	return nil
}

// Conditions is an ordered list of guards encoded with a "type" discriminator.
type Conditions []Condition

func (cs Conditions) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(cs))
	for _, c := range cs {
		raw, err := marshalTagged(c.Kind(), c)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

func (cs *Conditions) UnmarshalJSON(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	list := make(Conditions, 0, len(raws))
	for i, raw := range raws {
		kind, err := peekType(raw)
		if err != nil {
			return fmt.Errorf("condition[%d]: %w", i, err)
		}
		var c Condition
		switch kind {
		case ConditionField:
			var fc FieldCondition
			err = decodeTagged(raw, &fc)
			c = fc
		case ConditionRole:
			var rc RoleCondition
			err = decodeTagged(raw, &rc)
			c = rc
		case ConditionTimeInState:
			var tc TimeInStateCondition
			err = decodeTagged(raw, &tc)
			c = tc
		default:
			return fmt.Errorf("condition[%d]: unknown type %q", i, kind)
		}
		if err != nil {
			return fmt.Errorf("condition[%d]: %w", i, err)
		}
		list = append(list, c)
	}
	*cs = list
	return nil
}
