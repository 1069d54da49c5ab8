package engine

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/RealZimboGuy/govflow/pkg/govflow/domain"
)

// validateStartFields checks initial values against the schema scoped to the initial state.
func validateStartFields(def *domain.WorkflowDefinition, state string, values map[string]any) []domain.Violation {
	var out []domain.Violation
	for _, name := range sortedKeys(values) {
		f, ok := def.Field(name)
		if !ok {
			out = append(out, domain.Violation{Field: name, Message: "unknown field"})
			continue
		}
		if msg := checkValue(f, values[name]); msg != "" {
			out = append(out, domain.Violation{Field: name, Message: msg})
		}
	}
	for _, f := range def.Fields {
		if f.RequiredIn(state) && domain.IsEmptyValue(values[f.Name]) {
			out = append(out, domain.Violation{Field: f.Name, Message: fmt.Sprintf("is required in state %s", state)})
		}
	}
	return out
}

// validateFieldUpdate checks a partial update against the schema scoped to the current state.
func validateFieldUpdate(def *domain.WorkflowDefinition, state string, values map[string]any) []domain.Violation {
	var out []domain.Violation
	for _, name := range sortedKeys(values) {
		f, ok := def.Field(name)
		if !ok {
			out = append(out, domain.Violation{Field: name, Message: "unknown field"})
			continue
		}
		if !f.EditableIn(state) {
			out = append(out, domain.Violation{Field: name, Message: fmt.Sprintf("is not editable in state %s", state)})
			continue
		}
		v := values[name]
		if f.RequiredIn(state) && domain.IsEmptyValue(v) {
			out = append(out, domain.Violation{Field: name, Message: fmt.Sprintf("is required in state %s", state)})
			continue
		}
		if msg := checkValue(f, v); msg != "" {
			out = append(out, domain.Violation{Field: name, Message: msg})
		}
	}
	return out
}

// checkValue returns a violation message, or "" when v is acceptable for f.
// A nil value clears the field and is checked by the required rules instead.
func checkValue(f *domain.WorkflowField, v any) string {
	if v == nil {
		return ""
	}
	rules := f.Validation
	if rules == nil {
		rules = &domain.FieldValidation{}
	}

	switch f.Type {
	case domain.FieldText:
		s, ok := v.(string)
		if !ok {
			return "must be text"
		}
		if msg := checkRange(float64(len([]rune(s))), rules, "length"); msg != "" {
			return msg
		}
		if rules.Pattern != "" {
			re, err := regexp.Compile(rules.Pattern)
			if err != nil || !re.MatchString(s) {
				return fmt.Sprintf("does not match pattern %s", rules.Pattern)
			}
		}
	case domain.FieldNumber:
		if _, isString := v.(string); isString {
			return "must be a number"
		}
		n, ok := domain.ToFloat(v)
		if !ok {
			return "must be a number"
		}
		return checkRange(n, rules, "value")
	case domain.FieldDate:
		if _, ok := domain.ParseDate(v); !ok {
			return "must be a date"
		}
	case domain.FieldBoolean:
		if _, ok := v.(bool); !ok {
			return "must be true or false"
		}
	case domain.FieldSelect:
		s, ok := v.(string)
		if !ok {
			return "must be one of the options"
		}
		if len(rules.Options) > 0 && !contains(rules.Options, s) {
			return fmt.Sprintf("%q is not one of the options", s)
		}
	case domain.FieldMultiSelect:
		items, ok := stringList(v)
		if !ok {
			return "must be a list of options"
		}
		for _, s := range items {
			if len(rules.Options) > 0 && !contains(rules.Options, s) {
				return fmt.Sprintf("%q is not one of the options", s)
			}
		}
		return checkRange(float64(len(items)), rules, "selection count")
	case domain.FieldDocument:
		switch d := v.(type) {
		case string:
			if d == "" {
				return "must reference a document"
			}
		case map[string]any:
			if id, _ := d["id"].(string); id == "" {
				return "must reference a document"
			}
		default:
			return "must reference a document"
		}
	case domain.FieldUser:
		if s, ok := v.(string); !ok || s == "" {
			return "must name a user"
		}
	}
	return ""
}

func checkRange(n float64, rules *domain.FieldValidation, what string) string {
	if rules.Min != nil && n < *rules.Min {
		return fmt.Sprintf("%s must be at least %v", what, *rules.Min)
	}
	if rules.Max != nil && n > *rules.Max {
		return fmt.Sprintf("%s must be at most %v", what, *rules.Max)
	}
	return ""
}

func stringList(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
