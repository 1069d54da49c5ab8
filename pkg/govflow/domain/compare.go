package domain

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Evaluate applies the operator to an actual field value and the configured operand.
// Operands that cannot be compared make the predicate false.
func (o Operator) Evaluate(actual, expected any) bool {
	switch o {
	case OpEquals:
		return looseEqual(actual, expected)
	case OpNotEquals:
		return !looseEqual(actual, expected)
	case OpGreaterThan:
		c, ok := compare(actual, expected)
		return ok && c > 0
	case OpLessThan:
		c, ok := compare(actual, expected)
		return ok && c < 0
	case OpContains:
		if s, ok := actual.(string); ok {
			return strings.Contains(s, fmt.Sprint(expected))
		}
		for _, item := range asList(actual) {
			if looseEqual(item, expected) {
				return true
			}
		}
		return false
	case OpIn:
		for _, item := range asList(expected) {
			if looseEqual(actual, item) {
				return true
			}
		}
		return false
	case OpIsEmpty:
		return IsEmptyValue(actual)
	case OpIsNotEmpty:
		return !IsEmptyValue(actual)
	}
	return false
}

// IsEmptyValue treats nil, blank strings and empty collections as empty.
func IsEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// ToFloat converts JSON and Go numeric values, and numeric strings, to float64.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// ParseDate accepts RFC 3339 timestamps and plain dates.
func ParseDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	_, aStr := a.(string)
	_, bStr := b.(string)
	if !aStr || !bStr {
		if fa, ok := ToFloat(a); ok {
			if fb, ok := ToFloat(b); ok {
				return fa == fb
			}
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return ba == bb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compare(a, b any) (int, bool) {
	if fa, ok := ToFloat(a); ok {
		if fb, ok := ToFloat(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			}
			return 0, true
		}
	}
	if da, ok := ParseDate(a); ok {
		if db, ok := ParseDate(b); ok {
			return da.Compare(db), true
		}
	}
	return 0, false
}

func asList(v any) []any {
	if v == nil {
		return nil
	}
	if list, ok := v.([]any); ok {
		return list
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
