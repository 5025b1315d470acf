package evaluation

import (
	"encoding/json"
	"errors"
	"reflect"
	"strconv"
)

// ConditionValue is the expected value of a single condition: either one
// scalar that the context attribute must equal, or a set of acceptable
// scalars the attribute must be a member of.
type ConditionValue struct {
	scalar any
	set    []any
}

// OneOf builds a set-membership condition value.
func OneOf(values ...any) ConditionValue {
	return ConditionValue{set: values}
}

// Equals builds an exact-match condition value.
func Equals(value any) ConditionValue {
	return ConditionValue{scalar: value}
}

// Matches reports whether the given context value satisfies the condition.
func (v ConditionValue) Matches(got any) bool {
	if v.set != nil {
		for _, want := range v.set {
			if scalarEqual(got, want) {
				return true
			}
		}
		return false
	}
	return scalarEqual(got, v.scalar)
}

func (v ConditionValue) MarshalJSON() ([]byte, error) {
	if v.set != nil {
		return json.Marshal(v.set)
	}
	return json.Marshal(v.scalar)
}

func (v *ConditionValue) UnmarshalJSON(data []byte) error {
	var set []any
	if err := json.Unmarshal(data, &set); err == nil {
		*v = ConditionValue{set: set}
		return nil
	}
	var scalar any
	if err := json.Unmarshal(data, &scalar); err != nil {
		return err
	}
	*v = ConditionValue{scalar: scalar}
	return nil
}

// Conditions maps context attribute names to expected values. All pairs
// must hold for the conditions to match; a missing context attribute fails
// its pair.
type Conditions map[string]ConditionValue

// Match reports whether every condition holds against the context.
// An empty condition map matches everything.
func (c Conditions) Match(evalCtx Context) bool {
	for key, want := range c {
		got, ok := evalCtx[key]
		if !ok {
			return false
		}
		if !want.Matches(got) {
			return false
		}
	}
	return true
}

// ParseConditions decodes a raw conditions payload, as read from the rule
// store, into a typed condition map. The payload is either a JSON object or
// a JSON string wrapping one (legacy double-encoded rows). A null or empty
// payload yields nil conditions. Anything unparseable, including placeholder
// garbage such as "[object Object]", yields nil conditions together with
// ErrInvalidConditions so the caller can log and move on; a parse failure
// must never surface from evaluation itself.
func ParseConditions(raw json.RawMessage) (Conditions, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	// Double-encoded payloads arrive as a JSON string;
	// unwrap once before decoding the object.
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, errors.Join(ErrInvalidConditions, err)
		}
		raw = json.RawMessage(inner)
		if len(raw) == 0 {
			return nil, nil
		}
	}

	var conds Conditions
	if err := json.Unmarshal(raw, &conds); err != nil {
		return nil, errors.Join(ErrInvalidConditions, err)
	}
	if len(conds) == 0 {
		return nil, nil
	}
	return conds, nil
}

// scalarEqual compares two JSON scalars, coercing numeric types so that an
// int written in Go code equals the float64 the JSON decoder produces.
func scalarEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
		return false
	}
	if !reflect.TypeOf(a).Comparable() || !reflect.TypeOf(b).Comparable() {
		return false
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
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
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// hashableString renders a context value the way it participates in the
// bucketing hash input. Numbers render without a trailing ".0" so that the
// same identifier hashes identically whether it arrived as a string or a
// JSON number.
func hashableString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, s != ""
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case bool:
		return strconv.FormatBool(s), true
	case json.Number:
		return s.String(), true
	}
	return "", false
}
