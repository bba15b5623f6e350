package schema

import (
	"fmt"
	"math"
)

// ErrorKind discriminates validation failures.
type ErrorKind string

const (
	// KindMissingRequired means a required field is absent after defaulting.
	KindMissingRequired ErrorKind = "missing_required"
	// KindTypeMismatch means a present value does not match its type tag.
	KindTypeMismatch ErrorKind = "type_mismatch"
)

// Error is a validation failure for a single field.
type Error struct {
	Kind  ErrorKind
	Model string
	Field string
	Type  FieldType
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindMissingRequired:
		return fmt.Sprintf("schema: model %q: required field %q is missing", e.Model, e.Field)
	default:
		return fmt.Sprintf("schema: model %q: field %q must be of type %s", e.Model, e.Field, e.Type)
	}
}

// Validate checks payload against m. Missing fields that carry a default
// are written into payload in place first; afterwards every required field
// must be present and every present value must match its field's type tag.
// No format, range, or cross-field checks are applied.
func Validate(payload map[string]any, m *Model) error {
	for _, f := range m.Fields {
		if _, ok := payload[f.Name]; !ok && f.Default != nil {
			payload[f.Name] = f.Default
		}

		value, ok := payload[f.Name]
		if !ok {
			if f.Required {
				return &Error{Kind: KindMissingRequired, Model: m.Name, Field: f.Name}
			}
			continue
		}

		if !matchesType(value, f.Type) {
			return &Error{Kind: KindTypeMismatch, Model: m.Name, Field: f.Name, Type: f.Type}
		}
	}
	return nil
}

// matchesType applies the per-tag type rule. Payloads may be built in
// process (Go ints) or decoded from JSON (float64 for every number), so
// integer accepts any whole number but never a value with a fractional
// part.
func matchesType(value any, t FieldType) bool {
	switch t {
	case TypeText:
		_, ok := value.(string)
		return ok
	case TypeInteger:
		switch n := value.(type) {
		case int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64:
			return true
		case float64:
			return n == math.Trunc(n)
		case float32:
			return float64(n) == math.Trunc(float64(n))
		default:
			return false
		}
	case TypeReal:
		_, ok := asNumber(value)
		return ok
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	case TypeDatetime:
		if _, ok := asNumber(value); ok {
			return true
		}
		_, ok := value.(string)
		return ok
	case TypeJSON:
		switch value.(type) {
		case map[string]any, []any:
			return true
		}
		return false
	}
	return false
}

// asNumber normalizes any numeric value to float64. Booleans and strings
// are not numbers.
func asNumber(value any) (float64, bool) {
	switch n := value.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// AsNumber is the exported form of the numeric normalization used by search
// matching.
func AsNumber(value any) (float64, bool) { return asNumber(value) }
