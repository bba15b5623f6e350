// Package schema defines immutable data models and validates payloads
// against them. Models are ordered lists of typed fields; field order is
// preserved for display and export. The package has no knowledge of the
// ledger or of persistence.
package schema

import (
	"fmt"
	"time"
)

// FieldType is the type tag of a model field.
type FieldType string

// The six supported field type tags.
const (
	TypeText     FieldType = "text"
	TypeInteger  FieldType = "integer"
	TypeReal     FieldType = "real"
	TypeBoolean  FieldType = "boolean"
	TypeDatetime FieldType = "datetime"
	TypeJSON     FieldType = "json"
)

// Valid reports whether t is one of the supported type tags.
func (t FieldType) Valid() bool {
	switch t {
	case TypeText, TypeInteger, TypeReal, TypeBoolean, TypeDatetime, TypeJSON:
		return true
	}
	return false
}

// Field is a single typed field of a model.
type Field struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Required    bool      `json:"required"`
	Default     any       `json:"default,omitempty"`
	Description string    `json:"description,omitempty"`
}

// FieldSpec is the caller-facing description of a field. Required is a
// pointer so that an absent value defaults to true.
type FieldSpec struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	Required    *bool     `json:"required,omitempty"`
	Default     any       `json:"default,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Model is an immutable named, ordered set of field definitions. Models have
// no update operation; a model row, once persisted, never changes.
type Model struct {
	Name        string  `json:"name"`
	Fields      []Field `json:"fields"`
	Description string  `json:"description,omitempty"`
	CreatedAt   float64 `json:"created_at"`
	Version     string  `json:"version"`
}

// CurrentVersion is stamped on every newly defined model.
const CurrentVersion = "1.0"

// NewModel builds a model from field specs, applying spec defaults:
// required defaults to true, description to empty, default to absent.
func NewModel(name string, specs []FieldSpec, description string) (*Model, error) {
	if name == "" {
		return nil, fmt.Errorf("schema: model name must not be empty")
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("schema: model %q has no fields", name)
	}

	fields := make([]Field, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("schema: model %q has a field with no name", name)
		}
		if seen[spec.Name] {
			return nil, fmt.Errorf("schema: model %q repeats field %q", name, spec.Name)
		}
		seen[spec.Name] = true
		if !spec.Type.Valid() {
			return nil, fmt.Errorf("schema: field %q has unknown type %q", spec.Name, spec.Type)
		}
		required := true
		if spec.Required != nil {
			required = *spec.Required
		}
		fields = append(fields, Field{
			Name:        spec.Name,
			Type:        spec.Type,
			Required:    required,
			Default:     spec.Default,
			Description: spec.Description,
		})
	}

	return &Model{
		Name:        name,
		Fields:      fields,
		Description: description,
		CreatedAt:   float64(time.Now().UnixNano()) / float64(time.Second),
		Version:     CurrentVersion,
	}, nil
}
